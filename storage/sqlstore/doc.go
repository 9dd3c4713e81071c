// Package sqlstore provides a SQL storage backend built on bun.
//
// Store implements ClientStore, ArtifactStore, TransactionStore and UserStore
// against SQLite (github.com/mattn/go-sqlite3) or PostgreSQL (github.com/lib/pq).
// Single-use semantics for authorization codes and transactions come from the
// affected row count of DELETE, which the database reports for exactly one of
// several concurrent deletes of the same row.
//
//	db, err := sqlstore.Open(sqlstore.DriverPostgres, os.Getenv("DATABASE_URL"))
//	store, err := sqlstore.New(db, logger)
//	err = store.CreateSchema(ctx)
//	store.StartCleanup(time.Minute)
//	defer store.Close()
package sqlstore
