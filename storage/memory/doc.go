// Package memory provides an in-memory implementation of the storage interfaces.
//
// Store implements ClientStore, ArtifactStore, TransactionStore and UserStore
// using maps guarded by a sync.RWMutex. Expired authorization codes, access
// tokens and transactions are dropped by a background cleanup loop. It is
// suitable for development, testing, and single-instance deployments.
//
// For deployments that need persistence or several replicas, use
// storage/valkey or storage/sqlstore instead.
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := server.New(store, store, security.NewPasswordVerifier(store), config, logger)
package memory
