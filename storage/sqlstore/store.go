package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/giantswarm/oauth-grants/internal/util"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/storage"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// tokenIDLogLength is the number of characters to include when logging token IDs
const tokenIDLogLength = 8

// Store is a SQL implementation of all storage interfaces on top of bun.
// It runs against SQLite and PostgreSQL.
type Store struct {
	db     *bun.DB
	logger *slog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore      = (*Store)(nil)
	_ storage.ArtifactStore    = (*Store)(nil)
	_ storage.TransactionStore = (*Store)(nil)
	_ storage.UserStore        = (*Store)(nil)
)

// Open opens a bun.DB for driver and dsn, picking the matching dialect.
func Open(driver, dsn string) (*bun.DB, error) {
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}

	switch driver {
	case DriverSQLite:
		// One connection for every SQLite DSN: in-memory databases are per
		// connection, and on-disk files serialize writers here instead of
		// failing with SQLITE_BUSY, so each single-use delete sees the
		// committed state of the one before it.
		sqlDB.SetMaxOpenConns(1)
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	case DriverPostgres:
		return bun.NewDB(sqlDB, pgdialect.New()), nil
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// New wraps db. Call CreateSchema before first use on an empty database.
func New(db *bun.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:          db,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}, nil
}

// CreateSchema creates all tables if they do not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: create table: %w", err)
		}
	}
	return nil
}

// DB returns the underlying bun.DB.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close stops the cleanup loop and closes the database.
func (s *Store) Close() error {
	s.Stop()
	return s.db.Close()
}

// StartCleanup periodically removes expired codes, access tokens and transactions.
func (s *Store) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCleanup:
				return
			case <-ticker.C:
				n, err := s.PurgeExpired(context.Background(), time.Now())
				if err != nil {
					s.logger.Warn("Failed to purge expired records", "error", err)
				} else if n > 0 {
					s.logger.Debug("Purged expired records", "count", n)
				}
			}
		}
	}()
}

// Stop stops the cleanup loop. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// PurgeExpired deletes rows whose expiry is before now minus the clock skew grace period.
// Refresh tokens never expire and are left alone.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-security.DefaultClockSkewGracePeriod).UTC()
	var total int64
	for _, model := range []any{
		(*authorizationCodeRecord)(nil),
		(*accessTokenRecord)(nil),
		(*transactionRecord)(nil),
	} {
		res, err := s.db.NewDelete().Model(model).Where("expires_at < ?", cutoff).Exec(ctx)
		if err != nil {
			return total, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += affected
	}
	return total, nil
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient registers or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	record := newClientRecord(client)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*clientRecord)(nil)).Where("client_id = ?", client.ClientID).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: replace client: %w", err)
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: insert client: %w", err)
		}
		return nil
	})
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	record := &clientRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.client_id = ?", clientID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// ValidateClientSecret validates a client's secret using bcrypt.
// The bcrypt comparison runs whether or not the client exists.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	hash := ""
	client, err := s.GetClient(ctx, clientID)
	if err == nil {
		hash = client.SecretHash
	}

	if !security.CompareSecret(hash, clientSecret) || err != nil {
		return storage.ErrInvalidClientCredentials
	}
	return nil
}

// ListClients lists all registered clients ordered by ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	var records []clientRecord
	if err := s.db.NewSelect().Model(&records).OrderExpr("?TableAlias.client_id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	clients := make([]*storage.Client, 0, len(records))
	for i := range records {
		clients = append(clients, records[i].toDomain())
	}
	return clients, nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser registers or replaces a user
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	if user == nil || user.ID == "" || user.Username == "" {
		return fmt.Errorf("invalid user")
	}

	record := &userRecord{ID: user.ID, Username: user.Username, Name: user.Name, PasswordHash: user.PasswordHash}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*userRecord)(nil)).Where("username = ?", user.Username).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: replace user: %w", err)
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: insert user: %w", err)
		}
		return nil
	})
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	record := &userRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.username = ?", username).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode persists an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	record := &authorizationCodeRecord{
		Code:        code.Code,
		ClientID:    code.ClientID,
		RedirectURI: code.RedirectURI,
		UserID:      code.UserID,
		Scope:       storage.CloneScope(code.Scope),
		CreatedAt:   code.CreatedAt.UTC(),
		ExpiresAt:   code.ExpiresAt.UTC(),
	}
	if err := s.insert(ctx, record, "authorization code"); err != nil {
		return err
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves an authorization code
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	record := &authorizationCodeRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.code = ?", code).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// DeleteAuthorizationCode removes a code and returns the affected row count
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*authorizationCodeRecord)(nil)).
		Where("code = ?", code).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete authorization code: %w", err)
	}
	return res.RowsAffected()
}

// ============================================================
// Token Implementation
// ============================================================

// SaveAccessToken persists an issued access token
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}
	return s.insert(ctx, &accessTokenRecord{
		Token:     token.Token,
		ClientID:  token.ClientID,
		UserID:    token.UserID,
		Scope:     storage.CloneScope(token.Scope),
		CreatedAt: token.CreatedAt.UTC(),
		ExpiresAt: token.ExpiresAt.UTC(),
	}, "access token")
}

// GetAccessToken retrieves an access token
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	record := &accessTokenRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.token = ?", token).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccessTokenNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// SaveRefreshToken persists an issued refresh token
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}
	return s.insert(ctx, &refreshTokenRecord{
		Token:     token.Token,
		ClientID:  token.ClientID,
		UserID:    token.UserID,
		Scope:     storage.CloneScope(token.Scope),
		CreatedAt: token.CreatedAt.UTC(),
	}, "refresh token")
}

// GetRefreshToken retrieves a refresh token
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	record := &refreshTokenRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.token = ?", token).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRefreshTokenNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// ============================================================
// TransactionStore Implementation
// ============================================================

// SaveTransaction persists a pending authorization transaction
func (s *Store) SaveTransaction(ctx context.Context, txn *storage.TransactionRecord) error {
	if txn == nil || txn.ID == "" {
		return fmt.Errorf("invalid transaction")
	}
	return s.insert(ctx, &transactionRecord{
		ID:        txn.ID,
		ClientID:  txn.ClientID,
		UserID:    txn.UserID,
		Payload:   txn.Payload,
		CreatedAt: txn.CreatedAt.UTC(),
		ExpiresAt: txn.ExpiresAt.UTC(),
	}, "transaction")
}

// GetTransaction retrieves a pending transaction
func (s *Store) GetTransaction(ctx context.Context, id string) (*storage.TransactionRecord, error) {
	record := &transactionRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTransactionNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// DeleteTransaction removes a transaction and returns the affected row count
func (s *Store) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*transactionRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete transaction: %w", err)
	}
	return res.RowsAffected()
}

// ============================================================
// Helpers
// ============================================================

// insert writes a new row and maps primary key collisions to storage.ErrAlreadyExists.
func (s *Store) insert(ctx context.Context, record any, what string) error {
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, what)
		}
		return fmt.Errorf("sqlstore: insert %s: %w", what, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}
