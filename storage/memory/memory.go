// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/internal/util"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/storage"
)

// tokenIDLogLength is the number of characters to include when logging token IDs
const tokenIDLogLength = 8

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	users         map[string]*storage.User // keyed by username
	codes         map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.AccessToken
	refreshTokens map[string]*storage.RefreshToken
	transactions  map[string]*storage.TransactionRecord

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCount       atomic.Int64
	codesCount         atomic.Int64
	accessTokensCount  atomic.Int64
	refreshTokensCount atomic.Int64
	transactionsCount  atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore      = (*Store)(nil)
	_ storage.ArtifactStore    = (*Store)(nil)
	_ storage.TransactionStore = (*Store)(nil)
	_ storage.UserStore        = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		users:           make(map[string]*storage.User),
		codes:           make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.AccessToken),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		transactions:    make(map[string]*storage.TransactionRecord),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.clientsCount.Store(int64(len(s.clients)))
	s.codesCount.Store(int64(len(s.codes)))
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	s.refreshTokensCount.Store(int64(len(s.refreshTokens)))
	s.transactionsCount.Store(int64(len(s.transactions)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(instrumentation.StorageSizeCallbacks{
			Clients:       s.clientsCount.Load,
			Codes:         s.codesCount.Load,
			AccessTokens:  s.accessTokensCount.Load,
			RefreshTokens: s.refreshTokensCount.Load,
			Transactions:  s.transactionsCount.Load,
		})
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient registers or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_client", &err, time.Now())

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	stored := *client
	stored.AllowedScopes = storage.CloneScope(client.AllowedScopes)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.clients[client.ClientID]; !existed {
		s.clientsCount.Add(1)
	}
	s.clients[client.ClientID] = &stored

	s.logger.Debug("Saved client", "client_id", client.ClientID, "trusted", client.Trusted)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_client", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	out := *c
	out.AllowedScopes = storage.CloneScope(c.AllowedScopes)
	return &out, nil
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

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out := *c
		out.AllowedScopes = storage.CloneScope(c.AllowedScopes)
		clients = append(clients, &out)
	}
	return clients, nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser registers or replaces a user
func (s *Store) SaveUser(ctx context.Context, user *storage.User) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_user")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_user", &err, time.Now())

	if user == nil || user.ID == "" || user.Username == "" {
		return fmt.Errorf("invalid user")
	}

	stored := *user
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = &stored
	return nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (user *storage.User, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_user")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_user", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode persists an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_authorization_code", &err, time.Now())

	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	stored := *code
	stored.Scope = storage.CloneScope(code.Scope)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		return fmt.Errorf("%w: authorization code", storage.ErrAlreadyExists)
	}
	s.codes[code.Code] = &stored
	s.codesCount.Add(1)

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves an authorization code
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (out *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_authorization_code", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	cp := *c
	cp.Scope = storage.CloneScope(c.Scope)
	return &cp, nil
}

// DeleteAuthorizationCode removes a code and reports whether this call removed it.
// The check and the delete happen under one write lock.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) (n int64, err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_authorization_code", &err, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; !ok {
		return 0, nil
	}
	delete(s.codes, code)
	s.codesCount.Add(-1)
	return 1, nil
}

// ============================================================
// AccessTokenStore / RefreshTokenStore Implementation
// ============================================================

// SaveAccessToken persists an issued access token
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_access_token", &err, time.Now())

	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}

	stored := *token
	stored.Scope = storage.CloneScope(token.Scope)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accessTokens[token.Token]; exists {
		return fmt.Errorf("%w: access token", storage.ErrAlreadyExists)
	}
	s.accessTokens[token.Token] = &stored
	s.accessTokensCount.Add(1)
	return nil
}

// GetAccessToken retrieves an access token
func (s *Store) GetAccessToken(ctx context.Context, token string) (out *storage.AccessToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_access_token", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.accessTokens[token]
	if !ok {
		return nil, storage.ErrAccessTokenNotFound
	}
	cp := *t
	cp.Scope = storage.CloneScope(t.Scope)
	return &cp, nil
}

// SaveRefreshToken persists an issued refresh token
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_refresh_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_refresh_token", &err, time.Now())

	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}

	stored := *token
	stored.Scope = storage.CloneScope(token.Scope)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refreshTokens[token.Token]; exists {
		return fmt.Errorf("%w: refresh token", storage.ErrAlreadyExists)
	}
	s.refreshTokens[token.Token] = &stored
	s.refreshTokensCount.Add(1)
	return nil
}

// GetRefreshToken retrieves a refresh token
func (s *Store) GetRefreshToken(ctx context.Context, token string) (out *storage.RefreshToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_refresh_token", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refreshTokens[token]
	if !ok {
		return nil, storage.ErrRefreshTokenNotFound
	}
	cp := *t
	cp.Scope = storage.CloneScope(t.Scope)
	return &cp, nil
}

// ============================================================
// TransactionStore Implementation
// ============================================================

// SaveTransaction persists a pending authorization transaction
func (s *Store) SaveTransaction(ctx context.Context, txn *storage.TransactionRecord) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_transaction")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_transaction", &err, time.Now())

	if txn == nil || txn.ID == "" {
		return fmt.Errorf("invalid transaction")
	}

	stored := *txn
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.transactions[txn.ID]; !existed {
		s.transactionsCount.Add(1)
	}
	s.transactions[txn.ID] = &stored
	return nil
}

// GetTransaction retrieves a pending transaction
func (s *Store) GetTransaction(ctx context.Context, id string) (out *storage.TransactionRecord, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_transaction")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_transaction", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, storage.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

// DeleteTransaction removes a transaction and reports whether this call removed it
func (s *Store) DeleteTransaction(ctx context.Context, id string) (n int64, err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_transaction")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_transaction", &err, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return 0, nil
	}
	delete(s.transactions, id)
	s.transactionsCount.Add(-1)
	return 1, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup drops expired codes, access tokens and transactions.
// Refresh tokens never expire and are left alone.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleaned := 0

	for k, c := range s.codes {
		if security.IsExpired(now, c.ExpiresAt, security.DefaultClockSkewGracePeriod) {
			delete(s.codes, k)
			s.codesCount.Add(-1)
			cleaned++
		}
	}
	for k, t := range s.accessTokens {
		if security.IsExpired(now, t.ExpiresAt, security.DefaultClockSkewGracePeriod) {
			delete(s.accessTokens, k)
			s.accessTokensCount.Add(-1)
			cleaned++
		}
	}
	for k, t := range s.transactions {
		if security.IsExpired(now, t.ExpiresAt, security.DefaultClockSkewGracePeriod) {
			delete(s.transactions, k)
			s.transactionsCount.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))
}

// recordStorageOperation records metrics for a storage operation and sets span status.
// errp is read at defer time so the named return value is observed.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, errp *error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := "success"
	if errp != nil && *errp != nil {
		result = "error"
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
