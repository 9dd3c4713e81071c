// Package mock provides mock implementations of storage interfaces for testing.
//
// Each mock delegates to a backing store by default. Tests override the
// exported func fields to inject failures or observe calls.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/oauth-grants/storage"
)

// callCounter counts calls per method name. Safe for concurrent use.
type callCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *callCounter) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

// Calls returns how many times the named method was called
func (c *callCounter) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// ResetCallCounts resets all call counters
func (c *callCounter) ResetCallCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int)
}

// MockArtifactStore is a mock implementation of ArtifactStore for testing
type MockArtifactStore struct {
	callCounter

	SaveAuthorizationCodeFunc   func(ctx context.Context, code *storage.AuthorizationCode) error
	GetAuthorizationCodeFunc    func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	DeleteAuthorizationCodeFunc func(ctx context.Context, code string) (int64, error)
	SaveAccessTokenFunc         func(ctx context.Context, token *storage.AccessToken) error
	GetAccessTokenFunc          func(ctx context.Context, token string) (*storage.AccessToken, error)
	SaveRefreshTokenFunc        func(ctx context.Context, token *storage.RefreshToken) error
	GetRefreshTokenFunc         func(ctx context.Context, token string) (*storage.RefreshToken, error)
}

var _ storage.ArtifactStore = (*MockArtifactStore)(nil)

// NewMockArtifactStore creates a mock whose default behavior delegates to backing
func NewMockArtifactStore(backing storage.ArtifactStore) *MockArtifactStore {
	return &MockArtifactStore{
		SaveAuthorizationCodeFunc:   backing.SaveAuthorizationCode,
		GetAuthorizationCodeFunc:    backing.GetAuthorizationCode,
		DeleteAuthorizationCodeFunc: backing.DeleteAuthorizationCode,
		SaveAccessTokenFunc:         backing.SaveAccessToken,
		GetAccessTokenFunc:          backing.GetAccessToken,
		SaveRefreshTokenFunc:        backing.SaveRefreshToken,
		GetRefreshTokenFunc:         backing.GetRefreshToken,
	}
}

// SaveAuthorizationCode persists an issued authorization code
func (m *MockArtifactStore) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.inc("SaveAuthorizationCode")
	return m.SaveAuthorizationCodeFunc(ctx, code)
}

// GetAuthorizationCode retrieves an authorization code
func (m *MockArtifactStore) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.inc("GetAuthorizationCode")
	return m.GetAuthorizationCodeFunc(ctx, code)
}

// DeleteAuthorizationCode removes an authorization code
func (m *MockArtifactStore) DeleteAuthorizationCode(ctx context.Context, code string) (int64, error) {
	m.inc("DeleteAuthorizationCode")
	return m.DeleteAuthorizationCodeFunc(ctx, code)
}

// SaveAccessToken persists an access token
func (m *MockArtifactStore) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	m.inc("SaveAccessToken")
	return m.SaveAccessTokenFunc(ctx, token)
}

// GetAccessToken retrieves an access token
func (m *MockArtifactStore) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	m.inc("GetAccessToken")
	return m.GetAccessTokenFunc(ctx, token)
}

// SaveRefreshToken persists a refresh token
func (m *MockArtifactStore) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	m.inc("SaveRefreshToken")
	return m.SaveRefreshTokenFunc(ctx, token)
}

// GetRefreshToken retrieves a refresh token
func (m *MockArtifactStore) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	m.inc("GetRefreshToken")
	return m.GetRefreshTokenFunc(ctx, token)
}

// MockClientRegistry is a mock implementation of ClientRegistry for testing
type MockClientRegistry struct {
	callCounter

	GetClientFunc            func(ctx context.Context, clientID string) (*storage.Client, error)
	ValidateClientSecretFunc func(ctx context.Context, clientID, clientSecret string) error
}

var _ storage.ClientRegistry = (*MockClientRegistry)(nil)

// NewMockClientRegistry creates a mock whose default behavior delegates to backing
func NewMockClientRegistry(backing storage.ClientRegistry) *MockClientRegistry {
	return &MockClientRegistry{
		GetClientFunc:            backing.GetClient,
		ValidateClientSecretFunc: backing.ValidateClientSecret,
	}
}

// GetClient retrieves a client by ID
func (m *MockClientRegistry) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.inc("GetClient")
	return m.GetClientFunc(ctx, clientID)
}

// ValidateClientSecret validates a client secret
func (m *MockClientRegistry) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	m.inc("ValidateClientSecret")
	return m.ValidateClientSecretFunc(ctx, clientID, clientSecret)
}

// MockTransactionStore is a mock implementation of TransactionStore for testing
type MockTransactionStore struct {
	callCounter

	SaveTransactionFunc   func(ctx context.Context, txn *storage.TransactionRecord) error
	GetTransactionFunc    func(ctx context.Context, id string) (*storage.TransactionRecord, error)
	DeleteTransactionFunc func(ctx context.Context, id string) (int64, error)
}

var _ storage.TransactionStore = (*MockTransactionStore)(nil)

// NewMockTransactionStore creates a mock whose default behavior delegates to backing
func NewMockTransactionStore(backing storage.TransactionStore) *MockTransactionStore {
	return &MockTransactionStore{
		SaveTransactionFunc:   backing.SaveTransaction,
		GetTransactionFunc:    backing.GetTransaction,
		DeleteTransactionFunc: backing.DeleteTransaction,
	}
}

// SaveTransaction persists a pending transaction
func (m *MockTransactionStore) SaveTransaction(ctx context.Context, txn *storage.TransactionRecord) error {
	m.inc("SaveTransaction")
	return m.SaveTransactionFunc(ctx, txn)
}

// GetTransaction retrieves a pending transaction
func (m *MockTransactionStore) GetTransaction(ctx context.Context, id string) (*storage.TransactionRecord, error) {
	m.inc("GetTransaction")
	return m.GetTransactionFunc(ctx, id)
}

// DeleteTransaction removes a pending transaction
func (m *MockTransactionStore) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	m.inc("DeleteTransaction")
	return m.DeleteTransactionFunc(ctx, id)
}
