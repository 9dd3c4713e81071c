package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(s.Stop)
	return s
}

func saveTestClient(t *testing.T, s *Store, id, secret string) {
	t.Helper()
	hash, err := security.HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	err = s.SaveClient(context.Background(), &storage.Client{
		ClientID:          id,
		Name:              "Test Client",
		SecretHash:        hash,
		RedirectURIPrefix: "https://app.example/",
		AllowedScopes:     []string{"read", "write"},
	})
	if err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
}

// ============================================================
// ClientStore Tests
// ============================================================

func TestStore_SaveAndGetClient(t *testing.T) {
	s := newTestStore(t)
	saveTestClient(t, s, "client-1", "secret")

	got, err := s.GetClient(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.Name != "Test Client" {
		t.Errorf("Name = %q, want %q", got.Name, "Test Client")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on save")
	}

	// Mutating the returned copy must not affect the store
	got.AllowedScopes[0] = "admin"
	again, _ := s.GetClient(context.Background(), "client-1")
	if again.AllowedScopes[0] != "read" {
		t.Errorf("stored scopes mutated through returned client: %v", again.AllowedScopes)
	}
}

func TestStore_GetClient_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetClient(context.Background(), "missing")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
}

func TestStore_SaveClient_Invalid(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveClient(context.Background(), nil); err == nil {
		t.Error("SaveClient(nil) should return error")
	}
	if err := s.SaveClient(context.Background(), &storage.Client{}); err == nil {
		t.Error("SaveClient() with empty ID should return error")
	}
}

func TestStore_ValidateClientSecret(t *testing.T) {
	s := newTestStore(t)
	saveTestClient(t, s, "client-1", "correct")

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{name: "correct secret", clientID: "client-1", secret: "correct"},
		{name: "wrong secret", clientID: "client-1", secret: "wrong", wantErr: true},
		{name: "empty secret", clientID: "client-1", secret: "", wantErr: true},
		{name: "unknown client", clientID: "nobody", secret: "correct", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateClientSecret(context.Background(), tt.clientID, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateClientSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, storage.ErrInvalidClientCredentials) {
				t.Errorf("error = %v, want ErrInvalidClientCredentials", err)
			}
		})
	}
}

func TestStore_ListClients(t *testing.T) {
	s := newTestStore(t)
	saveTestClient(t, s, "a", "x")
	saveTestClient(t, s, "b", "y")
	saveTestClient(t, s, "a", "z") // replace

	clients, err := s.ListClients(context.Background())
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	if len(clients) != 2 {
		t.Errorf("len(clients) = %d, want 2", len(clients))
	}
	if got := s.clientsCount.Load(); got != 2 {
		t.Errorf("clientsCount = %d, want 2", got)
	}
}

// ============================================================
// UserStore Tests
// ============================================================

func TestStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveUser(ctx, &storage.User{ID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("ID = %q, want u1", got.ID)
	}

	if _, err := s.GetUserByUsername(ctx, "bob"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("GetUserByUsername(bob) error = %v, want ErrUserNotFound", err)
	}
	if err := s.SaveUser(ctx, &storage.User{ID: "u2"}); err == nil {
		t.Error("SaveUser() without username should return error")
	}
}

// ============================================================
// CodeStore Tests
// ============================================================

func TestStore_AuthorizationCodeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := &storage.AuthorizationCode{
		Code:        "abc123",
		ClientID:    "client-1",
		RedirectURI: "https://app.example/cb",
		UserID:      "u1",
		Scope:       []string{"read"},
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
	if err := s.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if err := s.SaveAuthorizationCode(ctx, code); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("duplicate SaveAuthorizationCode() error = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetAuthorizationCode(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if got.UserID != "u1" || got.RedirectURI != code.RedirectURI {
		t.Errorf("GetAuthorizationCode() = %+v", got)
	}

	n, err := s.DeleteAuthorizationCode(ctx, "abc123")
	if err != nil || n != 1 {
		t.Fatalf("first DeleteAuthorizationCode() = %d, %v; want 1, nil", n, err)
	}
	n, err = s.DeleteAuthorizationCode(ctx, "abc123")
	if err != nil || n != 0 {
		t.Fatalf("second DeleteAuthorizationCode() = %d, %v; want 0, nil", n, err)
	}

	if _, err := s.GetAuthorizationCode(ctx, "abc123"); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("GetAuthorizationCode() after delete error = %v", err)
	}
}

func TestStore_DeleteAuthorizationCode_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{
		Code:      "race",
		ExpiresAt: time.Now().Add(time.Minute),
	}); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	const workers = 50
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.DeleteAuthorizationCode(ctx, "race")
			if err != nil {
				t.Errorf("DeleteAuthorizationCode() error = %v", err)
				return
			}
			wins.Add(n)
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("total deletes = %d, want exactly 1", got)
	}
}

// ============================================================
// Token Tests
// ============================================================

func TestStore_AccessAndRefreshTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := &storage.AccessToken{
		Token:     "access",
		ClientID:  "client-1",
		UserID:    "u1",
		Scope:     []string{"read"},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.SaveAccessToken(ctx, at); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}
	if err := s.SaveAccessToken(ctx, at); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("duplicate SaveAccessToken() error = %v", err)
	}
	got, err := s.GetAccessToken(ctx, "access")
	if err != nil || got.ClientID != "client-1" {
		t.Fatalf("GetAccessToken() = %+v, %v", got, err)
	}
	if _, err := s.GetAccessToken(ctx, "nope"); !errors.Is(err, storage.ErrAccessTokenNotFound) {
		t.Errorf("GetAccessToken(nope) error = %v", err)
	}

	rt := &storage.RefreshToken{Token: "refresh", ClientID: "client-1", Scope: []string{"read", "offline_access"}}
	if err := s.SaveRefreshToken(ctx, rt); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}
	gotRT, err := s.GetRefreshToken(ctx, "refresh")
	if err != nil || len(gotRT.Scope) != 2 {
		t.Fatalf("GetRefreshToken() = %+v, %v", gotRT, err)
	}
	if _, err := s.GetRefreshToken(ctx, "nope"); !errors.Is(err, storage.ErrRefreshTokenNotFound) {
		t.Errorf("GetRefreshToken(nope) error = %v", err)
	}
}

// ============================================================
// TransactionStore Tests
// ============================================================

func TestStore_Transactions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &storage.TransactionRecord{
		ID:        "txn-1",
		ClientID:  "client-1",
		UserID:    "u1",
		Payload:   "sealed",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := s.SaveTransaction(ctx, rec); err != nil {
		t.Fatalf("SaveTransaction() error = %v", err)
	}

	got, err := s.GetTransaction(ctx, "txn-1")
	if err != nil || got.Payload != "sealed" {
		t.Fatalf("GetTransaction() = %+v, %v", got, err)
	}

	if n, _ := s.DeleteTransaction(ctx, "txn-1"); n != 1 {
		t.Errorf("first DeleteTransaction() = %d, want 1", n)
	}
	if n, _ := s.DeleteTransaction(ctx, "txn-1"); n != 0 {
		t.Errorf("second DeleteTransaction() = %d, want 0", n)
	}
	if _, err := s.GetTransaction(ctx, "txn-1"); !errors.Is(err, storage.ErrTransactionNotFound) {
		t.Errorf("GetTransaction() after delete error = %v", err)
	}
}

// ============================================================
// Cleanup Tests
// ============================================================

func TestStore_Cleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	_ = s.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{Code: "old", ExpiresAt: past})
	_ = s.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{Code: "new", ExpiresAt: future})
	_ = s.SaveAccessToken(ctx, &storage.AccessToken{Token: "old", ExpiresAt: past})
	_ = s.SaveRefreshToken(ctx, &storage.RefreshToken{Token: "forever"})
	_ = s.SaveTransaction(ctx, &storage.TransactionRecord{ID: "old", ExpiresAt: past})

	s.cleanup()

	if _, err := s.GetAuthorizationCode(ctx, "old"); err == nil {
		t.Error("expired code should be cleaned up")
	}
	if _, err := s.GetAuthorizationCode(ctx, "new"); err != nil {
		t.Error("unexpired code should survive cleanup")
	}
	if _, err := s.GetAccessToken(ctx, "old"); err == nil {
		t.Error("expired access token should be cleaned up")
	}
	if _, err := s.GetRefreshToken(ctx, "forever"); err != nil {
		t.Error("refresh tokens should never be cleaned up")
	}
	if _, err := s.GetTransaction(ctx, "old"); err == nil {
		t.Error("expired transaction should be cleaned up")
	}
	if got := s.codesCount.Load(); got != 1 {
		t.Errorf("codesCount = %d, want 1", got)
	}
}

func TestStore_StopIsIdempotent(t *testing.T) {
	s := NewWithInterval(10 * time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestStore_SetInstrumentation(t *testing.T) {
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	s := newTestStore(t)
	saveTestClient(t, s, "client-1", "secret")
	s.SetInstrumentation(inst)

	if got := s.clientsCount.Load(); got != 1 {
		t.Errorf("clientsCount = %d, want 1", got)
	}
	if _, err := s.GetClient(context.Background(), "client-1"); err != nil {
		t.Errorf("GetClient() with instrumentation error = %v", err)
	}
}
