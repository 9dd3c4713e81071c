package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-grants/storage"
)

// Fixture identities used across tests
const (
	ClientID        = "test-client"
	ClientSecret    = "test-secret"
	TrustedClientID = "trusted-client"
	RedirectPrefix  = "https://app.example/cb"
	RedirectURI     = "https://app.example/cb/done"
	UserID          = "user-1"
	Username        = "alice"
	Password        = "wonderland"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// SequenceMinter mints predictable, unique tokens: "tok-1", "tok-2", ...
// padded with 'x' to the requested length.
type SequenceMinter struct {
	n atomic.Int64
}

// Mint implements security.Minter.
func (m *SequenceMinter) Mint(length int) string {
	s := fmt.Sprintf("tok-%d", m.n.Add(1))
	if len(s) < length {
		s += strings.Repeat("x", length-len(s))
	}
	return s
}

// HashSecret returns a low-cost bcrypt hash so fixtures stay fast.
func HashSecret(t testing.TB, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash secret: %v", err)
	}
	return string(hash)
}

// NewClient returns the standard confidential test client.
func NewClient(t testing.TB) *storage.Client {
	t.Helper()
	return &storage.Client{
		ClientID:          ClientID,
		Name:              "Test Client",
		SecretHash:        HashSecret(t, ClientSecret),
		RedirectURIPrefix: RedirectPrefix,
		AllowedScopes:     []string{"read", "write", "offline_access"},
		CreatedAt:         time.Now(),
	}
}

// NewTrustedClient returns a client that skips the consent prompt.
func NewTrustedClient(t testing.TB) *storage.Client {
	t.Helper()
	c := NewClient(t)
	c.ClientID = TrustedClientID
	c.Name = "Trusted Client"
	c.Trusted = true
	return c
}

// NewUser returns the standard resource owner.
func NewUser(t testing.TB) *storage.User {
	t.Helper()
	return &storage.User{
		ID:           UserID,
		Username:     Username,
		Name:         "Alice",
		PasswordHash: HashSecret(t, Password),
	}
}

// SeedClients saves clients into store, failing the test on error.
func SeedClients(t testing.TB, store storage.ClientStore, clients ...*storage.Client) {
	t.Helper()
	for _, c := range clients {
		if err := store.SaveClient(context.Background(), c); err != nil {
			t.Fatalf("failed to seed client %s: %v", c.ClientID, err)
		}
	}
}

// SeedUsers saves users into store, failing the test on error.
func SeedUsers(t testing.TB, store storage.UserStore, users ...*storage.User) {
	t.Helper()
	for _, u := range users {
		if err := store.SaveUser(context.Background(), u); err != nil {
			t.Fatalf("failed to seed user %s: %v", u.Username, err)
		}
	}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertTimeEqual asserts two times are equal within a tolerance
func AssertTimeEqual(t testing.TB, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("time mismatch: got %v, want %v (tolerance: %v, diff: %v)", got, want, tolerance, diff)
	}
}

// PostForm sends a form-encoded POST to handler and returns the recorder.
func PostForm(handler http.Handler, target string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
