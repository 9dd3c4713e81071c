package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/giantswarm/oauth-grants/storage"
	"github.com/giantswarm/oauth-grants/storage/memory"
)

func TestMockArtifactStore_DelegatesAndCounts(t *testing.T) {
	backing := memory.New()
	defer backing.Stop()

	m := NewMockArtifactStore(backing)
	ctx := context.Background()

	if err := m.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{Code: "c", ExpiresAt: time.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if _, err := m.GetAuthorizationCode(ctx, "c"); err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if got := m.Calls("SaveAuthorizationCode"); got != 1 {
		t.Errorf("Calls(SaveAuthorizationCode) = %d, want 1", got)
	}

	m.ResetCallCounts()
	if got := m.Calls("GetAuthorizationCode"); got != 0 {
		t.Errorf("Calls after reset = %d, want 0", got)
	}
}

func TestMockArtifactStore_FailureInjection(t *testing.T) {
	backing := memory.New()
	defer backing.Stop()

	boom := errors.New("connection refused")
	m := NewMockArtifactStore(backing)
	m.SaveAccessTokenFunc = func(context.Context, *storage.AccessToken) error { return boom }

	err := m.SaveAccessToken(context.Background(), &storage.AccessToken{Token: "t"})
	if !errors.Is(err, boom) {
		t.Errorf("SaveAccessToken() error = %v, want %v", err, boom)
	}
}
