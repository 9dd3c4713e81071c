package storage

import (
	"slices"
	"testing"
	"time"
)

func TestClient_ScopeAllowance(t *testing.T) {
	c := &Client{ClientID: "c"}
	if !slices.Equal(c.ScopeAllowance(), []string{"*"}) {
		t.Errorf("ScopeAllowance() = %v, want [*]", c.ScopeAllowance())
	}

	c.AllowedScopes = []string{"read"}
	if !slices.Equal(c.ScopeAllowance(), []string{"read"}) {
		t.Errorf("ScopeAllowance() = %v, want [read]", c.ScopeAllowance())
	}
}

func TestClient_AcceptsRedirectURI(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		uri    string
		want   bool
	}{
		{name: "no prefix accepts anything", prefix: "", uri: "https://anywhere.example/cb", want: true},
		{name: "exact match", prefix: "https://app.example/cb", uri: "https://app.example/cb", want: true},
		{name: "under prefix", prefix: "https://app.example/", uri: "https://app.example/cb?x=1", want: true},
		{name: "different host", prefix: "https://app.example/", uri: "https://evil.example/cb", want: false},
		{name: "empty uri with prefix", prefix: "https://app.example/", uri: "", want: false},
		{name: "path continues prefix", prefix: "https://app.example/cb", uri: "https://app.example/cb/done", want: true},
		{name: "query after prefix", prefix: "https://app.example/cb", uri: "https://app.example/cb?tenant=7", want: true},
		{name: "host suffix after prefix", prefix: "https://app.example/cb", uri: "https://app.example/cb.evil.example/steal", want: false},
		{name: "longer segment", prefix: "https://app.example/cb", uri: "https://app.example/cb2", want: false},
		{name: "prefix without path", prefix: "https://app.example", uri: "https://app.example.evil/cb", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{RedirectURIPrefix: tt.prefix}
			if got := c.AcceptsRedirectURI(tt.uri); got != tt.want {
				t.Errorf("AcceptsRedirectURI(%q) = %v, want %v", tt.uri, got, tt.want)
			}
		})
	}
}

func TestAccessToken_ExpiresIn(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := &AccessToken{ExpiresAt: now.Add(3600 * time.Second)}
	if got := tok.ExpiresIn(now); got != 3600 {
		t.Errorf("ExpiresIn() = %d, want 3600", got)
	}
	if got := tok.ExpiresIn(now.Add(2 * time.Hour)); got != 0 {
		t.Errorf("ExpiresIn() after expiry = %d, want 0", got)
	}
}

func TestCloneScope(t *testing.T) {
	if got := CloneScope(nil); got == nil || len(got) != 0 {
		t.Errorf("CloneScope(nil) = %v, want empty non-nil", got)
	}

	src := []string{"a", "b"}
	dst := CloneScope(src)
	dst[0] = "z"
	if src[0] != "a" {
		t.Error("CloneScope must not alias the source slice")
	}
}
