package storage

import "time"

// AuthorizationCode represents an issued authorization code.
// A code is single-use: it is redeemed by deleting it.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	RedirectURI string
	UserID      string
	Scope       []string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// AccessToken represents an issued bearer token.
type AccessToken struct {
	Token     string
	ClientID  string
	UserID    string // empty for client credentials grants
	Scope     []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ExpiresIn returns the remaining lifetime in whole seconds, never negative.
func (t *AccessToken) ExpiresIn(now time.Time) int64 {
	remaining := int64(t.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RefreshToken represents an issued refresh token. Refresh tokens carry no
// expiry and are never rotated by a grant.
type RefreshToken struct {
	Token     string
	ClientID  string
	UserID    string
	Scope     []string
	CreatedAt time.Time
}

// CloneScope returns a copy of s so stored records never alias caller slices.
func CloneScope(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
