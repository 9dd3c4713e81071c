// Package storage defines interfaces for persisting OAuth clients, users, issued
// artifacts and pending authorization transactions.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Storage errors. Implementations wrap these so callers can use errors.Is.
var (
	ErrClientNotFound            = errors.New("client not found")
	ErrInvalidClientCredentials  = errors.New("invalid client credentials")
	ErrUserNotFound              = errors.New("user not found")
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")
	ErrAccessTokenNotFound       = errors.New("access token not found")
	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrAlreadyExists             = errors.New("record already exists")
)

// ClientRegistry is the read side of client registration consumed by the grant engine.
// All methods accept context.Context for tracing and cancellation.
type ClientRegistry interface {
	// GetClient retrieves a client by ID. Returns ErrClientNotFound when absent.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret checks a presented secret against the stored bcrypt hash.
	// Returns ErrInvalidClientCredentials for an unknown client or a wrong secret.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error
}

// ClientStore adds the write side used for seeding and administration.
type ClientStore interface {
	ClientRegistry

	// SaveClient registers or replaces a client
	SaveClient(ctx context.Context, client *Client) error

	// ListClients lists all registered clients
	ListClients(ctx context.Context) ([]*Client, error)
}

// CodeStore persists single-use authorization codes.
type CodeStore interface {
	// SaveAuthorizationCode persists an issued authorization code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves a code. Returns ErrAuthorizationCodeNotFound when absent.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code and returns how many records were removed.
	// SECURITY: the delete MUST be atomic. Among concurrent callers for the same code,
	// exactly one observes a count of 1; every other caller observes 0. The grant
	// engine relies on this as its only replay guard.
	DeleteAuthorizationCode(ctx context.Context, code string) (int64, error)
}

// AccessTokenStore persists access tokens. Tokens are immutable once saved.
type AccessTokenStore interface {
	// SaveAccessToken persists an issued access token
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken retrieves a token. Returns ErrAccessTokenNotFound when absent.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
}

// RefreshTokenStore persists refresh tokens. Tokens are immutable and never expire.
type RefreshTokenStore interface {
	// SaveRefreshToken persists an issued refresh token
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken retrieves a token. Returns ErrRefreshTokenNotFound when absent.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
}

// ArtifactStore is everything the grant engine writes.
type ArtifactStore interface {
	CodeStore
	AccessTokenStore
	RefreshTokenStore
}

// TransactionStore persists authorization transactions awaiting a user decision.
type TransactionStore interface {
	// SaveTransaction persists a pending transaction
	SaveTransaction(ctx context.Context, txn *TransactionRecord) error

	// GetTransaction retrieves a transaction. Returns ErrTransactionNotFound when absent.
	GetTransaction(ctx context.Context, id string) (*TransactionRecord, error)

	// DeleteTransaction removes a transaction and returns how many records were removed.
	// Same atomicity contract as DeleteAuthorizationCode: a decision is consumed once.
	DeleteTransaction(ctx context.Context, id string) (int64, error)
}

// UserStore persists resource owners for the password grant.
type UserStore interface {
	// SaveUser registers or replaces a user
	SaveUser(ctx context.Context, user *User) error

	// GetUserByUsername retrieves a user. Returns ErrUserNotFound when absent.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// Client represents a registered OAuth client
type Client struct {
	ClientID          string
	Name              string
	SecretHash        string // bcrypt hash
	RedirectURIPrefix string // empty accepts any redirect URI
	AllowedScopes     []string
	Trusted           bool // trusted clients skip the consent prompt
	CreatedAt         time.Time
}

// DefaultAllowedScopes is applied when a client registers no allowed scopes.
var DefaultAllowedScopes = []string{"*"}

// ScopeAllowance returns the client's allowed scopes, falling back to DefaultAllowedScopes.
func (c *Client) ScopeAllowance() []string {
	if len(c.AllowedScopes) == 0 {
		return DefaultAllowedScopes
	}
	return c.AllowedScopes
}

// AcceptsRedirectURI reports whether uri falls under the registered prefix.
// A client without a prefix accepts any URI. The match must end on a boundary:
// either the prefix ends with '/', or uri continues with '/', '?' or nothing,
// so "https://app.example/cb" does not admit "https://app.example/cb.evil".
func (c *Client) AcceptsRedirectURI(uri string) bool {
	prefix := c.RedirectURIPrefix
	if prefix == "" {
		return true
	}
	rest, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return false
	}
	if rest == "" || strings.HasSuffix(prefix, "/") {
		return true
	}
	return rest[0] == '/' || rest[0] == '?'
}

// User represents a resource owner that can authenticate with a password
type User struct {
	ID           string
	Username     string
	Name         string
	PasswordHash string // bcrypt hash
}

// TransactionRecord is the persisted form of an authorization transaction.
// Only the client identifier is stored; the full client is rehydrated from the
// registry when the record is decoded.
type TransactionRecord struct {
	ID        string
	ClientID  string
	UserID    string
	Payload   string // encoded request parameters, optionally sealed
	CreatedAt time.Time
	ExpiresAt time.Time
}
