package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/giantswarm/oauth-grants/storage"
)

type clientRecord struct {
	bun.BaseModel `bun:"table:oauth_clients,alias:oc"`

	ClientID          string    `bun:"client_id,pk"`
	Name              string    `bun:"name,notnull"`
	SecretHash        string    `bun:"secret_hash,notnull"`
	RedirectURIPrefix string    `bun:"redirect_uri_prefix,notnull"`
	AllowedScopes     []string  `bun:"allowed_scopes,type:jsonb"`
	Trusted           bool      `bun:"trusted,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newClientRecord(c *storage.Client) *clientRecord {
	return &clientRecord{
		ClientID:          c.ClientID,
		Name:              c.Name,
		SecretHash:        c.SecretHash,
		RedirectURIPrefix: c.RedirectURIPrefix,
		AllowedScopes:     storage.CloneScope(c.AllowedScopes),
		Trusted:           c.Trusted,
		CreatedAt:         c.CreatedAt,
	}
}

func (r *clientRecord) toDomain() *storage.Client {
	return &storage.Client{
		ClientID:          r.ClientID,
		Name:              r.Name,
		SecretHash:        r.SecretHash,
		RedirectURIPrefix: r.RedirectURIPrefix,
		AllowedScopes:     storage.CloneScope(r.AllowedScopes),
		Trusted:           r.Trusted,
		CreatedAt:         r.CreatedAt,
	}
}

type userRecord struct {
	bun.BaseModel `bun:"table:oauth_users,alias:ou"`

	Username     string `bun:"username,pk"`
	ID           string `bun:"id,notnull,unique"`
	Name         string `bun:"name,notnull"`
	PasswordHash string `bun:"password_hash,notnull"`
}

func (r *userRecord) toDomain() *storage.User {
	return &storage.User{ID: r.ID, Username: r.Username, Name: r.Name, PasswordHash: r.PasswordHash}
}

type authorizationCodeRecord struct {
	bun.BaseModel `bun:"table:oauth_authorization_codes,alias:oac"`

	Code        string    `bun:"code,pk"`
	ClientID    string    `bun:"client_id,notnull"`
	RedirectURI string    `bun:"redirect_uri,notnull"`
	UserID      string    `bun:"user_id,notnull"`
	Scope       []string  `bun:"scope,type:jsonb"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}

func (r *authorizationCodeRecord) toDomain() *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:        r.Code,
		ClientID:    r.ClientID,
		RedirectURI: r.RedirectURI,
		UserID:      r.UserID,
		Scope:       storage.CloneScope(r.Scope),
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

type accessTokenRecord struct {
	bun.BaseModel `bun:"table:oauth_access_tokens,alias:oat"`

	Token     string    `bun:"token,pk"`
	ClientID  string    `bun:"client_id,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	Scope     []string  `bun:"scope,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

func (r *accessTokenRecord) toDomain() *storage.AccessToken {
	return &storage.AccessToken{
		Token:     r.Token,
		ClientID:  r.ClientID,
		UserID:    r.UserID,
		Scope:     storage.CloneScope(r.Scope),
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

type refreshTokenRecord struct {
	bun.BaseModel `bun:"table:oauth_refresh_tokens,alias:ort"`

	Token     string    `bun:"token,pk"`
	ClientID  string    `bun:"client_id,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	Scope     []string  `bun:"scope,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (r *refreshTokenRecord) toDomain() *storage.RefreshToken {
	return &storage.RefreshToken{
		Token:     r.Token,
		ClientID:  r.ClientID,
		UserID:    r.UserID,
		Scope:     storage.CloneScope(r.Scope),
		CreatedAt: r.CreatedAt,
	}
}

type transactionRecord struct {
	bun.BaseModel `bun:"table:oauth_transactions,alias:otx"`

	ID        string    `bun:"id,pk"`
	ClientID  string    `bun:"client_id,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	Payload   string    `bun:"payload,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

func (r *transactionRecord) toDomain() *storage.TransactionRecord {
	return &storage.TransactionRecord{
		ID:        r.ID,
		ClientID:  r.ClientID,
		UserID:    r.UserID,
		Payload:   r.Payload,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// models lists every table in creation order.
var models = []any{
	(*clientRecord)(nil),
	(*userRecord)(nil),
	(*authorizationCodeRecord)(nil),
	(*accessTokenRecord)(nil),
	(*refreshTokenRecord)(nil),
	(*transactionRecord)(nil),
}
