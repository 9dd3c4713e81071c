package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth-grants/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth:"

	// tokenIDLogLength is the number of characters to include when logging token IDs
	tokenIDLogLength = 8

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxTokenLength is the maximum allowed length for token strings
	MaxTokenLength = 512

	// MaxIDLength is the maximum allowed length for identifiers (userID, clientID, transaction ID)
	MaxIDLength = 256
)

// Validation error messages (generic to prevent information leakage)
var errInputTooLarge = fmt.Errorf("input exceeds maximum allowed size")

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of all storage interfaces.
//
// Authorization codes, access tokens and transactions are written with a TTL
// derived from their expiry, so Valkey drops them without a cleanup loop.
// Refresh tokens are written without a TTL.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore      = (*Store)(nil)
	_ storage.ArtifactStore    = (*Store)(nil)
	_ storage.TransactionStore = (*Store)(nil)
	_ storage.UserStore        = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// ============================================================
// Key helpers
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

func (s *Store) userKey(username string) string {
	return fmt.Sprintf("%suser:%s", s.prefix, username)
}

func (s *Store) codeKey(code string) string {
	return fmt.Sprintf("%scode:%s", s.prefix, code)
}

func (s *Store) accessTokenKey(token string) string {
	return fmt.Sprintf("%saccess:%s", s.prefix, token)
}

func (s *Store) refreshTokenKey(token string) string {
	return fmt.Sprintf("%srefresh:%s", s.prefix, token)
}

func (s *Store) transactionKey(id string) string {
	return fmt.Sprintf("%stxn:%s", s.prefix, id)
}

// ============================================================
// Helper methods
// ============================================================

func validateStringLength(value string, maxLen int, fieldName string) error {
	if len(value) > maxLen {
		return fmt.Errorf("%s: %w", fieldName, errInputTooLarge)
	}
	return nil
}

// getAndUnmarshal fetches a key from Valkey, unmarshals the JSON data and
// converts it to the target type.
func getAndUnmarshal[J any, T any](
	ctx context.Context,
	s *Store,
	key string,
	notFoundErr error,
	fromJSON func(*J) *T,
) (*T, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}

	var j J
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return fromJSON(&j), nil
}

// setIfAbsent writes value under key unless the key already exists.
// A zero ttl writes the key without expiry.
func (s *Store) setIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var err error
	if ttl > 0 {
		err = s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(value)).Nx().ExSeconds(ttlSeconds(ttl)).Build()).Error()
	} else {
		err = s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(value)).Nx().Build()).Error()
	}
	if err != nil {
		// SET NX replies nil when the key was already present
		if isNilError(err) {
			return storage.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// deleteKey removes key and returns the number of keys DEL reports removed.
// DEL is atomic on the server, so among concurrent callers only one sees 1.
func (s *Store) deleteKey(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// calculateTTL calculates the TTL for a key based on expiry time.
// Returns 0 if the key has already expired.
func calculateTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// ttlSeconds rounds ttl up to whole seconds, with a floor of one.
func ttlSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// ============================================================
// JSON representations
// ============================================================

type clientJSON struct {
	ClientID          string    `json:"client_id"`
	Name              string    `json:"name,omitempty"`
	SecretHash        string    `json:"secret_hash,omitempty"`
	RedirectURIPrefix string    `json:"redirect_uri_prefix,omitempty"`
	AllowedScopes     []string  `json:"allowed_scopes,omitempty"`
	Trusted           bool      `json:"trusted,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func toClientJSON(c *storage.Client) *clientJSON {
	return &clientJSON{
		ClientID:          c.ClientID,
		Name:              c.Name,
		SecretHash:        c.SecretHash,
		RedirectURIPrefix: c.RedirectURIPrefix,
		AllowedScopes:     c.AllowedScopes,
		Trusted:           c.Trusted,
		CreatedAt:         c.CreatedAt,
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	return &storage.Client{
		ClientID:          j.ClientID,
		Name:              j.Name,
		SecretHash:        j.SecretHash,
		RedirectURIPrefix: j.RedirectURIPrefix,
		AllowedScopes:     j.AllowedScopes,
		Trusted:           j.Trusted,
		CreatedAt:         j.CreatedAt,
	}
}

type userJSON struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name,omitempty"`
	PasswordHash string `json:"password_hash"`
}

func toUserJSON(u *storage.User) *userJSON {
	return &userJSON{ID: u.ID, Username: u.Username, Name: u.Name, PasswordHash: u.PasswordHash}
}

func fromUserJSON(j *userJSON) *storage.User {
	return &storage.User{ID: j.ID, Username: j.Username, Name: j.Name, PasswordHash: j.PasswordHash}
}

type authorizationCodeJSON struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	UserID      string    `json:"user_id"`
	Scope       []string  `json:"scope"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toAuthorizationCodeJSON(c *storage.AuthorizationCode) *authorizationCodeJSON {
	return &authorizationCodeJSON{
		Code:        c.Code,
		ClientID:    c.ClientID,
		RedirectURI: c.RedirectURI,
		UserID:      c.UserID,
		Scope:       c.Scope,
		CreatedAt:   c.CreatedAt,
		ExpiresAt:   c.ExpiresAt,
	}
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:        j.Code,
		ClientID:    j.ClientID,
		RedirectURI: j.RedirectURI,
		UserID:      j.UserID,
		Scope:       storage.CloneScope(j.Scope),
		CreatedAt:   j.CreatedAt,
		ExpiresAt:   j.ExpiresAt,
	}
}

type accessTokenJSON struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id,omitempty"`
	Scope     []string  `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toAccessTokenJSON(t *storage.AccessToken) *accessTokenJSON {
	return &accessTokenJSON{
		Token:     t.Token,
		ClientID:  t.ClientID,
		UserID:    t.UserID,
		Scope:     t.Scope,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}

func fromAccessTokenJSON(j *accessTokenJSON) *storage.AccessToken {
	return &storage.AccessToken{
		Token:     j.Token,
		ClientID:  j.ClientID,
		UserID:    j.UserID,
		Scope:     storage.CloneScope(j.Scope),
		CreatedAt: j.CreatedAt,
		ExpiresAt: j.ExpiresAt,
	}
}

type refreshTokenJSON struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id,omitempty"`
	Scope     []string  `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
}

func toRefreshTokenJSON(t *storage.RefreshToken) *refreshTokenJSON {
	return &refreshTokenJSON{
		Token:     t.Token,
		ClientID:  t.ClientID,
		UserID:    t.UserID,
		Scope:     t.Scope,
		CreatedAt: t.CreatedAt,
	}
}

func fromRefreshTokenJSON(j *refreshTokenJSON) *storage.RefreshToken {
	return &storage.RefreshToken{
		Token:     j.Token,
		ClientID:  j.ClientID,
		UserID:    j.UserID,
		Scope:     storage.CloneScope(j.Scope),
		CreatedAt: j.CreatedAt,
	}
}

type transactionJSON struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toTransactionJSON(t *storage.TransactionRecord) *transactionJSON {
	return &transactionJSON{
		ID:        t.ID,
		ClientID:  t.ClientID,
		UserID:    t.UserID,
		Payload:   t.Payload,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}

func fromTransactionJSON(j *transactionJSON) *storage.TransactionRecord {
	return &storage.TransactionRecord{
		ID:        j.ID,
		ClientID:  j.ClientID,
		UserID:    j.UserID,
		Payload:   j.Payload,
		CreatedAt: j.CreatedAt,
		ExpiresAt: j.ExpiresAt,
	}
}
