package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth-grants/internal/util"
	"github.com/giantswarm/oauth-grants/storage"
)

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode persists an issued authorization code with a TTL matching its expiry
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}
	if err := validateStringLength(code.Code, MaxTokenLength, "code"); err != nil {
		return err
	}

	ttl := calculateTTL(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	data, err := json.Marshal(toAuthorizationCodeJSON(code))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	if err := s.setIfAbsent(ctx, s.codeKey(code.Code), data, ttl); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("%w: authorization code", storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves an authorization code
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	return getAndUnmarshal(ctx, s, s.codeKey(code), storage.ErrAuthorizationCodeNotFound, fromAuthorizationCodeJSON)
}

// DeleteAuthorizationCode removes a code and returns the DEL count
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) (int64, error) {
	n, err := s.deleteKey(ctx, s.codeKey(code))
	if err != nil {
		return 0, fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return n, nil
}

// ============================================================
// AccessTokenStore Implementation
// ============================================================

// SaveAccessToken persists an access token with a TTL matching its expiry
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}
	if err := validateStringLength(token.Token, MaxTokenLength, "token"); err != nil {
		return err
	}

	ttl := calculateTTL(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("access token already expired")
	}

	data, err := json.Marshal(toAccessTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	if err := s.setIfAbsent(ctx, s.accessTokenKey(token.Token), data, ttl); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("%w: access token", storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// GetAccessToken retrieves an access token
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	return getAndUnmarshal(ctx, s, s.accessTokenKey(token), storage.ErrAccessTokenNotFound, fromAccessTokenJSON)
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken persists a refresh token without expiry
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}
	if err := validateStringLength(token.Token, MaxTokenLength, "token"); err != nil {
		return err
	}

	data, err := json.Marshal(toRefreshTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	if err := s.setIfAbsent(ctx, s.refreshTokenKey(token.Token), data, 0); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("%w: refresh token", storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	return getAndUnmarshal(ctx, s, s.refreshTokenKey(token), storage.ErrRefreshTokenNotFound, fromRefreshTokenJSON)
}
