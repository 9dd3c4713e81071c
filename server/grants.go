package server

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/internal/util"
	"github.com/giantswarm/oauth-grants/scope"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/storage"
)

// IssueAuthorizationCode mints and stores a single-use code for client and
// userID. scope must already be restricted to the client's allowance.
func (s *Server) IssueAuthorizationCode(ctx context.Context, client *storage.Client, redirectURI, userID string, granted []string) (*Grant, error) {
	ctx, span := s.startGrantSpan(ctx, "server.issue_authorization_code", GrantAuthorizationCode, client.ClientID, userID, granted)
	defer span.End()

	now := s.now()
	code := &storage.AuthorizationCode{
		Code:        s.minter.Mint(s.Config.CodeLength),
		ClientID:    client.ClientID,
		RedirectURI: redirectURI,
		UserID:      userID,
		Scope:       storage.CloneScope(granted),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.Config.authorizationCodeTTL()),
	}

	if err := s.artifacts.SaveAuthorizationCode(ctx, code); err != nil {
		instrumentation.RecordError(span, err)
		return nil, storeFailure("save_authorization_code", err)
	}

	s.Auditor.LogCodeIssued(userID, client.ClientID, scope.Format(code.Scope))
	s.Logger.Debug("Issued authorization code",
		"client_id", client.ClientID,
		"code_prefix", util.SafeTruncate(code.Code, codeIDLogLength))
	instrumentation.SetSpanSuccess(span)

	return &Grant{Code: code, Scope: code.Scope}, nil
}

// IssueImplicitToken mints an access token directly for the authorization
// endpoint. The implicit grant never issues a refresh token.
func (s *Server) IssueImplicitToken(ctx context.Context, client *storage.Client, userID string, granted []string) (*Grant, error) {
	ctx, span := s.startGrantSpan(ctx, "server.issue_implicit_token", GrantImplicit, client.ClientID, userID, granted)
	defer span.End()

	grant, err := s.issueAccessToken(ctx, GrantImplicit, client.ClientID, userID, granted, false)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return grant, nil
}

// ExchangeAuthorizationCode redeems a code for an access token.
//
// The code is deleted before any other check, and the delete count decides
// the race: among concurrent redemptions exactly one observes a count of 1.
// A lost race is reported as ErrReplayDetected, which renders on the wire
// exactly like an unknown code. A presentation by the wrong client or with
// the wrong redirect URI also consumes the code.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, client *storage.Client, code, redirectURI string) (*Grant, error) {
	ctx, span := s.startGrantSpan(ctx, "server.exchange_authorization_code", GrantAuthorizationCode, client.ClientID, "", nil)
	defer span.End()

	authCode, err := s.artifacts.GetAuthorizationCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			s.Auditor.LogAuthFailure("", client.ClientID, "", "unknown_authorization_code")
			return nil, s.deny(ctx, span, GrantAuthorizationCode, ErrUnknownCode)
		}
		instrumentation.RecordError(span, err)
		return nil, storeFailure("get_authorization_code", err)
	}

	deleted, err := s.artifacts.DeleteAuthorizationCode(ctx, code)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, storeFailure("delete_authorization_code", err)
	}
	if deleted == 0 {
		s.Logger.Warn("Authorization code replay detected",
			"client_id", client.ClientID,
			"code_prefix", util.SafeTruncate(code, codeIDLogLength))
		s.Auditor.LogCodeReplayDetected(authCode.UserID, client.ClientID)
		span.SetAttributes(attribute.Bool(instrumentation.AttrCodeReplay, true))
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordCodeReplayDetected(ctx)
		}
		return nil, s.deny(ctx, span, GrantAuthorizationCode, ErrReplayDetected)
	}

	if authCode.ClientID != client.ClientID {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", authCode.ClientID,
			"provided_client_id", client.ClientID)
		s.Auditor.LogAuthFailure(authCode.UserID, client.ClientID, "", "client_id_mismatch")
		return nil, s.deny(ctx, span, GrantAuthorizationCode, ErrClientMismatch)
	}

	if authCode.RedirectURI != redirectURI {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "redirect_uri_mismatch",
			"expected_uri", authCode.RedirectURI,
			"provided_uri", redirectURI,
			"client_id", client.ClientID)
		s.Auditor.LogAuthFailure(authCode.UserID, client.ClientID, "", "redirect_uri_mismatch")
		return nil, s.deny(ctx, span, GrantAuthorizationCode, ErrRedirectURIMismatch)
	}

	if security.IsExpired(s.now(), authCode.ExpiresAt, s.Config.clockSkewGracePeriod()) {
		s.Auditor.LogAuthFailure(authCode.UserID, client.ClientID, "", "expired_authorization_code")
		return nil, s.deny(ctx, span, GrantAuthorizationCode, ErrExpiredCode)
	}

	grant, err := s.issueAccessToken(ctx, GrantAuthorizationCode, authCode.ClientID, authCode.UserID, authCode.Scope, true)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(instrumentation.AttrUserID, authCode.UserID))
	instrumentation.SetSpanSuccess(span)
	return grant, nil
}

// PasswordGrant exchanges resource owner credentials for an access token.
func (s *Server) PasswordGrant(ctx context.Context, client *storage.Client, username, password string, requested []string) (*Grant, error) {
	ctx, span := s.startGrantSpan(ctx, "server.password_grant", GrantPassword, client.ClientID, "", requested)
	defer span.End()

	if err := validateScopeTokens(requested); err != nil {
		return nil, s.deny(ctx, span, GrantPassword, err)
	}

	if s.verifier == nil {
		s.Auditor.LogAuthFailure("", client.ClientID, "", "password_grant_disabled")
		return nil, s.deny(ctx, span, GrantPassword, ErrInvalidCredentials)
	}

	userID, err := s.verifier.VerifyCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) || errors.Is(err, storage.ErrUserNotFound) {
			s.Auditor.LogAuthFailure(username, client.ClientID, "", "invalid_resource_owner_credentials")
			return nil, s.deny(ctx, span, GrantPassword, ErrInvalidCredentials)
		}
		instrumentation.RecordError(span, err)
		return nil, storeFailure("verify_credentials", err)
	}

	granted := scope.RestrictToAllowed(client.ScopeAllowance(), requested)
	grant, err := s.issueAccessToken(ctx, GrantPassword, client.ClientID, userID, granted, true)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return grant, nil
}

// ClientCredentialsGrant issues an access token to the client itself.
// The token carries no user and no refresh token is ever issued.
func (s *Server) ClientCredentialsGrant(ctx context.Context, client *storage.Client, requested []string) (*Grant, error) {
	ctx, span := s.startGrantSpan(ctx, "server.client_credentials_grant", GrantClientCredentials, client.ClientID, "", requested)
	defer span.End()

	if err := validateScopeTokens(requested); err != nil {
		return nil, s.deny(ctx, span, GrantClientCredentials, err)
	}

	granted := scope.RestrictToAllowed(client.ScopeAllowance(), requested)
	grant, err := s.issueAccessToken(ctx, GrantClientCredentials, client.ClientID, "", granted, false)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return grant, nil
}

// RefreshTokenGrant mints a new access token from a refresh token.
// The new token carries the refresh token's stored scope; the requested
// scope is ignored. The refresh token itself is neither rotated nor deleted.
func (s *Server) RefreshTokenGrant(ctx context.Context, client *storage.Client, refreshToken string, requested []string) (*Grant, error) {
	ctx, span := s.startGrantSpan(ctx, "server.refresh_token_grant", GrantRefreshToken, client.ClientID, "", requested)
	defer span.End()

	stored, err := s.artifacts.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			s.Auditor.LogAuthFailure("", client.ClientID, "", "unknown_refresh_token")
			return nil, s.deny(ctx, span, GrantRefreshToken, ErrUnknownRefreshToken)
		}
		instrumentation.RecordError(span, err)
		return nil, storeFailure("get_refresh_token", err)
	}

	if stored.ClientID != client.ClientID {
		s.Auditor.LogAuthFailure(stored.UserID, client.ClientID, "", "refresh_token_client_mismatch")
		return nil, s.deny(ctx, span, GrantRefreshToken, ErrClientMismatch)
	}

	if len(requested) > 0 {
		s.Logger.Debug("Ignoring requested scope on refresh", "client_id", client.ClientID)
	}

	grant, err := s.issueAccessToken(ctx, GrantRefreshToken, stored.ClientID, stored.UserID, stored.Scope, false)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return grant, nil
}

// TokenInfo returns the stored record for an unexpired access token.
func (s *Server) TokenInfo(ctx context.Context, token string) (*storage.AccessToken, error) {
	ctx, span := s.tracer.Start(ctx, "server.token_info")
	defer span.End()

	if token == "" {
		return nil, s.deny(ctx, span, "", ErrUnknownAccessToken)
	}

	at, err := s.artifacts.GetAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrAccessTokenNotFound) {
			return nil, s.deny(ctx, span, "", ErrUnknownAccessToken)
		}
		instrumentation.RecordError(span, err)
		return nil, storeFailure("get_access_token", err)
	}

	if security.IsExpired(s.now(), at.ExpiresAt, s.Config.clockSkewGracePeriod()) {
		return nil, s.deny(ctx, span, "", ErrUnknownAccessToken)
	}

	instrumentation.SetSpanSuccess(span)
	return at, nil
}

// issueAccessToken mints and stores an access token, plus a refresh token
// when allowRefresh is set and the granted scope includes offline_access.
func (s *Server) issueAccessToken(ctx context.Context, grantType GrantType, clientID, userID string, granted []string, allowRefresh bool) (*Grant, error) {
	now := s.now()
	at := &storage.AccessToken{
		Token:     s.minter.Mint(s.Config.AccessTokenLength),
		ClientID:  clientID,
		UserID:    userID,
		Scope:     storage.CloneScope(granted),
		CreatedAt: now,
		ExpiresAt: now.Add(s.Config.accessTokenTTL()),
	}
	if err := s.artifacts.SaveAccessToken(ctx, at); err != nil {
		return nil, storeFailure("save_access_token", err)
	}

	grant := &Grant{
		AccessToken: at,
		Scope:       at.Scope,
		ExpiresIn:   s.Config.AccessTokenTTL,
	}

	if allowRefresh && scope.HasOfflineAccess(granted) {
		rt := &storage.RefreshToken{
			Token:     s.minter.Mint(s.Config.RefreshTokenLength),
			ClientID:  clientID,
			UserID:    userID,
			Scope:     storage.CloneScope(granted),
			CreatedAt: now,
		}
		if err := s.artifacts.SaveRefreshToken(ctx, rt); err != nil {
			return nil, storeFailure("save_refresh_token", err)
		}
		grant.RefreshToken = rt
	}

	withRefresh := grant.RefreshToken != nil
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool(instrumentation.AttrRefreshIssued, withRefresh))
	s.Auditor.LogTokenIssued(string(grantType), userID, clientID, scope.Format(grant.Scope), withRefresh)
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordGrantIssued(ctx, string(grantType), clientID, withRefresh)
	}
	s.Logger.Debug("Issued access token",
		"grant_type", grantType,
		"client_id", clientID,
		"refresh_token", withRefresh)

	return grant, nil
}

func (s *Server) startGrantSpan(ctx context.Context, name string, grantType GrantType, clientID, userID string, requested []string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	instrumentation.AddGrantAttributes(span, string(grantType), clientID, userID, scope.Format(requested))
	return ctx, span
}
