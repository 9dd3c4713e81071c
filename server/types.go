package server

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-grants/scope"
	"github.com/giantswarm/oauth-grants/storage"
)

// TokenTypeBearer is the only token type this server issues
const TokenTypeBearer = "Bearer"

// GrantType identifies a grant flow.
type GrantType string

// Grant types. GrantImplicit is only reachable through the authorization endpoint.
const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantImplicit          GrantType = "implicit"
	GrantPassword          GrantType = "password"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
)

// ParseGrantType parses the grant_type of a token request.
// An empty value means authorization_code. The implicit grant is not
// accepted here because it never reaches the token endpoint.
func ParseGrantType(s string) (GrantType, error) {
	switch GrantType(s) {
	case "":
		return GrantAuthorizationCode, nil
	case GrantAuthorizationCode, GrantPassword, GrantClientCredentials, GrantRefreshToken:
		return GrantType(s), nil
	default:
		return "", ErrUnsupportedGrantType
	}
}

// ResponseType identifies what the authorization endpoint returns.
type ResponseType string

// Response types
const (
	ResponseTypeCode  ResponseType = "code"
	ResponseTypeToken ResponseType = "token"
)

// ParseResponseType parses response_type. An empty value means code.
func ParseResponseType(s string) (ResponseType, error) {
	switch ResponseType(s) {
	case "":
		return ResponseTypeCode, nil
	case ResponseTypeCode, ResponseTypeToken:
		return ResponseType(s), nil
	default:
		return "", ErrUnsupportedResponseType
	}
}

// GrantType returns the grant a response type dispatches to.
func (r ResponseType) GrantType() GrantType {
	switch r {
	case ResponseTypeToken:
		return GrantImplicit
	case ResponseTypeCode:
		return GrantAuthorizationCode
	default:
		return GrantAuthorizationCode
	}
}

// Decision is the resource owner's answer to a consent prompt.
type Decision string

// Decisions
const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// CredentialVerifier checks resource owner credentials for the password grant.
// Implementations return storage.ErrInvalidCredentials or storage.ErrUserNotFound
// for a bad username or password; any other error is a collaborator failure.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (userID string, err error)
}

// Grant is the result of a successful grant. Exactly one of Code or
// AccessToken is set.
type Grant struct {
	AccessToken  *storage.AccessToken
	RefreshToken *storage.RefreshToken
	Code         *storage.AuthorizationCode
	Scope        []string
	ExpiresIn    int64 // seconds
}

// OAuth2Token renders an access token grant as an oauth2.Token.
// Returns nil for a code grant.
func (g *Grant) OAuth2Token() *oauth2.Token {
	if g == nil || g.AccessToken == nil {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken: g.AccessToken.Token,
		TokenType:   TokenTypeBearer,
		Expiry:      g.AccessToken.ExpiresAt,
		ExpiresIn:   g.ExpiresIn,
	}
	if g.RefreshToken != nil {
		tok.RefreshToken = g.RefreshToken.Token
	}
	return tok.WithExtra(map[string]any{"scope": scope.Format(g.Scope)})
}

// AuthorizationRequest is an incoming request to the authorization endpoint,
// made on behalf of an authenticated user.
type AuthorizationRequest struct {
	ClientID     string
	RedirectURI  string
	Scope        []string
	State        string
	ResponseType ResponseType
	UserID       string
}

// Transaction is an authorization request staged while the user decides.
type Transaction struct {
	ID           string
	Client       *storage.Client
	RedirectURI  string
	Scope        []string
	State        string
	ResponseType ResponseType
	UserID       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// ConsentPrompt is what the user is asked to approve.
type ConsentPrompt struct {
	TransactionID string
	Client        *storage.Client
	UserID        string
	Scope         []string
}

// AuthorizationOutcome is either a redirect back to the client or a prompt
// for the user. Exactly one field is set.
type AuthorizationOutcome struct {
	RedirectURL string
	Prompt      *ConsentPrompt
}
