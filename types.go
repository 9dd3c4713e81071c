package oauth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/giantswarm/oauth-grants/scope"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/server"
)

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponse represents an OAuth 2.0 token response
type TokenResponse struct {
	// AccessToken is the access token
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (always "Bearer")
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in"`

	// RefreshToken is the refresh token (optional)
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the scope of the access token
	Scope string `json:"scope,omitempty"`
}

// TokenInfoResponse describes a live access token
type TokenInfoResponse struct {
	// UserID is empty for client credentials tokens
	UserID    string `json:"user_id,omitempty"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope"`
	ExpiresIn int64  `json:"expires_in"`
}

// ConsentResponse is the default rendering of a consent prompt
type ConsentResponse struct {
	TransactionID string `json:"transaction_id"`
	ClientID      string `json:"client_id"`
	ClientName    string `json:"client_name,omitempty"`
	UserID        string `json:"user_id"`
	Scope         string `json:"scope"`
}

// User is the authenticated resource owner of a browser session
type User struct {
	ID   string
	Name string
}

type contextKey string

const userContextKey contextKey = "user"

// ContextWithUser returns a context carrying the session user.
// Session middleware in front of the authorization endpoints calls this.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the session user, if any
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	if !ok || user == nil || user.ID == "" {
		return nil, false
	}
	return user, true
}

// ConsentRenderer presents a consent prompt to the user. The rendered page
// must post transaction_id and decision to the decision endpoint.
type ConsentRenderer interface {
	RenderConsent(w http.ResponseWriter, r *http.Request, prompt *server.ConsentPrompt) error
}

// JSONConsentRenderer renders the prompt as a JSON ConsentResponse
type JSONConsentRenderer struct{}

// RenderConsent implements ConsentRenderer
func (JSONConsentRenderer) RenderConsent(w http.ResponseWriter, r *http.Request, prompt *server.ConsentPrompt) error {
	security.SetSecurityHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(ConsentResponse{
		TransactionID: prompt.TransactionID,
		ClientID:      prompt.Client.ClientID,
		ClientName:    prompt.Client.Name,
		UserID:        prompt.UserID,
		Scope:         scope.Format(prompt.Scope),
	})
}
