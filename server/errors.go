package server

import (
	"errors"
	"fmt"
)

// OAuth 2.0 error codes carried by DeniedError.
// Note: duplicated in the root package, which maps them to HTTP statuses.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
)

// ErrDenied matches every DeniedError via errors.Is.
var ErrDenied = errors.New("request denied")

// DeniedError is an expected rejection: an invalid, mismatched, missing or
// consumed artifact or credential. Code and Description are safe to send to
// the client; the reason stays internal.
type DeniedError struct {
	Code        string
	Description string
	reason      string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.reason)
}

// Reason returns the internal reason, for logs and metrics only.
func (e *DeniedError) Reason() string {
	return e.reason
}

// Is reports a match against ErrDenied or a sentinel with the same reason.
func (e *DeniedError) Is(target error) bool {
	if target == ErrDenied {
		return true
	}
	t, ok := target.(*DeniedError)
	return ok && t.reason == e.reason
}

func denied(code, description, reason string) *DeniedError {
	return &DeniedError{Code: code, Description: description, reason: reason}
}

// descInvalidCode is shared by unknown, expired and replayed codes so the
// wire cannot tell them apart.
const descInvalidCode = "The authorization code is invalid, expired, or was already used"

// Denial sentinels. Compare with errors.Is.
var (
	ErrUnknownClient            = denied(ErrorCodeInvalidClient, "Client authentication failed", "unknown_client")
	ErrInvalidClientCredentials = denied(ErrorCodeInvalidClient, "Client authentication failed", "invalid_client_credentials")
	ErrUnknownCode              = denied(ErrorCodeInvalidGrant, descInvalidCode, "unknown_code")
	ErrReplayDetected           = denied(ErrorCodeInvalidGrant, descInvalidCode, "code_replay")
	ErrExpiredCode              = denied(ErrorCodeInvalidGrant, descInvalidCode, "expired_code")
	ErrClientMismatch           = denied(ErrorCodeInvalidGrant, "The grant was issued to another client", "client_mismatch")
	ErrRedirectURIMismatch      = denied(ErrorCodeInvalidGrant, "The redirect_uri does not match the authorization request", "redirect_uri_mismatch")
	ErrInvalidRedirectURI       = denied(ErrorCodeInvalidRequest, "The redirect_uri is missing or not registered for this client", "invalid_redirect_uri")
	ErrUnknownRefreshToken      = denied(ErrorCodeInvalidGrant, "The refresh token is invalid", "unknown_refresh_token")
	ErrUnknownAccessToken       = denied(ErrorCodeInvalidToken, "The access token is invalid or expired", "unknown_access_token")
	ErrInvalidCredentials       = denied(ErrorCodeInvalidGrant, "The resource owner credentials are invalid", "invalid_credentials")
	ErrInvalidScope             = denied(ErrorCodeInvalidScope, "The requested scope is malformed", "invalid_scope")
	ErrAccessDenied             = denied(ErrorCodeAccessDenied, "The resource owner denied the request", "access_denied")
	ErrUnknownTransaction       = denied(ErrorCodeInvalidRequest, "The authorization transaction is unknown or expired", "unknown_transaction")
	ErrUnsupportedGrantType     = denied(ErrorCodeUnsupportedGrantType, "The grant type is not supported", "unsupported_grant_type")
	ErrUnsupportedResponseType  = denied(ErrorCodeUnsupportedResponseType, "The response type is not supported", "unsupported_response_type")
)

// StoreError reports a failed call to the artifact store, client registry or
// credential verifier. It maps to a server error and is never retried here.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeFailure(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsDenied reports whether err is an expected rejection.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}

// IsStoreFailure reports whether err is a storage or collaborator failure.
func IsStoreFailure(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// DenialReason returns the internal reason of a DeniedError, or "" for other errors.
func DenialReason(err error) string {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.reason
	}
	return ""
}
