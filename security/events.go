package security

// Event type constants for security audit logging.
const (
	// EventTokenIssued is logged when an access token is issued by any grant
	EventTokenIssued = "token_issued"

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeReplayDetected is logged when a code is redeemed after
	// another redemption already consumed it
	EventAuthorizationCodeReplayDetected = "authorization_code_replay_detected"

	// EventConsentDecision is logged when a user allows or denies a client
	EventConsentDecision = "consent_decision"

	// EventGrantDenied is logged when the grant engine refuses a request
	EventGrantDenied = "grant_denied"

	// EventAuthFailure is logged when client or resource owner authentication fails
	EventAuthFailure = "auth_failure"

	// EventInvalidRedirect is logged when a redirect URI falls outside the client's prefix
	EventInvalidRedirect = "invalid_redirect"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
