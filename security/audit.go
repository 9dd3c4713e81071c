package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
// User identifiers are hashed before they reach the log.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	onEvent func(eventType string)
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// OnEvent registers a hook invoked with the type of every logged event.
// Used to feed the audit event counter.
func (a *Auditor) OnEvent(fn func(eventType string)) {
	a.onEvent = fn
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.onEvent != nil {
		a.onEvent(event.Type)
	}
}

// LogTokenIssued logs when an access token is issued
func (a *Auditor) LogTokenIssued(grantType, userID, clientID, scope string, withRefreshToken bool) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"grant_type":    grantType,
			"scope":         scope,
			"refresh_token": withRefreshToken,
		},
	})
}

// LogCodeIssued logs when an authorization code is issued
func (a *Auditor) LogCodeIssued(userID, clientID, scope string) {
	a.LogEvent(Event{
		Type:     EventAuthorizationCodeIssued,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogCodeReplayDetected logs a redemption attempt that lost the delete race.
// This is the internal view only; the protocol layer reports an unknown code.
func (a *Auditor) LogCodeReplayDetected(userID, clientID string) {
	a.LogEvent(Event{
		Type:     EventAuthorizationCodeReplayDetected,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"severity": "high",
		},
	})
}

// LogAuthFailure logs a failed client or user authentication
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogGrantDenied logs a grant rejected by the engine
func (a *Auditor) LogGrantDenied(grantType, clientID, reason string) {
	a.LogEvent(Event{
		Type:     EventGrantDenied,
		ClientID: clientID,
		Details: map[string]any{
			"grant_type": grantType,
			"reason":     reason,
		},
	})
}

// LogConsentDecision logs a user's allow/deny decision
func (a *Auditor) LogConsentDecision(userID, clientID, decision, scope string) {
	a.LogEvent(Event{
		Type:     EventConsentDecision,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"decision": decision,
			"scope":    scope,
		},
	})
}

// LogInvalidRedirect logs a redirect URI rejected against the client's prefix
func (a *Auditor) LogInvalidRedirect(clientID, redirectURI string) {
	a.LogEvent(Event{
		Type:     EventInvalidRedirect,
		ClientID: clientID,
		Details: map[string]any{
			"redirect_uri": redirectURI,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
