package oauth

import (
	"fmt"
	"time"

	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/server"
)

// Config holds the OAuth handler configuration
// Structured using composition for better organization and maintainability
type Config struct {
	// LoginURL is where unauthenticated users are sent from the authorization
	// endpoint, with the original request in the return_to parameter.
	// Empty answers those requests with 401.
	LoginURL string

	// Engine configures the grant engine (TTLs, token lengths)
	Engine server.Config

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Security settings (secure by default)
	Security SecurityConfig

	// Renderer presents consent prompts. Default: JSONConsentRenderer.
	Renderer ConsentRenderer

	// Instrumentation is optional OpenTelemetry instrumentation
	Instrumentation *instrumentation.Instrumentation

	// CleanupInterval is how often backends with background cleanup purge
	// expired artifacts. Default: 1 minute
	CleanupInterval time.Duration
}

// RateLimitConfig holds rate limiting configuration for the token endpoint
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// MaxEntries bounds the number of tracked IPs. Default: 10000
	MaxEntries int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of this server.
	// Default: 1 when TrustProxy is set.
	TrustedProxyCount int
}

// SecurityConfig holds OAuth security settings (secure by default)
type SecurityConfig struct {
	// EncryptionKey is the AES-256 key (32 bytes) sealing pending authorization
	// transactions at rest. Nil disables sealing.
	EncryptionKey []byte

	// EnableAuditLogging enables security audit logging.
	// Logs auth events, token operations, and violations (sensitive data hashed).
	EnableAuditLogging bool
}

// DefaultCleanupInterval is used when Config.CleanupInterval is zero
const DefaultCleanupInterval = time.Minute

// applyDefaults fills zero values. It does not touch Engine, which the grant
// engine defaults itself.
func (c *Config) applyDefaults() {
	if c.Renderer == nil {
		c.Renderer = JSONConsentRenderer{}
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.RateLimit.TrustProxy && c.RateLimit.TrustedProxyCount == 0 {
		c.RateLimit.TrustedProxyCount = 1
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if n := len(c.Security.EncryptionKey); n != 0 && n != 32 {
		return fmt.Errorf("invalid config: encryption key must be 32 bytes, got %d", n)
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("invalid config: rate limit must not be negative")
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("invalid config: cleanup interval must not be negative")
	}
	return c.Engine.Validate()
}

// GenerateEncryptionKey returns a fresh key for SecurityConfig.EncryptionKey
func GenerateEncryptionKey() ([]byte, error) {
	return security.GenerateKey()
}
