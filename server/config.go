package server

import (
	"fmt"
	"log/slog"
	"time"
)

// Minimum lengths below which minted artifacts become guessable.
const (
	minCodeLength  = 16
	minTokenLength = 32
)

// Config holds grant engine configuration
type Config struct {
	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// TransactionTTL is how long an authorization transaction waits for the user's decision
	TransactionTTL int64 // seconds, default: 600 (10 minutes)

	// CodeLength is the number of characters in a minted authorization code
	CodeLength int // default: 16

	// AccessTokenLength is the number of characters in a minted access token
	AccessTokenLength int // default: 256

	// RefreshTokenLength is the number of characters in a minted refresh token
	RefreshTokenLength int // default: 256

	// ClockSkewGracePeriod is the grace period for expiration checks (in seconds)
	// This prevents false expiration errors due to time synchronization issues
	ClockSkewGracePeriod int64 // seconds, default: 5
}

// Validate rejects negative values. Zero values are replaced by defaults.
func (c *Config) Validate() error {
	for name, v := range map[string]int64{
		"AuthorizationCodeTTL": c.AuthorizationCodeTTL,
		"AccessTokenTTL":       c.AccessTokenTTL,
		"TransactionTTL":       c.TransactionTTL,
		"CodeLength":           int64(c.CodeLength),
		"AccessTokenLength":    int64(c.AccessTokenLength),
		"RefreshTokenLength":   int64(c.RefreshTokenLength),
		"ClockSkewGracePeriod": c.ClockSkewGracePeriod,
	} {
		if v < 0 {
			return fmt.Errorf("invalid config: %s must not be negative", name)
		}
	}
	return nil
}

func (c *Config) authorizationCodeTTL() time.Duration {
	return time.Duration(c.AuthorizationCodeTTL) * time.Second
}

func (c *Config) accessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

func (c *Config) transactionTTL() time.Duration {
	return time.Duration(c.TransactionTTL) * time.Second
}

func (c *Config) clockSkewGracePeriod() time.Duration {
	return time.Duration(c.ClockSkewGracePeriod) * time.Second
}

// applySecureDefaults fills zero values and warns about weak settings
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applyLengthDefaults(config)
	logSecurityWarnings(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.TransactionTTL == 0 {
		config.TransactionTTL = 600 // 10 minutes
	}
	if config.ClockSkewGracePeriod == 0 {
		config.ClockSkewGracePeriod = 5
	}
}

// applyLengthDefaults sets default lengths for minted artifacts
func applyLengthDefaults(config *Config) {
	if config.CodeLength == 0 {
		config.CodeLength = 16
	}
	if config.AccessTokenLength == 0 {
		config.AccessTokenLength = 256
	}
	if config.RefreshTokenLength == 0 {
		config.RefreshTokenLength = 256
	}
}

// logSecurityWarnings logs warnings for weak configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.CodeLength < minCodeLength {
		logger.Warn("SECURITY WARNING: short authorization codes",
			"code_length", config.CodeLength,
			"recommended_min", minCodeLength,
			"risk", "Authorization code guessing")
	}
	if config.AccessTokenLength < minTokenLength || config.RefreshTokenLength < minTokenLength {
		logger.Warn("SECURITY WARNING: short bearer tokens",
			"access_token_length", config.AccessTokenLength,
			"refresh_token_length", config.RefreshTokenLength,
			"recommended_min", minTokenLength)
	}
	if config.AuthorizationCodeTTL > 600 {
		logger.Warn("SECURITY WARNING: long-lived authorization codes",
			"authorization_code_ttl", config.AuthorizationCodeTTL,
			"recommendation", "Keep authorization codes below 10 minutes (RFC 6749 Section 4.1.2)")
	}
}
