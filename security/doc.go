// Package security provides the security primitives of the authorization server:
// token minting, secret hashing, resource owner verification, payload sealing,
// rate limiting, audit logging and HTTP response hardening.
//
// # Token Minting
//
// GenerateToken draws fixed-length tokens uniformly from [A-Za-z0-9] using
// crypto/rand. The grant engine consumes it through the Minter interface so
// tests can substitute a deterministic source.
//
//	code := security.GenerateToken(16)
//
// # Secrets
//
// Client secrets and user passwords are stored as bcrypt hashes (HashSecret).
// PasswordVerifier implements resource owner verification for the password
// grant on top of a storage.UserStore; unknown users and bad passwords are
// indistinguishable to the caller.
//
// # Sealing
//
// Encryptor seals small payloads with AES-256-GCM and binds them to a context
// string. The authorization coordinator uses it to protect transaction
// payloads at rest.
//
// # Rate Limiting
//
// RateLimiter applies a golang.org/x/time/rate token bucket per identifier
// with LRU eviction, bounding memory under distributed floods.
//
//	limiter := security.NewRateLimiter(10, 20, 0, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // 429
//	}
//
// # Audit Logging
//
// Auditor writes structured security events through log/slog. User
// identifiers are hashed (SHA-256, truncated) before logging.
package security
