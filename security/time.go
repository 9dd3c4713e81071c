package security

import "time"

// DefaultClockSkewGracePeriod is how long past its expiry an artifact is still
// accepted, to absorb clock drift between nodes sharing a store.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired reports whether expiresAt has passed at now, allowing grace.
// A zero expiresAt never expires.
func IsExpired(now, expiresAt time.Time, grace time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(grace))
}

// IsTokenExpired reports whether expiresAt has passed, with the default grace period.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsExpired(time.Now(), expiresAt, DefaultClockSkewGracePeriod)
}
