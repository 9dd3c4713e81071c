package security

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-grants/storage"
)

// dummyHash is compared against when the subject does not exist, so lookups of
// unknown and known subjects take the same time.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashSecret returns the bcrypt hash of a client secret or user password.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// CompareSecret checks secret against hash. An empty hash is compared against
// a dummy hash and always fails.
func CompareSecret(hash, secret string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(secret))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// PasswordVerifier authenticates resource owners against a UserStore with bcrypt.
type PasswordVerifier struct {
	users storage.UserStore
}

// NewPasswordVerifier creates a verifier over users.
func NewPasswordVerifier(users storage.UserStore) *PasswordVerifier {
	return &PasswordVerifier{users: users}
}

// VerifyCredentials returns the user ID for a valid username/password pair.
// Unknown users and wrong passwords both yield storage.ErrInvalidCredentials;
// any other error is a store failure.
func (v *PasswordVerifier) VerifyCredentials(ctx context.Context, username, password string) (string, error) {
	user, err := v.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			CompareSecret("", password)
			return "", storage.ErrInvalidCredentials
		}
		return "", err
	}

	if !CompareSecret(user.PasswordHash, password) {
		return "", storage.ErrInvalidCredentials
	}
	return user.ID, nil
}
