package security

import (
	"crypto/rand"
	"fmt"
)

// tokenAlphabet is the set of characters minted tokens are drawn from.
// It contains only URL-safe, form-safe printable characters.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiasedByte is the largest byte value that maps uniformly onto tokenAlphabet.
// 248 = 62 * 4; bytes at or above it are rejected.
const maxUnbiasedByte = 256 - (256 % len(tokenAlphabet))

// Minter produces opaque random tokens.
type Minter interface {
	// Mint returns a token of exactly length characters.
	Mint(length int) string
}

// RandomMinter mints tokens from crypto/rand.
type RandomMinter struct{}

// Mint implements Minter.
func (RandomMinter) Mint(length int) string {
	return GenerateToken(length)
}

// GenerateToken returns a token of exactly length characters drawn uniformly
// from [A-Za-z0-9] using a cryptographically secure source.
//
// A failing entropy source is unrecoverable: the function panics rather than
// returning a predictable token.
func GenerateToken(length int) string {
	if length <= 0 {
		return ""
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+8)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("security: crypto/rand failed: %v", err))
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out)
}
