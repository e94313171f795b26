// Package crypto provides password hashing, password policy checks, and
// input sanitization for the chat relay.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"

	"golang.org/x/crypto/argon2"
)

const saltSize = 16 // bytes of entropy per password salt

var ErrPasswordTooShort = errors.New("password must be at least 8 characters")
var ErrPasswordNeedsLetter = errors.New("password must contain at least one letter")
var ErrPasswordNeedsDigit = errors.New("password must contain at least one digit")
var ErrPasswordInvalidChars = errors.New("password must contain only letters and digits")

// NewSalt generates a random hex-encoded password salt.
func NewSalt() (string, error) {
	b := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashPassword hashes a password with Argon2id using the given salt and
// returns the hex-encoded digest.
func HashPassword(password, salt string) string {
	key := argon2.IDKey([]byte(password), []byte(salt), 1, 64*1024, 4, 32)
	return hex.EncodeToString(key)
}

// VerifyPassword re-derives the hash and compares it in constant time.
func VerifyPassword(password, salt, hash string) bool {
	derived := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(hash)) == 1
}

// ValidatePassword enforces the registration password policy: at least 8
// characters, at least one letter and one digit, letters and digits only.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			return ErrPasswordInvalidChars
		}
	}
	if !hasLetter {
		return ErrPasswordNeedsLetter
	}
	if !hasDigit {
		return ErrPasswordNeedsDigit
	}
	return nil
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// SanitizeInput strips HTML tags from user-supplied text and escapes the
// remaining markup-significant characters. Applied to message content before
// it is encoded for delivery or persisted.
func SanitizeInput(text string) string {
	return html.EscapeString(tagPattern.ReplaceAllString(text, ""))
}
