// Package model defines the core domain types for the chat relay.
package model

import (
	"errors"
	"fmt"
	"time"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

var ErrUsernameTooShort = fmt.Errorf("username must be at least %d characters", MinUsernameLength)
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidStart = errors.New("username must start with a letter or underscore")
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters or underscores")

// User represents a registered user. PasswordHash and Salt never leave the
// server process; they carry no JSON tags on purpose.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Salt           string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	LastLogin      time.Time `json:"last_login"`      // zero = never logged in
	CurrentChannel string    `json:"current_channel"` // persisted default channel
}

// ValidateUsername checks that a username is 3-20 characters, starts with an
// ASCII letter or underscore, and continues with letters, digits, or
// underscores. Returns nil on success or a descriptive error.
func ValidateUsername(name string) error {
	if len(name) < MinUsernameLength {
		return ErrUsernameTooShort
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	first := name[0]
	if (first < 'a' || first > 'z') && (first < 'A' || first > 'Z') && first != '_' {
		return ErrUsernameInvalidStart
	}
	for i := 1; i < len(name); i++ {
		r := name[i]
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}
