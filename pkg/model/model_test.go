package model

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid leading underscore", "_alice", nil},
		{"valid min length", "abc", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameTooShort},
		{"too short", "ab", ErrUsernameTooShort},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"leading digit", "12abc", ErrUsernameInvalidStart},
		{"leading hyphen", "-user", ErrUsernameInvalidStart},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"contains hyphen", "my-user", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidStart},
		{"tab character", "user\tname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestIsSystemChannel(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"general", true},
		{"random", true},
		{"help", true},
		{"gaming", false},
		{"", false},
		{"General", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSystemChannel(tt.name); got != tt.want {
				t.Errorf("IsSystemChannel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestChannelValidate(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		wantErr error
	}{
		{"valid", Channel{Name: "gaming", Description: "pew"}, nil},
		{"empty name", Channel{Name: ""}, ErrChannelNameEmpty},
		{"whitespace name", Channel{Name: "   "}, ErrChannelNameEmpty},
		{"name too long", Channel{Name: strings.Repeat("a", MaxChannelNameLength+1)}, ErrChannelNameTooLong},
		{"description too long", Channel{Name: "x", Description: strings.Repeat("d", MaxChannelDescLength+1)}, ErrChannelDescTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.channel.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		message Message
		wantErr error
	}{
		{"valid", Message{Content: "hello"}, nil},
		{"empty", Message{Content: ""}, ErrMessageContentEmpty},
		{"whitespace only", Message{Content: " \t\n"}, ErrMessageContentEmpty},
		{"too long", Message{Content: strings.Repeat("a", MessageMaxContentLength+1)}, ErrMessageContentTooLong},
		{"max length", Message{Content: strings.Repeat("a", MessageMaxContentLength)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.message.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
