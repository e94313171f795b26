package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultChannelName = "general"

	MaxChannelNameLength = 50
	MaxChannelDescLength = 256
)

var ErrChannelNameEmpty = errors.New("channel name must not be empty")
var ErrChannelNameTooLong = errors.New("channel name too long")
var ErrChannelDescTooLong = errors.New("channel description too long")

// SystemChannels are always present and can never be deleted. The default
// channel every fresh login lands in is the first entry.
var SystemChannels = []string{"general", "random", "help"}

// IsSystemChannel reports whether name is one of the fixed system channels.
func IsSystemChannel(name string) bool {
	for _, sys := range SystemChannels {
		if sys == name {
			return true
		}
	}
	return false
}

// Channel represents a named, persisted topic grouping. Membership is not
// stored here; it is derived from the sessions currently pointing at it.
// The JSON tags are the wire shape of channel_list and channel_joined entries.
type Channel struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	IsPrivate   bool      `json:"is_private"`
	OwnerID     int64     `json:"owner_id"` // 0 = system-owned
}

// NewSystemChannel returns a channel record for one of the fixed system channels.
func NewSystemChannel(name string) *Channel {
	return &Channel{
		Name:        name,
		Description: "System channel: " + name,
	}
}

// Validate checks channel fields before persistence.
func (ch *Channel) Validate() error {
	if strings.TrimSpace(ch.Name) == "" {
		return ErrChannelNameEmpty
	} else if utf8.RuneCountInString(ch.Name) > MaxChannelNameLength {
		return ErrChannelNameTooLong
	}

	if utf8.RuneCountInString(ch.Description) > MaxChannelDescLength {
		return ErrChannelDescTooLong
	}

	return nil
}
