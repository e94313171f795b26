package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MessageMaxContentLength = 1000

var ErrMessageContentTooLong = fmt.Errorf("message content exceeds %d characters", MessageMaxContentLength)
var ErrMessageContentEmpty = errors.New("message content cannot be empty")

// Message is a persisted chat message, public or private. RecipientID is nil
// for channel messages. The JSON tags are the wire shape of history entries.
type Message struct {
	ID          int64     `json:"id"`
	ChannelID   int64     `json:"channel_id"`
	SenderID    int64     `json:"sender_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	IsPrivate   bool      `json:"is_private"`
	RecipientID *int64    `json:"recipient_id"`
}

// Validate checks message fields before persistence.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrMessageContentEmpty
	} else if utf8.RuneCountInString(m.Content) > MessageMaxContentLength {
		return ErrMessageContentTooLong
	}

	return nil
}
