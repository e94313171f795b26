// Package datastore provides durable storage for users, channels, and
// messages. The default backend is SQLite; a PostgreSQL backend and an
// in-memory backend for tests implement the same interfaces.
package datastore

import (
	"context"
	"errors"

	"github.com/NicolasHaas/chatrelay/pkg/model"
)

// ErrUsernameTaken is returned by CreateUser when the username already
// exists. Both SQL backends map their unique-violation errors to it.
var ErrUsernameTaken = errors.New("datastore: username already taken")

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore is the persistence contract the relay core consumes.
type DataStore interface {
	UserReadProvider
	UserWriteProvider

	ChannelReadProvider
	ChannelWriteProvider

	MessageReadProvider
	MessageWriteProvider

	Close() error
}

type UserReadProvider interface {
	// GetUserByUsername returns (nil, nil) when the user does not exist.
	GetUserByUsername(username string) (*model.User, error)
}

type UserWriteProvider interface {
	CreateUser(username, passwordHash, salt string) (*model.User, error)
	UpdateLastLogin(userID int64) error
	UpdateUserChannel(userID int64, channel string) error
}

type ChannelReadProvider interface {
	// GetChannelByName returns (nil, nil) when the channel does not exist.
	GetChannelByName(name string) (*model.Channel, error)
	ListPublicChannels() ([]model.Channel, error)
}

type ChannelWriteProvider interface {
	CreateChannel(channel *model.Channel) error
	// DeleteChannel removes a channel owned by requesterID. System channels
	// always refuse deletion. Reports whether a row was deleted.
	DeleteChannel(id, requesterID int64) (bool, error)
}

type MessageReadProvider interface {
	// GetChannelMessages returns up to limit public messages, newest first.
	GetChannelMessages(channelID int64, limit int) ([]model.Message, error)
	// GetPrivateMessages returns up to limit private messages exchanged
	// between the two users in either direction, newest first.
	GetPrivateMessages(userA, userB int64, limit int) ([]model.Message, error)
}

type MessageWriteProvider interface {
	CreateMessage(message *model.Message) error
}
