package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/chatrelay/pkg/crypto"
	"github.com/NicolasHaas/chatrelay/pkg/model"
)

// MemoryFactory provides an in-memory DataProviderFactory for tests. It is
// safe for concurrent use. Transactions are not isolated; Commit and
// Rollback are no-ops.
type MemoryFactory struct {
	store *memoryStore
}

var _ DataProviderFactory = (*MemoryFactory)(nil)

// NewMemoryFactory returns an empty in-memory store.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{store: newMemoryStore()}
}

func (f *MemoryFactory) NonTx() DataStore {
	return f.store
}

func (f *MemoryFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	return &memoryTx{memoryStore: f.store}, nil
}

type memoryTx struct {
	*memoryStore
}

func (t *memoryTx) Rollback() error { return nil }
func (t *memoryTx) Commit() error   { return nil }

type memoryStore struct {
	mu sync.Mutex

	users    map[int64]*model.User
	channels map[int64]*model.Channel
	messages map[int64]*model.Message

	nextUserID    int64
	nextChannelID int64
	nextMessageID int64

	// now is swappable so tests control timestamps.
	now func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:         make(map[int64]*model.User),
		channels:      make(map[int64]*model.Channel),
		messages:      make(map[int64]*model.Message),
		nextUserID:    1,
		nextChannelID: 1,
		nextMessageID: 1,
		now:           time.Now,
	}
}

func (s *memoryStore) Close() error {
	return nil
}

// ---- Users ----

func (s *memoryStore) CreateUser(username, passwordHash, salt string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return nil, ErrUsernameTaken
		}
	}

	u := &model.User{
		ID:             s.nextUserID,
		Username:       username,
		PasswordHash:   passwordHash,
		Salt:           salt,
		CreatedAt:      s.now(),
		CurrentChannel: model.DefaultChannelName,
	}
	s.nextUserID++
	s.users[u.ID] = u

	out := *u
	return &out, nil
}

func (s *memoryStore) GetUserByUsername(username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) UpdateLastLogin(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[userID]; ok {
		u.LastLogin = s.now()
	}
	return nil
}

func (s *memoryStore) UpdateUserChannel(userID int64, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[userID]; ok {
		u.CurrentChannel = channel
	}
	return nil
}

// ---- Channels ----

func (s *memoryStore) CreateChannel(channel *model.Channel) error {
	if err := channel.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.channels {
		if ch.Name == channel.Name {
			return fmt.Errorf("datastore: create channel: duplicate name %q", channel.Name)
		}
	}

	channel.ID = s.nextChannelID
	s.nextChannelID++
	channel.CreatedAt = s.now()

	stored := *channel
	s.channels[channel.ID] = &stored
	return nil
}

func (s *memoryStore) DeleteChannel(id, requesterID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return false, nil
	}
	if model.IsSystemChannel(ch.Name) || ch.OwnerID != requesterID {
		return false, nil
	}
	delete(s.channels, id)
	return true, nil
}

func (s *memoryStore) GetChannelByName(name string) (*model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.channels {
		if ch.Name == name {
			out := *ch
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) ListPublicChannels() ([]model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var channels []model.Channel
	for _, ch := range s.channels {
		if !ch.IsPrivate {
			channels = append(channels, *ch)
		}
	}
	sort.Slice(channels, func(i, j int) bool {
		if !channels[i].CreatedAt.Equal(channels[j].CreatedAt) {
			return channels[i].CreatedAt.After(channels[j].CreatedAt)
		}
		return channels[i].ID > channels[j].ID
	})
	return channels, nil
}

// ---- Messages ----

func (s *memoryStore) CreateMessage(message *model.Message) error {
	message.Content = crypto.SanitizeInput(message.Content)
	if err := message.Validate(); err != nil {
		return fmt.Errorf("datastore: message failed validation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	message.ID = s.nextMessageID
	s.nextMessageID++
	message.CreatedAt = s.now()

	stored := *message
	s.messages[message.ID] = &stored
	return nil
}

func (s *memoryStore) GetChannelMessages(channelID int64, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []model.Message
	for _, m := range s.messages {
		if m.ChannelID == channelID && !m.IsPrivate {
			messages = append(messages, *m)
		}
	}
	return trimNewestFirst(messages, limit), nil
}

func (s *memoryStore) GetPrivateMessages(userA, userB int64, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []model.Message
	for _, m := range s.messages {
		if !m.IsPrivate || m.RecipientID == nil {
			continue
		}
		if (m.SenderID == userA && *m.RecipientID == userB) ||
			(m.SenderID == userB && *m.RecipientID == userA) {
			messages = append(messages, *m)
		}
	}
	return trimNewestFirst(messages, limit), nil
}

func trimNewestFirst(messages []model.Message, limit int) []model.Message {
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ID > messages[j].ID
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages
}
