package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/chatrelay/pkg/crypto"
	"github.com/NicolasHaas/chatrelay/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
}

func (p *baseProvider) Close() error {
	return nil
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory provides SQLite-backed database access for all relay
// entities.
type ProviderFactory struct {
	DB *sql.DB
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

func (sf *ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{
			DB: sf.DB,
		},
	}
}

func (sf *ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &txProvider{
		baseProvider: baseProvider{
			DB: tx,
		},
		tx: tx,
	}, nil
}

// NewProviderFactory opens (or creates) a SQLite database and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &ProviderFactory{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (sf *ProviderFactory) Close() error {
	return sf.DB.Close()
}

func (sf *ProviderFactory) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		username        TEXT    NOT NULL UNIQUE CHECK(length(username) > 0),
		password_hash   TEXT    NOT NULL,
		salt            TEXT    NOT NULL,
		created_at      TEXT    NOT NULL DEFAULT (datetime('now')),
		last_login      TEXT,
		current_channel TEXT    NOT NULL DEFAULT 'general'
	);

	CREATE TABLE IF NOT EXISTS channels (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT    NOT NULL UNIQUE,
		description TEXT    NOT NULL DEFAULT '',
		is_private  INTEGER NOT NULL DEFAULT 0,
		owner_id    INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS messages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id   INTEGER NOT NULL DEFAULT 0,
		sender_id    INTEGER NOT NULL DEFAULT 0,
		content      TEXT    NOT NULL DEFAULT '',
		created_at   TEXT    NOT NULL DEFAULT (datetime('now')),
		is_private   INTEGER NOT NULL DEFAULT 0,
		recipient_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id);
	`
	ctx := context.Background()
	if err := sf.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := sf.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := sf.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate: %w", err)
			}
		}
		if err := sf.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (sf *ProviderFactory) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := sf.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := sf.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := sf.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (sf *ProviderFactory) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := sf.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (sf *ProviderFactory) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := sf.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

func isSQLiteUniqueErr(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

// ---- Users ----

// CreateUser creates a new user and returns it with the assigned ID.
// Returns ErrUsernameTaken when the username is already registered.
func (s *baseProvider) CreateUser(username, passwordHash, salt string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	res, err := s.ExecContext(context.Background(),
		"INSERT INTO users (username, password_hash, salt, current_channel) VALUES (?, ?, ?, ?)",
		username, passwordHash, salt, model.DefaultChannelName)
	if isSQLiteUniqueErr(err, "users.username") {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return &model.User{
		ID:             id,
		Username:       username,
		PasswordHash:   passwordHash,
		Salt:           salt,
		CreatedAt:      time.Now().UTC(),
		CurrentChannel: model.DefaultChannelName,
	}, nil
}

// GetUserByUsername retrieves a user by username.
func (s *baseProvider) GetUserByUsername(username string) (*model.User, error) {
	u := &model.User{}
	var createdAt string
	var lastLogin *string
	err := s.QueryRowContext(context.Background(),
		"SELECT id, username, password_hash, salt, created_at, last_login, current_channel FROM users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &createdAt, &lastLogin, &u.CurrentChannel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	u.CreatedAt = parsed
	if lastLogin != nil {
		parsed, err := parseDBTime(*lastLogin)
		if err != nil {
			return nil, fmt.Errorf("datastore: get user: %w", err)
		}
		u.LastLogin = parsed
	}
	return u, nil
}

// UpdateLastLogin stamps the user's last successful login.
func (s *baseProvider) UpdateLastLogin(userID int64) error {
	_, err := s.ExecContext(context.Background(),
		"UPDATE users SET last_login = datetime('now') WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("datastore: update last login: %w", err)
	}
	return nil
}

// UpdateUserChannel stores the user's current default channel.
func (s *baseProvider) UpdateUserChannel(userID int64, channel string) error {
	_, err := s.ExecContext(context.Background(),
		"UPDATE users SET current_channel = ? WHERE id = ?", channel, userID)
	if err != nil {
		return fmt.Errorf("datastore: update user channel: %w", err)
	}
	return nil
}

// ---- Channels ----

// CreateChannel creates a new channel.
func (s *baseProvider) CreateChannel(channel *model.Channel) error {
	if err := channel.Validate(); err != nil {
		return err
	}

	isPrivateInt := 0
	if channel.IsPrivate {
		isPrivateInt = 1
	}
	res, err := s.ExecContext(
		context.Background(),
		"INSERT INTO channels (name, description, is_private, owner_id) VALUES (?, ?, ?, ?)",
		channel.Name,
		channel.Description,
		isPrivateInt,
		channel.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("datastore: create channel: %w", err)
	}
	channel.ID, _ = res.LastInsertId()
	channel.CreatedAt = time.Now().UTC()

	return nil
}

// DeleteChannel deletes a channel owned by requesterID. System channels
// always refuse deletion.
func (s *baseProvider) DeleteChannel(id, requesterID int64) (bool, error) {
	var name string
	err := s.QueryRowContext(context.Background(),
		"SELECT name FROM channels WHERE id = ?", id).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("datastore: delete channel: %w", err)
	}
	if model.IsSystemChannel(name) {
		return false, nil
	}

	res, err := s.ExecContext(context.Background(),
		"DELETE FROM channels WHERE id = ? AND owner_id = ?", id, requesterID)
	if err != nil {
		return false, fmt.Errorf("datastore: delete channel: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetChannelByName retrieves a channel by name.
func (s *baseProvider) GetChannelByName(name string) (*model.Channel, error) {
	ch := &model.Channel{}
	var createdAt string
	var isPrivateInt int
	err := s.QueryRowContext(context.Background(),
		"SELECT id, name, description, is_private, owner_id, created_at FROM channels WHERE name = ?", name).
		Scan(&ch.ID, &ch.Name, &ch.Description, &isPrivateInt, &ch.OwnerID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get channel by name: %w", err)
	}
	ch.IsPrivate = isPrivateInt != 0
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("datastore: get channel by name: %w", err)
	}
	ch.CreatedAt = parsed
	return ch, nil
}

// ListPublicChannels returns all public channels, newest first.
func (s *baseProvider) ListPublicChannels() ([]model.Channel, error) {
	rows, err := s.QueryContext(context.Background(),
		"SELECT id, name, description, is_private, owner_id, created_at FROM channels WHERE is_private = 0 ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("datastore: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		var ch model.Channel
		var createdAt string
		var isPrivateInt int
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &isPrivateInt, &ch.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan channel: %w", err)
		}
		ch.IsPrivate = isPrivateInt != 0
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan channel: %w", err)
		}
		ch.CreatedAt = parsed
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// ---- Messages ----

// CreateMessage sanitizes, validates, and stores a message.
func (s *baseProvider) CreateMessage(message *model.Message) error {
	message.Content = crypto.SanitizeInput(message.Content)
	if err := message.Validate(); err != nil {
		return fmt.Errorf("datastore: message failed validation: %w", err)
	}

	isPrivateInt := 0
	if message.IsPrivate {
		isPrivateInt = 1
	}
	res, err := s.ExecContext(
		context.Background(),
		"INSERT INTO messages (channel_id, sender_id, content, is_private, recipient_id) VALUES (?, ?, ?, ?, ?)",
		message.ChannelID, message.SenderID, message.Content, isPrivateInt, message.RecipientID)
	if err != nil {
		return fmt.Errorf("datastore: create message: %w", err)
	}
	message.ID, _ = res.LastInsertId()
	message.CreatedAt = time.Now().UTC()

	return nil
}

// GetChannelMessages returns up to limit public messages for a channel,
// newest first.
func (s *baseProvider) GetChannelMessages(channelID int64, limit int) ([]model.Message, error) {
	rows, err := s.QueryContext(context.Background(), `
		SELECT id, channel_id, sender_id, content, created_at, is_private, recipient_id
		FROM messages
		WHERE channel_id = ? AND is_private = 0
		ORDER BY id DESC
		LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("datastore: channel messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// GetPrivateMessages returns up to limit private messages between two users,
// in either direction, newest first.
func (s *baseProvider) GetPrivateMessages(userA, userB int64, limit int) ([]model.Message, error) {
	rows, err := s.QueryContext(context.Background(), `
		SELECT id, channel_id, sender_id, content, created_at, is_private, recipient_id
		FROM messages
		WHERE is_private = 1
		AND ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))
		ORDER BY id DESC
		LIMIT ?`, userA, userB, userB, userA, limit)
	if err != nil {
		return nil, fmt.Errorf("datastore: private messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var createdAt string
		var isPrivateInt int
		var recipient sql.NullInt64
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Content, &createdAt, &isPrivateInt, &recipient); err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		m.IsPrivate = isPrivateInt != 0
		if recipient.Valid {
			id := recipient.Int64
			m.RecipientID = &id
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		m.CreatedAt = parsed
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
