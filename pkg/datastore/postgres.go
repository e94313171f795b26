package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/NicolasHaas/chatrelay/pkg/crypto"
	"github.com/NicolasHaas/chatrelay/pkg/datastore/slogadapter"
	"github.com/NicolasHaas/chatrelay/pkg/model"
)

// pgQuerier is the subset of pgx operations shared by the pool and an open
// transaction, so the provider methods run in either context.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type pgProvider struct {
	q pgQuerier
}

func (p *pgProvider) Close() error {
	return nil
}

type pgNonTxProvider struct {
	pgProvider
}

type pgTxProvider struct {
	pgProvider
	tx pgx.Tx
}

func (c *pgTxProvider) Rollback() error {
	return c.tx.Rollback(context.Background())
}

func (c *pgTxProvider) Commit() error {
	return c.tx.Commit(context.Background())
}

// PostgresFactory provides PostgreSQL-backed database access via a pgx
// connection pool.
type PostgresFactory struct {
	pool *pgxpool.Pool
}

var _ DataProviderFactory = (*PostgresFactory)(nil)

// NewPostgresFactory connects to PostgreSQL, wires pgx logging into slog,
// and ensures the schema exists.
func NewPostgresFactory(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresFactory, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("datastore: parse postgres dsn: %w", err)
	}
	cfg.ConnConfig.Logger = slogadapter.NewLogger(logger)

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("datastore: connect postgres: %w", err)
	}

	f := &PostgresFactory{pool: pool}
	if err := f.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return f, nil
}

func (f *PostgresFactory) NonTx() DataStore {
	return &pgNonTxProvider{pgProvider{q: f.pool}}
}

func (f *PostgresFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("datastore: begin tx: %w", err)
	}
	return &pgTxProvider{pgProvider: pgProvider{q: tx}, tx: tx}, nil
}

// Close releases the connection pool.
func (f *PostgresFactory) Close() error {
	f.pool.Close()
	return nil
}

func (f *PostgresFactory) ensureSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id              BIGSERIAL PRIMARY KEY,
		username        TEXT        NOT NULL UNIQUE CHECK(length(username) > 0),
		password_hash   TEXT        NOT NULL,
		salt            TEXT        NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login      TIMESTAMPTZ,
		current_channel TEXT        NOT NULL DEFAULT 'general'
	);

	CREATE TABLE IF NOT EXISTS channels (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT        NOT NULL UNIQUE,
		description TEXT        NOT NULL DEFAULT '',
		is_private  BOOLEAN     NOT NULL DEFAULT FALSE,
		owner_id    BIGINT      NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id           BIGSERIAL PRIMARY KEY,
		channel_id   BIGINT      NOT NULL DEFAULT 0,
		sender_id    BIGINT      NOT NULL DEFAULT 0,
		content      TEXT        NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_private   BOOLEAN     NOT NULL DEFAULT FALSE,
		recipient_id BIGINT
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id);
	`
	if _, err := f.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("datastore: ensure schema: %w", err)
	}
	return nil
}

func isPGUniqueErr(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// ---- Users ----

func (s *pgProvider) CreateUser(username, passwordHash, salt string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	u := &model.User{
		Username:       username,
		PasswordHash:   passwordHash,
		Salt:           salt,
		CurrentChannel: model.DefaultChannelName,
	}
	err := s.q.QueryRow(context.Background(),
		"INSERT INTO users (username, password_hash, salt, current_channel) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		username, passwordHash, salt, model.DefaultChannelName).
		Scan(&u.ID, &u.CreatedAt)
	if isPGUniqueErr(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	return u, nil
}

func (s *pgProvider) GetUserByUsername(username string) (*model.User, error) {
	u := &model.User{}
	var lastLogin *time.Time
	err := s.q.QueryRow(context.Background(),
		"SELECT id, username, password_hash, salt, created_at, last_login, current_channel FROM users WHERE username = $1", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &u.CreatedAt, &lastLogin, &u.CurrentChannel)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return u, nil
}

func (s *pgProvider) UpdateLastLogin(userID int64) error {
	_, err := s.q.Exec(context.Background(),
		"UPDATE users SET last_login = now() WHERE id = $1", userID)
	if err != nil {
		return fmt.Errorf("datastore: update last login: %w", err)
	}
	return nil
}

func (s *pgProvider) UpdateUserChannel(userID int64, channel string) error {
	_, err := s.q.Exec(context.Background(),
		"UPDATE users SET current_channel = $1 WHERE id = $2", channel, userID)
	if err != nil {
		return fmt.Errorf("datastore: update user channel: %w", err)
	}
	return nil
}

// ---- Channels ----

func (s *pgProvider) CreateChannel(channel *model.Channel) error {
	if err := channel.Validate(); err != nil {
		return err
	}
	err := s.q.QueryRow(context.Background(),
		"INSERT INTO channels (name, description, is_private, owner_id) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		channel.Name, channel.Description, channel.IsPrivate, channel.OwnerID).
		Scan(&channel.ID, &channel.CreatedAt)
	if err != nil {
		return fmt.Errorf("datastore: create channel: %w", err)
	}
	return nil
}

func (s *pgProvider) DeleteChannel(id, requesterID int64) (bool, error) {
	var name string
	err := s.q.QueryRow(context.Background(),
		"SELECT name FROM channels WHERE id = $1", id).Scan(&name)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("datastore: delete channel: %w", err)
	}
	if model.IsSystemChannel(name) {
		return false, nil
	}

	tag, err := s.q.Exec(context.Background(),
		"DELETE FROM channels WHERE id = $1 AND owner_id = $2", id, requesterID)
	if err != nil {
		return false, fmt.Errorf("datastore: delete channel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgProvider) GetChannelByName(name string) (*model.Channel, error) {
	ch := &model.Channel{}
	err := s.q.QueryRow(context.Background(),
		"SELECT id, name, description, is_private, owner_id, created_at FROM channels WHERE name = $1", name).
		Scan(&ch.ID, &ch.Name, &ch.Description, &ch.IsPrivate, &ch.OwnerID, &ch.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get channel by name: %w", err)
	}
	return ch, nil
}

func (s *pgProvider) ListPublicChannels() ([]model.Channel, error) {
	rows, err := s.q.Query(context.Background(),
		"SELECT id, name, description, is_private, owner_id, created_at FROM channels WHERE NOT is_private ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("datastore: list channels: %w", err)
	}
	defer rows.Close()

	var channels []model.Channel
	for rows.Next() {
		var ch model.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.IsPrivate, &ch.OwnerID, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("datastore: scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// ---- Messages ----

func (s *pgProvider) CreateMessage(message *model.Message) error {
	message.Content = crypto.SanitizeInput(message.Content)
	if err := message.Validate(); err != nil {
		return fmt.Errorf("datastore: message failed validation: %w", err)
	}
	err := s.q.QueryRow(context.Background(),
		"INSERT INTO messages (channel_id, sender_id, content, is_private, recipient_id) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at",
		message.ChannelID, message.SenderID, message.Content, message.IsPrivate, message.RecipientID).
		Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return fmt.Errorf("datastore: create message: %w", err)
	}
	return nil
}

func (s *pgProvider) GetChannelMessages(channelID int64, limit int) ([]model.Message, error) {
	rows, err := s.q.Query(context.Background(), `
		SELECT id, channel_id, sender_id, content, created_at, is_private, recipient_id
		FROM messages
		WHERE channel_id = $1 AND NOT is_private
		ORDER BY id DESC
		LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("datastore: channel messages: %w", err)
	}
	defer rows.Close()
	return scanPGMessages(rows)
}

func (s *pgProvider) GetPrivateMessages(userA, userB int64, limit int) ([]model.Message, error) {
	rows, err := s.q.Query(context.Background(), `
		SELECT id, channel_id, sender_id, content, created_at, is_private, recipient_id
		FROM messages
		WHERE is_private
		AND ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
		ORDER BY id DESC
		LIMIT $3`, userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("datastore: private messages: %w", err)
	}
	defer rows.Close()
	return scanPGMessages(rows)
}

func scanPGMessages(rows pgx.Rows) ([]model.Message, error) {
	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Content, &m.CreatedAt, &m.IsPrivate, &m.RecipientID); err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
