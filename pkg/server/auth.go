package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/NicolasHaas/chatrelay/pkg/crypto"
	"github.com/NicolasHaas/chatrelay/pkg/datastore"
	"github.com/NicolasHaas/chatrelay/pkg/model"
	"github.com/NicolasHaas/chatrelay/pkg/protocol"
)

// handleAuth verifies credentials and brings the user online. On success the
// client receives two sequential datagrams, a channel list and the history of
// its channel, and the channel is notified of the arrival. Either datagram
// can be lost in transit; the client is expected to re-auth if its view is
// incomplete.
func (s *Server) handleAuth(cmd protocol.Command, addr *net.UDPAddr) {
	if err := model.ValidateUsername(cmd.Username); err != nil {
		s.metrics.AuthFailed.Add(1)
		s.send([]byte(protocol.AckInvalidUsername), addr)
		return
	}

	st := s.store.NonTx()
	user, err := st.GetUserByUsername(cmd.Username)
	if err != nil {
		slog.Error("auth lookup failed", "username", cmd.Username, "err", err)
		s.metrics.AuthFailed.Add(1)
		s.send([]byte(protocol.AckAuthFailed), addr)
		return
	}
	if user == nil || !crypto.VerifyPassword(cmd.Password, user.Salt, user.PasswordHash) {
		s.metrics.AuthFailed.Add(1)
		slog.Info("auth failed", "username", cmd.Username, "remote", addr)
		s.send([]byte(protocol.AckAuthFailed), addr)
		return
	}

	channel := user.CurrentChannel
	if channel == "" {
		channel = s.cfg.DefaultChannel
	}

	// A second login for the same username silently replaces the old
	// session; the old socket ages out via the heartbeat timeout.
	if _, active := s.registry.Lookup(user.Username); active {
		slog.Info("duplicate login, replacing session", "username", user.Username, "remote", addr)
	}
	s.registry.Register(user.Username, addr, channel)

	if err := st.UpdateLastLogin(user.ID); err != nil {
		slog.Error("update last login failed", "username", user.Username, "err", err)
	}

	channels, err := st.ListPublicChannels()
	if err != nil {
		slog.Error("list channels failed", "err", err)
	}
	if payload, err := protocol.EncodeChannelList(channels); err == nil {
		s.send(payload, addr)
	}

	if err := s.sendHistory(channel, addr); err != nil {
		slog.Error("send history failed", "channel", channel, "err", err)
	}

	s.broadcast(protocol.SystemSender, fmt.Sprintf("%s joined %s", user.Username, channel), channel, user.Username)

	s.metrics.AuthSuccess.Add(1)
	slog.Info("user authenticated", "username", user.Username, "channel", channel, "remote", addr)
}

// sendHistory sends the recent messages of a channel, newest first. A
// channel with no record yields an empty history rather than an error.
func (s *Server) sendHistory(channelName string, addr *net.UDPAddr) error {
	st := s.store.NonTx()

	var messages []model.Message
	ch, err := st.GetChannelByName(channelName)
	if err != nil {
		return err
	}
	if ch != nil {
		messages, err = st.GetChannelMessages(ch.ID, s.cfg.HistoryLimit)
		if err != nil {
			return err
		}
	}

	payload, err := protocol.EncodeHistory(messages)
	if err != nil {
		return err
	}
	s.send(payload, addr)
	return nil
}

// handleRegister creates a user account and answers with a plain-byte ack.
func (s *Server) handleRegister(cmd protocol.Command, addr *net.UDPAddr) {
	ack := s.registerUser(cmd.Username, cmd.Password)
	s.send([]byte(ack), addr)
}

// registerUser runs the registration flow in a transaction so the
// exists-check and the insert act on the same view.
func (s *Server) registerUser(username, password string) string {
	if err := model.ValidateUsername(username); err != nil {
		slog.Debug("registration rejected", "username", username, "err", err)
		return protocol.AckInvalidUsername
	}
	if err := crypto.ValidatePassword(password); err != nil {
		slog.Debug("registration rejected", "username", username, "err", err)
		return protocol.AckWeakPassword
	}

	tx, err := s.store.Tx(context.Background())
	if err != nil {
		slog.Error("registration tx failed", "err", err)
		return protocol.AckRegisterFailed
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := tx.GetUserByUsername(username)
	if err != nil {
		slog.Error("registration lookup failed", "username", username, "err", err)
		return protocol.AckRegisterFailed
	}
	if existing != nil {
		return protocol.AckUsernameExists
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		slog.Error("registration salt failed", "err", err)
		return protocol.AckRegisterFailed
	}

	if _, err := tx.CreateUser(username, crypto.HashPassword(password, salt), salt); err != nil {
		if errors.Is(err, datastore.ErrUsernameTaken) {
			return protocol.AckUsernameExists
		}
		slog.Error("registration insert failed", "username", username, "err", err)
		return protocol.AckRegisterFailed
	}

	if err := tx.Commit(); err != nil {
		slog.Error("registration commit failed", "username", username, "err", err)
		return protocol.AckRegisterFailed
	}

	s.metrics.Registrations.Add(1)
	slog.Info("user registered", "username", username)
	return protocol.AckRegisterSuccess
}
