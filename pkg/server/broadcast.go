package server

import (
	"log/slog"
	"net"
	"time"

	"github.com/NicolasHaas/chatrelay/pkg/crypto"
	"github.com/NicolasHaas/chatrelay/pkg/model"
	"github.com/NicolasHaas/chatrelay/pkg/protocol"
)

// handleMessage relays a chat message. With a recipient it goes
// point-to-point, otherwise it fans out to the sender's channel. The message
// is persisted either way, before delivery, so history never depends on
// delivery success.
func (s *Server) handleMessage(cmd protocol.Command, addr *net.UDPAddr) {
	sess, ok := s.registry.Lookup(cmd.Username)
	if !ok {
		s.metrics.PacketsDropped.Add(1)
		slog.Debug("message from unknown session", "username", cmd.Username, "remote", addr)
		return
	}
	// Reject datagrams claiming an active username from a different source.
	if !sess.Addr.IP.Equal(addr.IP) || sess.Addr.Port != addr.Port {
		s.metrics.PacketsDropped.Add(1)
		slog.Warn("message source mismatch", "username", cmd.Username, "remote", addr)
		return
	}
	if cmd.Content == "" {
		s.metrics.PacketsDropped.Add(1)
		return
	}

	if cmd.Recipient != "" {
		s.persistPrivate(cmd.Username, cmd.Recipient, cmd.Content)
		if s.sendPrivate(sess, cmd.Recipient, cmd.Content) {
			s.metrics.PrivateMessages.Add(1)
		}
		return
	}

	channel := cmd.Channel
	if channel == "" {
		channel = sess.Channel
	}
	if channel == "" {
		channel = s.cfg.DefaultChannel
	}

	ch, err := s.store.NonTx().GetChannelByName(channel)
	if err != nil {
		slog.Error("message channel lookup failed", "channel", channel, "err", err)
		return
	}
	if ch == nil {
		s.metrics.PacketsDropped.Add(1)
		slog.Error("message to nonexistent channel", "username", cmd.Username, "channel", channel)
		return
	}

	s.persistPublic(cmd.Username, ch, cmd.Content)
	s.broadcast(cmd.Username, cmd.Content, ch.Name, cmd.Username)
	s.metrics.MessagesRelayed.Add(1)
}

// broadcast fans a message out to every session currently in the channel,
// except excludeUsername. The payload is encoded once; per-recipient send
// failures are logged and never abort the remaining fan-out.
func (s *Server) broadcast(sender, content, channel, excludeUsername string) {
	payload, err := protocol.EncodeChatMessage(sender, crypto.SanitizeInput(content), channel, false, time.Now())
	if err != nil {
		slog.Error("encode broadcast failed", "channel", channel, "err", err)
		return
	}

	for _, sess := range s.registry.Snapshot() {
		if sess.Channel != channel || sess.Username == excludeUsername {
			continue
		}
		s.send(payload, sess.Addr)
	}
}

// sendPrivate delivers a message to the recipient's session and echoes the
// same datagram back to the sender as confirmation. Reports whether the
// recipient was online; an offline recipient means the datagram is silently
// dropped.
func (s *Server) sendPrivate(sender model.Session, recipient, content string) bool {
	target, ok := s.registry.Lookup(recipient)
	if !ok {
		slog.Debug("private message to offline user", "sender", sender.Username, "recipient", recipient)
		return false
	}

	payload, err := protocol.EncodeChatMessage(sender.Username, crypto.SanitizeInput(content), sender.Channel, true, time.Now())
	if err != nil {
		slog.Error("encode private message failed", "err", err)
		return false
	}

	s.send(payload, target.Addr)
	s.send(payload, sender.Addr)
	return true
}

// persistPublic stores a channel message. Failures are logged; the relay
// carries on without the history entry.
func (s *Server) persistPublic(sender string, ch *model.Channel, content string) {
	st := s.store.NonTx()

	user, err := st.GetUserByUsername(sender)
	if err != nil || user == nil {
		slog.Error("persist message: sender lookup failed", "username", sender, "err", err)
		return
	}

	msg := &model.Message{ChannelID: ch.ID, SenderID: user.ID, Content: content}
	if err := st.CreateMessage(msg); err != nil {
		slog.Error("persist message failed", "username", sender, "channel", ch.Name, "err", err)
	}
}

// persistPrivate stores a private message with its recipient id, regardless
// of whether live delivery succeeds.
func (s *Server) persistPrivate(sender, recipient, content string) {
	st := s.store.NonTx()

	from, err := st.GetUserByUsername(sender)
	if err != nil || from == nil {
		slog.Error("persist private: sender lookup failed", "username", sender, "err", err)
		return
	}
	to, err := st.GetUserByUsername(recipient)
	if err != nil || to == nil {
		slog.Error("persist private: recipient lookup failed", "username", recipient, "err", err)
		return
	}

	msg := &model.Message{
		SenderID:    from.ID,
		Content:     content,
		IsPrivate:   true,
		RecipientID: &to.ID,
	}
	if err := st.CreateMessage(msg); err != nil {
		slog.Error("persist private message failed", "username", sender, "err", err)
	}
}
