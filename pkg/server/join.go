package server

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/NicolasHaas/chatrelay/pkg/protocol"
)

// handleJoinChannel moves a session to another channel. The target must
// exist and the requester must be online; anything else is logged and leaves
// the session unchanged.
//
// Order of effects: in-memory channel pointer, persisted default channel,
// leave notice on the old channel, join notice on the new one, history, then
// the channel_joined confirmation. If the history send fails the in-memory
// pointer is rolled back; the persisted default channel is not, so the next
// login lands in the new channel. Known inconsistency window.
func (s *Server) handleJoinChannel(cmd protocol.Command, addr *net.UDPAddr) {
	sess, ok := s.registry.Lookup(cmd.Username)
	if !ok {
		slog.Error("join_channel from unknown session", "username", cmd.Username, "remote", addr)
		return
	}

	st := s.store.NonTx()
	ch, err := st.GetChannelByName(cmd.Channel)
	if err != nil {
		slog.Error("join_channel lookup failed", "channel", cmd.Channel, "err", err)
		return
	}
	if ch == nil {
		slog.Error("join_channel to nonexistent channel", "username", cmd.Username, "channel", cmd.Channel)
		return
	}

	oldChannel := sess.Channel
	if !s.registry.UpdateChannel(cmd.Username, ch.Name) {
		return // session evicted between lookup and update
	}

	user, err := st.GetUserByUsername(cmd.Username)
	if err != nil || user == nil {
		slog.Error("join_channel user lookup failed", "username", cmd.Username, "err", err)
		s.registry.UpdateChannel(cmd.Username, oldChannel)
		return
	}
	if err := st.UpdateUserChannel(user.ID, ch.Name); err != nil {
		slog.Error("join_channel persist failed", "username", cmd.Username, "err", err)
		s.registry.UpdateChannel(cmd.Username, oldChannel)
		return
	}

	s.broadcast(protocol.SystemSender, fmt.Sprintf("%s left %s", cmd.Username, oldChannel), oldChannel, cmd.Username)
	s.broadcast(protocol.SystemSender, fmt.Sprintf("%s joined %s", cmd.Username, ch.Name), ch.Name, cmd.Username)

	if err := s.sendHistory(ch.Name, addr); err != nil {
		slog.Error("join_channel history failed", "channel", ch.Name, "err", err)
		s.registry.UpdateChannel(cmd.Username, oldChannel)
		return
	}

	if payload, err := protocol.EncodeChannelJoined(*ch); err == nil {
		s.send(payload, addr)
	}

	s.metrics.ChannelJoins.Add(1)
	slog.Info("channel joined", "username", cmd.Username, "channel", ch.Name)
}
