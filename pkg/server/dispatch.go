package server

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/NicolasHaas/chatrelay/pkg/protocol"
)

// Start binds the UDP socket and starts the receive loop.
func (s *Server) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: resolve addr: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.conn = conn

	// Increase UDP buffer size for better performance
	if err := conn.SetReadBuffer(1024 * 1024); err != nil {
		slog.Warn("failed to set UDP read buffer", "err", err)
	}
	if err := conn.SetWriteBuffer(1024 * 1024); err != nil {
		slog.Warn("failed to set UDP write buffer", "err", err)
	}

	slog.Info("relay listening", "addr", conn.LocalAddr())

	go s.recvLoop()
	return nil
}

// recvLoop is the single consumer of the inbound socket. Datagrams are
// handled one at a time, synchronously, in receipt order; a slow persistence
// call blocks all other clients' traffic until it returns.
func (s *Server) recvLoop() {
	buf := make([]byte, s.cfg.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				slog.Error("read error", "err", err)
				continue
			}
		}

		s.metrics.PacketsIn.Add(1)
		s.dispatch(buf[:n], remoteAddr)
	}
}

// dispatch decodes one datagram and routes it to its handler. A panic in a
// handler is caught here so a single bad datagram never kills the loop.
func (s *Server) dispatch(data []byte, addr *net.UDPAddr) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.PacketsDropped.Add(1)
			slog.Error("panic in command handler", "remote", addr, "panic", r)
		}
	}()

	cmd, err := protocol.ParseCommand(&s.parser, data)
	if err != nil {
		s.metrics.PacketsDropped.Add(1)
		slog.Debug("malformed datagram", "remote", addr, "err", err)
		return
	}

	switch cmd.Name {
	case protocol.CmdAuth:
		s.handleAuth(cmd, addr)
	case protocol.CmdRegister:
		s.handleRegister(cmd, addr)
	case protocol.CmdMessage:
		s.handleMessage(cmd, addr)
	case protocol.CmdHeartbeat:
		s.handleHeartbeat(cmd)
	case protocol.CmdJoinChannel:
		s.handleJoinChannel(cmd, addr)
	default:
		s.metrics.PacketsDropped.Add(1)
		slog.Warn("unknown command", "command", cmd.Name, "remote", addr)
	}
}

func (s *Server) handleHeartbeat(cmd protocol.Command) {
	if !s.registry.Heartbeat(cmd.Username, time.Now()) {
		slog.Debug("heartbeat for unknown session", "username", cmd.Username)
	}
}

// send writes one datagram to a client address. Fire-and-forget: a failed
// send is logged and counted, never propagated.
func (s *Server) send(payload []byte, addr *net.UDPAddr) {
	if _, err := s.conn.WriteToUDP(payload, addr); err != nil {
		s.metrics.SendErrors.Add(1)
		slog.Debug("send error", "remote", addr, "err", err)
	}
}
