package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/chatrelay/pkg/datastore"
	"github.com/NicolasHaas/chatrelay/pkg/model"
)

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}
	st := s.store
	defer func() { _ = st.NonTx().Close() }()

	if err := s.ensureSystemChannels(st); err != nil {
		return err
	}

	// Load channels from YAML config if provided
	if s.cfg.ChannelsFile != "" {
		if err := LoadChannelsFromYAML(s.cfg.ChannelsFile, st); err != nil {
			slog.Error("failed to load channels config", "err", err)
		}
	}

	if err := s.Start(); err != nil {
		return err
	}
	s.startHeartbeatMonitor()

	slog.Info("chat relay running",
		"addr", s.cfg.Addr,
		"heartbeat_interval", s.cfg.HeartbeatInterval,
		"heartbeat_timeout", s.cfg.HeartbeatTimeout,
	)

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	s.cancel()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// ensureSystemChannels creates the built-in channels on first run. They can
// never be deleted, so this is a no-op on every later start.
func (s *Server) ensureSystemChannels(st datastore.DataProviderFactory) error {
	for _, name := range model.SystemChannels {
		existing, err := st.NonTx().GetChannelByName(name)
		if err != nil {
			return fmt.Errorf("server: check system channel %q: %w", name, err)
		}
		if existing != nil {
			continue
		}
		if err := st.NonTx().CreateChannel(model.NewSystemChannel(name)); err != nil {
			return fmt.Errorf("server: create system channel %q: %w", name, err)
		}
		slog.Info("created system channel", "name", name)
	}
	return nil
}
