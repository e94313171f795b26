package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/NicolasHaas/chatrelay/pkg/protocol"
)

// startHeartbeatMonitor runs the stale-session sweep until the server
// context is cancelled.
func (s *Server) startHeartbeatMonitor() {
	go func() {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.evictStale(time.Now())
			}
		}
	}()
}

// evictStale removes every session whose last heartbeat is older than the
// timeout and announces each departure on the session's last channel. One
// failed eviction never stops the sweep.
func (s *Server) evictStale(now time.Time) {
	cutoff := now.Add(-s.cfg.HeartbeatTimeout)

	for _, sess := range s.registry.Snapshot() {
		if !sess.LastHeartbeat.Before(cutoff) {
			continue
		}
		// Re-check under the lock; a heartbeat may have arrived since the
		// snapshot was taken.
		evicted, ok := s.registry.Evict(sess.Username, cutoff)
		if !ok {
			continue
		}

		s.metrics.Evictions.Add(1)
		slog.Info("session evicted", "username", evicted.Username, "channel", evicted.Channel,
			"last_heartbeat", evicted.LastHeartbeat)

		s.broadcast(protocol.SystemSender,
			fmt.Sprintf("%s disconnected (heartbeat timeout)", evicted.Username),
			evicted.Channel, evicted.Username)
	}
}
