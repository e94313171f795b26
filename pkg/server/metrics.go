package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Datagram counters
	PacketsIn      atomic.Int64 // total datagrams received
	PacketsDropped atomic.Int64 // malformed, unknown command, or rejected datagrams
	SendErrors     atomic.Int64 // failed outbound sends

	// Auth counters
	AuthSuccess   atomic.Int64 // successful logins
	AuthFailed    atomic.Int64 // failed login attempts
	Registrations atomic.Int64 // accounts created during this run

	// Relay counters
	MessagesRelayed atomic.Int64 // channel messages relayed
	PrivateMessages atomic.Int64 // private messages delivered
	ChannelJoins    atomic.Int64 // completed channel switches
	Evictions       atomic.Int64 // sessions evicted by the heartbeat monitor
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	PacketsIn      int64 `json:"packets_in"`
	PacketsDropped int64 `json:"packets_dropped"`
	SendErrors     int64 `json:"send_errors"`

	AuthSuccess   int64 `json:"auth_success"`
	AuthFailed    int64 `json:"auth_failed"`
	Registrations int64 `json:"registrations"`

	MessagesRelayed int64 `json:"messages_relayed"`
	PrivateMessages int64 `json:"private_messages"`
	ChannelJoins    int64 `json:"channel_joins"`
	Evictions       int64 `json:"evictions"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:          uptime.Truncate(time.Second).String(),
		UptimeSeconds:   int64(uptime.Seconds()),
		PacketsIn:       m.PacketsIn.Load(),
		PacketsDropped:  m.PacketsDropped.Load(),
		SendErrors:      m.SendErrors.Load(),
		AuthSuccess:     m.AuthSuccess.Load(),
		AuthFailed:      m.AuthFailed.Load(),
		Registrations:   m.Registrations.Load(),
		MessagesRelayed: m.MessagesRelayed.Load(),
		PrivateMessages: m.PrivateMessages.Load(),
		ChannelJoins:    m.ChannelJoins.Load(),
		Evictions:       m.Evictions.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"packets_in", s.PacketsIn,
		"packets_dropped", s.PacketsDropped,
		"msgs", s.MessagesRelayed,
		"private_msgs", s.PrivateMessages,
		"evictions", s.Evictions,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
