package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :12346 by default, configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("chatrelay_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("chatrelay_sessions_active", "Current active sessions.", "gauge",
		int64(s.registry.Count()))

	write("chatrelay_packets_in_total", "Total datagrams received.", "counter",
		m.PacketsIn.Load())
	write("chatrelay_packets_dropped_total", "Malformed or rejected datagrams.", "counter",
		m.PacketsDropped.Load())
	write("chatrelay_send_errors_total", "Failed outbound sends.", "counter",
		m.SendErrors.Load())

	write("chatrelay_auth_success_total", "Successful logins.", "counter",
		m.AuthSuccess.Load())
	write("chatrelay_auth_failed_total", "Failed login attempts.", "counter",
		m.AuthFailed.Load())
	write("chatrelay_registrations_total", "Accounts created.", "counter",
		m.Registrations.Load())

	write("chatrelay_messages_total", "Channel messages relayed.", "counter",
		m.MessagesRelayed.Load())
	write("chatrelay_private_messages_total", "Private messages delivered.", "counter",
		m.PrivateMessages.Load())
	write("chatrelay_channel_joins_total", "Completed channel switches.", "counter",
		m.ChannelJoins.Load())
	write("chatrelay_evictions_total", "Sessions evicted by the heartbeat monitor.", "counter",
		m.Evictions.Load())
}
