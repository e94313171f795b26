// Package server implements the chat relay server.
package server

import (
	"context"
	"net"
	"time"

	"github.com/valyala/fastjson"

	"github.com/NicolasHaas/chatrelay/pkg/datastore"
	"github.com/NicolasHaas/chatrelay/pkg/model"
)

// Config holds server configuration.
type Config struct {
	Addr              string        // UDP bind address (e.g. ":12345")
	BufferSize        int           // receive buffer size; must fit the largest response
	HeartbeatInterval time.Duration // how often the monitor scans for stale sessions
	HeartbeatTimeout  time.Duration // silence after which a session is evicted
	HistoryLimit      int           // messages per history response
	DefaultChannel    string        // channel assigned on login
	ChannelsFile      string        // YAML file defining channels to create on startup
	MetricsAddr       string        // HTTP bind address for /metrics endpoint (empty = disabled)

	// CLI-only actions (run and exit)
	ExportChannels bool // export all public channels as YAML and exit
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store datastore.DataProviderFactory
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              ":12345",
		BufferSize:        8192,
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  30 * time.Second,
		HistoryLimit:      50,
		DefaultChannel:    model.DefaultChannelName,
		MetricsAddr:       ":12346",
	}
}

// Server is the chat relay server. A single goroutine owns the receive loop;
// the heartbeat monitor runs alongside it and shares the session registry.
type Server struct {
	cfg      Config
	registry *Registry
	metrics  *Metrics
	store    datastore.DataProviderFactory
	conn     *net.UDPConn
	parser   fastjson.Parser // owned by the dispatch loop, reused per datagram
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(),
		metrics:  NewMetrics(),
		store:    deps.Store,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
