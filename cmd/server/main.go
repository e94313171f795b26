package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/NicolasHaas/chatrelay/pkg/datastore"
	"github.com/NicolasHaas/chatrelay/pkg/logging"
	"github.com/NicolasHaas/chatrelay/pkg/server"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "UDP bind address")
	flag.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "Receive buffer size in bytes")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "Stale-session sweep interval")
	flag.DurationVar(&cfg.HeartbeatTimeout, "heartbeat-timeout", cfg.HeartbeatTimeout, "Silence after which a session is evicted")
	flag.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "Messages per history response")
	flag.StringVar(&cfg.ChannelsFile, "channels-file", "", "YAML file defining channels to create on startup")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.BoolVar(&cfg.ExportChannels, "export-channels", false, "Export all public channels as YAML and exit")

	dbPath := flag.String("db", "chatrelay.db", "SQLite database file path")
	pgDSN := flag.String("pg", "", "PostgreSQL DSN (overrides -db when set)")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	st, err := openStore(*dbPath, *pgDSN)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	// Handle export command (run and exit)
	if cfg.ExportChannels {
		defer func() { _ = st.NonTx().Close() }()
		data, err := server.ExportChannelsYAML(st)
		if err != nil {
			slog.Error("export channels", "err", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}

	srv := server.New(cfg, server.Dependencies{Store: st})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// openStore picks the storage backend: PostgreSQL when a DSN is given,
// SQLite otherwise.
func openStore(dbPath, pgDSN string) (datastore.DataProviderFactory, error) {
	if pgDSN != "" {
		return datastore.NewPostgresFactory(context.Background(), pgDSN, slog.Default())
	}
	return datastore.NewProviderFactory(dbPath)
}
