package server

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/chatrelay/pkg/datastore"
	"github.com/NicolasHaas/chatrelay/pkg/model"
)

// ChannelYAML represents a channel in YAML config.
type ChannelYAML struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	IsPrivate   bool   `yaml:"is_private,omitempty"`
}

// ChannelsConfig is the top-level YAML config for channels.
type ChannelsConfig struct {
	Channels []ChannelYAML `yaml:"channels"`
}

// LoadChannelsFromYAML reads a channels YAML file and creates any channels
// that do not exist yet.
func LoadChannelsFromYAML(path string, st datastore.DataProviderFactory) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read channels config: %w", err)
	}
	return ImportChannelsFromYAML(data, st)
}

// ImportChannelsFromYAML parses YAML data and creates missing channels.
// Existing channels are left untouched.
func ImportChannelsFromYAML(data []byte, st datastore.DataProviderFactory) error {
	var cfg ChannelsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse channels config: %w", err)
	}

	for _, ch := range cfg.Channels {
		if err := ensureChannel(st.NonTx(), ch); err != nil {
			slog.Error("failed to create channel from config", "name", ch.Name, "err", err)
		}
	}

	slog.Info("imported channels from YAML", "count", len(cfg.Channels))
	return nil
}

func ensureChannel(st datastore.DataStore, ch ChannelYAML) error {
	existing, err := st.GetChannelByName(ch.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if err := st.CreateChannel(&model.Channel{
		Name:        ch.Name,
		Description: ch.Description,
		IsPrivate:   ch.IsPrivate,
	}); err != nil {
		return err
	}
	slog.Debug("created channel from config", "name", ch.Name)
	return nil
}

// ExportChannelsYAML exports all public channels as YAML.
func ExportChannelsYAML(st datastore.DataProviderFactory) ([]byte, error) {
	channels, err := st.NonTx().ListPublicChannels()
	if err != nil {
		return nil, err
	}

	cfg := ChannelsConfig{}
	for _, ch := range channels {
		cfg.Channels = append(cfg.Channels, ChannelYAML{
			Name:        ch.Name,
			Description: ch.Description,
			IsPrivate:   ch.IsPrivate,
		})
	}
	return yaml.Marshal(&cfg)
}
