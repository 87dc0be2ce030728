// Copyright 2024-2026 Aiku AI

// Package config loads the relaybot configuration file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/relaybot/pkg/relay"
)

//go:embed example-config.yaml
var ExampleConfig string

type StoreConfig struct {
	// Path is the badger data directory. Empty means in-memory.
	Path string `yaml:"path"`
}

// OpsConfig configures where relay errors are reported.
type OpsConfig struct {
	MattermostURL       string `yaml:"mattermost_url"`
	MattermostToken     string `yaml:"mattermost_token"`
	MattermostChannelID string `yaml:"mattermost_channel_id"`
}

// Enabled reports whether a Mattermost ops channel is configured.
func (o OpsConfig) Enabled() bool {
	return o.MattermostURL != "" && o.MattermostToken != "" && o.MattermostChannelID != ""
}

// Config is the root of the configuration file.
type Config struct {
	Relay        relay.Config      `yaml:"relay"`
	Store        StoreConfig       `yaml:"store"`
	Ops          OpsConfig         `yaml:"ops"`
	AdminAPIAddr string            `yaml:"admin_api_addr"`
	Logging      zeroconfig.Config `yaml:"logging"`
}

func (c *Config) PostProcess() error {
	if c.AdminAPIAddr == "" {
		c.AdminAPIAddr = "127.0.0.1:29330"
	}
	if err := c.Relay.PostProcess(); err != nil {
		return fmt.Errorf("invalid relay config: %w", err)
	}
	return nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Int, "relay", "mirror_chat_id")
	helper.Copy(up.Int, "relay", "size_limit")
	helper.Copy(up.Int, "relay", "part_size")
	helper.Copy(up.Str, "relay", "rename_prefix")
	helper.Copy(up.Str, "relay", "work_dir")
	helper.Copy(up.Str, "relay", "thumbnail_dir")
	helper.Copy(up.Str|up.Null, "relay", "default_thumbnail_url")
	helper.Copy(up.Int, "relay", "progress_step")
	helper.Copy(up.Str|up.Null, "relay", "upsell_url")
	helper.Copy(up.Bool, "relay", "direct_fallback")
	helper.Copy(up.Str, "relay", "ffprobe_path")

	helper.Copy(up.Str|up.Null, "store", "path")

	helper.Copy(up.Str|up.Null, "ops", "mattermost_url")
	helper.Copy(up.Str|up.Null, "ops", "mattermost_token")
	helper.Copy(up.Str|up.Null, "ops", "mattermost_channel_id")

	helper.Copy(up.Str, "admin_api_addr")
	helper.Copy(up.Map, "logging")
}

// Upgrader merges an existing file onto the current example config.
var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Base:           ExampleConfig,
}

// Load reads the config at path, writing the example config first when the
// file does not exist. With save set, the upgraded config is written back.
func Load(path string, save bool) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err = os.WriteFile(path, []byte(ExampleConfig), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write example config: %w", err)
		}
	}
	data, _, err := up.Do(path, save, Upgrader)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and post-processes raw YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
