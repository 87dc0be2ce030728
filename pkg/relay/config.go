// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSizeLimit is the single-file ceiling of the standard clients.
	DefaultSizeLimit int64 = 2 << 30
	// DefaultPartSize stays below DefaultSizeLimit so every part fits.
	DefaultPartSize int64 = 2040109465

	DefaultRenamePrefix = "relay"
	DefaultWorkDir      = "downloads"
	DefaultProgressStep = 3
)

// Config holds the relay pipeline configuration.
type Config struct {
	// MirrorChatID is the archival chat that receives a copy of every
	// delivered item. Zero disables mirroring.
	MirrorChatID int64 `yaml:"mirror_chat_id"`
	SizeLimit    int64 `yaml:"size_limit"`
	PartSize     int64 `yaml:"part_size"`
	// RenamePrefix is the fixed prefix of downloaded artifact names.
	RenamePrefix        string `yaml:"rename_prefix"`
	WorkDir             string `yaml:"work_dir"`
	ThumbnailDir        string `yaml:"thumbnail_dir"`
	DefaultThumbnailURL string `yaml:"default_thumbnail_url"`
	// ProgressStep is the minimum percent delta between two progress edits.
	ProgressStep int    `yaml:"progress_step"`
	UpsellURL    string `yaml:"upsell_url"`
	// DirectFallback makes a failed direct forward fall through to the
	// download path instead of failing the request.
	DirectFallback bool `yaml:"direct_fallback"`
	// FFProbePath overrides the ffprobe binary used for video metadata.
	FFProbePath string `yaml:"ffprobe_path"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills defaults and validates sizes.
func (c *Config) PostProcess() error {
	if c.SizeLimit <= 0 {
		c.SizeLimit = DefaultSizeLimit
	}
	if c.PartSize <= 0 {
		c.PartSize = DefaultPartSize
	}
	if c.PartSize >= c.SizeLimit {
		return fmt.Errorf("part_size (%d) must be smaller than size_limit (%d)", c.PartSize, c.SizeLimit)
	}
	if c.RenamePrefix == "" {
		c.RenamePrefix = DefaultRenamePrefix
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.ProgressStep <= 0 {
		c.ProgressStep = DefaultProgressStep
	}
	return nil
}
