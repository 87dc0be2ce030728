// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// VideoProber extracts video metadata from a local file.
type VideoProber interface {
	Probe(ctx context.Context, path string) (*VideoMeta, error)
}

// FFProbe runs the ffprobe binary.
type FFProbe struct {
	Binary string
}

var _ VideoProber = FFProbe{}

func (p FFProbe) Probe(ctx context.Context, path string) (*VideoMeta, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run ffprobe: %w", err)
	}
	return parseProbeOutput(out)
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(data []byte) (*VideoMeta, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	meta := &VideoMeta{}
	if len(out.Streams) > 0 {
		meta.Width = out.Streams[0].Width
		meta.Height = out.Streams[0].Height
	}
	if out.Format.Duration != "" {
		seconds, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", out.Format.Duration, err)
		}
		meta.Duration = time.Duration(seconds * float64(time.Second))
	}
	return meta, nil
}

// probe returns video metadata, or nil when it cannot be extracted.
func (e *Engine) probe(ctx context.Context, path string) *VideoMeta {
	if e.prober == nil {
		return nil
	}
	meta, err := e.prober.Probe(ctx, path)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to probe video metadata")
		return nil
	}
	return meta
}
