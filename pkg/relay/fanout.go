// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// FanoutFailure records one destination that did not receive a copy.
type FanoutFailure struct {
	Destination Destination
	Err         error
}

// FanoutReport lists the outcome of every copy attempt.
type FanoutReport struct {
	Delivered []Destination
	Failed    []FanoutFailure
}

func (e *Engine) mirror() (Destination, bool) {
	if e.cfg.MirrorChatID == 0 {
		return Destination{}, false
	}
	return Destination{ChatID: e.cfg.MirrorChatID}, true
}

// fanoutTargets puts the mirror in front of the remaining destinations.
func (e *Engine) fanoutTargets(rest []Destination) []Destination {
	mirror, ok := e.mirror()
	if !ok {
		return rest
	}
	targets := make([]Destination, 0, len(rest)+1)
	targets = append(targets, mirror)
	return append(targets, rest...)
}

// fanout copies sent to every destination in order. A failed copy is
// logged and reported and never stops the remaining ones.
func (e *Engine) fanout(ctx context.Context, sent MessageRef, dests []Destination, opts CopyOptions) FanoutReport {
	var report FanoutReport
	for _, dest := range dests {
		if _, err := e.primary.CopyMessage(ctx, dest, sent, opts); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("destination", dest.String()).
				Msg("Failed to copy to destination")
			e.report(ctx, fmt.Sprintf("**Fanout Failed** `%s`: %v", dest, err))
			report.Failed = append(report.Failed, FanoutFailure{Destination: dest, Err: err})
			continue
		}
		report.Delivered = append(report.Delivered, dest)
	}
	return report
}

// report posts text to the ops channel.
func (e *Engine) report(ctx context.Context, text string) {
	if e.ops == nil {
		return
	}
	if err := e.ops.Report(ctx, text); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to report to ops channel")
	}
}

// mirrorReporter posts ops reports into the mirror chat.
type mirrorReporter struct {
	primary PrimaryClient
	chat    Destination
}

var _ OpsReporter = (*mirrorReporter)(nil)

func (m *mirrorReporter) Report(ctx context.Context, text string) error {
	_, err := m.primary.SendText(ctx, m.chat, text)
	return err
}
