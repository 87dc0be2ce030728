// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// splitUploader cuts oversized artifacts into parts below the size limit
// and sends them one after another as documents.
type splitUploader struct{ e *Engine }

func (splitUploader) Name() string { return "split" }

func (u splitUploader) Upload(ctx context.Context, job *UploadJob) (*Delivery, error) {
	e := u.e
	log := zerolog.Ctx(ctx)
	info, err := os.Stat(job.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	announce := fmt.Sprintf("✂️ File is %.2f MB, splitting and uploading in parts...", float64(info.Size())/mib)
	if ref, err := e.primary.SendText(ctx, Destination{ChatID: job.UserID}, announce); err != nil {
		log.Debug().Err(err).Msg("Failed to announce split upload")
	} else {
		start := newStatusMessage(e.primary, ref)
		defer start.Delete(ctx)
	}

	thumb := e.thumbs.For(ctx, job.UserID)
	delivery := &Delivery{}
	mirror, hasMirror := e.mirror()
	parts, err := SplitFile(ctx, job.Path, e.cfg.PartSize, func(part Part) error {
		line := e.partStatus(ctx, job.Destination, part.Number)
		defer line.Delete(ctx)
		sent, err := e.primary.SendMedia(ctx, job.Destination, KindDocument, part.Path, SendOptions{
			Caption:   partCaption(job.Caption, part.Number),
			ParseMode: ParseMarkdown,
			Thumbnail: thumb,
			Progress:  e.progressFor(line, job.UserID, fmt.Sprintf("Uploading part %d", part.Number)),
		})
		if err != nil {
			return fmt.Errorf("failed to upload part %d: %w", part.Number, err)
		}
		delivery.Sent = append(delivery.Sent, sent)
		if hasMirror {
			report := e.fanout(ctx, sent, []Destination{mirror}, CopyOptions{})
			delivery.Fanout.Delivered = append(delivery.Fanout.Delivered, report.Delivered...)
			delivery.Fanout.Failed = append(delivery.Fanout.Failed, report.Failed...)
		}
		return nil
	})
	if err != nil {
		return delivery, err
	}
	log.Info().Int("parts", parts).Msg("Split upload finished")
	if err := os.Remove(job.Path); err != nil {
		log.Debug().Err(err).Msg("Failed to remove split source")
	}
	job.Status.Delete(ctx)
	return delivery, nil
}

// partStatus posts the per-part status line in the target chat.
func (e *Engine) partStatus(ctx context.Context, to Destination, number int) *StatusMessage {
	ref, err := e.primary.SendText(ctx, to, fmt.Sprintf("📤 Uploading part %d...", number))
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to send part status")
		return newStatusMessage(e.primary, MessageRef{})
	}
	return newStatusMessage(e.primary, ref)
}

// largeUploader sends the whole artifact through the privileged client
// into the mirror chat and copies it to the target from there. Without a
// mirror the artifact goes straight to the target; free-tier protection is
// then applied to that send and the upsell button is dropped, since only
// copies carry buttons.
type largeUploader struct{ e *Engine }

func (largeUploader) Name() string { return "large" }

func (u largeUploader) Upload(ctx context.Context, job *UploadJob) (*Delivery, error) {
	e := u.e
	if e.privileged == nil {
		job.Status.Finalize(ctx, msgLargeUnavailable)
		return nil, fmt.Errorf("large upload: %w", ErrCapabilityUnavailable)
	}
	job.Status.Edit(ctx, msgLargeStarting)

	kind := KindDocument
	if deliveryKind(job.Descriptor, job.Path) == KindVideo {
		kind = KindVideo
	}
	opts := SendOptions{
		Caption:   job.Caption,
		ParseMode: ParseMarkdown,
		Thumbnail: e.thumbs.For(ctx, job.UserID),
		Progress:  e.progressFor(job.Status, job.UserID, titleUploading),
	}
	if kind == KindVideo {
		opts.Video = e.probe(ctx, job.Path)
	}

	var copyOpts CopyOptions
	if e.isFreeTier(ctx, job.SourceID, job.UserID) {
		copyOpts.Protect = true
		if e.cfg.UpsellURL != "" {
			copyOpts.Button = &Button{Text: msgUpsellButton, URL: e.cfg.UpsellURL}
		}
	}

	stage, hasMirror := e.mirror()
	if !hasMirror {
		stage = job.Destination
		opts.Protect = copyOpts.Protect
	}
	staged, err := e.privileged.SendMedia(ctx, stage, kind, job.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to upload large %s: %w", kind, err)
	}
	if !hasMirror {
		return &Delivery{
			Sent:   []MessageRef{staged},
			Fanout: e.fanout(ctx, staged, job.Fanout, copyOpts),
		}, nil
	}

	sent, err := e.primary.CopyMessage(ctx, job.Destination, staged, copyOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to copy large upload: %w", err)
	}
	return &Delivery{
		Sent:   []MessageRef{sent},
		Fanout: e.fanout(ctx, staged, job.Fanout, copyOpts),
	}, nil
}
