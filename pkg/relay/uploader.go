// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// UploadJob is one artifact ready for delivery.
type UploadJob struct {
	Path        string
	Descriptor  MediaDescriptor
	Destination Destination
	Caption     string
	UserID      int64
	SourceID    int64
	Status      *StatusMessage
	// Fanout lists the user's destinations beyond the primary one.
	Fanout []Destination
}

// Delivery is the result of an upload.
type Delivery struct {
	Sent   []MessageRef
	Fanout FanoutReport
}

// Uploader is one delivery strategy.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, job *UploadJob) (*Delivery, error)
}

var (
	_ Uploader = nativeUploader{}
	_ Uploader = streamUploader{}
	_ Uploader = photoUploader{}
	_ Uploader = splitUploader{}
	_ Uploader = largeUploader{}
)

// route implements the size check: photos go straight out, oversized files
// are split or handed to the privileged client, everything else follows
// the user's uploader preference.
func (e *Engine) route(ctx context.Context, job *UploadJob) Uploader {
	if job.Descriptor.Kind == KindPhoto {
		return photoUploader{e}
	}
	if job.Descriptor.Size >= e.cfg.SizeLimit {
		if e.privileged == nil || e.isFreeTier(ctx, job.SourceID, job.UserID) {
			return splitUploader{e}
		}
		return largeUploader{e}
	}
	return e.selectUploader(e.prefString(ctx, job.UserID, PrefUploadMethod, UploadMethodStandard))
}

// selectUploader maps (preference, secondary availability) to a standard
// uploader variant.
func (e *Engine) selectUploader(method string) Uploader {
	switch {
	case method == UploadMethodStream && e.secondary != nil:
		return streamUploader{e}
	default:
		return nativeUploader{e}
	}
}

func (e *Engine) deliver(ctx context.Context, job *UploadJob) (*Delivery, error) {
	uploader := e.route(ctx, job)
	zerolog.Ctx(ctx).Debug().
		Str("uploader", uploader.Name()).
		Int64("size", job.Descriptor.Size).
		Msg("Delivering artifact")
	return uploader.Upload(ctx, job)
}

func (e *Engine) isFreeTier(ctx context.Context, sourceID, userID int64) bool {
	if e.entitlements == nil {
		return false
	}
	free, err := e.entitlements.IsFreeTier(ctx, sourceID, userID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to query entitlement, assuming free tier")
		return true
	}
	return free
}

// sendKind applies the "always document" preference on top of the detected
// kind.
func (e *Engine) sendKind(ctx context.Context, job *UploadJob) MediaKind {
	if e.prefString(ctx, job.UserID, PrefUploadType, UploadTypeMedia) == UploadTypeDocument {
		return KindDocument
	}
	return deliveryKind(job.Descriptor, job.Path)
}

// nativeUploader sends through the primary client's typed methods.
type nativeUploader struct{ e *Engine }

func (nativeUploader) Name() string { return "native" }

func (u nativeUploader) Upload(ctx context.Context, job *UploadJob) (*Delivery, error) {
	e := u.e
	kind := e.sendKind(ctx, job)
	opts := SendOptions{
		Caption:   job.Caption,
		ParseMode: ParseMarkdown,
		Progress:  e.progressFor(job.Status, job.UserID, titleUploading),
	}
	if kind != KindPhoto {
		opts.Thumbnail = e.thumbs.For(ctx, job.UserID)
	}
	if kind == KindVideo {
		opts.Video = e.probe(ctx, job.Path)
	}
	sent, err := e.primary.SendMedia(ctx, job.Destination, kind, job.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", kind, err)
	}
	return &Delivery{
		Sent:   []MessageRef{sent},
		Fanout: e.fanout(ctx, sent, e.fanoutTargets(job.Fanout), CopyOptions{}),
	}, nil
}

// streamUploader uploads through the secondary client's resumable
// transport and sends the resulting file with an HTML caption.
type streamUploader struct{ e *Engine }

func (streamUploader) Name() string { return "stream" }

func (u streamUploader) Upload(ctx context.Context, job *UploadJob) (*Delivery, error) {
	e := u.e
	sc := e.secondary
	if sc == nil {
		return nil, fmt.Errorf("stream upload: %w", ErrCapabilityUnavailable)
	}

	var progress ProgressFunc
	if ref, err := sc.SendText(ctx, Destination{ChatID: job.UserID}, msgUploadingStream); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to send upload progress message")
	} else {
		progressMsg := newStatusMessage(sc, ref)
		defer progressMsg.Delete(ctx)
		progress = e.progressFor(progressMsg, job.UserID, titleUploading)
	}

	file, err := sc.UploadFile(ctx, job.Path, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}
	kind := e.sendKind(ctx, job)
	opts := SendOptions{
		Caption:   captionHTML(job.Caption),
		ParseMode: ParseHTML,
		Thumbnail: e.thumbs.Custom(job.UserID),
	}
	if kind == KindVideo {
		opts.Video = e.probe(ctx, job.Path)
	}
	sent, err := sc.SendUploaded(ctx, job.Destination, file, kind, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to send uploaded %s: %w", kind, err)
	}

	delivery := &Delivery{Sent: []MessageRef{sent}}
	if mirror, ok := e.mirror(); ok {
		if _, err := sc.SendUploaded(ctx, mirror, file, kind, opts); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int64("chat_id", mirror.ChatID).Msg("Failed to send to mirror")
			delivery.Fanout.Failed = append(delivery.Fanout.Failed, FanoutFailure{Destination: mirror, Err: err})
		} else {
			delivery.Fanout.Delivered = append(delivery.Fanout.Delivered, mirror)
		}
	}
	return delivery, nil
}

// photoUploader sends photos without size check or fanout beyond the
// mirror.
type photoUploader struct{ e *Engine }

func (photoUploader) Name() string { return "photo" }

func (u photoUploader) Upload(ctx context.Context, job *UploadJob) (*Delivery, error) {
	e := u.e
	sent, err := e.primary.SendMedia(ctx, job.Destination, KindPhoto, job.Path, SendOptions{
		Caption:   job.Caption,
		ParseMode: ParseMarkdown,
		Progress:  e.progressFor(job.Status, job.UserID, titleUploading),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload photo: %w", err)
	}
	delivery := &Delivery{Sent: []MessageRef{sent}}
	if mirror, ok := e.mirror(); ok {
		delivery.Fanout = e.fanout(ctx, sent, []Destination{mirror}, CopyOptions{})
	}
	return delivery, nil
}
