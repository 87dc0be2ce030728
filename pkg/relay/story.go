// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
)

// relayStory fetches a story through the secondary client and sends its
// media back to the requester. It never enters the generic pipeline.
func (e *Engine) relayStory(ctx context.Context, req *Request, status *StatusMessage, link ParsedLink) Outcome {
	sc := e.secondary
	status.Edit(ctx, msgStoryDownloading)
	story, err := sc.GetStory(ctx, link.Peer, link.MessageID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return e.fail(ctx, status, fmt.Errorf("failed to get story: %w", err))
	}
	if story == nil || !story.Kind.HasAttachment() {
		status.Finalize(ctx, msgStoryEmpty)
		return OutcomeNotFound
	}

	artifact, err := e.executor.NewArtifact(req.UserID)
	if err != nil {
		return e.fail(ctx, status, err)
	}
	defer func() {
		_ = artifact.Remove()
	}()
	path, err := sc.DownloadStory(ctx, story, artifact.Dir, e.progressFor(status, req.UserID, titleDownloading))
	if err != nil {
		return e.fail(ctx, status, fmt.Errorf("failed to download story: %w", err))
	}
	artifact.Path = path

	status.Edit(ctx, msgStoryUploading)
	kind := story.Kind
	switch kind {
	case KindVideo, KindPhoto:
	default:
		kind = KindDocument
	}
	if _, err = e.primary.SendMedia(ctx, Destination{ChatID: req.UserID}, kind, path, SendOptions{}); err != nil {
		return e.fail(ctx, status, fmt.Errorf("failed to send story: %w", err))
	}
	status.Finalize(ctx, msgStoryDone)
	return OutcomeHandled
}
