// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
)

// relayPublic copies a message from a public chat addressed by username.
// The primary client is tried first; when it cannot see the chat the
// secondary client joins, fetches and feeds the download pipeline.
func (e *Engine) relayPublic(ctx context.Context, req *Request, status *StatusMessage, link ParsedLink) Outcome {
	log := zerolog.Ctx(ctx)
	target, rest, err := e.targetFor(ctx, req)
	if err != nil {
		return e.fail(ctx, status, err)
	}
	cc := e.captionContext(ctx, req.UserID)

	if outcome, ok := e.copyPublicDirect(ctx, status, link, target, cc); ok {
		return outcome
	}

	sc := e.secondary
	if sc == nil {
		status.Finalize(ctx, msgPublicUnavailable)
		return OutcomeAccessDenied
	}
	status.Edit(ctx, msgPublicAlternative)
	if err = sc.JoinChat(ctx, link.Peer.Username); err != nil {
		log.Debug().Err(err).Str("username", link.Peer.Username).Msg("Failed to join public chat")
	}
	chatID, err := sc.ResolveUsername(ctx, link.Peer.Username)
	if err != nil {
		return e.fail(ctx, status, fmt.Errorf("failed to resolve %s: %w", link.Peer, err))
	}
	msg, err := sc.GetMessage(ctx, PeerID(chatID), link.MessageID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return e.fail(ctx, status, err)
	}
	if msg == nil || msg.IsService() || msg.IsEmpty() {
		status.Finalize(ctx, msgPublicNotFound)
		return OutcomeNotFound
	}

	desc := Classify(msg)
	if desc.Kind == KindText || desc.Kind == KindWebPreview {
		if _, err = e.primary.SendText(ctx, target, msg.Text().Markdown()); err != nil {
			return e.fail(ctx, status, fmt.Errorf("failed to send text: %w", err))
		}
		status.Delete(ctx)
		return OutcomeForwarded
	}
	if desc.Kind == KindUnknown {
		return OutcomeSkipped
	}

	artifact, err := e.executor.NewArtifact(req.UserID)
	if err != nil {
		return e.fail(ctx, status, err)
	}
	defer func() {
		if err := artifact.Remove(); err != nil {
			log.Warn().Err(err).Str("dir", artifact.Dir).Msg("Failed to remove artifact")
		}
	}()
	progress := e.progressFor(status, req.UserID, titleDownloading)
	if err = e.executor.Download(ctx, sc, msg, desc, artifact, req.UserID, progress); err != nil {
		return e.fail(ctx, status, err)
	}
	named := desc
	named.DisplayName = filepath.Base(artifact.Path)
	job := &UploadJob{
		Path:        artifact.Path,
		Descriptor:  desc,
		Destination: target,
		Caption:     RenderEmphasizedCaption(msg.Caption().Markdown(), cc, named),
		UserID:      req.UserID,
		SourceID:    chatID,
		Status:      status,
		Fanout:      rest,
	}
	if _, err = e.deliver(ctx, job); err != nil {
		return e.fail(ctx, status, err)
	}
	return OutcomeDelivered
}

// copyPublicDirect sends the message without downloading it when the
// primary client can read the chat. ok is false when the caller should
// fall back to the secondary client.
func (e *Engine) copyPublicDirect(ctx context.Context, status *StatusMessage, link ParsedLink, target Destination, cc CaptionContext) (Outcome, bool) {
	log := zerolog.Ctx(ctx)
	if _, err := e.primary.GetChat(ctx, link.Peer); err != nil {
		log.Debug().Err(err).Msg("Public chat not visible to primary client")
		return "", false
	}
	msg, err := e.primary.GetMessage(ctx, link.Peer, link.MessageID)
	if err != nil || msg == nil || msg.IsService() || msg.IsEmpty() {
		log.Debug().Err(err).Msg("Public message not readable by primary client")
		return "", false
	}

	desc := Classify(msg)
	var sent MessageRef
	switch {
	case desc.Kind == KindText || desc.Kind == KindWebPreview:
		sent, err = e.primary.CopyMessage(ctx, target, msg.Ref(), CopyOptions{})
	case desc.Kind.HasAttachment() && desc.Kind != KindDocument && desc.Kind != KindVideo:
		caption := RenderEmphasizedCaption(msg.Caption().Markdown(), cc, desc)
		sent, err = e.primary.SendByReference(ctx, target, desc.Kind, desc.FileRef, caption)
	default:
		return "", false
	}
	if err != nil {
		log.Debug().Err(err).Msg("Direct public copy failed")
		return "", false
	}
	if mirror, ok := e.mirror(); ok {
		e.fanout(ctx, sent, []Destination{mirror}, CopyOptions{})
	}
	status.Delete(ctx)
	return OutcomeForwarded, true
}
