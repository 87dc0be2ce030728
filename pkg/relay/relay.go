// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Options wires an Engine to its collaborators. Only Primary is required.
type Options struct {
	Config       Config
	Primary      PrimaryClient
	Secondary    SecondaryClient
	Privileged   PrivilegedClient
	Entitlements EntitlementChecker
	Store        PreferenceStore
	// Ops receives operational error reports. Defaults to posting into the
	// mirror chat when one is configured.
	Ops        OpsReporter
	Prober     VideoProber
	HTTPClient *http.Client
	Log        zerolog.Logger
}

// Engine runs relay requests. It is safe for concurrent use; each request
// runs on the caller's goroutine.
type Engine struct {
	cfg          Config
	primary      PrimaryClient
	secondary    SecondaryClient
	privileged   PrivilegedClient
	entitlements EntitlementChecker
	store        PreferenceStore
	ops          OpsReporter
	prober       VideoProber

	tracker  *Tracker
	sessions *Sessions
	executor *Executor
	thumbs   *thumbnails
	log      zerolog.Logger
}

// New validates the configuration and builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Primary == nil {
		return nil, errors.New("primary client is required")
	}
	cfg := opts.Config
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("failed to post-process config: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	prober := opts.Prober
	if prober == nil {
		prober = FFProbe{Binary: cfg.FFProbePath}
	}
	e := &Engine{
		cfg:          cfg,
		primary:      opts.Primary,
		secondary:    opts.Secondary,
		privileged:   opts.Privileged,
		entitlements: opts.Entitlements,
		store:        opts.Store,
		ops:          opts.Ops,
		prober:       prober,
		tracker:      NewTracker(),
		sessions:     &Sessions{},
		executor:     NewExecutor(cfg.WorkDir, cfg.RenamePrefix),
		thumbs: &thumbnails{
			dir:        cfg.ThumbnailDir,
			defaultURL: cfg.DefaultThumbnailURL,
			client:     httpClient,
		},
		log: opts.Log.With().Str("component", "relay").Logger(),
	}
	if e.ops == nil {
		if mirror, ok := e.mirror(); ok {
			e.ops = &mirrorReporter{primary: e.primary, chat: mirror}
		}
	}
	return e, nil
}

// Sessions returns the in-memory per-user overrides.
func (e *Engine) Sessions() *Sessions {
	return e.sessions
}

// Tracker returns the progress tracker shared by all requests.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Relay runs one request to completion. Whatever happens, the request's
// artifact is removed and its status message released before returning.
func (e *Engine) Relay(ctx context.Context, req *Request) (outcome Outcome) {
	log := e.log.With().
		Int64("user_id", req.UserID).
		Str("reference", req.Reference).
		Int("offset", req.Offset).
		Logger()
	ctx = log.WithContext(ctx)
	status := newStatusMessage(e.primary, req.Status)
	var artifact *Artifact

	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("Relay panicked")
			e.report(ctx, fmt.Sprintf("**Error:** panic: %v", r))
			status.Finalize(ctx, msgFailedPrefix+"internal error")
			outcome = OutcomeFailed
		}
		if err := artifact.Remove(); err != nil {
			log.Warn().Err(err).Str("dir", artifact.Dir).Msg("Failed to remove artifact")
		}
		status.Release(ctx)
		log.Debug().Str("outcome", string(outcome)).Msg("Relay finished")
	}()

	src, err := e.resolve(ctx, req, status)
	if err != nil {
		return e.fail(ctx, status, err)
	}
	if src.done {
		return src.outcome
	}

	fetcher := e.fetcherFor(req)
	msg, err := fetcher.GetMessage(ctx, src.ref.Peer, src.ref.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return e.fail(ctx, status, err)
	}
	if msg == nil || msg.IsService() || msg.IsEmpty() {
		status.Delete(ctx)
		return OutcomeNotFound
	}

	target, rest, err := e.targetFor(ctx, req)
	if err != nil {
		return e.fail(ctx, status, err)
	}
	desc := Classify(msg)
	switch {
	case desc.Kind == KindText || desc.Kind == KindWebPreview:
		return e.forwardText(ctx, status, msg.Text().Markdown(), target)
	case desc.Kind == KindUnknown:
		return OutcomeSkipped
	case desc.Kind.directForward():
		err = e.forwardDirect(ctx, desc, target)
		if err == nil {
			status.Delete(ctx)
			return OutcomeForwarded
		}
		if !e.cfg.DirectFallback {
			return e.fail(ctx, status, err)
		}
		log.Warn().Err(err).Msg("Direct forward failed, falling back to download")
	}

	artifact, err = e.executor.NewArtifact(req.UserID)
	if err != nil {
		return e.fail(ctx, status, err)
	}
	progress := e.progressFor(status, req.UserID, titleDownloading)
	if err = e.executor.Download(ctx, fetcher, msg, desc, artifact, int64(src.ref.ID), progress); err != nil {
		return e.fail(ctx, status, err)
	}

	named := desc
	named.DisplayName = filepath.Base(artifact.Path)
	job := &UploadJob{
		Path:        artifact.Path,
		Descriptor:  desc,
		Destination: target,
		Caption:     RenderCaption(msg.Caption().Markdown(), e.captionContext(ctx, req.UserID), named),
		UserID:      req.UserID,
		SourceID:    src.ref.Peer.ID,
		Status:      status,
		Fanout:      rest,
	}
	delivery, err := e.deliver(ctx, job)
	if err != nil {
		return e.fail(ctx, status, err)
	}
	log.Info().
		Int("sent", len(delivery.Sent)).
		Int("fanout_failed", len(delivery.Fanout.Failed)).
		Msg("Relay delivered")
	return OutcomeDelivered
}

// fail maps an error to the user-visible outcome. Access errors get a
// single actionable message; anything else is reported to the ops channel.
func (e *Engine) fail(ctx context.Context, status *StatusMessage, err error) Outcome {
	log := zerolog.Ctx(ctx)
	if errors.Is(err, ErrAccessDenied) {
		log.Info().Err(err).Msg("Source access denied")
		status.Finalize(ctx, msgAccessDenied)
		return OutcomeAccessDenied
	}
	log.Error().Err(err).Msg("Relay failed")
	e.report(ctx, "**Error:** "+err.Error())
	status.Finalize(ctx, msgFailedPrefix+err.Error())
	return OutcomeFailed
}

func (e *Engine) fetcherFor(req *Request) Fetcher {
	if req.Fetcher != nil {
		return req.Fetcher
	}
	return e.primary
}

// targetFor returns the primary target and the remaining destinations.
// The first stored destination wins, then the session override, then the
// chat the request came from.
func (e *Engine) targetFor(ctx context.Context, req *Request) (Destination, []Destination, error) {
	if e.store != nil {
		dests, err := e.store.GetDestinations(ctx, req.UserID)
		if err != nil {
			return Destination{}, nil, fmt.Errorf("failed to load destinations: %w", err)
		}
		if len(dests) > 0 {
			return dests[0], dests[1:], nil
		}
	}
	if dest, ok := e.sessions.Target(req.UserID); ok {
		return dest, nil, nil
	}
	chat := req.TriggerChatID
	if chat == 0 {
		chat = req.UserID
	}
	return Destination{ChatID: chat}, nil, nil
}

func (e *Engine) prefString(ctx context.Context, userID int64, key, def string) string {
	if e.store == nil {
		return def
	}
	value := def
	if _, err := e.store.GetUserValue(ctx, userID, key, &value); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to load preference")
		return def
	}
	return value
}

// forwardText sends a text body to the target and the mirror. Each send
// is independent.
func (e *Engine) forwardText(ctx context.Context, status *StatusMessage, text string, target Destination) Outcome {
	log := zerolog.Ctx(ctx)
	outcome := OutcomeForwarded
	if _, err := e.primary.SendText(ctx, target, text); err != nil {
		log.Error().Err(err).Str("destination", target.String()).Msg("Failed to forward text")
		e.report(ctx, "**Error:** failed to forward text: "+err.Error())
		outcome = OutcomeFailed
	}
	if mirror, ok := e.mirror(); ok {
		if _, err := e.primary.SendText(ctx, mirror, text); err != nil {
			log.Warn().Err(err).Msg("Failed to forward text to mirror")
		}
	}
	status.Delete(ctx)
	return outcome
}

// forwardDirect resends a voice, video note or sticker by reference. The
// mirror copy is attempted even when the target send fails, unless the
// download fallback will deliver it instead.
func (e *Engine) forwardDirect(ctx context.Context, desc MediaDescriptor, target Destination) error {
	_, err := e.primary.SendByReference(ctx, target, desc.Kind, desc.FileRef, "")
	if err != nil {
		err = fmt.Errorf("failed to forward %s: %w", desc.Kind, err)
		if e.cfg.DirectFallback {
			return err
		}
	}
	if mirror, ok := e.mirror(); ok {
		if _, mirrorErr := e.primary.SendByReference(ctx, mirror, desc.Kind, desc.FileRef, ""); mirrorErr != nil {
			zerolog.Ctx(ctx).Warn().Err(mirrorErr).Msg("Failed to forward media to mirror")
		}
	}
	return err
}

// SendStatus posts a new status message into chatID for a request that
// has none yet.
func (e *Engine) SendStatus(ctx context.Context, chatID int64) (MessageRef, error) {
	ref, err := e.primary.SendText(ctx, Destination{ChatID: chatID}, msgFetching)
	if err != nil {
		return MessageRef{}, fmt.Errorf("failed to send status message: %w", err)
	}
	return ref, nil
}

// ResetUser clears stored preferences, session overrides, progress state
// and the custom thumbnail of a user.
func (e *Engine) ResetUser(ctx context.Context, userID int64) error {
	e.sessions.Reset(userID)
	e.tracker.Clear(userID)
	if err := e.thumbs.Delete(userID); err != nil {
		return err
	}
	if e.store == nil {
		return nil
	}
	if err := e.store.ResetUserPreferences(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset preferences: %w", err)
	}
	return nil
}

// SetThumbnail stores a custom thumbnail for a user.
func (e *Engine) SetThumbnail(userID int64, r io.Reader) error {
	return e.thumbs.Set(userID, r)
}

// DeleteThumbnail removes a user's custom thumbnail.
func (e *Engine) DeleteThumbnail(userID int64) error {
	return e.thumbs.Delete(userID)
}
