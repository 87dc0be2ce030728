// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// StatusMessage is an editable message shown to the requester while a relay
// runs. Failures to edit or delete are logged and never abort the caller.
type StatusMessage struct {
	editor MessageEditor
	ref    MessageRef

	mu        sync.Mutex
	text      string
	finalized bool
	deleted   bool
}

func newStatusMessage(editor MessageEditor, ref MessageRef) *StatusMessage {
	return &StatusMessage{editor: editor, ref: ref}
}

func (s *StatusMessage) Ref() MessageRef {
	return s.ref
}

// Text returns the last text successfully written.
func (s *StatusMessage) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

func (s *StatusMessage) active() bool {
	return s.ref.ID != 0 && !s.deleted
}

// Edit replaces the text unless the message was finalized or deleted.
// Identical edits are skipped.
func (s *StatusMessage) Edit(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() || s.finalized || s.text == text {
		return
	}
	s.edit(ctx, text)
}

// Finalize writes a terminal text that survives Release. Only the first
// terminal text is kept.
func (s *StatusMessage) Finalize(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() || s.finalized {
		return
	}
	s.finalized = true
	if s.text != text {
		s.edit(ctx, text)
	}
}

func (s *StatusMessage) edit(ctx context.Context, text string) {
	if err := s.editor.EditText(ctx, s.ref, text); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int("status_id", s.ref.ID).Msg("Failed to edit status message")
		return
	}
	s.text = text
}

// Delete removes the message.
func (s *StatusMessage) Delete(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return
	}
	s.deleted = true
	if err := s.editor.DeleteMessage(ctx, s.ref); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int("status_id", s.ref.ID).Msg("Failed to delete status message")
	}
}

// Release deletes the message unless it was finalized.
func (s *StatusMessage) Release(ctx context.Context) {
	s.mu.Lock()
	finalized := s.finalized
	s.mu.Unlock()
	if !finalized {
		s.Delete(ctx)
	}
}
