// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// minElapsed floors the time between two observations.
const minElapsed = 0.1

// ProgressState is the last observation recorded for a user.
type ProgressState struct {
	PreviousDone int64
	PreviousTime time.Time
}

type userProgress struct {
	mu    sync.Mutex
	state ProgressState
}

// Snapshot is one computed progress observation.
type Snapshot struct {
	Done       int64
	Total      int64
	Percent    float64
	Mbps       float64
	ETAMinutes float64
}

// Bar renders the ten-segment progress bar.
func (s Snapshot) Bar() string {
	filled := min(max(int(s.Percent/10), 0), 10)
	return strings.Repeat("♦", filled) + strings.Repeat("◇", 10-filled)
}

// Render formats the snapshot as a status message.
func (s Snapshot) Render(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", title)
	fmt.Fprintf(&b, "[%s]\n", s.Bar())
	fmt.Fprintf(&b, "│ **Progress:** %.2f%%\n", s.Percent)
	fmt.Fprintf(&b, "│ **Done:** %.2f MB of %.2f MB\n", float64(s.Done)/mib, float64(s.Total)/mib)
	fmt.Fprintf(&b, "│ **Speed:** %.2f Mbps\n", s.Mbps)
	fmt.Fprintf(&b, "│ **ETA:** %.2f min", s.ETAMinutes)
	return b.String()
}

// Tracker estimates transfer rates per user. Entries are locked
// individually so users never contend with each other.
type Tracker struct {
	users sync.Map // int64 -> *userProgress
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

func (t *Tracker) entry(userID int64) *userProgress {
	if v, ok := t.users.Load(userID); ok {
		return v.(*userProgress)
	}
	v, _ := t.users.LoadOrStore(userID, &userProgress{state: ProgressState{PreviousTime: t.now()}})
	return v.(*userProgress)
}

// Observe records a cumulative byte count and returns the derived
// snapshot. Callers throttle how often they call it.
func (t *Tracker) Observe(done, total, userID int64) Snapshot {
	p := t.entry(userID)
	p.mu.Lock()
	defer p.mu.Unlock()

	now := t.now()
	elapsed := max(now.Sub(p.state.PreviousTime).Seconds(), minElapsed)
	delta := max(done-p.state.PreviousDone, 0)
	rate := float64(delta) / elapsed

	snap := Snapshot{Done: done, Total: total}
	if total > 0 {
		snap.Percent = float64(done) * 100 / float64(total)
	}
	snap.Mbps = float64(delta) * 8 / (mib * elapsed)
	if rate > 0 {
		snap.ETAMinutes = float64(total-done) / rate / 60
	}
	p.state = ProgressState{PreviousDone: done, PreviousTime: now}
	return snap
}

// Status is Observe followed by Render.
func (t *Tracker) Status(done, total, userID int64, title string) string {
	return t.Observe(done, total, userID).Render(title)
}

// State returns the stored observation for a user.
func (t *Tracker) State(userID int64) (ProgressState, bool) {
	v, ok := t.users.Load(userID)
	if !ok {
		return ProgressState{}, false
	}
	p := v.(*userProgress)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, true
}

// Set overwrites the stored observation for a user.
func (t *Tracker) Set(userID int64, state ProgressState) {
	p := t.entry(userID)
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// Clear forgets a user.
func (t *Tracker) Clear(userID int64) {
	t.users.Delete(userID)
}

// progressFor returns a callback that edits status at most once per
// configured percent step, plus once on completion.
func (e *Engine) progressFor(status *StatusMessage, userID int64, title string) ProgressFunc {
	var mu sync.Mutex
	last := -1.0
	step := float64(e.cfg.ProgressStep)
	return func(ctx context.Context, done, total int64) {
		if total <= 0 {
			return
		}
		pct := float64(done) * 100 / float64(total)
		mu.Lock()
		if last >= 0 && pct-last < step && done < total {
			mu.Unlock()
			return
		}
		last = pct
		mu.Unlock()
		status.Edit(ctx, e.tracker.Status(done, total, userID, title))
	}
}
