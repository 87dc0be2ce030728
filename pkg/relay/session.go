// Copyright 2024-2026 Aiku AI

package relay

import "sync"

type sessionState struct {
	mu              sync.Mutex
	captionTemplate string
	target          *Destination
}

// Sessions holds in-memory per-user overrides set by the settings layer.
// They are not persisted and take precedence over stored preferences.
type Sessions struct {
	users sync.Map // int64 -> *sessionState
}

func (s *Sessions) entry(userID int64) *sessionState {
	v, _ := s.users.LoadOrStore(userID, &sessionState{})
	return v.(*sessionState)
}

func (s *Sessions) load(userID int64) (*sessionState, bool) {
	v, ok := s.users.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*sessionState), true
}

func (s *Sessions) SetCaptionTemplate(userID int64, template string) {
	st := s.entry(userID)
	st.mu.Lock()
	st.captionTemplate = template
	st.mu.Unlock()
}

// CaptionTemplate returns the override template, if one is set.
func (s *Sessions) CaptionTemplate(userID int64) (string, bool) {
	st, ok := s.load(userID)
	if !ok {
		return "", false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.captionTemplate, st.captionTemplate != ""
}

func (s *Sessions) ClearCaptionTemplate(userID int64) {
	s.SetCaptionTemplate(userID, "")
}

func (s *Sessions) SetTarget(userID int64, dest Destination) {
	st := s.entry(userID)
	st.mu.Lock()
	st.target = &dest
	st.mu.Unlock()
}

// Target returns the override delivery target, if one is set.
func (s *Sessions) Target(userID int64) (Destination, bool) {
	st, ok := s.load(userID)
	if !ok {
		return Destination{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.target == nil {
		return Destination{}, false
	}
	return *st.target, true
}

func (s *Sessions) ClearTarget(userID int64) {
	st, ok := s.load(userID)
	if !ok {
		return
	}
	st.mu.Lock()
	st.target = nil
	st.mu.Unlock()
}

// Reset drops every override of a user.
func (s *Sessions) Reset(userID int64) {
	s.users.Delete(userID)
}
