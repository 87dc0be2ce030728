// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package adminapi exposes relay administration over HTTP: protected
// sources, destinations, preference resets and asynchronous relay
// requests.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aiku/relaybot/pkg/relay"
)

// maxBodySize is the maximum allowed request body (1 MB).
const maxBodySize = 1 << 20

// maxBatch caps the number of messages one relay request may cover.
const maxBatch = 1000

// StatusSender posts a fresh status message for one relay request.
type StatusSender interface {
	SendStatus(ctx context.Context, chatID int64) (relay.MessageRef, error)
}

// Relayer runs relay requests. *relay.Engine implements it.
type Relayer interface {
	StatusSender
	Relay(ctx context.Context, req *relay.Request) relay.Outcome
	ResetUser(ctx context.Context, userID int64) error
}

var _ Relayer = (*relay.Engine)(nil)

// Server serves the admin endpoints. The relay endpoint is only available
// when a Relayer is configured.
type Server struct {
	store   relay.PreferenceStore
	relayer Relayer
	log     zerolog.Logger

	wg sync.WaitGroup
}

func New(store relay.PreferenceStore, relayer Relayer, log zerolog.Logger) *Server {
	return &Server{
		store:   store,
		relayer: relayer,
		log:     log.With().Str("component", "adminapi").Logger(),
	}
}

// Handler returns the admin API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/relay", s.HandleRelay)
	mux.HandleFunc("/api/lock-source", s.HandleLockSource)
	mux.HandleFunc("/api/protected-sources", s.HandleProtectedSources)
	mux.HandleFunc("/api/destinations", s.HandleDestinations)
	mux.HandleFunc("/api/reset", s.HandleReset)
	return mux
}

// ListenAndServe serves until ctx is canceled, then shuts down and waits
// for running relay batches.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Starting admin API")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	s.Wait()
	s.log.Info().Msg("Admin API stopped")
	return err
}

// Wait blocks until every accepted relay batch has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	if err = json.Unmarshal(body, out); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.log.Error().Err(err).Msg(msg)
	http.Error(w, msg, http.StatusInternalServerError)
}

// RelayRequest is the body of POST /api/relay.
type RelayRequest struct {
	UserID int64  `json:"user_id"`
	Link   string `json:"link"`
	Offset int    `json:"offset"`
	// Count relays Count consecutive messages starting at Offset.
	Count           int   `json:"count"`
	StatusChatID    int64 `json:"status_chat_id"`
	StatusMessageID int   `json:"status_message_id"`
	TriggerChatID   int64 `json:"trigger_chat_id"`
}

// HandleRelay is an HTTP handler for POST /api/relay. The batch runs in
// the background; the response only acknowledges it.
func (s *Server) HandleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.relayer == nil {
		http.Error(w, "relay engine not configured", http.StatusServiceUnavailable)
		return
	}
	var req RelayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == 0 || req.Link == "" {
		http.Error(w, "user_id and link are required", http.StatusBadRequest)
		return
	}
	if _, err := relay.ParseLink(req.Link, 0); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Count = min(max(req.Count, 1), maxBatch)
	if req.StatusChatID == 0 {
		req.StatusChatID = req.UserID
	}

	log := s.log.With().Int64("user_id", req.UserID).Str("link", req.Link).Logger()
	log.Info().Str("remote_addr", r.RemoteAddr).Int("count", req.Count).Msg("Relay requested")

	ctx := log.WithContext(context.WithoutCancel(r.Context()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runBatch(ctx, req)
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]int{"accepted": req.Count})
}

// runBatch relays each message of the batch with its own status message.
// The caller's status message only serves the first item, because a
// finished relay deletes or finalizes it.
func (s *Server) runBatch(ctx context.Context, req RelayRequest) {
	outcomes := make(map[relay.Outcome]int)
	for i := range req.Count {
		status := relay.MessageRef{Peer: relay.PeerID(req.StatusChatID), ID: req.StatusMessageID}
		if i > 0 || status.ID == 0 {
			status = s.newStatus(ctx, req.StatusChatID)
		}
		outcome := s.relayer.Relay(ctx, &relay.Request{
			UserID:        req.UserID,
			Status:        status,
			Reference:     req.Link,
			Offset:        req.Offset + i,
			TriggerChatID: req.TriggerChatID,
		})
		outcomes[outcome]++
	}
	evt := zerolog.Ctx(ctx).Info()
	for outcome, n := range outcomes {
		evt = evt.Int(string(outcome), n)
	}
	evt.Msg("Relay batch finished")
}

// newStatus sends a status message for one batch item. On failure the
// item runs without one.
func (s *Server) newStatus(ctx context.Context, chatID int64) relay.MessageRef {
	ref, err := s.relayer.SendStatus(ctx, chatID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send batch status message")
		return relay.MessageRef{}
	}
	return ref
}

// HandleLockSource is an HTTP handler for POST /api/lock-source. The
// source may be a channel link or an encoded chat id.
func (s *Server) HandleLockSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Source string `json:"source"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, err := relay.ChannelFromLink(body.Source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err = s.store.LockSource(r.Context(), id); err != nil {
		s.internalError(w, err, "failed to lock source")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"source_id": id})
}

// HandleProtectedSources is an HTTP handler for GET /api/protected-sources.
func (s *Server) HandleProtectedSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	protected, err := s.store.ListProtectedSources(r.Context())
	if err != nil {
		s.internalError(w, err, "failed to list protected sources")
		return
	}
	ids := lo.Keys(protected)
	slices.Sort(ids)
	s.writeJSON(w, http.StatusOK, map[string][]int64{"sources": ids})
}

// DestinationRequest is the body of POST /api/destinations. Destination
// is "chat", "chat/topic" or a channel link.
type DestinationRequest struct {
	UserID      int64  `json:"user_id"`
	Destination string `json:"destination"`
	Name        string `json:"name"`
}

// ParseDestinationArg accepts "chat", "chat/topic" or a channel link.
func ParseDestinationArg(raw string) (relay.Destination, error) {
	if dest, err := relay.ParseDestination(raw); err == nil {
		return dest, nil
	}
	id, err := relay.ChannelFromLink(raw)
	if err != nil {
		return relay.Destination{}, err
	}
	return relay.Destination{ChatID: id}, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
}

// HandleDestinations is an HTTP handler for GET, POST and DELETE
// /api/destinations.
func (s *Server) HandleDestinations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		userID, err := queryInt64(r, "user_id")
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		dests, err := s.store.GetDestinations(ctx, userID)
		if err != nil {
			s.internalError(w, err, "failed to list destinations")
			return
		}
		if dests == nil {
			dests = []relay.Destination{}
		}
		s.writeJSON(w, http.StatusOK, map[string][]relay.Destination{"destinations": dests})
	case http.MethodPost:
		var req DestinationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		dest, err := ParseDestinationArg(req.Destination)
		if err != nil || req.UserID == 0 {
			http.Error(w, "user_id and a valid destination are required", http.StatusBadRequest)
			return
		}
		dest.Name = req.Name
		added, err := s.store.AddDestination(ctx, req.UserID, dest)
		if err != nil {
			s.internalError(w, err, "failed to add destination")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"added": added})
	case http.MethodDelete:
		userID, err := queryInt64(r, "user_id")
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		chatID, err := queryInt64(r, "chat_id")
		if err != nil {
			http.Error(w, "invalid chat_id", http.StatusBadRequest)
			return
		}
		removed, err := s.store.RemoveDestination(ctx, userID, chatID)
		if err != nil {
			s.internalError(w, err, "failed to remove destination")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleReset is an HTTP handler for POST /api/reset.
func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	var err error
	if s.relayer != nil {
		err = s.relayer.ResetUser(r.Context(), body.UserID)
	} else {
		err = s.store.ResetUserPreferences(r.Context(), body.UserID)
	}
	if err != nil {
		s.internalError(w, err, "failed to reset user")
		return
	}
	s.log.Info().Int64("user_id", body.UserID).Msg("User preferences reset")
	s.writeJSON(w, http.StatusOK, map[string]int64{"reset": body.UserID})
}
