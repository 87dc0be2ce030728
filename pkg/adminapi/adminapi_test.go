// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aiku/relaybot/pkg/prefstore"
	"github.com/aiku/relaybot/pkg/relay"
)

type fakeRelayer struct {
	mu       sync.Mutex
	requests []relay.Request
	resets   []int64
	statuses []int64
	// statusErr makes SendStatus fail.
	statusErr error
}

func (f *fakeRelayer) SendStatus(_ context.Context, chatID int64) (relay.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return relay.MessageRef{}, f.statusErr
	}
	f.statuses = append(f.statuses, chatID)
	return relay.MessageRef{Peer: relay.PeerID(chatID), ID: 500 + len(f.statuses)}, nil
}

func (f *fakeRelayer) Relay(_ context.Context, req *relay.Request) relay.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, *req)
	return relay.OutcomeDelivered
}

func (f *fakeRelayer) ResetUser(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, userID)
	return nil
}

func newTestServer(t *testing.T, relayer Relayer) (*Server, *prefstore.Store) {
	t.Helper()
	store, err := prefstore.Open("", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store, relayer, zerolog.Nop()), store
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleRelayAcceptsBatch(t *testing.T) {
	t.Parallel()
	relayer := &fakeRelayer{}
	s, _ := newTestServer(t, relayer)

	w := do(t, s, http.MethodPost, "/api/relay",
		`{"user_id":7,"link":"https://t.me/c/1234567890/10","offset":0,"count":3,"status_message_id":99}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want %d (%s)", w.Code, http.StatusAccepted, w.Body.String())
	}
	s.Wait()

	relayer.mu.Lock()
	defer relayer.mu.Unlock()
	if len(relayer.requests) != 3 {
		t.Fatalf("relayed: got %d, want 3", len(relayer.requests))
	}
	wantStatus := []int{99, 501, 502}
	for i, req := range relayer.requests {
		if req.Offset != i {
			t.Errorf("request %d offset: got %d", i, req.Offset)
		}
		if req.Status.ID != wantStatus[i] || req.Status.Peer.ID != 7 {
			t.Errorf("request %d status: got %+v, want id %d in chat 7", i, req.Status, wantStatus[i])
		}
	}
}

func TestHandleRelayBatchStatusPerItem(t *testing.T) {
	t.Parallel()
	relayer := &fakeRelayer{}
	s, _ := newTestServer(t, relayer)

	w := do(t, s, http.MethodPost, "/api/relay",
		`{"user_id":7,"link":"https://t.me/c/1234567890/10","count":4,"status_chat_id":-100321}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d (%s)", w.Code, w.Body.String())
	}
	s.Wait()

	relayer.mu.Lock()
	defer relayer.mu.Unlock()
	if len(relayer.statuses) != 4 {
		t.Fatalf("status messages sent: got %d, want 4", len(relayer.statuses))
	}
	seen := make(map[relay.MessageRef]bool)
	for i, req := range relayer.requests {
		if req.Status.ID == 0 || req.Status.Peer.ID != -100321 {
			t.Errorf("request %d status: got %+v", i, req.Status)
		}
		if seen[req.Status] {
			t.Errorf("request %d reuses status %+v", i, req.Status)
		}
		seen[req.Status] = true
	}
}

func TestHandleRelayBatchStatusSendFails(t *testing.T) {
	t.Parallel()
	relayer := &fakeRelayer{statusErr: errors.New("bot was blocked")}
	s, _ := newTestServer(t, relayer)

	do(t, s, http.MethodPost, "/api/relay",
		`{"user_id":7,"link":"https://t.me/c/1234567890/10","count":2,"status_message_id":99}`)
	s.Wait()

	relayer.mu.Lock()
	defer relayer.mu.Unlock()
	if len(relayer.requests) != 2 {
		t.Fatalf("relayed: got %d, want 2", len(relayer.requests))
	}
	if relayer.requests[0].Status.ID != 99 {
		t.Errorf("first status: got %+v, want id 99", relayer.requests[0].Status)
	}
	if relayer.requests[1].Status.ID != 0 {
		t.Errorf("second status: got %+v, want none", relayer.requests[1].Status)
	}
}

func TestHandleRelayValidation(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeRelayer{})
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing link", http.MethodPost, `{"user_id":1}`, http.StatusBadRequest},
		{"bad link", http.MethodPost, `{"user_id":1,"link":"https://example.com/x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(t, s, tt.method, "/api/relay", tt.body); w.Code != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, w.Code, tt.want)
		}
	}
}

func TestHandleRelayWithoutEngine(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	w := do(t, s, http.MethodPost, "/api/relay", `{"user_id":1,"link":"https://t.me/c/1/2"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleRelayBodyTooLarge(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeRelayer{})
	body := `{"link":"` + strings.Repeat("x", maxBodySize) + `"}`
	w := do(t, s, http.MethodPost, "/api/relay", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestLockAndListProtectedSources(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/api/lock-source", `{"source":"https://t.me/c/1234567890/5"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("lock status: got %d (%s)", w.Code, w.Body.String())
	}
	do(t, s, http.MethodPost, "/api/lock-source", `{"source":"-10042"}`)
	if w := do(t, s, http.MethodPost, "/api/lock-source", `{"source":"https://t.me/news/5"}`); w.Code != http.StatusBadRequest {
		t.Errorf("public link lock: got %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = do(t, s, http.MethodGet, "/api/protected-sources", "")
	var resp struct {
		Sources []int64 `json:"sources"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sources) != 2 || resp.Sources[0] != -1001234567890 || resp.Sources[1] != -10042 {
		t.Errorf("sources: got %v", resp.Sources)
	}
}

func TestDestinationsCRUD(t *testing.T) {
	t.Parallel()
	s, store := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/api/destinations", `{"user_id":7,"destination":"-100500/3","name":"archive"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"added":true`) {
		t.Fatalf("add: got %d %s", w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodPost, "/api/destinations", `{"user_id":7,"destination":"https://t.me/c/600/1"}`)
	if !strings.Contains(w.Body.String(), `"added":true`) {
		t.Errorf("add by link: got %s", w.Body.String())
	}

	dests, _ := store.GetDestinations(context.Background(), 7)
	if len(dests) != 2 || dests[0] != (relay.Destination{ChatID: -100500, TopicID: 3, Name: "archive"}) || dests[1].ChatID != -100600 {
		t.Errorf("stored destinations: got %+v", dests)
	}

	w = do(t, s, http.MethodGet, "/api/destinations?user_id=7", "")
	var list struct {
		Destinations []relay.Destination `json:"destinations"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Destinations) != 2 {
		t.Errorf("listed destinations: got %d, want 2", len(list.Destinations))
	}

	w = do(t, s, http.MethodDelete, "/api/destinations?user_id=7&chat_id=-100500", "")
	if !strings.Contains(w.Body.String(), `"removed":true`) {
		t.Errorf("remove: got %s", w.Body.String())
	}
	if w := do(t, s, http.MethodDelete, "/api/destinations?user_id=7", ""); w.Code != http.StatusBadRequest {
		t.Errorf("remove without chat_id: got %d", w.Code)
	}
	if w := do(t, s, http.MethodPut, "/api/destinations", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT: got %d", w.Code)
	}
}

func TestHandleResetUsesEngine(t *testing.T) {
	t.Parallel()
	relayer := &fakeRelayer{}
	s, _ := newTestServer(t, relayer)
	w := do(t, s, http.MethodPost, "/api/reset", `{"user_id":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if len(relayer.resets) != 1 || relayer.resets[0] != 7 {
		t.Errorf("resets: got %v", relayer.resets)
	}
}

func TestHandleResetStoreOnly(t *testing.T) {
	t.Parallel()
	s, store := newTestServer(t, nil)
	ctx := context.Background()
	_ = store.SetUserValue(ctx, 7, relay.PrefCustomCaption, "tmpl")

	w := do(t, s, http.MethodPost, "/api/reset", `{"user_id":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var tmpl string
	if found, _ := store.GetUserValue(ctx, 7, relay.PrefCustomCaption, &tmpl); found {
		t.Error("caption template should be reset")
	}
	if w := do(t, s, http.MethodPost, "/api/reset", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing user: got %d", w.Code)
	}
}

func TestParseDestinationArg(t *testing.T) {
	t.Parallel()
	tests := map[string]relay.Destination{
		"-1001":                {ChatID: -1001},
		"-1001/7":              {ChatID: -1001, TopicID: 7},
		"https://t.me/c/123/4": {ChatID: -100123},
	}
	for raw, want := range tests {
		got, err := ParseDestinationArg(raw)
		if err != nil {
			t.Errorf("ParseDestinationArg(%q): %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("ParseDestinationArg(%q): got %+v, want %+v", raw, got, want)
		}
	}
	if _, err := ParseDestinationArg("nonsense"); err == nil {
		t.Error("invalid destination should fail")
	}
}
