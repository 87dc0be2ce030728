// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeMessage is a canned source message.
type fakeMessage struct {
	ref         MessageRef
	sender      int64
	service     bool
	empty       bool
	webPreview  bool
	text        FormattedText
	caption     FormattedText
	attachments map[MediaKind]Attachment
	// content is written by Download.
	content []byte
}

var _ Message = (*fakeMessage)(nil)

func (m *fakeMessage) Ref() MessageRef        { return m.ref }
func (m *fakeMessage) SenderID() int64        { return m.sender }
func (m *fakeMessage) IsService() bool        { return m.service }
func (m *fakeMessage) IsEmpty() bool          { return m.empty }
func (m *fakeMessage) IsWebPreview() bool     { return m.webPreview }
func (m *fakeMessage) Text() FormattedText    { return m.text }
func (m *fakeMessage) Caption() FormattedText { return m.caption }

func (m *fakeMessage) Attachment(kind MediaKind) (Attachment, bool) {
	att, ok := m.attachments[kind]
	return att, ok
}

func textMessage(peer Peer, id int, body string) *fakeMessage {
	return &fakeMessage{ref: MessageRef{Peer: peer, ID: id}, text: FormattedText{Body: body}}
}

func mediaMessage(peer Peer, id int, kind MediaKind, name string, content []byte) *fakeMessage {
	return &fakeMessage{
		ref: MessageRef{Peer: peer, ID: id},
		attachments: map[MediaKind]Attachment{
			kind: {FileName: name, Size: int64(len(content)), FileRef: "ref-" + name},
		},
		content: content,
	}
}

// sentCall records one outgoing send.
type sentCall struct {
	Method  string
	To      Destination
	Kind    MediaKind
	Caption string
	// Size is the size of the sent file at send time.
	Size int64
	From MessageRef
	Opts CopyOptions
	Text string
}

// fakeClient is a recording in-memory client. It serves as primary,
// secondary and privileged client depending on the test.
type fakeClient struct {
	mu       sync.Mutex
	nextID   int
	messages map[MessageRef]Message
	chats    map[string]bool
	sends    []sentCall
	edits    []string
	deletes  []MessageRef
	fetches  int

	// fail maps a method name to the error it returns.
	fail map[string]error
	// failCopyTo makes CopyMessage fail for one chat.
	failCopyTo map[int64]error
	// failSendTo makes SendText and SendByReference fail for one chat.
	failSendTo map[int64]error
	getErr     error
	panicOnGet bool

	usernames map[string]int64
	joined    []string
	stories   map[int]*Story
	storyData []byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		nextID:     1000,
		messages:   make(map[MessageRef]Message),
		chats:      make(map[string]bool),
		fail:       make(map[string]error),
		failCopyTo: make(map[int64]error),
		failSendTo: make(map[int64]error),
		usernames:  make(map[string]int64),
		stories:    make(map[int]*Story),
	}
}

var (
	_ PrimaryClient    = (*fakeClient)(nil)
	_ SecondaryClient  = (*fakeClient)(nil)
	_ PrivilegedClient = (*fakeClient)(nil)
)

func (f *fakeClient) add(msg *fakeMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[msg.ref] = msg
}

func (f *fakeClient) ref(to Destination) MessageRef {
	f.nextID++
	return MessageRef{Peer: to.Peer(), ID: f.nextID}
}

func (f *fakeClient) record(c sentCall) {
	f.sends = append(f.sends, c)
}

func (f *fakeClient) Sends() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.sends...)
}

func (f *fakeClient) SendsTo(chatID int64) []sentCall {
	var out []sentCall
	for _, s := range f.Sends() {
		if s.To.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeClient) Edits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.edits...)
}

func (f *fakeClient) Deleted(ref MessageRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deletes {
		if d == ref {
			return true
		}
	}
	return false
}

func (f *fakeClient) GetMessage(_ context.Context, peer Peer, id int) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.panicOnGet {
		panic("boom")
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	msg, ok := f.messages[MessageRef{Peer: peer, ID: id}]
	if !ok {
		return nil, ErrNotFound
	}
	return msg, nil
}

func (f *fakeClient) Download(ctx context.Context, msg Message, dir string, progress ProgressFunc) (string, error) {
	if err := f.fail["Download"]; err != nil {
		return "", err
	}
	fm := msg.(*fakeMessage)
	desc := Classify(fm)
	path := filepath.Join(dir, desc.DisplayName)
	if err := os.WriteFile(path, fm.content, 0o600); err != nil {
		return "", err
	}
	if progress != nil {
		total := int64(len(fm.content))
		progress(ctx, total/2, total)
		progress(ctx, total, total)
	}
	return path, nil
}

func (f *fakeClient) EditText(_ context.Context, _ MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeClient) DeleteMessage(_ context.Context, ref MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ref)
	return nil
}

func (f *fakeClient) GetChat(_ context.Context, peer Peer) (*ChatInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.chats[peer.String()] {
		return nil, ErrAccessDenied
	}
	return &ChatInfo{ID: peer.ID, Title: peer.String()}, nil
}

func (f *fakeClient) SendText(_ context.Context, to Destination, text string) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["SendText"]; err != nil {
		return MessageRef{}, err
	}
	if err := f.failSendTo[to.ChatID]; err != nil {
		return MessageRef{}, err
	}
	f.record(sentCall{Method: "SendText", To: to, Text: text})
	return f.ref(to), nil
}

func (f *fakeClient) SendMedia(_ context.Context, to Destination, kind MediaKind, path string, opts SendOptions) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["SendMedia"]; err != nil {
		return MessageRef{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return MessageRef{}, fmt.Errorf("send of missing file: %w", err)
	}
	f.record(sentCall{Method: "SendMedia", To: to, Kind: kind, Caption: opts.Caption, Size: info.Size(), Opts: CopyOptions{Protect: opts.Protect}})
	return f.ref(to), nil
}

func (f *fakeClient) SendByReference(_ context.Context, to Destination, kind MediaKind, fileRef, caption string) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["SendByReference"]; err != nil {
		return MessageRef{}, err
	}
	if err := f.failSendTo[to.ChatID]; err != nil {
		return MessageRef{}, err
	}
	f.record(sentCall{Method: "SendByReference", To: to, Kind: kind, Caption: caption, Text: fileRef})
	return f.ref(to), nil
}

func (f *fakeClient) CopyMessage(_ context.Context, to Destination, from MessageRef, opts CopyOptions) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failCopyTo[to.ChatID]; err != nil {
		return MessageRef{}, err
	}
	f.record(sentCall{Method: "CopyMessage", To: to, From: from, Opts: opts})
	return f.ref(to), nil
}

func (f *fakeClient) UploadFile(_ context.Context, path string, progress ProgressFunc) (*UploadedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(context.Background(), info.Size(), info.Size())
	}
	return &UploadedFile{Name: filepath.Base(path), Size: info.Size()}, nil
}

func (f *fakeClient) SendUploaded(_ context.Context, to Destination, file *UploadedFile, kind MediaKind, opts SendOptions) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(sentCall{Method: "SendUploaded", To: to, Kind: kind, Caption: opts.Caption, Size: file.Size})
	return f.ref(to), nil
}

func (f *fakeClient) GetStory(_ context.Context, _ Peer, id int) (*Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return story, nil
}

func (f *fakeClient) DownloadStory(_ context.Context, story *Story, dir string, _ ProgressFunc) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("story_%d", story.ID))
	return path, os.WriteFile(path, f.storyData, 0o600)
}

func (f *fakeClient) ResolveUsername(_ context.Context, username string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.usernames[username]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (f *fakeClient) JoinChat(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, username)
	return nil
}

// fakeStore is an in-memory PreferenceStore.
type fakeStore struct {
	mu        sync.Mutex
	values    map[string]any
	dests     map[int64][]Destination
	protected map[int64]struct{}
	resets    []int64
}

var _ PreferenceStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		values:    make(map[string]any),
		dests:     make(map[int64][]Destination),
		protected: make(map[int64]struct{}),
	}
}

func valueKey(userID int64, key string) string {
	return fmt.Sprintf("%d:%s", userID, key)
}

func (s *fakeStore) GetUserValue(_ context.Context, userID int64, key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[valueKey(userID, key)]
	if !ok {
		return false, nil
	}
	reflect.ValueOf(out).Elem().Set(reflect.ValueOf(v))
	return true, nil
}

func (s *fakeStore) SetUserValue(_ context.Context, userID int64, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[valueKey(userID, key)] = value
	return nil
}

func (s *fakeStore) GetDestinations(_ context.Context, userID int64) ([]Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dests[userID], nil
}

func (s *fakeStore) AddDestination(_ context.Context, userID int64, dest Destination) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dests[userID] = append(s.dests[userID], dest)
	return true, nil
}

func (s *fakeStore) RemoveDestination(_ context.Context, userID int64, chatID int64) (bool, error) {
	return false, errors.New("not implemented")
}

func (s *fakeStore) ListProtectedSources(context.Context) (map[int64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protected, nil
}

func (s *fakeStore) LockSource(_ context.Context, sourceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protected[sourceID] = struct{}{}
	return nil
}

func (s *fakeStore) ResetUserPreferences(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, userID)
	return nil
}

type fakeEntitlements struct {
	free bool
	err  error
}

func (f fakeEntitlements) IsFreeTier(context.Context, int64, int64) (bool, error) {
	return f.free, f.err
}

// fakeOps collects ops reports.
type fakeOps struct {
	mu      sync.Mutex
	reports []string
}

func (o *fakeOps) Report(_ context.Context, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, text)
	return nil
}

func (o *fakeOps) Reports() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.reports...)
}

type nopProber struct{}

func (nopProber) Probe(context.Context, string) (*VideoMeta, error) {
	return &VideoMeta{}, nil
}

const (
	testUserID   int64 = 7
	testMirrorID int64 = -1009999
)

// testEngine wires an Engine to fakes. mutate may adjust the options before
// the engine is built.
type testEngine struct {
	*Engine
	primary *fakeClient
	store   *fakeStore
	ops     *fakeOps
	workDir string
}

func newTestEngine(t *testing.T, mutate func(*Options)) *testEngine {
	t.Helper()
	primary := newFakeClient()
	store := newFakeStore()
	ops := &fakeOps{}
	workDir := t.TempDir()
	opts := Options{
		Config: Config{
			MirrorChatID: testMirrorID,
			WorkDir:      workDir,
		},
		Primary: primary,
		Store:   store,
		Ops:     ops,
		Prober:  nopProber{},
		Log:     zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEngine{Engine: e, primary: primary, store: store, ops: ops, workDir: workDir}
}

func (te *testEngine) request(link string) *Request {
	return &Request{
		UserID:        testUserID,
		Status:        MessageRef{Peer: PeerID(testUserID), ID: 1},
		Reference:     link,
		TriggerChatID: testUserID,
	}
}

// assertWorkDirEmpty checks that no artifact survived the request.
func (te *testEngine) assertWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(te.workDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("work dir should be empty, found %d entries", len(entries))
	}
}
