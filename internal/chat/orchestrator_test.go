package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/careguide/careguide-go/internal/classify"
	"github.com/careguide/careguide-go/internal/models"
	"github.com/careguide/careguide-go/internal/poll"
)

type listBatch struct {
	events []models.RawEvent
	err    error
}

// fakeAPI scripts the backend: sessions get sequential ids, event batches
// are served from a queue regardless of the requested offset.
type fakeAPI struct {
	mu        sync.Mutex
	created   int
	createErr error
	postErr   error
	posted    []string
	batches   []listBatch
	listCalls int
}

func (f *fakeAPI) CreateSession(_ context.Context, profile models.AudienceProfile) (models.SessionDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.SessionDescriptor{}, f.createErr
	}
	f.created++
	return models.SessionDescriptor{
		SessionID: fmt.Sprintf("sess-%d", f.created),
		AgentID:   "ckd-educator",
		Profile:   profile,
	}, nil
}

func (f *fakeAPI) PostMessage(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, text)
	return nil
}

func (f *fakeAPI) ListEvents(_ context.Context, _ string, _ int) ([]models.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.listCalls
	f.listCalls++
	if idx < len(f.batches) {
		return f.batches[idx].events, f.batches[idx].err
	}
	return nil, nil
}

func assistantEvent(id string, offset int, text string) models.RawEvent {
	data, _ := json.Marshal(map[string]string{"text": text})
	return models.RawEvent{
		ID:     id,
		Kind:   models.EventMessage,
		Source: "agent",
		Offset: offset,
		Data:   data,
	}
}

func paperEvent(offset int, pmid, title string) models.RawEvent {
	data, _ := json.Marshal(map[string]any{
		"tool":   classify.LiteratureSearchTool,
		"output": map[string]any{"papers": []map[string]any{{"pmid": pmid, "title": title}}},
	})
	return models.RawEvent{ID: "tool-" + pmid, Kind: models.EventTool, Source: "agent", Offset: offset, Data: data}
}

func newTestOrchestrator(api SessionAPI) *Orchestrator {
	return New(api, models.ProfilePatient, "ckd-educator",
		WithPollOptions(poll.Options{
			Sleep: func(context.Context, time.Duration) error { return nil },
		}),
	)
}

func TestSendMessageWithoutSessionIsNoOp(t *testing.T) {
	api := &fakeAPI{}
	o := newTestOrchestrator(api)

	if err := o.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.posted) != 0 {
		t.Errorf("posted %v without a session", api.posted)
	}
	if len(o.Snapshot().Messages) != 0 {
		t.Errorf("messages appended without a session")
	}
}

func TestSendMessageBlankIsNoOp(t *testing.T) {
	api := &fakeAPI{}
	o := newTestOrchestrator(api)
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if err := o.SendMessage(context.Background(), "   \t\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.posted) != 0 || len(o.Snapshot().Messages) != 0 {
		t.Errorf("whitespace-only message should be ignored")
	}
}

func TestSendMessageHappyPath(t *testing.T) {
	api := &fakeAPI{batches: []listBatch{
		{events: []models.RawEvent{
			assistantEvent("a1", 0, "Apples are a kidney-friendly fruit."),
			paperEvent(1, "123", "Potassium intake in CKD"),
		}},
		{events: []models.RawEvent{
			assistantEvent("a2", 2, classify.DisclaimerMarker),
		}},
	}}
	o := newTestOrchestrator(api)
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if err := o.SendMessage(context.Background(), "what fruit can I eat?"); err != nil {
		t.Fatalf("send: %v", err)
	}

	st := o.Snapshot()
	if len(st.Messages) != 3 {
		t.Fatalf("got %d messages, want 3 (user + 2 assistant)", len(st.Messages))
	}
	if st.Messages[0].Role != models.RoleUser {
		t.Errorf("first message role = %q", st.Messages[0].Role)
	}
	if st.Messages[1].Text != "Apples are a kidney-friendly fruit." {
		t.Errorf("assistant text = %q", st.Messages[1].Text)
	}
	if len(st.Citations) != 1 || st.Citations[0].ID != "123" {
		t.Errorf("citations = %+v", st.Citations)
	}
	if st.Session.LastOffset != 3 {
		t.Errorf("lastOffset = %d, want 3", st.Session.LastOffset)
	}
	if st.Sending {
		t.Error("sending flag still set")
	}
	if st.LastError != "" {
		t.Errorf("lastError = %q", st.LastError)
	}
}

func TestSendMessagePostFailure(t *testing.T) {
	api := &fakeAPI{postErr: errors.New("backend unreachable")}
	o := newTestOrchestrator(api)
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	err := o.SendMessage(context.Background(), "hello?")
	if err == nil {
		t.Fatal("expected error")
	}

	st := o.Snapshot()
	// Optimistic message survives the failure.
	if len(st.Messages) != 1 || st.Messages[0].Role != models.RoleUser {
		t.Errorf("messages = %+v", st.Messages)
	}
	if st.LastError == "" {
		t.Error("lastError not recorded")
	}
	if st.Sending {
		t.Error("sending flag stuck")
	}
	if api.listCalls != 0 {
		t.Errorf("polled %d times after a failed post", api.listCalls)
	}
}

func TestPollFailurePreservesPartialProgress(t *testing.T) {
	api := &fakeAPI{batches: []listBatch{
		{events: []models.RawEvent{assistantEvent("a1", 0, "partial answer")}},
		{err: errors.New("connection reset")},
	}}
	o := newTestOrchestrator(api)
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	err := o.SendMessage(context.Background(), "question")
	if err == nil {
		t.Fatal("expected poll error surfaced")
	}

	st := o.Snapshot()
	if len(st.Messages) != 2 {
		t.Errorf("got %d messages, want user + 1 assistant from the successful batch", len(st.Messages))
	}
	if st.Session.LastOffset != 1 {
		t.Errorf("lastOffset = %d, want 1 (partial advancement preserved)", st.Session.LastOffset)
	}
	if st.LastError == "" {
		t.Error("lastError not recorded")
	}
	if st.Sending {
		t.Error("sending flag stuck")
	}
}

func TestBootstrapFailureBlocksSending(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("503 unavailable")}
	o := newTestOrchestrator(api)

	if err := o.Bootstrap(context.Background()); err == nil {
		t.Fatal("expected bootstrap error")
	}

	st := o.Snapshot()
	if st.Session != nil {
		t.Error("session should be absent after failed bootstrap")
	}
	if st.Bootstrapping {
		t.Error("bootstrapping flag stuck")
	}
	if st.LastError == "" {
		t.Error("lastError not recorded")
	}

	// Sends stay no-ops until a session exists.
	if err := o.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("send should be a silent no-op, got %v", err)
	}
	if len(api.posted) != 0 {
		t.Error("message posted without a session")
	}
}

func TestSwitchProfileDiscardsConversation(t *testing.T) {
	api := &fakeAPI{batches: []listBatch{
		{events: []models.RawEvent{assistantEvent("a1", 0, classify.DisclaimerMarker)}},
	}}
	o := newTestOrchestrator(api)
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := o.SendMessage(context.Background(), "first question"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(o.Snapshot().Messages) == 0 {
		t.Fatal("setup failed: no conversation")
	}

	if err := o.SwitchProfile(context.Background(), models.ProfileResearcher); err != nil {
		t.Fatalf("switch: %v", err)
	}

	st := o.Snapshot()
	if st.Profile != models.ProfileResearcher {
		t.Errorf("profile = %q", st.Profile)
	}
	if len(st.Messages) != 0 || len(st.Citations) != 0 {
		t.Error("conversation state should be discarded on profile switch")
	}
	if st.Session == nil || st.Session.SessionID != "sess-2" {
		t.Errorf("session = %+v, want fresh sess-2", st.Session)
	}
	if st.Session.LastOffset != 0 {
		t.Errorf("fresh session lastOffset = %d", st.Session.LastOffset)
	}
}

func TestStaleSinkDropsResultsFromSupersededSession(t *testing.T) {
	api := &fakeAPI{}
	o := newTestOrchestrator(api)
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// A poll loop bound to sess-1 delivers after the session was replaced.
	stale := &pollSink{o: o, sessionID: "sess-1"}
	if err := o.StartNewSession(context.Background()); err != nil {
		t.Fatalf("new session: %v", err)
	}

	stale.ApplyMessages([]models.ConversationMessage{
		{ID: "late", Role: models.RoleAssistant, Text: "late reply"},
	})
	stale.ApplyCitations([]models.CitationRecord{{ID: "p1"}})

	st := o.Snapshot()
	if len(st.Messages) != 0 {
		t.Errorf("stale messages leaked into new session: %+v", st.Messages)
	}
	if len(st.Citations) != 0 {
		t.Errorf("stale citations leaked into new session: %+v", st.Citations)
	}
}

func TestCitationDedupAcrossTurns(t *testing.T) {
	api := &fakeAPI{batches: []listBatch{
		{events: []models.RawEvent{
			paperEvent(0, "42", "Sodium restriction"),
			assistantEvent("a1", 1, classify.DisclaimerMarker),
		}},
		{events: []models.RawEvent{
			paperEvent(2, "42", "Sodium restriction"),
			assistantEvent("a2", 3, classify.DisclaimerMarker),
		}},
	}}
	o := newTestOrchestrator(api)
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if err := o.SendMessage(context.Background(), "turn one"); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if err := o.SendMessage(context.Background(), "turn two"); err != nil {
		t.Fatalf("send 2: %v", err)
	}

	st := o.Snapshot()
	if len(st.Citations) != 1 {
		t.Errorf("citations = %d, want 1 after dedup", len(st.Citations))
	}
}

// blockingAPI serves scripted batches but parks the first event fetch until
// released, keeping that turn's poll loop in flight.
type blockingAPI struct {
	fakeAPI
	fetchEntered chan struct{}
	release      chan struct{}
	enteredOnce  sync.Once
}

func (b *blockingAPI) ListEvents(ctx context.Context, sessionID string, since int) ([]models.RawEvent, error) {
	b.enteredOnce.Do(func() { close(b.fetchEntered) })
	<-b.release
	return b.fakeAPI.ListEvents(ctx, sessionID, since)
}

func TestSendMessageWhileTurnInFlightIsNoOp(t *testing.T) {
	api := &blockingAPI{
		fakeAPI: fakeAPI{batches: []listBatch{
			{events: []models.RawEvent{assistantEvent("a1", 0, classify.DisclaimerMarker)}},
		}},
		fetchEntered: make(chan struct{}),
		release:      make(chan struct{}),
	}
	o := newTestOrchestrator(api)
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- o.SendMessage(context.Background(), "first question") }()
	<-api.fetchEntered

	// A second send while the first turn is still polling is dropped: it
	// would capture the same start offset and double-apply the turn's events.
	if err := o.SendMessage(context.Background(), "second question"); err != nil {
		t.Fatalf("concurrent send should be a silent no-op, got %v", err)
	}
	api.mu.Lock()
	posted := len(api.posted)
	api.mu.Unlock()
	if posted != 1 {
		t.Errorf("posted %d messages, want 1 (second send dropped)", posted)
	}

	close(api.release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}

	st := o.Snapshot()
	if len(st.Messages) != 2 {
		t.Errorf("got %d messages, want 2 (one user + one assistant, applied once)", len(st.Messages))
	}
	if st.Session.LastOffset != 1 {
		t.Errorf("lastOffset = %d, want 1 (single turn's advancement)", st.Session.LastOffset)
	}
	if st.Sending {
		t.Error("sending flag stuck")
	}
}

func TestRequestStopIsIdempotent(t *testing.T) {
	o := newTestOrchestrator(&fakeAPI{})
	o.RequestStop()
	o.RequestStop()
}

type memoryCache struct {
	desc  *models.SessionDescriptor
	at    time.Time
	saves int
}

func (m *memoryCache) Save(desc models.SessionDescriptor, at time.Time) error {
	m.desc = &desc
	m.at = at
	m.saves++
	return nil
}

func (m *memoryCache) Load(maxAge time.Duration) (models.SessionDescriptor, bool, error) {
	if m.desc == nil || time.Since(m.at) > maxAge {
		return models.SessionDescriptor{}, false, nil
	}
	return *m.desc, true, nil
}

func (m *memoryCache) Clear() error {
	m.desc = nil
	return nil
}

func TestBootstrapRestoresCachedSession(t *testing.T) {
	api := &fakeAPI{}
	cache := &memoryCache{
		desc: &models.SessionDescriptor{SessionID: "cached", Profile: models.ProfileResearcher, LastOffset: 12},
		at:   time.Now(),
	}
	o := New(api, models.ProfilePatient, "ckd-educator", WithCache(cache))

	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	st := o.Snapshot()
	if api.created != 0 {
		t.Errorf("created %d sessions despite cache hit", api.created)
	}
	if st.Session == nil || st.Session.SessionID != "cached" || st.Session.LastOffset != 12 {
		t.Errorf("session = %+v", st.Session)
	}
	if st.Profile != models.ProfileResearcher {
		t.Errorf("profile should follow the restored session, got %q", st.Profile)
	}
}

func TestLogoutClearsCache(t *testing.T) {
	api := &fakeAPI{}
	cache := &memoryCache{}
	o := New(api, models.ProfilePatient, "ckd-educator", WithCache(cache))
	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if cache.desc == nil {
		t.Fatal("session not persisted on bootstrap")
	}

	if err := o.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if cache.desc != nil {
		t.Error("cache not cleared on logout")
	}
	if o.Snapshot().Session != nil {
		t.Error("session not discarded on logout")
	}
}
