// Package chat owns conversation state and wires user actions to the session
// client and the poller. It is the only place that mutates messages,
// citations or the session descriptor; the poller and classifier stay pure.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/careguide/careguide-go/internal/classify"
	"github.com/careguide/careguide-go/internal/metrics"
	"github.com/careguide/careguide-go/internal/models"
	"github.com/careguide/careguide-go/internal/poll"
)

// SessionAPI is the backend surface the orchestrator depends on. The session
// client implements it; tests substitute fakes.
type SessionAPI interface {
	CreateSession(ctx context.Context, profile models.AudienceProfile) (models.SessionDescriptor, error)
	PostMessage(ctx context.Context, sessionID, text string) error
	ListEvents(ctx context.Context, sessionID string, sinceOffset int) ([]models.RawEvent, error)
}

// SessionCache persists the active session descriptor between runs.
type SessionCache interface {
	Save(desc models.SessionDescriptor, at time.Time) error
	Load(maxAge time.Duration) (models.SessionDescriptor, bool, error)
	Clear() error
}

// State is a point-in-time copy of everything a renderer needs. Slices are
// copies; mutating them does not affect the orchestrator.
type State struct {
	Profile       models.AudienceProfile
	Session       *models.SessionDescriptor
	Messages      []models.ConversationMessage
	Citations     []models.CitationRecord
	Sending       bool
	Bootstrapping bool
	LastError     string
}

// Orchestrator coordinates one logical conversation. All exported methods
// are safe for concurrent use.
type Orchestrator struct {
	api     SessionAPI
	poller  *poll.Poller
	cache   SessionCache
	logger  *slog.Logger
	metrics *metrics.Collector

	agentID       string
	restoreMaxAge time.Duration
	onUpdate      func()

	mu            sync.Mutex
	profile       models.AudienceProfile
	session       *models.SessionDescriptor
	messages      []models.ConversationMessage
	citations     []models.CitationRecord
	citationSeen  map[string]struct{}
	sending       bool
	bootstrapping bool
	lastError     string
	token         *poll.Token
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables session persistence across runs.
func WithCache(cache SessionCache) Option {
	return func(o *Orchestrator) { o.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics records poll-loop timings into the collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithOnUpdate registers a callback invoked after every state change, so a
// renderer can repaint incrementally while a poll loop is still running.
func WithOnUpdate(fn func()) Option {
	return func(o *Orchestrator) { o.onUpdate = fn }
}

// WithRestoreMaxAge bounds how old a cached session may be before restore
// gives up and bootstraps a fresh one.
func WithRestoreMaxAge(d time.Duration) Option {
	return func(o *Orchestrator) { o.restoreMaxAge = d }
}

// WithPollOptions overrides the poller tuning (tests).
func WithPollOptions(opts poll.Options) Option {
	return func(o *Orchestrator) {
		o.poller = poll.New(o.api, classify.New(o.agentID), opts)
	}
}

// New creates an orchestrator for the given profile. agentID extends the
// classifier's allow-list of assistant source tags.
func New(api SessionAPI, profile models.AudienceProfile, agentID string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:           api,
		agentID:       agentID,
		profile:       profile,
		logger:        slog.Default(),
		restoreMaxAge: poll.DefaultIdleTimeout,
		citationSeen:  make(map[string]struct{}),
	}
	o.poller = poll.New(api, classify.New(agentID), poll.Options{})
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetOnUpdate installs the state-change callback after construction, for
// callers whose renderer only exists once the orchestrator does.
func (o *Orchestrator) SetOnUpdate(fn func()) {
	o.mu.Lock()
	o.onUpdate = fn
	o.mu.Unlock()
}

// Bootstrap establishes the initial session: a cached descriptor younger
// than the restore ceiling when available, otherwise a fresh backend
// session. Call once at startup.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	if o.cache != nil {
		if desc, ok, err := o.cache.Load(o.restoreMaxAge); err != nil {
			o.logger.Warn("session cache unreadable, starting fresh", "error", err)
		} else if ok {
			o.mu.Lock()
			o.session = &desc
			o.profile = desc.Profile
			o.mu.Unlock()
			o.logger.Info("session restored", "session", desc.SessionID, "profile", desc.Profile, "offset", desc.LastOffset)
			o.notify()
			return nil
		}
	}
	return o.createSession(ctx, o.currentProfile())
}

// SwitchProfile retires the current session and conversation and bootstraps
// a fresh session tagged with the new profile. Any running poll loop is
// stopped first so its late results cannot leak into the new session.
func (o *Orchestrator) SwitchProfile(ctx context.Context, profile models.AudienceProfile) error {
	o.mu.Lock()
	if o.token != nil {
		o.token.Stop()
	}
	o.session = nil
	o.messages = nil
	o.citations = nil
	o.citationSeen = make(map[string]struct{})
	o.profile = profile
	o.lastError = ""
	o.mu.Unlock()
	o.notify()

	return o.createSession(ctx, profile)
}

// StartNewSession resets a stale or expired conversation, keeping the
// current profile.
func (o *Orchestrator) StartNewSession(ctx context.Context) error {
	return o.SwitchProfile(ctx, o.currentProfile())
}

// SendMessage posts a user utterance and polls the reply to completion,
// updating conversation state incrementally. A missing session, blank text,
// or a turn already in flight makes it a no-op: one poll loop at a time per
// orchestrator, otherwise concurrent turns would capture the same start
// offset and double-apply the overlapping events. The returned error is also
// recorded in the state's LastError; callers rendering the state may ignore
// it.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)

	o.mu.Lock()
	if o.session == nil || trimmed == "" || o.sending {
		o.mu.Unlock()
		return nil
	}
	// Optimistic append: the user message stays visible even if the post
	// fails, so the user can judge whether to retry.
	o.messages = append(o.messages, models.NewUserMessage(trimmed))
	o.sending = true
	o.lastError = ""
	o.token = poll.NewToken()
	token := o.token
	sessionID := o.session.SessionID
	startOffset := o.session.LastOffset
	o.mu.Unlock()
	o.notify()

	if err := o.api.PostMessage(ctx, sessionID, trimmed); err != nil {
		o.finishTurn(sessionID, 0, err)
		return err
	}

	start := time.Now()
	res, err := o.poller.Run(ctx, sessionID, startOffset, token, &pollSink{o: o, sessionID: sessionID})
	if o.metrics != nil {
		o.metrics.RecordTiming(metrics.OpPollLoop, time.Since(start))
	}
	o.logger.Debug("poll loop finished",
		"session", sessionID, "state", res.State.String(), "advanced", res.Advanced, "error", err)

	o.finishTurn(sessionID, res.Advanced, err)
	return err
}

// RequestStop asks the running poll loop to stop after its current
// iteration. Idempotent; a no-op when nothing is polling.
func (o *Orchestrator) RequestStop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token != nil {
		o.token.Stop()
	}
}

// Logout discards the session and conversation and clears the cache.
func (o *Orchestrator) Logout() error {
	o.mu.Lock()
	if o.token != nil {
		o.token.Stop()
	}
	o.session = nil
	o.messages = nil
	o.citations = nil
	o.citationSeen = make(map[string]struct{})
	o.lastError = ""
	o.mu.Unlock()
	o.notify()

	if o.cache != nil {
		return o.cache.Clear()
	}
	return nil
}

// Snapshot returns a copy of the renderable state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := State{
		Profile:       o.profile,
		Messages:      append([]models.ConversationMessage(nil), o.messages...),
		Citations:     append([]models.CitationRecord(nil), o.citations...),
		Sending:       o.sending,
		Bootstrapping: o.bootstrapping,
		LastError:     o.lastError,
	}
	if o.session != nil {
		desc := *o.session
		st.Session = &desc
	}
	return st
}

func (o *Orchestrator) currentProfile() models.AudienceProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.profile
}

func (o *Orchestrator) createSession(ctx context.Context, profile models.AudienceProfile) error {
	o.mu.Lock()
	o.bootstrapping = true
	o.mu.Unlock()
	o.notify()

	desc, err := o.api.CreateSession(ctx, profile)

	o.mu.Lock()
	o.bootstrapping = false
	if err != nil {
		// Session stays absent; sends are no-ops until a retry succeeds.
		o.lastError = err.Error()
		o.mu.Unlock()
		o.notify()
		return err
	}
	o.session = &desc
	o.lastError = ""
	o.mu.Unlock()
	o.notify()

	o.logger.Info("session created", "session", desc.SessionID, "profile", profile)
	o.persistSession()
	return nil
}

// finishTurn folds a completed turn back into state. The offset delta is
// applied only when the descriptor the turn started with is still current.
func (o *Orchestrator) finishTurn(sessionID string, advanced int, err error) {
	o.mu.Lock()
	if o.session != nil && o.session.SessionID == sessionID {
		o.session.LastOffset += advanced
	}
	o.sending = false
	if err != nil {
		o.lastError = err.Error()
	}
	o.mu.Unlock()
	o.notify()
	o.persistSession()
}

func (o *Orchestrator) persistSession() {
	if o.cache == nil {
		return
	}
	o.mu.Lock()
	var desc *models.SessionDescriptor
	if o.session != nil {
		d := *o.session
		desc = &d
	}
	o.mu.Unlock()

	if desc == nil {
		return
	}
	if err := o.cache.Save(*desc, time.Now()); err != nil {
		o.logger.Warn("failed to persist session", "error", err)
	}
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	fn := o.onUpdate
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// pollSink applies classified batches to orchestrator state. It is bound to
// the session the poll started with; results arriving after that session was
// superseded are dropped, which is the stale-write guard.
type pollSink struct {
	o         *Orchestrator
	sessionID string
}

func (s *pollSink) ApplyMessages(msgs []models.ConversationMessage) {
	o := s.o
	o.mu.Lock()
	if o.session == nil || o.session.SessionID != s.sessionID {
		o.mu.Unlock()
		o.logger.Debug("dropping messages from superseded poll", "session", s.sessionID)
		return
	}
	for _, msg := range msgs {
		// Status refinement: an earlier interim reply of the same turn is
		// considered settled once a newer one arrives.
		for i := range o.messages {
			if o.messages[i].Role == models.RoleAssistant &&
				o.messages[i].CorrelationID == msg.CorrelationID &&
				o.messages[i].Status != models.StatusReady {
				o.messages[i].Status = models.StatusReady
			}
		}
		o.messages = append(o.messages, msg)
	}
	o.mu.Unlock()
	o.notify()
}

func (s *pollSink) ApplyCitations(papers []models.CitationRecord) {
	o := s.o
	o.mu.Lock()
	if o.session == nil || o.session.SessionID != s.sessionID {
		o.mu.Unlock()
		o.logger.Debug("dropping citations from superseded poll", "session", s.sessionID)
		return
	}
	added := false
	for _, p := range papers {
		if _, seen := o.citationSeen[p.ID]; seen {
			continue
		}
		o.citationSeen[p.ID] = struct{}{}
		o.citations = append(o.citations, p)
		added = true
	}
	o.mu.Unlock()
	if added {
		o.notify()
	}
}
