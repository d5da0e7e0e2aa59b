package agentd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/careguide/careguide-go/internal/classify"
	"github.com/careguide/careguide-go/internal/models"
)

// Replier composes a free-form answer when no scenario matches. The llm
// package's Model satisfies it; the server works without one.
type Replier interface {
	ComposeReply(ctx context.Context, profile models.AudienceProfile, question string) (string, error)
}

// Server implements the agent session protocol over an in-memory event log.
type Server struct {
	store     *sessionStore
	scenarios []Scenario
	replier   Replier
	logger    *slog.Logger
	stepDelay time.Duration
	hub       *debugHub
}

// Option configures a Server.
type Option func(*Server)

// WithScenarios installs scripted replies.
func WithScenarios(scenarios []Scenario) Option {
	return func(s *Server) { s.scenarios = scenarios }
}

// WithReplier enables LLM-composed answers for unmatched messages.
func WithReplier(r Replier) Option {
	return func(s *Server) { s.replier = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStepDelay spaces the events of one reply turn apart, so polling
// clients see the conversation build up incrementally. Zero emits the whole
// turn at once.
func WithStepDelay(d time.Duration) Option {
	return func(s *Server) { s.stepDelay = d }
}

// New creates a dev agent server.
func New(opts ...Option) *Server {
	s := &Server{
		store:     newSessionStore(),
		logger:    slog.Default(),
		stepDelay: 300 * time.Millisecond,
		hub:       newDebugHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/sessions", s.handleCreateSession)
	r.Post("/sessions/{sessionID}/messages", s.handlePostMessage)
	r.Get("/sessions/{sessionID}/events", s.handleListEvents)
	r.Get("/debug/stream", s.hub.handleStream)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

type createSessionRequest struct {
	AgentID    string `json:"agentId"`
	AgentName  string `json:"agentName"`
	Profile    string `json:"profile"`
	MaxResults int    `json:"maxResults"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := models.ParseProfile(req.Profile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = profile.MaxResults()
	}

	sess := s.store.create(req.AgentID, profile, maxResults)
	s.logger.Info("session created",
		"session", sess.id, "agent", req.AgentID, "profile", profile, "maxResults", maxResults)

	writeJSON(w, http.StatusCreated, models.SessionDescriptor{
		SessionID:  sess.id,
		AgentID:    sess.agentID,
		Profile:    sess.profile,
		LastOffset: 0,
	})
}

type postMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.store.get(chi.URLParam(r, "sessionID"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text must not be empty", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	go s.runTurn(sess, req.Text)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.store.get(chi.URLParam(r, "sessionID"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	since := 0
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "since must be an integer", http.StatusBadRequest)
			return
		}
		since = n
	}

	events := sess.eventsSince(since)
	if events == nil {
		events = []models.RawEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// runTurn emits the full reply to one user message: a thinking status, an
// optional literature tool result, the answer (with any scenario attachment)
// and the closing disclaimer. All events of the turn share a correlation base
// with distinct step suffixes.
func (s *Server) runTurn(sess *session, text string) {
	turn := uuid.NewString()[:8]
	step := 0
	corr := func() string {
		c := turn + "::" + strconv.Itoa(step)
		step++
		return c
	}
	emit := func(kind models.EventKind, data any) {
		raw, err := json.Marshal(data)
		if err != nil {
			s.logger.Error("marshal event payload", "error", err)
			return
		}
		ev := sess.append(kind, sess.agentID, corr(), raw)
		s.hub.broadcast(ev)
		if s.stepDelay > 0 {
			time.Sleep(s.stepDelay)
		}
	}

	emit(models.EventStatus, map[string]string{"status": "thinking"})

	scenario, matched := matchScenario(s.scenarios, text)
	reply := scenario.Reply
	if !matched {
		reply = s.composeReply(sess.profile, text)
	}

	if matched && len(scenario.Papers) > 0 {
		papers := scenario.Papers
		if len(papers) > sess.maxResults {
			papers = papers[:sess.maxResults]
		}
		emit(models.EventTool, map[string]any{
			"tool":   classify.LiteratureSearchTool,
			"output": map[string]any{"papers": papers},
		})
	}

	answer := map[string]any{"text": reply}
	if matched && scenario.Attachment != nil {
		answer["kind"] = scenario.Attachment["kind"]
		answer["payload"] = scenario.Attachment["payload"]
	}
	emit(models.EventMessage, answer)

	emit(models.EventMessage, map[string]string{"text": classify.DisclaimerMarker})
}

func (s *Server) composeReply(profile models.AudienceProfile, text string) string {
	if s.replier == nil {
		return defaultReply
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reply, err := s.replier.ComposeReply(ctx, profile, text)
	if err != nil {
		s.logger.Warn("llm reply failed, using fallback", "error", err)
		return defaultReply
	}
	return reply
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}
