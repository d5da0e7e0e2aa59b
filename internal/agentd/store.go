// Package agentd is a development stand-in for the hosted agent service. It
// speaks the same session and event-log protocol the client consumes, serving
// scripted or LLM-generated replies so the portal can be exercised offline.
package agentd

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careguide/careguide-go/internal/models"
)

// session is one conversation's event log. Events are append-only and
// addressed by offset, so slow pollers can always catch up.
type session struct {
	mu         sync.Mutex
	id         string
	agentID    string
	profile    models.AudienceProfile
	maxResults int
	createdAt  time.Time
	events     []models.RawEvent
	nextOffset int
}

func (s *session) append(kind models.EventKind, source, correlationID string, data []byte) models.RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := models.RawEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		Source:        source,
		CorrelationID: correlationID,
		Offset:        s.nextOffset,
		Data:          data,
	}
	s.nextOffset++
	s.events = append(s.events, ev)
	return ev
}

func (s *session) eventsSince(offset int) []models.RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.events) {
		return nil
	}
	out := make([]models.RawEvent, len(s.events)-offset)
	copy(out, s.events[offset:])
	return out
}

// sessionStore holds all live sessions in memory. State resets with the
// process, which is the point of a dev backend.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (st *sessionStore) create(agentID string, profile models.AudienceProfile, maxResults int) *session {
	s := &session{
		id:         uuid.NewString(),
		agentID:    agentID,
		profile:    profile,
		maxResults: maxResults,
		createdAt:  time.Now(),
	}

	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s
}

func (st *sessionStore) get(id string) (*session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}
