package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careguide/careguide-go/internal/metrics"
	"github.com/careguide/careguide-go/internal/models"
)

func TestCreateSession(t *testing.T) {
	var gotBody createSessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sessions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"sessionId":  "sess-1",
			"agentId":    "ckd-educator",
			"profile":    "patient",
			"lastOffset": 0,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "ckd-educator", "CareGuide Educator")
	desc, err := c.CreateSession(context.Background(), models.ProfilePatient)
	require.NoError(t, err)

	assert.Equal(t, "sess-1", desc.SessionID)
	assert.Equal(t, "ckd-educator", desc.AgentID)
	assert.Equal(t, models.ProfilePatient, desc.Profile)
	assert.Equal(t, 0, desc.LastOffset)

	assert.Equal(t, "ckd-educator", gotBody.AgentID)
	assert.Equal(t, "patient", gotBody.Profile)
	assert.Equal(t, 8, gotBody.MaxResults)
}

func TestCreateSessionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent pool exhausted", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "a", "A")
	_, err := c.CreateSession(context.Background(), models.ProfileGeneral)

	var scErr *SessionCreationError
	require.ErrorAs(t, err, &scErr)
	assert.Contains(t, err.Error(), "agent pool exhausted")
}

func TestCreateSessionUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "a", "A")
	_, err := c.CreateSession(context.Background(), models.ProfileGeneral)

	var scErr *SessionCreationError
	require.ErrorAs(t, err, &scErr)
}

func TestPostMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/sess-1/messages", r.URL.Path)
		var body postMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what can I eat?", body.Text)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, "a", "A")
	require.NoError(t, c.PostMessage(context.Background(), "sess-1", "what can I eat?"))
}

func TestPostMessageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "a", "A")
	err := c.PostMessage(context.Background(), "gone", "hi")

	var mpErr *MessagePostError
	require.ErrorAs(t, err, &mpErr)
}

func TestListEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/sess-1/events", r.URL.Path)
		require.Equal(t, "3", r.URL.Query().Get("since"))

		json.NewEncoder(w).Encode([]models.RawEvent{
			{ID: "e3", Kind: models.EventMessage, Source: "agent", Offset: 3, Data: json.RawMessage(`{"text":"hi"}`)},
			{ID: "e4", Kind: models.EventStatus, Source: "agent", Offset: 4, Data: json.RawMessage(`{"status":"thinking"}`)},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "a", "A")
	events, err := c.ListEvents(context.Background(), "sess-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 3, events[0].Offset)
	assert.Equal(t, models.EventStatus, events[1].Kind)
}

func TestListEventsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.RawEvent{})
	}))
	defer srv.Close()

	c := New(srv.URL, "a", "A")
	events, err := c.ListEvents(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListEventsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "a", "A")
	_, err := c.ListEvents(context.Background(), "sess-1", 0)

	var efErr *EventFetchError
	require.ErrorAs(t, err, &efErr)
	assert.True(t, errors.Is(err, efErr))
}

func TestMetricsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.RawEvent{})
	}))
	defer srv.Close()

	m := metrics.NewCollector()
	c := New(srv.URL, "a", "A", WithMetrics(m))

	_, err := c.ListEvents(context.Background(), "s", 0)
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Operations[metrics.OpEventList].Count)
}
