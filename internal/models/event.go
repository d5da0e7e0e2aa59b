package models

import "encoding/json"

// EventKind discriminates entries in the backend event log.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventStatus  EventKind = "status"
	EventTool    EventKind = "tool"
)

// RawEvent is one entry of the backend event log, exactly as returned by
// GET /sessions/{id}/events. Events are immutable and offset-ordered; the
// client only ever reads them.
type RawEvent struct {
	ID            string          `json:"id"`
	Kind          EventKind       `json:"kind"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Offset        int             `json:"offset"`
	Data          json.RawMessage `json:"data,omitempty"`
}
