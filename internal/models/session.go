package models

// SessionDescriptor identifies one backend conversation session. LastOffset is
// the exclusive upper bound of event-log positions already consumed; it only
// grows within a descriptor's lifetime. Descriptors are retired wholesale when
// the profile changes or a new session is requested, never mutated into a
// different session.
type SessionDescriptor struct {
	SessionID  string          `json:"sessionId"`
	AgentID    string          `json:"agentId"`
	Profile    AudienceProfile `json:"profile"`
	LastOffset int             `json:"lastOffset"`
}
