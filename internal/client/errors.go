package client

import "fmt"

// SessionCreationError means session bootstrap failed; the conversation
// cannot proceed until the caller retries or switches profile.
type SessionCreationError struct {
	Err error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("create session: %v", e.Err)
}

func (e *SessionCreationError) Unwrap() error { return e.Err }

// MessagePostError means a user utterance never reached the backend. The
// optimistic local message stays visible; retrying is the user's call.
type MessagePostError struct {
	Err error
}

func (e *MessagePostError) Error() string {
	return fmt.Sprintf("post message: %v", e.Err)
}

func (e *MessagePostError) Unwrap() error { return e.Err }

// EventFetchError means one poll iteration failed. Progress accumulated
// before the failure is preserved by the poller.
type EventFetchError struct {
	Err error
}

func (e *EventFetchError) Error() string {
	return fmt.Sprintf("fetch events: %v", e.Err)
}

func (e *EventFetchError) Unwrap() error { return e.Err }
