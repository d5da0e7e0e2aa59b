package poll

import "sync/atomic"

// Token is a cooperative cancellation flag shared between the orchestrator
// and one poll loop. The loop consults it between iterations; an in-flight
// request is never aborted, stopping only prevents the next iteration. Each
// poll invocation gets its own token so a superseded loop cannot observe a
// newer session's flag.
type Token struct {
	stopped atomic.Bool
}

// NewToken returns a fresh, unstopped token.
func NewToken() *Token {
	return &Token{}
}

// Stop requests termination. Idempotent.
func (t *Token) Stop() {
	t.stopped.Store(true)
}

// Stopped reports whether termination was requested.
func (t *Token) Stopped() bool {
	return t.stopped.Load()
}
