// Package poll drives the event-log polling loop: a backoff timer, a
// cooperative stop token and the poller state machine that feeds fetched
// events through the classifier into conversation state.
package poll

import (
	"math"
	"time"
)

// Polling defaults. The delay sequence is 800ms, 1280ms, 2048ms, ... capped
// at 6s; a conversation with no new events for 10 minutes is abandoned.
const (
	DefaultInitialDelay = 800 * time.Millisecond
	DefaultMaxDelay     = 6 * time.Second
	DefaultFactor       = 1.6
	DefaultIdleTimeout  = 10 * time.Minute
)

// Backoff produces the exponential delay sequence between polls.
type Backoff struct {
	next   time.Duration
	max    time.Duration
	factor float64
}

// NewBackoff creates a backoff starting at initial, multiplying by factor
// (rounded to whole milliseconds) and capping at max.
func NewBackoff(initial, max time.Duration, factor float64) *Backoff {
	return &Backoff{next: initial, max: max, factor: factor}
}

// Next returns the delay to sleep now and escalates the following one.
func (b *Backoff) Next() time.Duration {
	d := b.next
	ms := math.Round(float64(b.next)/float64(time.Millisecond)*b.factor)
	escalated := time.Duration(ms) * time.Millisecond
	if escalated > b.max {
		escalated = b.max
	}
	b.next = escalated
	return d
}
