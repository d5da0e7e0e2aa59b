package poll

import (
	"context"
	"log/slog"
	"time"

	"github.com/careguide/careguide-go/internal/classify"
	"github.com/careguide/careguide-go/internal/models"
)

// State names the poll loop's terminal condition.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateStopped
	StateIdleTimeout
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	case StateIdleTimeout:
		return "idle_timeout"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventSource fetches new events for a session. Implemented by the session
// client; tests substitute scripted fakes.
type EventSource interface {
	ListEvents(ctx context.Context, sessionID string, sinceOffset int) ([]models.RawEvent, error)
}

// Sink receives classified output incrementally, batch by batch, so a caller
// rendering conversation state sees partial progress while the loop is still
// running. Implementations own deduplication and any staleness checks.
type Sink interface {
	ApplyMessages(msgs []models.ConversationMessage)
	ApplyCitations(papers []models.CitationRecord)
}

// Result reports how a poll loop ended. Advanced is the offset delta
// accumulated before exit; it is valid even when the loop ended in an error.
type Result struct {
	Advanced int
	State    State
}

// Options tunes a Poller. Zero fields take the package defaults; Now and
// Sleep exist so tests can run the loop without real time passing.
type Options struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	IdleTimeout  time.Duration
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Factor <= 1 {
		o.Factor = DefaultFactor
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poller runs the sequential fetch-classify-sleep loop for one turn.
type Poller struct {
	src        EventSource
	classifier *classify.Classifier
	opts       Options
}

// New creates a Poller over the given event source and classifier.
func New(src EventSource, classifier *classify.Classifier, opts Options) *Poller {
	return &Poller{src: src, classifier: classifier, opts: opts.withDefaults()}
}

// Run polls events for sessionID starting at startOffset until the turn
// completes (disclaimer observed), the token is stopped, the idle ceiling is
// reached, or a fetch fails. Exactly one fetch is in flight at a time.
//
// The returned Result carries the offset advancement accumulated up to the
// exit point, so the caller can fold it into the session descriptor even
// after a failure.
func (p *Poller) Run(ctx context.Context, sessionID string, startOffset int, token *Token, sink Sink) (Result, error) {
	offset := startOffset
	backoff := NewBackoff(p.opts.InitialDelay, p.opts.MaxDelay, p.opts.Factor)
	lastEventAt := p.opts.Now()

	for {
		if token.Stopped() {
			return Result{Advanced: offset - startOffset, State: StateStopped}, nil
		}
		if p.opts.Now().Sub(lastEventAt) >= p.opts.IdleTimeout {
			p.opts.Logger.Info("poll loop idle timeout", "session", sessionID, "offset", offset)
			return Result{Advanced: offset - startOffset, State: StateIdleTimeout}, nil
		}

		events, err := p.src.ListEvents(ctx, sessionID, offset)
		if err != nil {
			// No internal retry: partial progress is preserved, presenting
			// the failure is the orchestrator's job.
			return Result{Advanced: offset - startOffset, State: StateError}, err
		}

		if len(events) > 0 {
			offset = nextOffset(events, offset)
			lastEventAt = p.opts.Now()

			msgs := p.classifier.ExtractAssistantMessages(events)
			papers := p.classifier.ExtractPaperResults(events)
			if len(msgs) > 0 {
				sink.ApplyMessages(msgs)
			}
			if len(papers) > 0 {
				sink.ApplyCitations(papers)
			}

			if classify.HasDisclaimer(msgs) {
				// Turn complete; skip the sleep and let the top-of-loop
				// check finish the loop.
				token.Stop()
				continue
			}
		}

		if err := p.opts.Sleep(ctx, backoff.Next()); err != nil {
			return Result{Advanced: offset - startOffset, State: StateStopped}, nil
		}
	}
}

// nextOffset returns one past the highest offset in the batch, never
// regressing below the current offset.
func nextOffset(events []models.RawEvent, current int) int {
	next := current
	for _, ev := range events {
		if ev.Offset+1 > next {
			next = ev.Offset + 1
		}
	}
	return next
}
