package session

import (
	"context"
	"sync"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/analysis"
)

// Status is a session's lifecycle state. Transitions only move forward;
// completed, failed and cancelled are terminal.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDiscovering Status = "discovering"
	StatusExtracting  Status = "extracting"
	StatusAnalyzing   Status = "analyzing"
	StatusSummarizing Status = "summarizing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Session is one running or finished scan. Events carries the typed
// progress stream; it is closed exactly once, after the terminal event.
type Session struct {
	ID        string
	URL       string
	Mode      analysis.Mode
	Identity  string
	StartedAt time.Time

	// Events is the outbound stream read by the transport layer.
	Events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	status        Status
	results       []analysis.Result
	summary       string
	pagesAnalyzed int
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// setStatus advances the state unless a terminal state was already
// reached.
func (s *Session) setStatus(st Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = st
	return true
}

// Cancel requests cooperative shutdown. In-flight phase work observes the
// context and stops; the run loop emits the terminal events.
func (s *Session) Cancel() {
	s.cancel()
}

// emit delivers an event unless the session context is done. Delivery
// blocks once the buffer fills, so a stalled reader applies backpressure
// to the pipeline instead of unbounded memory growth.
func (s *Session) emit(ev Event) {
	select {
	case s.Events <- ev:
	case <-s.ctx.Done():
	}
}

// emitTerminal delivers error and complete events. Unlike emit it does not
// give up on a done context, because the terminal events are exactly the
// ones a timed-out session still owes its client. A stalled reader only
// delays it briefly.
func (s *Session) emitTerminal(ev Event) {
	select {
	case s.Events <- ev:
	case <-time.After(2 * time.Second):
	}
}
