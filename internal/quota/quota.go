package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/metrics"
)

// Error is a quota rejection. RetryAfter is zero for concurrency
// rejections (retry as soon as a slot frees) and the time until the oldest
// counted scan ages out for window rejections.
type Error struct {
	Kind       string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("quota exceeded (%s), retry after %s", e.Kind, e.RetryAfter.Round(time.Minute))
	}
	return fmt.Sprintf("quota exceeded (%s)", e.Kind)
}

const (
	KindConcurrency = "concurrent_sessions"
	KindWindow      = "scans_per_window"
)

// Guard enforces the two admission limits: a global concurrent session cap
// and a per-identity rolling window. State is in-memory; restarting the
// process resets both, which is acceptable for the window's abuse-damping
// purpose.
type Guard struct {
	mu      sync.Mutex
	cfg     *config.QuotaConfig
	active  int
	history map[string][]time.Time

	now func() time.Time // test hook
}

func NewGuard(cfg *config.QuotaConfig) *Guard {
	return &Guard{
		cfg:     cfg,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Acquire admits a session for identity or returns *Error. On success the
// caller must Release exactly once when the session reaches a terminal
// state.
func (g *Guard) Acquire(identity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active >= g.cfg.MaxConcurrentSessions {
		metrics.QuotaRejectionsTotal.WithLabelValues(KindConcurrency).Inc()
		return &Error{Kind: KindConcurrency}
	}

	now := g.now()
	recent := g.prune(identity, now)
	if len(recent) >= g.cfg.ScansPerWindow {
		retry := recent[0].Add(g.cfg.Window).Sub(now)
		metrics.QuotaRejectionsTotal.WithLabelValues(KindWindow).Inc()
		return &Error{Kind: KindWindow, RetryAfter: retry}
	}

	g.history[identity] = append(recent, now)
	g.active++
	return nil
}

// Release frees a concurrency slot. The windowed scan count is not given
// back; a started scan counts whether or not it finished.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active > 0 {
		g.active--
	}
}

// Active returns the current concurrent session count.
func (g *Guard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// prune drops timestamps older than the window and returns what remains,
// oldest first. Caller holds the lock.
func (g *Guard) prune(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-g.cfg.Window)
	var kept []time.Time
	for _, t := range g.history[identity] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if kept == nil {
		delete(g.history, identity)
	} else {
		g.history[identity] = kept
	}
	return kept
}
