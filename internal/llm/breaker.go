package llm

import (
	"sync"
	"time"
)

// keyBreakers tracks consecutive primary-model failures per rubric key.
// Once a key trips, calls for it skip straight to the fallback model until
// the cooldown elapses. Keys fail independently (a malformed prompt for one
// key says nothing about the others), so the breakers are per key rather
// than global.
type keyBreakers struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	states    map[string]*breakerState

	now func() time.Time // test hook
}

type breakerState struct {
	failures  int
	openUntil time.Time
}

func newKeyBreakers(threshold int, cooldown time.Duration) *keyBreakers {
	return &keyBreakers{
		threshold: threshold,
		cooldown:  cooldown,
		states:    make(map[string]*breakerState),
		now:       time.Now,
	}
}

// open reports whether the primary model should be skipped for key.
func (b *keyBreakers) open(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[key]
	if !ok {
		return false
	}
	if st.openUntil.IsZero() {
		return false
	}
	if b.now().After(st.openUntil) {
		// Cooldown elapsed; give the primary another chance.
		st.openUntil = time.Time{}
		st.failures = 0
		return false
	}
	return true
}

func (b *keyBreakers) failure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[key]
	if !ok {
		st = &breakerState{}
		b.states[key] = st
	}
	st.failures++
	if b.threshold > 0 && st.failures >= b.threshold {
		st.openUntil = b.now().Add(b.cooldown)
	}
}

func (b *keyBreakers) success(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[key]; ok {
		st.failures = 0
		st.openUntil = time.Time{}
	}
}
