package quota

import (
	"errors"
	"testing"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/config"
)

func testConfig() *config.QuotaConfig {
	return &config.QuotaConfig{
		MaxConcurrentSessions: 2,
		ScansPerWindow:        3,
		Window:                24 * time.Hour,
	}
}

func TestConcurrencyCap(t *testing.T) {
	g := NewGuard(testConfig())

	if err := g.Acquire("a"); err != nil {
		t.Fatal(err)
	}
	if err := g.Acquire("b"); err != nil {
		t.Fatal(err)
	}

	err := g.Acquire("c")
	var qe *Error
	if !errors.As(err, &qe) || qe.Kind != KindConcurrency {
		t.Fatalf("err = %v, want concurrency rejection", err)
	}

	g.Release()
	if err := g.Acquire("c"); err != nil {
		t.Errorf("slot freed, acquire should succeed: %v", err)
	}
}

func TestRollingWindow(t *testing.T) {
	now := time.Now()
	g := NewGuard(testConfig())
	g.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := g.Acquire("alice"); err != nil {
			t.Fatalf("scan %d rejected: %v", i, err)
		}
		g.Release()
	}

	err := g.Acquire("alice")
	var qe *Error
	if !errors.As(err, &qe) || qe.Kind != KindWindow {
		t.Fatalf("err = %v, want window rejection", err)
	}
	if qe.RetryAfter <= 0 || qe.RetryAfter > 24*time.Hour {
		t.Errorf("RetryAfter = %v", qe.RetryAfter)
	}

	// A different identity is unaffected.
	if err := g.Acquire("bob"); err != nil {
		t.Errorf("other identity rejected: %v", err)
	}
	g.Release()

	// Once the oldest scan ages out, one slot opens.
	now = now.Add(25 * time.Hour)
	if err := g.Acquire("alice"); err != nil {
		t.Errorf("window rolled, acquire should succeed: %v", err)
	}
}

func TestWindowCountsStartedScans(t *testing.T) {
	now := time.Now()
	g := NewGuard(testConfig())
	g.now = func() time.Time { return now }

	// Release returns the concurrency slot but the windowed count stays.
	g.Acquire("alice")
	g.Release()
	g.Acquire("alice")
	g.Release()
	g.Acquire("alice")
	g.Release()

	if err := g.Acquire("alice"); err == nil {
		t.Error("released scans must still count against the window")
	}
}

func TestActive(t *testing.T) {
	g := NewGuard(testConfig())
	g.Acquire("a")
	if g.Active() != 1 {
		t.Errorf("Active = %d", g.Active())
	}
	g.Release()
	g.Release() // extra release must not go negative
	if g.Active() != 0 {
		t.Errorf("Active = %d", g.Active())
	}
}
