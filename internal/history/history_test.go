package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/analysis"
	"github.com/mf2hd-design/memoscan2/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), &testutil.DummyLogger{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestArchiveAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &Record{
		SessionID:     "sess-1",
		URL:           "https://example.com",
		Mode:          "diagnosis",
		Status:        "completed",
		StartedAt:     time.Now().Add(-time.Minute),
		FinishedAt:    time.Now(),
		PagesAnalyzed: 5,
		Summary:       "a summary",
		Results: []analysis.Result{
			{Key: "Emotion", Score: 4, Confidence: 80, Status: analysis.StatusValid, Rationale: "good"},
			{Key: "Story", Score: 1, Confidence: 60, Status: analysis.StatusRepaired, Rationale: "weak"},
		},
	}
	if err := s.Archive(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent(ctx, "https://example.com", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].SessionID != "sess-1" || got[0].PagesAnalyzed != 5 || got[0].Summary != "a summary" {
		t.Errorf("record = %+v", got[0])
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "new"} {
		err := s.Archive(ctx, &Record{
			SessionID:  id,
			URL:        "https://example.com",
			Mode:       "diagnosis",
			Status:     "completed",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, "https://example.com", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].SessionID != "new" {
		t.Errorf("order = %v", got)
	}
}

func TestArchiveDuplicateSessionFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := &Record{SessionID: "dup", URL: "https://example.com", Mode: "diagnosis", Status: "completed", StartedAt: time.Now(), FinishedAt: time.Now()}

	if err := s.Archive(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Archive(ctx, rec); err == nil {
		t.Error("duplicate session id must be rejected")
	}
}
