package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/analysis"
	"github.com/mf2hd-design/memoscan2/internal/logging"
)

// Logger appends JSON lines to per-concern files: user feedback on key
// results, validation outcomes for repair-rule tuning, and coarse usage
// events. Writes are best-effort; a failed append is logged and dropped,
// never surfaced to the session.
type Logger struct {
	mu     sync.Mutex
	dir    string
	logger logging.Logger

	now func() time.Time // test hook
}

const (
	feedbackFile   = "feedback.jsonl"
	validationFile = "validation.jsonl"
	usageFile      = "usage.jsonl"
)

// New creates a Logger writing into dir. An empty dir disables all sinks.
func New(dir string, logger logging.Logger) *Logger {
	return &Logger{
		dir:    dir,
		logger: logger.With(logging.Field{Key: "component", Value: "feedback"}),
		now:    time.Now,
	}
}

// KeyFeedback is a user's thumbs verdict on one streamed key result.
type KeyFeedback struct {
	SessionID string    `json:"session_id"`
	Key       string    `json:"key"`
	Helpful   bool      `json:"helpful"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordFeedback appends a user feedback entry.
func (l *Logger) RecordFeedback(fb KeyFeedback) {
	fb.Timestamp = l.now().UTC()
	l.append(feedbackFile, fb)
}

// RecordValidation implements analysis.ValidationSink.
func (l *Logger) RecordValidation(rec analysis.ValidationRecord) {
	l.append(validationFile, struct {
		analysis.ValidationRecord
		Timestamp time.Time `json:"timestamp"`
	}{rec, l.now().UTC()})
}

// UsageEvent is one coarse usage data point.
type UsageEvent struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Duration  float64   `json:"duration_seconds"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordUsage appends a usage entry.
func (l *Logger) RecordUsage(ev UsageEvent) {
	ev.Timestamp = l.now().UTC()
	l.append(usageFile, ev)
}

func (l *Logger) append(file string, v any) {
	if l == nil || l.dir == "" {
		return
	}
	line, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("feedback entry not serializable",
			logging.Field{Key: "file", Value: file},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(l.dir, file), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Warn("feedback sink unavailable",
			logging.Field{Key: "file", Value: file},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\n", line); err != nil {
		l.logger.Warn("feedback append failed",
			logging.Field{Key: "file", Value: file},
			logging.Field{Key: "error", Value: err.Error()})
	}
}
