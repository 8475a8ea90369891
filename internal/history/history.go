package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mf2hd-design/memoscan2/internal/analysis"
	"github.com/mf2hd-design/memoscan2/internal/logging"
)

// Record is one archived session.
type Record struct {
	SessionID     string
	URL           string
	Mode          string
	Status        string
	StartedAt     time.Time
	FinishedAt    time.Time
	PagesAnalyzed int
	Summary       string
	Results       []analysis.Result
}

// Store archives finished sessions in sqlite so past scans survive
// restarts and can be inspected offline. Archiving is best-effort; the
// caller logs and continues on error.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	url            TEXT NOT NULL,
	mode           TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     TIMESTAMP NOT NULL,
	finished_at    TIMESTAMP NOT NULL,
	pages_analyzed INTEGER NOT NULL,
	summary        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS key_results (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	key        TEXT NOT NULL,
	score      INTEGER NOT NULL,
	confidence INTEGER NOT NULL,
	status     TEXT NOT NULL,
	failure    TEXT NOT NULL DEFAULT '',
	rationale  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, key)
);
CREATE INDEX IF NOT EXISTS idx_sessions_url ON sessions(url);
`

// Open creates or opens the archive at path.
func Open(path string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// sqlite allows one writer; serialize access through a single conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db, logger: logger.With(logging.Field{Key: "component", Value: "history"})}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Archive writes the session record and its key results in one
// transaction.
func (s *Store) Archive(ctx context.Context, rec *Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, url, mode, status, started_at, finished_at, pages_analyzed, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.URL, rec.Mode, rec.Status,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.PagesAnalyzed, rec.Summary)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, r := range rec.Results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO key_results (session_id, key, score, confidence, status, failure, rationale)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, r.Key, r.Score, r.Confidence, string(r.Status), string(r.Failure), r.Rationale)
		if err != nil {
			return fmt.Errorf("insert key result %q: %w", r.Key, err)
		}
	}

	return tx.Commit()
}

// Recent returns the most recent sessions for a URL, newest first, without
// their key results.
func (s *Store) Recent(ctx context.Context, url string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, mode, status, started_at, finished_at, pages_analyzed, summary
		 FROM sessions WHERE url = ? ORDER BY started_at DESC LIMIT ?`, url, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.SessionID, &r.URL, &r.Mode, &r.Status,
			&r.StartedAt, &r.FinishedAt, &r.PagesAnalyzed, &r.Summary); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
