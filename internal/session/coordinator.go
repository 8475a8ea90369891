package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mf2hd-design/memoscan2/internal/analysis"
	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/discovery"
	"github.com/mf2hd-design/memoscan2/internal/extractor"
	"github.com/mf2hd-design/memoscan2/internal/feedback"
	"github.com/mf2hd-design/memoscan2/internal/fetcher"
	"github.com/mf2hd-design/memoscan2/internal/history"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/metrics"
	"github.com/mf2hd-design/memoscan2/internal/quota"
	"github.com/mf2hd-design/memoscan2/internal/urlutil"
)

// Consumer-side slices of the pipeline stages, so tests can substitute any
// stage without standing up the real one.

type Fetcher interface {
	Fetch(ctx context.Context, url string, opts fetcher.Options) (*fetcher.Result, error)
}

type Discoverer interface {
	Discover(ctx context.Context, homepageHTML []byte, baseURL string) []discovery.CandidateLink
	FindPortalPivot(links []discovery.CandidateLink, initialURL string, scorer discovery.Scorer) string
}

type Ranker interface {
	discovery.Scorer
	Rank(candidates []discovery.CandidateLink, homepage string, budget int) []discovery.CandidateLink
}

type Extractor interface {
	ExtractAll(ctx context.Context, links []discovery.CandidateLink, screenshotFirst bool, progress extractor.Progress) []extractor.Page
}

type Analyzer interface {
	Synthesize(ctx context.Context, corpus string) (string, error)
	AnalyzeAll(ctx context.Context, mode analysis.Mode, corpus, overview string, onResult func(analysis.Result)) []analysis.Result
	Summarize(ctx context.Context, mode analysis.Mode, results []analysis.Result) (string, error)
}

type Archiver interface {
	Archive(ctx context.Context, rec *history.Record) error
}

type UsageSink interface {
	RecordUsage(ev feedback.UsageEvent)
}

// Coordinator owns session lifecycles: admission, the phase sequence, the
// event stream and archival. One goroutine per session drives the phases;
// all cross-session state is behind the mutex.
type Coordinator struct {
	cfg     *config.Config
	fetch   Fetcher
	disc    Discoverer
	rank    Ranker
	extract Extractor
	engine  Analyzer
	guard   *quota.Guard
	archive Archiver
	usage   UsageSink
	logger  logging.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	cancelled map[string]bool
}

func NewCoordinator(cfg *config.Config, fetch Fetcher, disc Discoverer, rank Ranker, extract Extractor, engine Analyzer, guard *quota.Guard, archive Archiver, usage UsageSink, logger logging.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		fetch:     fetch,
		disc:      disc,
		rank:      rank,
		extract:   extract,
		engine:    engine,
		guard:     guard,
		archive:   archive,
		usage:     usage,
		logger:    logger.With(logging.Field{Key: "component", Value: "session"}),
		sessions:  make(map[string]*Session),
		cancelled: make(map[string]bool),
	}
}

// StartScan admits and launches a session. Quota and rollout rejections
// return before any pipeline work happens, so a rejected scan costs
// nothing.
func (c *Coordinator) StartScan(rawURL, modeStr, identity string) (*Session, error) {
	cleaned := urlutil.Clean(rawURL)
	if _, err := urlutil.Normalize(cleaned); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	mode := analysis.ModeDiagnosis
	if modeStr != "" {
		var err error
		mode, err = analysis.ParseMode(modeStr)
		if err != nil {
			return nil, err
		}
	}
	if mode == analysis.ModeDiscovery && !rolloutAllows(identity, c.cfg.Session.DiscoveryRolloutPercent) {
		return nil, errors.New("discovery mode is not available for this client yet")
	}

	if err := c.guard.Acquire(identity); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Session.Timeout)
	s := &Session{
		ID:        uuid.New().String(),
		URL:       cleaned,
		Mode:      mode,
		Identity:  identity,
		StartedAt: time.Now(),
		Events:    make(chan Event, c.cfg.Session.EventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusPending,
	}

	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()

	metrics.SessionsActive.Inc()
	c.logger.Info("session started",
		logging.Field{Key: "session_id", Value: s.ID},
		logging.Field{Key: "url", Value: s.URL},
		logging.Field{Key: "mode", Value: string(s.Mode)})

	go c.run(s)
	return s, nil
}

// Get returns a running or recently finished session.
func (c *Coordinator) Get(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Cancel requests cooperative cancellation of a session.
func (c *Coordinator) Cancel(id string) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if ok {
		c.cancelled[id] = true
	}
	c.mu.Unlock()
	if ok {
		s.Cancel()
	}
}

// run drives the phase sequence for one session. Every phase checks the
// session context so cancellation and the wall-clock timeout cut the
// pipeline at the next phase boundary.
func (c *Coordinator) run(s *Session) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session panicked",
				logging.Field{Key: "session_id", Value: s.ID},
				logging.Field{Key: "panic", Value: fmt.Sprint(r)})
			c.fail(s, "An internal error ended the scan.")
		}
	}()

	// Phase 1: homepage fetch, with screenshot.
	s.setStatus(StatusDiscovering)
	s.emit(statusEvent("Fetching homepage..."))

	home, err := c.fetch.Fetch(s.ctx, s.URL, fetcher.Options{Screenshot: true})
	if err != nil {
		if c.interrupted(s) {
			return
		}
		c.fail(s, fetchFailureMessage(err))
		return
	}
	if home.ScreenshotID != "" {
		s.emit(Event{
			Type:          EventScreenshotReady,
			ScreenshotID:  home.ScreenshotID,
			ScreenshotURL: "/screenshot/" + home.ScreenshotID,
		})
	}

	// Phase 2: link discovery, with at most one portal pivot.
	s.emit(statusEvent("Discovering site structure..."))
	links := c.disc.Discover(s.ctx, home.Content, s.URL)

	if portal := c.disc.FindPortalPivot(links, s.URL, c.rank); portal != "" {
		s.emit(statusEvent("Corporate portal found, switching to it..."))
		if pHome, err := c.fetch.Fetch(s.ctx, portal, fetcher.Options{Screenshot: true}); err == nil {
			s.URL = portal
			home = pHome
			links = c.disc.Discover(s.ctx, home.Content, s.URL)
			if home.ScreenshotID != "" {
				s.emit(Event{
					Type:          EventScreenshotReady,
					ScreenshotID:  home.ScreenshotID,
					ScreenshotURL: "/screenshot/" + home.ScreenshotID,
				})
			}
		} else {
			c.logger.Warn("portal fetch failed, staying on initial URL",
				logging.Field{Key: "session_id", Value: s.ID},
				logging.Field{Key: "portal", Value: portal},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	if c.interrupted(s) {
		return
	}

	// Phase 3: ranking.
	ranked := c.rank.Rank(links, s.URL, c.cfg.Extractor.PageBudget)
	s.emit(statusEvent(fmt.Sprintf("Selected %d pages for analysis.", len(ranked))))

	// Phase 4: extraction. The homepage is already fetched; its text joins
	// the corpus directly and the extractor works the remaining links.
	s.setStatus(StatusExtracting)
	var docs []analysis.Document
	if text, err := extractor.ExtractText(home.Content); err == nil && text != "" {
		docs = append(docs, analysis.Document{URL: s.URL, Text: text})
	}

	var rest []discovery.CandidateLink
	for _, l := range ranked {
		if l.URL != s.URL {
			rest = append(rest, l)
		}
	}
	pages := c.extract.ExtractAll(s.ctx, rest, false, func(p extractor.Page) {
		if p.Err == nil {
			s.emit(statusEvent(fmt.Sprintf("Analyzed page: %s", p.URL)))
		}
	})
	for _, p := range pages {
		if p.Err == nil {
			docs = append(docs, analysis.Document{URL: p.URL, Text: p.Text})
		}
	}
	if c.interrupted(s) {
		return
	}
	if len(docs) == 0 {
		c.fail(s, "We couldn't extract readable content from this site.")
		return
	}
	s.mu.Lock()
	s.pagesAnalyzed = len(docs)
	s.mu.Unlock()

	// Phase 5: per-key analysis.
	s.setStatus(StatusAnalyzing)
	s.emit(statusEvent("Analyzing brand content..."))
	corpus := analysis.BuildCorpus(docs, c.cfg.LLM.MaxCorpusBytes)

	overview, err := c.engine.Synthesize(s.ctx, corpus)
	if err != nil {
		c.logger.Warn("brand synthesis failed, continuing without overview",
			logging.Field{Key: "session_id", Value: s.ID},
			logging.Field{Key: "error", Value: err.Error()})
	}

	results := c.engine.AnalyzeAll(s.ctx, s.Mode, corpus, overview, func(r analysis.Result) {
		s.emit(Event{Type: EventResult, Key: r.Key, Analysis: &r})
	})
	if c.interrupted(s) {
		return
	}
	s.mu.Lock()
	s.results = results
	s.mu.Unlock()

	// Phase 6: executive summary.
	s.setStatus(StatusSummarizing)
	summary, err := c.engine.Summarize(s.ctx, s.Mode, results)
	if err != nil {
		if c.interrupted(s) {
			return
		}
		c.fail(s, "The analysis produced no usable results for this site.")
		return
	}
	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()

	quant := analysis.Quantify(results)
	s.emit(Event{Type: EventSummary, Text: summary, Quant: &quant})

	c.finish(s, StatusCompleted, "Scan complete.")
}

// interrupted handles context termination: cancellation or timeout. It
// finalizes the session and reports true when the run loop should stop.
func (c *Coordinator) interrupted(s *Session) bool {
	if s.ctx.Err() == nil {
		return false
	}
	c.mu.Lock()
	wasCancelled := c.cancelled[s.ID]
	c.mu.Unlock()

	if wasCancelled {
		c.finish(s, StatusCancelled, "Scan cancelled.")
	} else {
		s.emitTerminal(errorEvent("The scan took too long and was stopped."))
		c.finish(s, StatusFailed, "Scan timed out.")
	}
	return true
}

func (c *Coordinator) fail(s *Session, msg string) {
	s.emitTerminal(errorEvent(msg))
	c.finish(s, StatusFailed, msg)
}

// finish performs the terminal transition exactly once: metrics, quota
// release, archival and stream close. Only a successful session gets a
// complete event; failed streams end on their error event and cancelled
// streams end silently.
func (c *Coordinator) finish(s *Session, st Status, msg string) {
	if !s.setStatus(st) {
		return
	}
	if st == StatusCompleted {
		s.emitTerminal(Event{Type: EventComplete, Message: msg})
	}
	close(s.Events)

	metrics.SessionsActive.Dec()
	metrics.SessionsTotal.WithLabelValues(string(s.Mode), string(st)).Inc()
	c.guard.Release()
	s.cancel()

	finished := time.Now()
	c.logger.Info("session finished",
		logging.Field{Key: "session_id", Value: s.ID},
		logging.Field{Key: "status", Value: string(st)},
		logging.Field{Key: "duration", Value: finished.Sub(s.StartedAt).String()})

	if c.usage != nil {
		c.usage.RecordUsage(feedback.UsageEvent{
			SessionID: s.ID,
			URL:       s.URL,
			Mode:      string(s.Mode),
			Status:    string(st),
			Duration:  finished.Sub(s.StartedAt).Seconds(),
		})
	}

	if c.archive != nil {
		s.mu.Lock()
		rec := &history.Record{
			SessionID:     s.ID,
			URL:           s.URL,
			Mode:          string(s.Mode),
			Status:        string(st),
			StartedAt:     s.StartedAt,
			FinishedAt:    finished,
			PagesAnalyzed: s.pagesAnalyzed,
			Summary:       s.summary,
			Results:       s.results,
		}
		s.mu.Unlock()

		archiveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.archive.Archive(archiveCtx, rec); err != nil {
			c.logger.Error("session archive failed",
				logging.Field{Key: "session_id", Value: s.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	// Keep the finished session addressable briefly for late lookups.
	go func() {
		time.Sleep(time.Minute)
		c.mu.Lock()
		delete(c.sessions, s.ID)
		delete(c.cancelled, s.ID)
		c.mu.Unlock()
	}()
}

// rolloutAllows hashes the identity into a stable 0-99 bucket, so a client
// keeps the same rollout verdict across sessions.
func rolloutAllows(identity string, percent int) bool {
	if percent >= 100 {
		return true
	}
	if percent <= 0 {
		return false
	}
	h := fnv.New32a()
	h.Write([]byte(identity))
	return int(h.Sum32()%100) < percent
}

func fetchFailureMessage(err error) string {
	var ferr *fetcher.FetchError
	if errors.As(err, &ferr) {
		return ferr.UserMessage()
	}
	return "We couldn't reach this site."
}
