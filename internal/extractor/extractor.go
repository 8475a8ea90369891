package extractor

import (
	"context"
	"sync"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/discovery"
	"github.com/mf2hd-design/memoscan2/internal/fetcher"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/metrics"
)

// Page is the outcome of fetching and extracting one ranked link. Exactly
// one of Text or Err is meaningful.
type Page struct {
	URL          string
	Text         string
	BackendUsed  string
	ScreenshotID string
	Err          error
}

// Progress is invoked as each page finishes, in completion order. May be nil.
type Progress func(p Page)

// PageFetcher is the slice of the fetcher the extractor needs.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts fetcher.Options) (*fetcher.Result, error)
}

// Extractor turns ranked links into page text concurrently. A bounded worker
// pool keeps at most cfg.Concurrency fetches in flight, and a circuit
// breaker abandons the remaining links after cfg.BreakerThreshold
// consecutive failures so a stonewalling site doesn't burn the whole
// session timeout.
type Extractor struct {
	cfg     *config.ExtractorConfig
	fetcher PageFetcher
	logger  logging.Logger
}

func New(cfg *config.ExtractorConfig, f PageFetcher, logger logging.Logger) *Extractor {
	return &Extractor{
		cfg:     cfg,
		fetcher: f,
		logger:  logger.With(logging.Field{Key: "component", Value: "extractor"}),
	}
}

// breaker counts consecutive failures across all workers. A success resets
// the count; reaching the threshold latches it open for the session.
type breaker struct {
	mu          sync.Mutex
	consecutive int
	threshold   int
	open        bool
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if b.threshold > 0 && b.consecutive >= b.threshold {
		b.open = true
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	b.consecutive = 0
	b.mu.Unlock()
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// ExtractAll fetches and extracts every link, preserving input order in the
// returned slice. Links skipped by the breaker or a cancelled context carry
// a nil-text Page with Err set. screenshotFirst requests a screenshot for
// links[0] only, the homepage.
func (e *Extractor) ExtractAll(ctx context.Context, links []discovery.CandidateLink, screenshotFirst bool, progress Progress) []Page {
	pages := make([]Page, len(links))
	sem := make(chan struct{}, e.cfg.Concurrency)
	br := &breaker{threshold: e.cfg.BreakerThreshold}

	var wg sync.WaitGroup
	var progressMu sync.Mutex

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			pages[i] = Page{URL: link.URL, Err: err}
			continue
		}
		if br.isOpen() {
			pages[i] = Page{URL: link.URL, Err: ErrBreakerOpen}
			e.logger.Warn("circuit breaker open, skipping remaining pages",
				logging.Field{Key: "url", Value: link.URL})
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			pages[i] = Page{URL: link.URL, Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		go func(i int, link discovery.CandidateLink) {
			defer wg.Done()
			defer func() { <-sem }()

			p := e.extractOne(ctx, link.URL, screenshotFirst && i == 0)
			if p.Err != nil {
				br.failure()
			} else {
				br.success()
			}
			pages[i] = p

			if progress != nil {
				progressMu.Lock()
				progress(p)
				progressMu.Unlock()
			}
		}(i, link)
	}

	wg.Wait()
	return pages
}

func (e *Extractor) extractOne(ctx context.Context, url string, screenshot bool) Page {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := e.fetcher.Fetch(ctx, url, fetcher.Options{Screenshot: screenshot})
	if err != nil {
		e.logger.Warn("page fetch failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return Page{URL: url, Err: err}
	}

	text, err := ExtractText(res.Content)
	if err != nil {
		return Page{URL: url, Err: err}
	}
	if len(text) < e.cfg.MinContentLen {
		e.logger.Warn("extracted text below minimum length, treating as failure",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "length", Value: len(text)})
		return Page{URL: url, Err: ErrContentTooShort}
	}

	return Page{
		URL:          url,
		Text:         text,
		BackendUsed:  res.BackendUsed,
		ScreenshotID: res.ScreenshotID,
	}
}
