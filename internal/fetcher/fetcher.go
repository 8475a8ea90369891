package fetcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mf2hd-design/memoscan2/internal/cache"
	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/interfaces"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/metrics"
)

// Binary or document URLs are never fetched; they can't feed text analysis.
var ignoredExtensions = map[string]struct{}{
	".pdf": {}, ".zip": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".docx": {}, ".xlsx": {}, ".pptx": {}, ".mp3": {}, ".mp4": {},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
}

// Options control a single fetch.
type Options struct {
	// Screenshot requests a full-page screenshot; on success it is placed
	// in the shared cache and its id reported in the Result.
	Screenshot bool
}

// Result is a successfully fetched, rendered page.
type Result struct {
	Content      []byte
	StatusCode   int
	BackendUsed  string
	ScreenshotID string
}

// Fetcher retrieves rendered pages: primary scrape-API backend first, one
// chromedp fallback on failure, nothing beyond that. Callers own any
// further retry policy.
type Fetcher struct {
	primary  interfaces.WebClient
	fallback interfaces.WebClient
	limiter  *rate.Limiter
	cache    *cache.Cache
	timeout  time.Duration
	logger   logging.Logger
}

// New wires a Fetcher from the two backends. fallback may be nil (tests,
// environments without a browser); then primary failures are terminal.
func New(cfg *config.FetcherConfig, primary, fallback interfaces.WebClient, sharedCache *cache.Cache, logger logging.Logger) *Fetcher {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Fetcher{
		primary:  primary,
		fallback: fallback,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		cache:    sharedCache,
		timeout:  cfg.RequestTimeout,
		logger:   logger.With(logging.Field{Key: "component", Value: "fetcher"}),
	}
}

// Fetch retrieves the rendered page for url. Returns *FetchError on failure.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts Options) (*Result, error) {
	if ext := strings.ToLower(path.Ext(strippedPath(url))); ext != "" {
		if _, skip := ignoredExtensions[ext]; skip {
			return nil, fmt.Errorf("refusing to fetch binary content %q", url)
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := &interfaces.RenderRequest{
		URL:        url,
		Screenshot: opts.Screenshot,
		UserAgent:  userAgents[rand.IntN(len(userAgents))],
	}

	res, primaryErr := f.renderWith(ctx, f.primary, req)
	if primaryErr == nil {
		return f.finish(url, res), nil
	}

	f.logger.Warn("primary backend failed, falling back",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "error", Value: primaryErr.Error()})
	metrics.FetchFallbacksTotal.Inc()

	if f.fallback == nil {
		return nil, primaryErr
	}

	res, fallbackErr := f.renderWith(ctx, f.fallback, req)
	if fallbackErr != nil {
		return nil, fallbackErr
	}
	return f.finish(url, res), nil
}

func (f *Fetcher) renderWith(ctx context.Context, wc interfaces.WebClient, req *interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	if wc == nil {
		return nil, classify(req.URL, 0, fmt.Errorf("backend not configured"))
	}

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	res, err := wc.Render(callCtx, req)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(wc.Name(), "error").Inc()
		return nil, classify(req.URL, 0, err)
	}
	if res.StatusCode >= 400 {
		metrics.FetchesTotal.WithLabelValues(wc.Name(), "http_error").Inc()
		return nil, classify(req.URL, res.StatusCode, fmt.Errorf("rendered page status %d", res.StatusCode))
	}
	if len(res.HTML) == 0 {
		metrics.FetchesTotal.WithLabelValues(wc.Name(), "empty").Inc()
		return nil, classify(req.URL, 0, fmt.Errorf("empty content"))
	}

	metrics.FetchesTotal.WithLabelValues(wc.Name(), "ok").Inc()
	return res, nil
}

func (f *Fetcher) finish(url string, res *interfaces.RenderResult) *Result {
	out := &Result{
		Content:     res.HTML,
		StatusCode:  res.StatusCode,
		BackendUsed: res.Backend,
	}

	if len(res.Screenshot) > 0 && f.cache != nil {
		id := uuid.New().String()
		if f.cache.Put(id, res.Screenshot) {
			out.ScreenshotID = id
		} else {
			f.logger.Warn("screenshot exceeds cache byte cap, dropped",
				logging.Field{Key: "url", Value: url},
				logging.Field{Key: "bytes", Value: len(res.Screenshot)})
		}
	}

	return out
}

func strippedPath(raw string) string {
	// Cheap extraction of the path component without a full parse; enough
	// for extension checks.
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "/"); i >= 0 {
		return s[i:]
	}
	return ""
}
