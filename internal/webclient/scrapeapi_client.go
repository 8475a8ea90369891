package webclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/interfaces"
	"github.com/mf2hd-design/memoscan2/internal/logging"
)

// ScrapeAPIClient renders pages through a remote scraping service
// (Scrapfly-style API: JS rendering, anti-bot handling, optional full-page
// screenshots). It is the fetcher's primary backend.
type ScrapeAPIClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   logging.Logger
}

// scrapeAPIResponse mirrors the subset of the service's JSON envelope we
// consume.
type scrapeAPIResponse struct {
	Result struct {
		Content     string `json:"content"`
		StatusCode  int    `json:"status_code"`
		Screenshots map[string]struct {
			URL string `json:"url"`
		} `json:"screenshots"`
	} `json:"result"`
}

// NewScrapeAPIClient creates the primary backend. If httpClient is nil a
// default with the configured request timeout is constructed.
func NewScrapeAPIClient(cfg *config.FetcherConfig, logger logging.Logger, httpClient *http.Client) *ScrapeAPIClient {
	componentLogger := logger.With(logging.Field{Key: "backend", Value: BackendScrapeAPI})

	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	componentLogger.Info("created scrapeapi webclient",
		logging.Field{Key: "endpoint", Value: cfg.ScrapeAPIEndpoint},
		logging.Field{Key: "configured", Value: cfg.ScrapeAPIKey != ""})

	return &ScrapeAPIClient{
		endpoint: cfg.ScrapeAPIEndpoint,
		apiKey:   cfg.ScrapeAPIKey,
		client:   httpClient,
		logger:   componentLogger,
	}
}

func (sc *ScrapeAPIClient) Name() string { return BackendScrapeAPI }

// Render asks the scraping service for the fully rendered page. A second
// request retrieves the screenshot artifact when one was produced.
func (sc *ScrapeAPIClient) Render(ctx context.Context, req *interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	if req == nil {
		return nil, fmt.Errorf("nil render request")
	}
	if sc.apiKey == "" {
		return nil, fmt.Errorf("scrape API key not configured: %w", ErrUnavailable)
	}

	q := url.Values{}
	q.Set("key", sc.apiKey)
	q.Set("url", req.URL)
	q.Set("render_js", "true")
	q.Set("asp", "true")
	q.Set("auto_scroll", "true")
	q.Set("format", "json")
	q.Set("proxy_pool", "public_residential_pool")
	if req.Screenshot {
		q.Set("screenshots[main]", "fullpage")
		q.Set("screenshot_flags", "load_images,block_banners")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	sc.logger.Debug("sending scrape request",
		logging.Field{Key: "url", Value: req.URL},
		logging.Field{Key: "screenshot", Value: req.Screenshot})

	resp, err := sc.client.Do(httpReq)
	if err != nil {
		sc.logger.Warn("scrape request failed",
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("scrape api do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scrape body: %w", err)
	}

	var envelope scrapeAPIResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode scrape envelope: %w", err)
	}
	if envelope.Result.Content == "" {
		return nil, fmt.Errorf("scrape api returned empty content for %s", req.URL)
	}

	result := &interfaces.RenderResult{
		HTML:       []byte(envelope.Result.Content),
		StatusCode: envelope.Result.StatusCode,
		FetchedAt:  time.Now(),
		Backend:    BackendScrapeAPI,
	}
	if result.StatusCode == 0 {
		result.StatusCode = http.StatusOK
	}

	if req.Screenshot {
		if shot, ok := envelope.Result.Screenshots["main"]; ok && shot.URL != "" {
			img, err := sc.fetchScreenshot(ctx, shot.URL)
			if err != nil {
				// Screenshot is a best-effort artifact; the page render
				// still counts as a success.
				sc.logger.Warn("screenshot download failed",
					logging.Field{Key: "url", Value: req.URL},
					logging.Field{Key: "error", Value: err.Error()})
			} else {
				result.Screenshot = img
			}
		}
	}

	return result, nil
}

func (sc *ScrapeAPIClient) fetchScreenshot(ctx context.Context, shotURL string) ([]byte, error) {
	u, err := url.Parse(shotURL)
	if err != nil {
		return nil, fmt.Errorf("parse screenshot url: %w", err)
	}
	q := u.Query()
	q.Set("key", sc.apiKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create screenshot request: %w", err)
	}
	resp, err := sc.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("screenshot do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func (sc *ScrapeAPIClient) Close() error {
	sc.logger.Info("closing scrapeapi webclient")
	return nil
}
