package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config contains the runtime configuration for every internal module.
// Operationally tuned numbers (circuit breaker threshold, quota limits,
// page budget) live here so deployments can adjust them without code
// changes.
type Config struct {
	Server    ServerConfig
	Fetcher   FetcherConfig
	Discovery DiscoveryConfig
	Extractor ExtractorConfig
	LLM       LLMConfig
	Cache     CacheConfig
	Quota     QuotaConfig
	Session   SessionConfig
	History   HistoryConfig
	Feedback  FeedbackConfig
}

type ServerConfig struct {
	// ListenAddr is the HTTP + WebSocket listen address.
	ListenAddr string
}

type FetcherConfig struct {
	// ScrapeAPIEndpoint is the base URL of the remote scraping service.
	ScrapeAPIEndpoint string
	// ScrapeAPIKey authorizes calls to the remote scraping service.
	// When empty the primary backend reports itself unavailable and the
	// fetcher goes straight to the browser fallback.
	ScrapeAPIKey string
	// RequestTimeout bounds a single backend attempt.
	RequestTimeout time.Duration
	// RatePerSecond throttles all outbound fetches process-wide.
	RatePerSecond float64
	RateBurst     int
}

type DiscoveryConfig struct {
	// MaxCandidates caps the merged HTML+sitemap candidate set.
	MaxCandidates int
	// SitemapTimeout bounds the sitemap fetch.
	SitemapTimeout time.Duration
	// PivotMinScore is the minimum link score required to pivot to a
	// corporate parent portal on another host of the same brand.
	PivotMinScore int
}

type ExtractorConfig struct {
	// Concurrency is the maximum in-flight page fetches per session.
	Concurrency int
	// BreakerThreshold is the number of consecutive failures after which
	// remaining extractions in the session are skipped.
	BreakerThreshold int
	// PageBudget is the number of top-ranked pages analyzed per session.
	PageBudget int
	// MinContentLen marks shorter extracted text as a failed extraction.
	MinContentLen int
}

type LLMConfig struct {
	Endpoint string
	APIKey   string
	// Model chain: Primary is tried first unless its breaker is open,
	// then Fallback, then Mini.
	PrimaryModel  string
	FallbackModel string
	MiniModel     string
	// BreakerThreshold / BreakerCooldown control the per-key breaker
	// that skips the primary model after repeated failures.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// TimeoutCap bounds the adaptive per-call timeout.
	TimeoutCap time.Duration
	// MaxCorpusBytes truncates the page corpus embedded into prompts.
	MaxCorpusBytes int
	// KeyConcurrency bounds concurrent rubric-key calls per session.
	KeyConcurrency int
}

type CacheConfig struct {
	MaxBytes int64
	MaxItems int
	TTL      time.Duration
}

type QuotaConfig struct {
	// MaxConcurrentSessions is the global cap across the process.
	MaxConcurrentSessions int
	// ScansPerWindow / Window define the per-identity rolling quota.
	ScansPerWindow int
	Window         time.Duration
}

type SessionConfig struct {
	// Timeout is the wall-clock limit for a whole session.
	Timeout time.Duration
	// EventBuffer sizes the outbound event channel.
	EventBuffer int
	// DiscoveryRolloutPercent gates Discovery mode availability, 0-100.
	DiscoveryRolloutPercent int
}

type HistoryConfig struct {
	// Path of the sqlite archive database. Empty disables archiving.
	Path string
}

type FeedbackConfig struct {
	// Directory for the append-only JSONL sinks. Empty disables them.
	Dir string
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Fetcher: FetcherConfig{
			ScrapeAPIEndpoint: "https://api.scrapfly.io/scrape",
			RequestTimeout:    90 * time.Second,
			RatePerSecond:     2,
			RateBurst:         4,
		},
		Discovery: DiscoveryConfig{
			MaxCandidates:  200,
			SitemapTimeout: 20 * time.Second,
			PivotMinScore:  16,
		},
		Extractor: ExtractorConfig{
			Concurrency:      5,
			BreakerThreshold: 5,
			PageBudget:       5,
			MinContentLen:    80,
		},
		LLM: LLMConfig{
			Endpoint:         "https://api.openai.com/v1/chat/completions",
			PrimaryModel:     "gpt-4o",
			FallbackModel:    "gpt-4o",
			MiniModel:        "gpt-4o-mini",
			BreakerThreshold: 3,
			BreakerCooldown:  10 * time.Minute,
			TimeoutCap:       75 * time.Second,
			MaxCorpusBytes:   40000,
			KeyConcurrency:   3,
		},
		Cache: CacheConfig{
			MaxBytes: 64 << 20,
			MaxItems: 256,
			TTL:      30 * time.Minute,
		},
		Quota: QuotaConfig{
			MaxConcurrentSessions: 8,
			ScansPerWindow:        15,
			Window:                24 * time.Hour,
		},
		Session: SessionConfig{
			Timeout:                 10 * time.Minute,
			EventBuffer:             64,
			DiscoveryRolloutPercent: 100,
		},
		History: HistoryConfig{
			Path: "memoscan.db",
		},
		Feedback: FeedbackConfig{
			Dir: ".",
		},
	}
}

// FromEnv overlays environment variables onto cfg. Only a handful of
// deployment-sensitive settings are exposed this way; everything else is
// code-level configuration.
func FromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if v := os.Getenv("MEMOSCAN_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SCRAPE_API_KEY"); v != "" {
		cfg.Fetcher.ScrapeAPIKey = v
	}
	if v := os.Getenv("SCRAPE_API_ENDPOINT"); v != "" {
		cfg.Fetcher.ScrapeAPIEndpoint = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("MEMOSCAN_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("MEMOSCAN_FEEDBACK_DIR"); v != "" {
		cfg.Feedback.Dir = v
	}
	if v := os.Getenv("MEMOSCAN_SCANS_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Quota.ScansPerWindow = n
		}
	}
	if v := os.Getenv("MEMOSCAN_DISCOVERY_ROLLOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			cfg.Session.DiscoveryRolloutPercent = n
		}
	}
	return cfg
}

// Validate rejects configurations that would wedge the pipeline.
func (c *Config) Validate() error {
	if c.Extractor.Concurrency < 1 {
		return fmt.Errorf("extractor concurrency must be >= 1, got %d", c.Extractor.Concurrency)
	}
	if c.Extractor.PageBudget < 1 {
		return fmt.Errorf("page budget must be >= 1, got %d", c.Extractor.PageBudget)
	}
	if c.Quota.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max concurrent sessions must be >= 1, got %d", c.Quota.MaxConcurrentSessions)
	}
	if c.Cache.MaxBytes <= 0 || c.Cache.MaxItems <= 0 {
		return fmt.Errorf("cache caps must be positive")
	}
	return nil
}
