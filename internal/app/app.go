package app

import (
	"fmt"

	"github.com/mf2hd-design/memoscan2/internal/analysis"
	"github.com/mf2hd-design/memoscan2/internal/cache"
	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/discovery"
	"github.com/mf2hd-design/memoscan2/internal/extractor"
	"github.com/mf2hd-design/memoscan2/internal/feedback"
	"github.com/mf2hd-design/memoscan2/internal/fetcher"
	"github.com/mf2hd-design/memoscan2/internal/history"
	"github.com/mf2hd-design/memoscan2/internal/interfaces"
	"github.com/mf2hd-design/memoscan2/internal/llm"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/metrics"
	"github.com/mf2hd-design/memoscan2/internal/quota"
	"github.com/mf2hd-design/memoscan2/internal/ranking"
	"github.com/mf2hd-design/memoscan2/internal/server"
	"github.com/mf2hd-design/memoscan2/internal/session"
	"github.com/mf2hd-design/memoscan2/internal/webclient"
)

// Application holds the assembled component graph.
type Application struct {
	Config      *config.Config
	Server      *server.Server
	Coordinator *session.Coordinator
	Logger      logging.Logger

	primary  interfaces.WebClient
	fallback interfaces.WebClient
	archive  *history.Store
}

// New assembles the full pipeline from configuration. A missing browser
// or history database degrades the application rather than failing it; a
// missing scrape API key only matters at fetch time.
func New(cfg *config.Config, logger logging.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	webclient.RegisterDefaultBackends()

	primary, err := webclient.New(webclient.BackendScrapeAPI, &cfg.Fetcher, logger)
	if err != nil {
		return nil, fmt.Errorf("building primary backend: %w", err)
	}
	fallback, err := webclient.New(webclient.BackendChromeDP, &cfg.Fetcher, logger)
	if err != nil {
		logger.Warn("browser fallback unavailable, running with primary backend only",
			logging.Field{Key: "error", Value: err.Error()})
		fallback = nil
	}

	shared := cache.New(cfg.Cache.MaxBytes, cfg.Cache.MaxItems, cfg.Cache.TTL)
	shared.SetOnEvict(func(string) { metrics.CacheEvictionsTotal.Inc() })

	fetch := fetcher.New(&cfg.Fetcher, primary, fallback, shared, logger)
	disc := discovery.New(&cfg.Discovery, nil, logger)
	scorer := ranking.NewScorer()
	extract := extractor.New(&cfg.Extractor, fetch, logger)

	fb := feedback.New(cfg.Feedback.Dir, logger)
	chat := llm.New(&cfg.LLM, nil, logger)
	engine := analysis.NewEngine(&cfg.LLM, chat, fb, logger)

	guard := quota.NewGuard(&cfg.Quota)

	var archive *history.Store
	if cfg.History.Path != "" {
		archive, err = history.Open(cfg.History.Path, logger)
		if err != nil {
			logger.Warn("history archive unavailable, sessions will not be archived",
				logging.Field{Key: "path", Value: cfg.History.Path},
				logging.Field{Key: "error", Value: err.Error()})
			archive = nil
		}
	}

	// Untyped nils must not reach the coordinator's interface fields.
	var archiver session.Archiver
	if archive != nil {
		archiver = archive
	}

	coord := session.NewCoordinator(cfg, fetch, disc, scorer, extract, engine, guard, archiver, fb, logger)
	srv := server.New(cfg, coord, shared, fb, logger)

	return &Application{
		Config:      cfg,
		Server:      srv,
		Coordinator: coord,
		Logger:      logger,
		primary:     primary,
		fallback:    fallback,
		archive:     archive,
	}, nil
}

// Close releases backend and storage resources.
func (a *Application) Close() {
	if a.primary != nil {
		_ = a.primary.Close()
	}
	if a.fallback != nil {
		_ = a.fallback.Close()
	}
	if a.archive != nil {
		_ = a.archive.Close()
	}
}
