package webclient

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/interfaces"
)

// Backend names.
const (
	BackendScrapeAPI = "scrapeapi"
	BackendChromeDP  = "chromedp"
)

// ErrUnavailable marks a backend that cannot serve requests at all
// (missing API key, browser not installed). The fetcher treats it like any
// other primary failure and moves on to the fallback.
var ErrUnavailable = errors.New("webclient: backend unavailable")

// StatusError reports a non-2xx status observed while rendering a page.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webclient: upstream returned status %d", e.Code)
}

// BackendConstructor constructs a WebClient given the fetcher config and logger.
type BackendConstructor func(cfg *config.FetcherConfig, logger interfaces.Logger) (interfaces.WebClient, error)

var (
	mu       sync.RWMutex
	registry = map[string]BackendConstructor{}
)

// RegisterBackend registers a named backend constructor. Name is lower-cased
// internally. Calling RegisterBackend with the same name overwrites the
// previous constructor.
func RegisterBackend(name string, ctor BackendConstructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// New constructs the named backend. It returns an error if the backend has
// not been registered.
func New(name string, cfg *config.FetcherConfig, logger interfaces.Logger) (interfaces.WebClient, error) {
	mu.RLock()
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("webclient backend %q not registered: available backends=%v", name, ListBackends())
	}

	wc, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct webclient backend %q: %w", name, err)
	}
	if wc == nil {
		return nil, errors.New("webclient constructor returned nil")
	}
	return wc, nil
}

// ListBackends returns the list of registered backend names.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// RegisterDefaultBackends registers the scrapeapi and chromedp backends.
// Call this early in main() to make backends available to New.
func RegisterDefaultBackends() {
	RegisterBackend(BackendScrapeAPI, func(cfg *config.FetcherConfig, logger interfaces.Logger) (interfaces.WebClient, error) {
		return NewScrapeAPIClient(cfg, logger, nil), nil
	})
	RegisterBackend(BackendChromeDP, func(cfg *config.FetcherConfig, logger interfaces.Logger) (interfaces.WebClient, error) {
		return NewChromeDPClient(2*time.Second, logger)
	})
}
