package interfaces

import (
	"context"
	"time"
)

// RenderRequest asks a WebClient for the rendered content of a page.
type RenderRequest struct {
	URL string

	// Screenshot requests a full-page screenshot alongside the HTML.
	// Backends that cannot produce one leave Screenshot nil in the result.
	Screenshot bool

	// UserAgent overrides the backend default when non-empty.
	UserAgent string
}

// RenderResult is the rendered page as seen by a WebClient backend.
type RenderResult struct {
	HTML       []byte
	Screenshot []byte
	StatusCode int
	FetchedAt  time.Time

	// Backend is the name of the backend that produced the result.
	Backend string
}

// WebClient retrieves rendered page content. Implementations must honor
// ctx cancellation and deadlines on every network operation.
type WebClient interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)

	// Name identifies the backend ("scrapeapi", "chromedp", ...).
	Name() string

	Close() error
}
