package extractor

import "errors"

var (
	// ErrBreakerOpen marks pages skipped after too many consecutive
	// extraction failures in one session.
	ErrBreakerOpen = errors.New("extraction circuit breaker open")

	// ErrContentTooShort marks pages whose extracted text was too short to
	// analyze, usually a cookie wall or an interstitial.
	ErrContentTooShort = errors.New("extracted content too short")
)
