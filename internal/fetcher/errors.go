package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/mf2hd-design/memoscan2/internal/webclient"
)

// Kind classifies a fetch failure. Each kind maps to one sanitized
// user-facing message; raw causes stay in logs only.
type Kind string

const (
	KindTimeout    Kind = "network_timeout"
	KindConnection Kind = "network_unreachable"
	KindHTTP       Kind = "http_error"
	KindNotFound   Kind = "http_not_found"
	KindBlocked    Kind = "http_blocked"
)

// FetchError is a typed fetch failure after both backends were exhausted.
type FetchError struct {
	Kind   Kind
	Status int
	URL    string
	cause  error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.Status, e.cause)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.cause)
}

func (e *FetchError) Unwrap() error { return e.cause }

// UserMessage returns the sanitized message shown to clients. Never
// includes raw upstream error text.
func (e *FetchError) UserMessage() string {
	switch e.Kind {
	case KindTimeout:
		return "The website took too long to respond. Please try again later."
	case KindConnection:
		return "The website could not be reached. Please check the URL and try again."
	case KindBlocked:
		return "The website is blocking automated access to its pages."
	case KindNotFound:
		return "The page could not be found on the website."
	default:
		return "The website returned an error while loading the page."
	}
}

// classify converts a raw backend error (or a non-2xx rendered status) into
// a FetchError kind.
func classify(url string, status int, err error) *FetchError {
	fe := &FetchError{URL: url, Status: status, cause: err}

	switch {
	case status == 403 || status == 429:
		fe.Kind = KindBlocked
	case status == 404:
		fe.Kind = KindNotFound
	case status >= 400:
		fe.Kind = KindHTTP
	default:
		fe.Kind = classifyErr(err)
	}

	var se *webclient.StatusError
	if errors.As(err, &se) {
		fe.Status = se.Code
		switch {
		case se.Code == 403 || se.Code == 429:
			fe.Kind = KindBlocked
		case se.Code == 404:
			fe.Kind = KindNotFound
		default:
			fe.Kind = KindHTTP
		}
	}

	return fe
}

func classifyErr(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindConnection
}
