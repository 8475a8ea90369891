package llm

import "fmt"

// Kind classifies model call failures so callers can pick a user-facing
// message and decide whether another model is worth trying.
type Kind string

const (
	KindRateLimited   Kind = "upstream_rate_limit"
	KindQuotaExceeded Kind = "upstream_quota_exceeded"
	KindTimeout       Kind = "timeout"
	KindBadResponse   Kind = "bad_response"
	KindUnavailable   Kind = "unavailable"
)

// Error is a classified model call failure.
type Error struct {
	Kind  Kind
	Model string
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm call (%s, model %s): %v", e.Kind, e.Model, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether a different model in the chain could still
// succeed. Quota exhaustion is account-wide, so trying another model on the
// same account is pointless.
func (e *Error) Retryable() bool {
	return e.Kind != KindQuotaExceeded
}

// UserMessage maps the failure onto a short operator-safe string.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindRateLimited:
		return "The analysis service is busy. Please try again in a moment."
	case KindQuotaExceeded:
		return "The analysis service is temporarily unavailable."
	case KindTimeout:
		return "The analysis took too long and was stopped."
	default:
		return "The analysis failed unexpectedly."
	}
}
