package analysis

// ValidationStatus records how much repair a model response needed before
// it was accepted.
type ValidationStatus string

const (
	// StatusValid means the response matched the schema as received.
	StatusValid ValidationStatus = "valid"
	// StatusRepaired means coercion, clamping or sub-field discards were
	// applied but the result is usable.
	StatusRepaired ValidationStatus = "repaired"
	// StatusDiscarded means the response was unrecoverable and the key
	// carries no analysis.
	StatusDiscarded ValidationStatus = "discarded"
)

// FailureKind classifies why a key produced no valid analysis.
type FailureKind string

const (
	FailValidation    FailureKind = "validation_error"
	FailTimeout       FailureKind = "timeout"
	FailRateLimit     FailureKind = "upstream_rate_limit"
	FailQuotaExceeded FailureKind = "upstream_quota_exceeded"
	FailUnknown       FailureKind = "unknown"
)

// Result is the analysis of one rubric key. Immutable once emitted; the
// same value is streamed to the client, archived and logged for feedback.
type Result struct {
	Key        string `json:"key"`
	Score      int    `json:"score"`
	Confidence int    `json:"confidence"`
	// Evidence quotes verbatim passages from the analyzed pages.
	Evidence       []string         `json:"evidence"`
	Rationale      string           `json:"rationale"`
	Recommendation string           `json:"recommendation,omitempty"`
	Status         ValidationStatus `json:"validation_status"`
	// DiscardedFields names sub-fields replaced with safe defaults during
	// repair.
	DiscardedFields []string `json:"discarded_fields,omitempty"`
	// Failure is set only when Status is discarded.
	Failure FailureKind `json:"failure,omitempty"`
	Model   string      `json:"model,omitempty"`
}

// Failed reports whether the key carries no usable analysis.
func (r *Result) Failed() bool { return r.Status == StatusDiscarded }

// QuantSummary is the closing tally streamed after the per-key results.
type QuantSummary struct {
	Analyzed   int      `json:"analyzed"`
	Failed     int      `json:"failed"`
	Strong     int      `json:"strong"`
	Weak       int      `json:"weak"`
	AvgScore   float64  `json:"avg_score"`
	StrongKeys []string `json:"strong_keys,omitempty"`
	WeakKeys   []string `json:"weak_keys,omitempty"`
}
