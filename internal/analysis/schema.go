package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Schema bounds one rubric key's result. Both modes share the same shape;
// only the bounds differ per mode.
type Schema struct {
	ScoreMin int
	ScoreMax int
	// Confidence is always 0-100.
	MaxEvidence  int
	MaxStringLen int
}

func schemaFor(Mode) Schema {
	// Both rubrics score 0-5. Kept per-mode in case the scales diverge.
	return Schema{
		ScoreMin:     0,
		ScoreMax:     5,
		MaxEvidence:  5,
		MaxStringLen: 1200,
	}
}

const (
	confidenceMin = 0
	confidenceMax = 100
)

// ValidateAndRepair turns a raw model response into a Result for key.
// Repair is deliberately narrow: numeric-string coercion applies to score
// and confidence only, out-of-range integers clamp, over-long strings and
// arrays truncate, and a sub-field that stays invalid is replaced by a safe
// default and listed in DiscardedFields. Only an unparseable or non-object
// top level discards the whole key.
func (s Schema) ValidateAndRepair(key, raw string) Result {
	res := Result{Key: key, Status: StatusValid}

	payload := extractJSON(raw)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Result{Key: key, Status: StatusDiscarded, Failure: FailValidation}
	}

	repaired := false
	discard := func(field string) {
		res.DiscardedFields = append(res.DiscardedFields, field)
		repaired = true
	}

	score, r, ok := coerceInt(fields["score"])
	if !ok {
		discard("score")
		score = s.ScoreMin
	}
	repaired = repaired || r
	if c := clamp(score, s.ScoreMin, s.ScoreMax); c != score {
		score, repaired = c, true
	}
	res.Score = score

	conf, r, ok := coerceInt(fields["confidence"])
	if !ok {
		discard("confidence")
		conf = confidenceMin
	}
	repaired = repaired || r
	if c := clamp(conf, confidenceMin, confidenceMax); c != conf {
		conf, repaired = c, true
	}
	res.Confidence = conf

	evidence, r, ok := coerceStringSlice(fields["evidence"])
	if !ok {
		discard("evidence")
	}
	repaired = repaired || r
	if len(evidence) > s.MaxEvidence {
		evidence, repaired = evidence[:s.MaxEvidence], true
	}
	for i, e := range evidence {
		if t := truncate(e, s.MaxStringLen); t != e {
			evidence[i], repaired = t, true
		}
	}
	res.Evidence = evidence

	rationale, r, ok := coerceString(fields["rationale"])
	if !ok {
		discard("rationale")
	}
	repaired = repaired || r
	res.Rationale = truncate(rationale, s.MaxStringLen)
	repaired = repaired || res.Rationale != rationale

	rec, r, ok := coerceString(fields["recommendation"])
	if ok {
		repaired = repaired || r
		res.Recommendation = truncate(rec, s.MaxStringLen)
		repaired = repaired || res.Recommendation != rec
	}
	// recommendation is optional; absence is not a repair.

	if repaired {
		res.Status = StatusRepaired
	}
	return res
}

// extractJSON strips a markdown code fence around the payload, a habit some
// models keep even when asked for bare JSON.
func extractJSON(raw string) string {
	t := strings.TrimSpace(raw)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
		return strings.TrimSpace(t)
	}
	if i := strings.Index(t, "{"); i > 0 {
		if j := strings.LastIndex(t, "}"); j > i {
			return t[i : j+1]
		}
	}
	return t
}

// coerceInt accepts a JSON number or a numeric string. The second return
// reports whether coercion happened (a repair), the third whether a usable
// integer came out at all.
func coerceInt(raw json.RawMessage) (val int, coerced, ok bool) {
	if raw == nil {
		return 0, false, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), f != float64(int(f)), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true, true
		}
	}
	return 0, false, false
}

func coerceString(raw json.RawMessage) (val string, coerced, ok bool) {
	if raw == nil {
		return "", false, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, false, true
	}
	return "", false, false
}

// coerceStringSlice keeps the valid string entries of an array, dropping
// non-string elements. A non-array value is unusable.
func coerceStringSlice(raw json.RawMessage) (vals []string, coerced, ok bool) {
	if raw == nil {
		return nil, false, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// A bare string becomes a one-element slice.
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []string{s}, true, true
		}
		return nil, false, false
	}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			vals = append(vals, s)
		} else {
			coerced = true
		}
	}
	return vals, coerced, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// truncateRaw shortens raw model output for logging.
func truncateRaw(raw string) string {
	const max = 500
	if len(raw) <= max {
		return raw
	}
	return fmt.Sprintf("%s... (%d bytes total)", raw[:max], len(raw))
}
