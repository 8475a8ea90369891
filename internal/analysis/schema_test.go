package analysis

import (
	"strings"
	"testing"
)

func TestValidPayloadUntouched(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	raw := `{"score": 4, "confidence": 85, "evidence": ["We began in 1950."], "rationale": "Strong origin story.", "recommendation": "Add more sensory detail."}`

	res := s.ValidateAndRepair(KeyStory, raw)

	if res.Status != StatusValid {
		t.Fatalf("status = %q, want valid (discarded: %v)", res.Status, res.DiscardedFields)
	}
	if res.Score != 4 || res.Confidence != 85 {
		t.Errorf("score/confidence = %d/%d", res.Score, res.Confidence)
	}
	if len(res.Evidence) != 1 || res.Rationale == "" || res.Recommendation == "" {
		t.Errorf("fields lost: %+v", res)
	}
}

func TestNumericStringCoercion(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	raw := `{"score": "3", "confidence": "85", "evidence": [], "rationale": "ok"}`

	res := s.ValidateAndRepair(KeyEmotion, raw)

	if res.Status != StatusRepaired {
		t.Fatalf("status = %q, want repaired", res.Status)
	}
	if res.Score != 3 || res.Confidence != 85 {
		t.Errorf("coerced score/confidence = %d/%d, want 3/85", res.Score, res.Confidence)
	}
	if len(res.DiscardedFields) != 0 {
		t.Errorf("coercion must not discard fields: %v", res.DiscardedFields)
	}
}

func TestOutOfRangeClamped(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	raw := `{"score": 9, "confidence": 140, "evidence": [], "rationale": "ok"}`

	res := s.ValidateAndRepair(KeyEmotion, raw)

	if res.Status != StatusRepaired {
		t.Fatalf("status = %q, want repaired", res.Status)
	}
	if res.Score != 5 || res.Confidence != 100 {
		t.Errorf("clamped to %d/%d, want 5/100", res.Score, res.Confidence)
	}
}

func TestInvalidSubFieldDiscardedOthersKept(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	raw := `{"score": 4, "confidence": {"oops": true}, "evidence": ["quote"], "rationale": "fine"}`

	res := s.ValidateAndRepair(KeyEmotion, raw)

	if res.Status != StatusRepaired {
		t.Fatalf("status = %q, want repaired", res.Status)
	}
	if res.Score != 4 || len(res.Evidence) != 1 || res.Rationale != "fine" {
		t.Errorf("valid fields must survive a sub-field discard: %+v", res)
	}
	if len(res.DiscardedFields) != 1 || res.DiscardedFields[0] != "confidence" {
		t.Errorf("DiscardedFields = %v, want [confidence]", res.DiscardedFields)
	}
}

func TestNonStringEvidenceEntriesDropped(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	raw := `{"score": 2, "confidence": 50, "evidence": ["good", 42, {"x":1}, "also good"], "rationale": "ok"}`

	res := s.ValidateAndRepair(KeyEmotion, raw)

	if res.Status != StatusRepaired {
		t.Fatalf("status = %q, want repaired", res.Status)
	}
	if len(res.Evidence) != 2 {
		t.Errorf("evidence = %v, want the two string entries", res.Evidence)
	}
}

func TestOverLongFieldsTruncated(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	long := strings.Repeat("x", s.MaxStringLen+500)
	raw := `{"score": 2, "confidence": 50, "evidence": ["a","b","c","d","e","f","g"], "rationale": "` + long + `"}`

	res := s.ValidateAndRepair(KeyEmotion, raw)

	if res.Status != StatusRepaired {
		t.Fatalf("status = %q, want repaired", res.Status)
	}
	if len(res.Rationale) != s.MaxStringLen {
		t.Errorf("rationale length = %d, want %d", len(res.Rationale), s.MaxStringLen)
	}
	if len(res.Evidence) != s.MaxEvidence {
		t.Errorf("evidence length = %d, want %d", len(res.Evidence), s.MaxEvidence)
	}
}

func TestUnparseableDiscardsKey(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	for _, raw := range []string{"not json at all", `["an","array"]`, `42`} {
		res := s.ValidateAndRepair(KeyEmotion, raw)
		if res.Status != StatusDiscarded {
			t.Errorf("ValidateAndRepair(%q).Status = %q, want discarded", raw, res.Status)
		}
		if res.Failure != FailValidation {
			t.Errorf("failure = %q, want validation_error", res.Failure)
		}
	}
}

func TestFencedJSONAccepted(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	raw := "```json\n{\"score\": 3, \"confidence\": 70, \"evidence\": [], \"rationale\": \"ok\"}\n```"

	res := s.ValidateAndRepair(KeyEmotion, raw)
	if res.Status == StatusDiscarded {
		t.Fatal("fenced JSON should parse")
	}
	if res.Score != 3 {
		t.Errorf("score = %d", res.Score)
	}
}

func TestBareStringEvidenceWrapped(t *testing.T) {
	s := schemaFor(ModeDiagnosis)
	raw := `{"score": 3, "confidence": 70, "evidence": "single quote", "rationale": "ok"}`

	res := s.ValidateAndRepair(KeyEmotion, raw)
	if res.Status != StatusRepaired {
		t.Fatalf("status = %q, want repaired", res.Status)
	}
	if len(res.Evidence) != 1 || res.Evidence[0] != "single quote" {
		t.Errorf("evidence = %v", res.Evidence)
	}
}
