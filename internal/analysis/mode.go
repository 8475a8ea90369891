package analysis

import "fmt"

// Mode selects the rubric a session analyzes against. The two modes are a
// closed set; each maps at compile time to its key list, prompts and
// schema, so an unknown mode is rejected before a session starts.
type Mode string

const (
	// ModeDiagnosis scores how memorable the brand's web presence is.
	ModeDiagnosis Mode = "diagnosis"
	// ModeDiscovery maps what the brand is actually communicating.
	ModeDiscovery Mode = "discovery"
)

// ParseMode validates a client-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDiagnosis:
		return ModeDiagnosis, nil
	case ModeDiscovery:
		return ModeDiscovery, nil
	default:
		return "", fmt.Errorf("unknown analysis mode %q", s)
	}
}

// Diagnosis rubric keys, each scored independently.
const (
	KeyEmotion     = "Emotion"
	KeyAttention   = "Attention"
	KeyStory       = "Story"
	KeyInvolvement = "Involvement"
	KeyRepetition  = "Repetition"
	KeyConsistency = "Consistency"
)

// Discovery rubric keys. Visual-Text Alignment depends on the outputs of
// Brand Elements and Positioning Themes and runs after them.
const (
	KeyPositioningThemes   = "Positioning Themes"
	KeyKeyMessages         = "Key Messages"
	KeyToneOfVoice         = "Tone of Voice"
	KeyBrandElements       = "Brand Elements"
	KeyVisualTextAlignment = "Visual-Text Alignment"
)

// Keys returns the rubric keys for a mode in their canonical order.
func (m Mode) Keys() []string {
	switch m {
	case ModeDiscovery:
		return []string{
			KeyPositioningThemes, KeyKeyMessages, KeyToneOfVoice,
			KeyBrandElements, KeyVisualTextAlignment,
		}
	default:
		return []string{
			KeyEmotion, KeyAttention, KeyStory,
			KeyInvolvement, KeyRepetition, KeyConsistency,
		}
	}
}

// dependsOn lists keys that must complete before the given key may run.
// Empty for every key except Visual-Text Alignment.
func dependsOn(key string) []string {
	if key == KeyVisualTextAlignment {
		return []string{KeyBrandElements, KeyPositioningThemes}
	}
	return nil
}
