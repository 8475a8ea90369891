package analysis

import (
	"fmt"
	"strings"
)

const systemPersona = `You are a senior brand strategist evaluating how a company presents itself through its website. You are rigorous, evidence-driven, and you quote the site verbatim to support every judgment. You respond only with the JSON object requested, no prose around it.`

// keyCriteria holds the evaluation criteria embedded into each key's
// prompt. The diagnosis criteria follow the memorability rubric; the
// discovery criteria map communicated brand substance.
var keyCriteria = map[string]string{
	KeyEmotion: `Does the content evoke feeling rather than merely inform? Look for human stories, sensory language, aspiration, humor or warmth. A site that only lists facts and features scores low.`,
	KeyAttention: `Does the content earn attention in the first moments? Look for distinctive headlines, unexpected claims, strong visual-verbal hooks described in the copy. Generic category language scores low.`,
	KeyStory: `Is there a coherent narrative about who the company is, where it came from and where it is going? Look for origin stories, a stated purpose, named protagonists. A collection of disconnected pages scores low.`,
	KeyInvolvement: `Does the content invite the reader to participate or see themselves in it? Look for direct address, questions, interactive prompts, community signals. Pure broadcast copy scores low.`,
	KeyRepetition: `Are the core messages repeated across pages in varied but recognizable forms? Look for recurring phrases, claims and themes. Messages that appear once and vanish score low.`,
	KeyConsistency: `Do tone, vocabulary and claims stay consistent across all pages? Look for a stable register and non-contradictory positioning. A site that shifts voice page to page scores low.`,

	KeyPositioningThemes: `Identify the distinct positioning themes the brand claims, such as innovation leadership, sustainability, heritage or customer intimacy. Quote the passages that establish each theme. Score reflects how clearly defined the themes are.`,
	KeyKeyMessages: `Extract the concrete key messages the brand repeats, as close to verbatim as possible. Score reflects how sharp and ownable the messages are.`,
	KeyToneOfVoice: `Characterize the tone of voice with precise adjectives and quote passages that exemplify it. Score reflects how distinctive and consistent the tone is.`,
	KeyBrandElements: `Identify named brand elements referenced in the text, such as taglines, product naming systems, campaign names or proprietary terms. Score reflects how developed the element system is.`,
	KeyVisualTextAlignment: `Given the positioning themes and brand elements already identified, judge whether the textual presentation supports them coherently. Score reflects alignment between what the brand claims and how it writes.`,
}

const jsonContract = `Respond with a single JSON object with exactly these fields:
{
  "score": <integer %d-%d>,
  "confidence": <integer 0-100, your certainty in this assessment>,
  "evidence": [<up to %d verbatim quotes from the content>],
  "rationale": "<2-4 sentences explaining the score>",
  "recommendation": "<one concrete improvement the brand could make>"
}`

// synthesisPrompt asks for a compact brand overview that later per-key
// prompts embed as shared context, so each key call doesn't re-derive the
// basics from the full corpus.
func synthesisPrompt(corpus string) string {
	var b strings.Builder
	b.WriteString("Read the following website content and write a brand overview of at most 150 words: who the company is, what it offers, and how it positions itself.\n\n")
	b.WriteString("WEBSITE CONTENT:\n")
	b.WriteString(corpus)
	return b.String()
}

// keyPrompt builds the per-key analysis prompt. context carries prior
// results a dependent key needs; empty for independent keys.
func keyPrompt(key string, schema Schema, corpus, overview, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate the rubric dimension %q.\n\n", key)
	b.WriteString("CRITERIA:\n")
	b.WriteString(keyCriteria[key])
	b.WriteString("\n\n")
	if overview != "" {
		b.WriteString("BRAND OVERVIEW:\n")
		b.WriteString(overview)
		b.WriteString("\n\n")
	}
	if context != "" {
		b.WriteString("PRIOR FINDINGS:\n")
		b.WriteString(context)
		b.WriteString("\n\n")
	}
	b.WriteString("WEBSITE CONTENT:\n")
	b.WriteString(corpus)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, jsonContract, schema.ScoreMin, schema.ScoreMax, schema.MaxEvidence)
	return b.String()
}

// summaryPrompt asks for the closing executive summary over the completed
// key results.
func summaryPrompt(mode Mode, results []Result) string {
	var b strings.Builder
	if mode == ModeDiscovery {
		b.WriteString("Write an executive summary (at most 200 words) of what this brand communicates, based on the findings below. Name its strongest assets and its biggest gaps.\n\n")
	} else {
		b.WriteString("Write an executive summary (at most 200 words) of how memorable this brand's web presence is, based on the scores below. Name the strongest and weakest dimensions and the single highest-impact improvement.\n\n")
	}
	b.WriteString("FINDINGS:\n")
	for _, r := range results {
		if r.Failed() {
			continue
		}
		fmt.Fprintf(&b, "- %s: score %d/5, confidence %d. %s\n", r.Key, r.Score, r.Confidence, r.Rationale)
	}
	return b.String()
}

// dependencyContext renders completed prerequisite results for a dependent
// key's prompt.
func dependencyContext(deps []Result) string {
	var b strings.Builder
	for _, d := range deps {
		if d.Failed() {
			continue
		}
		fmt.Fprintf(&b, "%s (score %d): %s\n", d.Key, d.Score, d.Rationale)
		for _, e := range d.Evidence {
			fmt.Fprintf(&b, "  - %q\n", e)
		}
	}
	return b.String()
}
