package discovery

// Source records where a candidate link was discovered.
type Source string

const (
	SourceHTMLAnchor Source = "html-anchor"
	SourceSitemap    Source = "sitemap"
)

// CandidateLink is a discovered URL awaiting ranking. URL holds the
// normalized form (scheme+host+path, fragment and trailing slash stripped),
// which is also the deduplication key.
type CandidateLink struct {
	URL    string `json:"url"`
	Source Source `json:"source"`
	// Text is the raw anchor text (or a slug-derived label for sitemap
	// entries); it feeds keyword scoring alongside the URL itself.
	Text string `json:"text"`
	// Score is filled in by the ranker.
	Score int `json:"score"`
	// Depth is the path depth from the site root.
	Depth int `json:"depth"`
}

// Scorer assigns a priority score to a link from its URL and anchor text.
// Implemented by the ranking package; declared here so discovery's portal
// pivot can score without importing it.
type Scorer interface {
	Score(url, text string) int
}
