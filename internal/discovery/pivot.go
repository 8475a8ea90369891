package discovery

import (
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/urlutil"
)

// FindPortalPivot looks for a better corporate portal among the discovered
// links: a link on the same brand (same second-level domain) but a
// different host whose score clears the configured threshold. Brand sites
// often redirect product domains to a corporate parent; analyzing the
// parent gives far richer brand content.
//
// The caller enforces the single-hop rule: a session that has already
// pivoted once must not pivot again, whatever this returns.
func (d *Discoverer) FindPortalPivot(links []CandidateLink, initialURL string, scorer Scorer) string {
	best := ""
	bestScore := 0

	for _, link := range links {
		if !urlutil.SameBrand(initialURL, link.URL) || urlutil.SameHost(initialURL, link.URL) {
			continue
		}
		if s := scorer.Score(link.URL, link.Text); s > bestScore {
			bestScore = s
			best = link.URL
		}
	}

	if best == "" || bestScore < d.cfg.PivotMinScore {
		d.logger.Info("no corporate portal pivot found, continuing with initial URL")
		return ""
	}

	d.logger.Info("pivoting to corporate portal",
		logging.Field{Key: "portal", Value: best},
		logging.Field{Key: "score", Value: bestScore})
	return best
}
