package discovery

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/urlutil"
)

// Discoverer builds the candidate link set for a session from two sources:
// anchors in the homepage HTML and the site's XML sitemap. Sources are
// merged and deduplicated by normalized URL; a failure in one source never
// aborts the other.
type Discoverer struct {
	cfg    *config.DiscoveryConfig
	client *http.Client
	logger logging.Logger
}

// New creates a Discoverer. httpClient is used for sitemap retrieval only
// (sitemaps are static XML; they don't need a rendering backend). Pass nil
// for a default client with the configured timeout.
func New(cfg *config.DiscoveryConfig, httpClient *http.Client, logger logging.Logger) *Discoverer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.SitemapTimeout}
	}
	return &Discoverer{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With(logging.Field{Key: "component", Value: "discovery"}),
	}
}

// Discover merges HTML-anchor and sitemap candidates for baseURL, capped at
// the configured maximum. homepageHTML is the already-fetched rendered
// homepage.
func (d *Discoverer) Discover(ctx context.Context, homepageHTML []byte, baseURL string) []CandidateLink {
	htmlLinks := d.FromHTML(homepageHTML, baseURL)

	sitemapLinks, err := d.FromSitemap(ctx, baseURL)
	if err != nil {
		d.logger.Warn("sitemap discovery failed, continuing with HTML links only",
			logging.Field{Key: "base_url", Value: baseURL},
			logging.Field{Key: "error", Value: err.Error()})
	}

	merged := Merge(d.cfg.MaxCandidates, htmlLinks, sitemapLinks)
	d.logger.Info("link discovery complete",
		logging.Field{Key: "html_links", Value: len(htmlLinks)},
		logging.Field{Key: "sitemap_links", Value: len(sitemapLinks)},
		logging.Field{Key: "candidates", Value: len(merged)})
	return merged
}

// FromHTML extracts same-brand anchor links from raw HTML. Malformed markup
// is tolerated; goquery parses what it can.
func (d *Discoverer) FromHTML(html []byte, baseURL string) []CandidateLink {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		d.logger.Warn("homepage HTML unparseable",
			logging.Field{Key: "base_url", Value: baseURL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil
	}

	var links []CandidateLink
	total := 0
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		total++
		href := sanitizeHref(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}

		abs, err := urlutil.Resolve(baseURL, href)
		if err != nil {
			return
		}
		if !urlutil.SameBrand(baseURL, abs) {
			return
		}
		norm, err := urlutil.Normalize(abs)
		if err != nil {
			return
		}

		links = append(links, CandidateLink{
			URL:    norm,
			Source: SourceHTMLAnchor,
			Text:   strings.TrimSpace(sel.Text()),
			Depth:  urlutil.PathDepth(norm),
		})
	})

	if total == 0 {
		d.logger.Warn("no anchors found; page may be fully JS-rendered",
			logging.Field{Key: "base_url", Value: baseURL})
	}
	return links
}

// Merge deduplicates candidates by normalized URL, preserving first-seen
// order, truncated to max entries.
func Merge(max int, sets ...[]CandidateLink) []CandidateLink {
	seen := make(map[string]struct{})
	var out []CandidateLink
	for _, set := range sets {
		for _, c := range set {
			if _, dup := seen[c.URL]; dup {
				continue
			}
			seen[c.URL] = struct{}{}
			out = append(out, c)
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}

// sanitizeHref strips escaped quotes and backslashes that occasionally leak
// into href attributes from server-side templating.
func sanitizeHref(href string) string {
	href = strings.ReplaceAll(href, `\"`, "")
	href = strings.ReplaceAll(href, `\`, "")
	return strings.Trim(strings.TrimSpace(href), `"'`)
}
