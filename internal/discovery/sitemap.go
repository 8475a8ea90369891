package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/urlutil"
)

// sitemapIndex child sitemaps are prioritized by these path keywords; page
// and company sitemaps carry the content we want, image/video sitemaps
// don't.
var sitemapPriorityKeywords = []string{"page", "post", "company", "about", "article"}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// FromSitemap fetches /sitemap.xml for baseURL and returns its entries as
// candidates. Sitemap indexes are followed one level down to the most
// promising child sitemap. Partial parses are kept: a decode error after
// some entries were read returns those entries with no error.
func (d *Discoverer) FromSitemap(ctx context.Context, baseURL string) ([]CandidateLink, error) {
	sitemapURL, err := urlutil.Resolve(baseURL, "/sitemap.xml")
	if err != nil {
		return nil, fmt.Errorf("building sitemap url: %w", err)
	}

	body, err := d.fetchXML(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	if childURLs := parseSitemapIndex(body); len(childURLs) > 0 {
		best := pickBestSitemap(childURLs)
		d.logger.Info("sitemap index found, following child sitemap",
			logging.Field{Key: "child", Value: best})
		body, err = d.fetchXML(ctx, best)
		if err != nil {
			return nil, fmt.Errorf("fetching child sitemap: %w", err)
		}
	}

	locs := parseURLSet(body)
	if len(locs) == 0 {
		return nil, fmt.Errorf("sitemap at %s contained no URL entries", sitemapURL)
	}

	var links []CandidateLink
	for _, loc := range locs {
		if !urlutil.SameBrand(baseURL, loc) {
			continue
		}
		norm, err := urlutil.Normalize(loc)
		if err != nil {
			continue
		}
		links = append(links, CandidateLink{
			URL:    norm,
			Source: SourceSitemap,
			Text:   slugLabel(norm),
			Depth:  urlutil.PathDepth(norm),
		})
	}
	return links, nil
}

func (d *Discoverer) fetchXML(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create sitemap request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sitemap fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// parseURLSet decodes <urlset> entries token by token so that a decode
// error partway through keeps what already parsed.
func parseURLSet(body []byte) []string {
	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err == nil {
		out := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				out = append(out, loc)
			}
		}
		return out
	}
	return scanLocs(body, "url")
}

func parseSitemapIndex(body []byte) []string {
	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err == nil {
		out := make([]string, 0, len(idx.Sitemaps))
		for _, s := range idx.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				out = append(out, loc)
			}
		}
		return out
	}
	if strings.Contains(string(body), "<sitemapindex") {
		return scanLocs(body, "sitemap")
	}
	return nil
}

// scanLocs is the lenient path: stream tokens and collect <loc> text under
// the given parent element, stopping silently at the first syntax error.
func scanLocs(body []byte, parent string) []string {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	var out []string
	inParent, inLoc := false, false
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case parent:
				inParent = true
			case "loc":
				inLoc = inParent
			}
		case xml.EndElement:
			switch t.Name.Local {
			case parent:
				inParent = false
			case "loc":
				inLoc = false
			}
		case xml.CharData:
			if inLoc {
				if loc := strings.TrimSpace(string(t)); loc != "" {
					out = append(out, loc)
				}
			}
		}
	}
}

func pickBestSitemap(urls []string) string {
	for _, kw := range sitemapPriorityKeywords {
		for _, u := range urls {
			if strings.Contains(strings.ToLower(u), kw) {
				return u
			}
		}
	}
	return urls[0]
}

// slugLabel turns "/our-story" into "our story" so sitemap entries carry
// scoreable text the way anchor links do.
func slugLabel(norm string) string {
	i := strings.LastIndex(norm, "/")
	if i < 0 || i == len(norm)-1 {
		return ""
	}
	return strings.ReplaceAll(norm[i+1:], "-", " ")
}
