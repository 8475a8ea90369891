package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/testutil"
)

func testConfig() *config.DiscoveryConfig {
	return &config.DiscoveryConfig{
		MaxCandidates:  50,
		SitemapTimeout: 2 * time.Second,
		PivotMinScore:  16,
	}
}

func newTestDiscoverer(t *testing.T, client *http.Client) *Discoverer {
	t.Helper()
	return New(testConfig(), client, &testutil.DummyLogger{})
}

func TestFromHTML(t *testing.T) {
	html := []byte(`<html><body>
		<a href="/about">About us</a>
		<a href="https://example.com/products/">Products</a>
		<a href="https://other-brand.com/page">External</a>
		<a href="javascript:void(0)">JS</a>
		<a href="mailto:info@example.com">Mail</a>
		<a href="#section">Anchor</a>
	</body></html>`)

	d := newTestDiscoverer(t, nil)
	links := d.FromHTML(html, "https://example.com")

	want := map[string]bool{
		"https://example.com/about":    true,
		"https://example.com/products": true,
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links %v, want %d", len(links), links, len(want))
	}
	for _, l := range links {
		if !want[l.URL] {
			t.Errorf("unexpected link %q", l.URL)
		}
		if l.Source != SourceHTMLAnchor {
			t.Errorf("link %q has source %q", l.URL, l.Source)
		}
	}
}

func TestFromHTMLAnchorText(t *testing.T) {
	html := []byte(`<a href="/about">  About <b>Us</b>  </a>`)
	d := newTestDiscoverer(t, nil)
	links := d.FromHTML(html, "https://example.com")
	if len(links) != 1 || links[0].Text != "About Us" {
		t.Fatalf("got %+v", links)
	}
}

func TestMergeDeduplicates(t *testing.T) {
	a := []CandidateLink{
		{URL: "https://example.com/about", Source: SourceHTMLAnchor},
		{URL: "https://example.com/team", Source: SourceHTMLAnchor},
	}
	b := []CandidateLink{
		{URL: "https://example.com/about", Source: SourceSitemap},
		{URL: "https://example.com/story", Source: SourceSitemap},
	}

	merged := Merge(50, a, b)
	if len(merged) != 3 {
		t.Fatalf("got %d entries, want 3", len(merged))
	}
	// First-seen source wins for duplicates.
	if merged[0].Source != SourceHTMLAnchor {
		t.Errorf("duplicate kept source %q, want html-anchor", merged[0].Source)
	}
}

func TestMergeCap(t *testing.T) {
	var many []CandidateLink
	for i := 0; i < 60; i++ {
		many = append(many, CandidateLink{URL: "https://example.com/p" + string(rune('a'+i))})
	}
	if got := Merge(10, many); len(got) != 10 {
		t.Errorf("cap not enforced, got %d", len(got))
	}
}

func TestFromSitemapURLSet(t *testing.T) {
	var base string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<?xml version="1.0"?>
			<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
			<url><loc>` + base + `/our-story</loc></url>
			<url><loc>` + base + `/products</loc></url>
			<url><loc>https://other-brand.example.org/x</loc></url>
			</urlset>`))
	}))
	defer srv.Close()
	base = srv.URL

	d := newTestDiscoverer(t, srv.Client())
	links, err := d.FromSitemap(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromSitemap error: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links %v, want 2 (off-brand filtered)", len(links), links)
	}
	if links[0].Text != "our story" {
		t.Errorf("slug label = %q, want %q", links[0].Text, "our story")
	}
}

func TestFromSitemapIndexPrefersPageChild(t *testing.T) {
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<sitemapindex>
			<sitemap><loc>` + base + `/video-sitemap.xml</loc></sitemap>
			<sitemap><loc>` + base + `/page-sitemap.xml</loc></sitemap>
			</sitemapindex>`))
	})
	mux.HandleFunc("/page-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<urlset><url><loc>` + base + `/about</loc></url></urlset>`))
	})
	mux.HandleFunc("/video-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		t.Error("video sitemap should not be fetched when a page sitemap exists")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	d := newTestDiscoverer(t, srv.Client())
	links, err := d.FromSitemap(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromSitemap error: %v", err)
	}
	if len(links) != 1 || links[0].Source != SourceSitemap {
		t.Fatalf("got %v", links)
	}
}

func TestFromSitemapMalformedKeepsPartial(t *testing.T) {
	var base string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Valid entries followed by a syntax error.
		w.Write([]byte(`<urlset>
			<url><loc>` + base + `/about</loc></url>
			<url><loc>` + base + `/team</loc></url>
			<url><loc>` + base + `/broken</loc>`))
	}))
	defer srv.Close()
	base = srv.URL

	d := newTestDiscoverer(t, srv.Client())
	links, err := d.FromSitemap(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("partial parse should not error: %v", err)
	}
	if len(links) < 2 {
		t.Errorf("expected the entries before the syntax error, got %v", links)
	}
}

func TestFromSitemapMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := newTestDiscoverer(t, srv.Client())
	if _, err := d.FromSitemap(context.Background(), srv.URL); err == nil {
		t.Error("missing sitemap should report an error")
	}
}

func TestDiscoverSurvivesSitemapFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := newTestDiscoverer(t, srv.Client())
	html := []byte(`<a href="` + srv.URL + `/about">About</a>`)
	links := d.Discover(context.Background(), html, srv.URL)
	if len(links) != 1 {
		t.Fatalf("HTML links should survive a sitemap failure, got %v", links)
	}
}

type fixedScorer map[string]int

func (f fixedScorer) Score(url, _ string) int { return f[url] }

func TestFindPortalPivot(t *testing.T) {
	d := newTestDiscoverer(t, nil)
	initial := "https://shop.example.com"
	links := []CandidateLink{
		{URL: "https://shop.example.com/products", Text: "Products"},
		{URL: "https://example.com/company", Text: "Company"},
		{URL: "https://unrelated.org/about", Text: "About"},
	}
	scores := fixedScorer{
		"https://shop.example.com/products": 40,
		"https://example.com/company":       22,
		"https://unrelated.org/about":       99,
	}

	got := d.FindPortalPivot(links, initial, scores)
	if got != "https://example.com/company" {
		t.Errorf("pivot = %q, want the same-brand cross-host link", got)
	}
}

func TestFindPortalPivotBelowThreshold(t *testing.T) {
	d := newTestDiscoverer(t, nil)
	links := []CandidateLink{
		{URL: "https://example.com/company", Text: "Company"},
	}
	scores := fixedScorer{"https://example.com/company": 5}

	if got := d.FindPortalPivot(links, "https://shop.example.com", scores); got != "" {
		t.Errorf("weak pivot candidate must be rejected, got %q", got)
	}
}
