package ranking

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mf2hd-design/memoscan2/internal/discovery"
	"github.com/mf2hd-design/memoscan2/internal/urlutil"
)

// Scoring tiers. A link accumulates the tier score once per matching
// pattern, so a URL hitting several high-value terms outranks one hitting a
// single term. The curated terms cover English, German and Spanish path
// conventions seen across corporate sites.
type tier struct {
	name     string
	score    int
	patterns []*regexp.Regexp
}

var negativePatterns = compile([]string{
	`\b(log(in|out)?|sign(in|up)|register|account|my-account)\b`,
	`\b(anmelden|abmelden|registrieren|konto)\b`,
	`\b(impressum|imprint|legal|disclaimer|compliance|datenschutz|privacy|terms|cookies?)\b`,
	`\b(agb|bedingungen|rechtliches|politica-de-privacidad|aviso-legal|terminos|condiciones)\b`,
	`\b(newsletter|subscribe|subscription|unsubscribe|boletin|suscripcion)\b`,
	`\b(jobs?|career(s)?|vacancies|internships?|apply|karriere|stellenangebote|bewerbung|praktikum|empleo|trabajo|vacantes)\b`,
	`\b(basket|cart|checkout|shop|store|ecommerce|wishlist|warenkorb|kaufen|bestellen|carrito|tienda|comprar|pedido)\b`,
	`\b(calculator|tool|search|filter|compare|rechner|suche|vergleich|calculadora|buscar|comparar|filtro)\b`,
	`\b(404|not-found|error|redirect|sitemap|robots|tracking|rss)\b`,
	`\b(press[-_]release(s)?)\b`,
	`\b(takeover|capital[-_]increase|webcast|publication|report|finances?|annual[-_]report|quarterly[-_]report|balance[-_]sheet|proxy|prospectus|statement|filings)\b`,
	`\b(news|events|blogs?|articles?|updates?|media|press|spotlight|stories)\b`,
	`\b(whitepapers?|webinars?|case[-_]stud(y|ies)|customer[-_]stor(y|ies))\b`,
	`\b(resources?|insights?|downloads?)\b`,
})

var tiers = []tier{
	{name: "high", score: 20, patterns: compile([]string{
		`company`, `about`, `story`, `mission`, `vision`, `purpose`, `values`,
		`strategy`, `culture`, `who[-_]we[-_]are`, `credo`, `manifesto`,
		`why[-_]we[-_]exist`, `what[-_]we[-_]believe`, `unternehmen`,
		`unsere[-_]mission`, `unsere[-_]werte`, `quienes[-_]somos`,
		`nuestra[-_]historia`, `nuestros[-_]valores`,
	})},
	{name: "core_business", score: 15, patterns: compile([]string{
		`products`, `solutions`, `services`, `pipeline`, `research`,
		`innovation`, `investors?`, `investor[-_]relations`, `offerings`,
		`expertise`, `what[-_]we[-_]do`, `capabilities`, `industries`,
		`technology`,
	})},
	{name: "language", score: 10, patterns: compile([]string{
		`/en/`, `lang=en`,
	})},
	{name: "medium", score: 8, patterns: compile([]string{
		`leadership`, `team`, `management`, `history`, `heritage`, `legacy`,
		`sustainability`, `responsibility`, `esg`, `nachhaltigkeit`,
		`verantwortung`, `liderazgo`, `equipo`, `sostenibilidad`,
	})},
	{name: "negative", score: -50, patterns: negativePatterns},
}

var ignoredExtensions = []string{
	".pdf", ".zip", ".jpg", ".jpeg", ".png", ".gif",
	".docx", ".xlsx", ".pptx", ".mp3", ".mp4",
}

func compile(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Scorer assigns priority scores to candidate links. It is stateless and
// deterministic; it satisfies discovery.Scorer.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

// Score computes the weighted keyword score for a link. The combined URL
// and anchor text are matched against each tier's patterns.
func (s *Scorer) Score(url, text string) int {
	combined := strings.ToLower(url + " " + text)
	score := 0
	for _, t := range tiers {
		for _, p := range t.patterns {
			if p.MatchString(combined) {
				score += t.score
			}
		}
	}

	if urlutil.PathDepth(url) <= 2 {
		score += 2
	}

	lower := strings.ToLower(url)
	for _, ext := range ignoredExtensions {
		if strings.HasSuffix(lower, ext) {
			score -= 100
			break
		}
	}
	return score
}

// Rank scores candidates, drops non-positive scores, orders the rest
// descending and truncates to budget. The homepage is always first and
// never counted against a negative score. Equal scores keep discovery
// order (stable sort), so ranking the same set twice yields the same
// order.
func (s *Scorer) Rank(candidates []discovery.CandidateLink, homepage string, budget int) []discovery.CandidateLink {
	normHome, err := urlutil.Normalize(homepage)
	if err != nil {
		normHome = homepage
	}

	scored := make([]discovery.CandidateLink, 0, len(candidates))
	for _, c := range candidates {
		if c.URL == normHome {
			continue // re-added at the front below
		}
		c.Score = s.Score(c.URL, c.Text)
		if c.Score <= 0 {
			continue
		}
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	home := discovery.CandidateLink{
		URL:    normHome,
		Source: discovery.SourceHTMLAnchor,
		Text:   "Homepage",
		Score:  s.Score(normHome, "Homepage"),
		Depth:  0,
	}

	out := append([]discovery.CandidateLink{home}, scored...)
	if budget > 0 && len(out) > budget {
		out = out[:budget]
	}
	return out
}
