package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Containers tried in order when isolating the main copy of a page.
// Falling back to body keeps sites without semantic markup working, at the
// cost of some nav noise.
var contentSelectors = []string{"main", "article", "[role=main]", "body"}

var strippedElements = "script, style, noscript, iframe, svg, nav, footer, form"

// ExtractText pulls the human-readable text out of rendered HTML. Boilerplate
// elements are removed, then the first matching content container wins.
func ExtractText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}

	doc.Find(strippedElements).Remove()

	for _, sel := range contentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := collapseWhitespace(node.Text()); text != "" {
			return text, nil
		}
	}
	return "", nil
}

// collapseWhitespace folds runs of whitespace into single spaces, keeping
// paragraph breaks as newlines so the analysis prompt sees structure.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lines := strings.Split(s, "\n")
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				b.WriteByte('\n')
				blank = true
			}
			continue
		}
		if !blank {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		blank = false
	}
	return strings.TrimSpace(b.String())
}
