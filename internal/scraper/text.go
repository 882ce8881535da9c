package scraper

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Promotional fragments. Body text is cut at the first paywall marker.
var (
	paywallMarkers = []string{
		"Para aceder a todos os Exclusivos CM",
		"Ler o artigo completo",
	}
	newsletterPhrase = "Subscreva gratuitamente as newsletters e receba o melhor da actualidade e os trabalhos mais profundos do Público."
)

// textWalk gathers text nodes below a root, skipping excluded subtrees.
// When keep is set only text below an element matching keep is gathered.
type textWalk struct {
	exclude string
	keep    string
}

func (w textWalk) collect(roots *goquery.Selection) []string {
	var out []string
	var walk func(s *goquery.Selection, kept bool)
	walk = func(s *goquery.Selection, kept bool) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			n := c.Get(0)
			switch n.Type {
			case html.TextNode:
				if kept {
					out = append(out, n.Data)
				}
			case html.ElementNode:
				if c.Is(alwaysExcluded) || (w.exclude != "" && c.Is(w.exclude)) {
					return
				}
				walk(c, kept || (w.keep != "" && c.Is(w.keep)))
			}
		})
	}
	roots.Each(func(_ int, root *goquery.Selection) {
		walk(root, w.keep == "")
	})
	return out
}

// CleanBody removes publisher boilerplate and canonicalizes whitespace.
func CleanBody(text string) string {
	for _, marker := range paywallMarkers {
		if idx := strings.Index(text, marker); idx >= 0 {
			text = text[:idx]
		}
	}
	text = strings.ReplaceAll(text, newsletterPhrase, "")
	return normalize(text)
}

// normalize drops literal backslashes and collapses whitespace runs.
func normalize(s string) string {
	s = strings.ReplaceAll(s, `\`, "")
	return strings.Join(strings.Fields(s), " ")
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
