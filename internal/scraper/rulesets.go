package scraper

import "github.com/opennews-pt/pt-news-extractor/internal/dates"

// Ruleset lists the selectors used to read one host's article template.
type Ruleset struct {
	Title              string
	Authors            string
	Body               string
	BodyExclude        string
	Description        string
	OpinionDescription string
	Date               string
	DateStrip          string
	DateOrder          dates.Order
}

// alwaysExcluded never contributes article text.
const alwaysExcluded = "script, style, noscript"

// htmlRulesets covers hosts whose pages carry every field in the markup.
var htmlRulesets = map[string]Ruleset{
	"www.cmjornal.pt": {
		Title:              "div.centro h1",
		Authors:            "span.autor",
		Body:               "div.texto_container.paywall",
		BodyExclude:        "aside, div.inContent, blockquote",
		Description:        "strong.lead",
		OpinionDescription: "p.destaques_lead",
		Date:               "span.data",
		DateStrip:          "às",
		DateOrder:          dates.DMY,
	},
	"www.vidas.pt": {
		Title:              "div.centro h1",
		Authors:            "div.autor",
		Body:               "div.text_container",
		BodyExclude:        "iframe",
		Description:        "div.lead",
		OpinionDescription: "div.lead",
		Date:               "div.data",
		DateStrip:          "•",
		DateOrder:          dates.DMY,
	},
}

// Público pages only carry the body; everything else comes from the summary API.
const (
	publicoBody        = "div.story__body"
	publicoBodyKeep    = "p, blockquote, h1, h2, h3, h4"
	publicoBodyExclude = "aside, div[class*=supplemental-slot]"
	publicoLiveLabel   = "span.label--live"
)

// RulesetFor returns the HTML ruleset for host.
func RulesetFor(host string) (Ruleset, bool) {
	rs, ok := htmlRulesets[host]
	return rs, ok
}
