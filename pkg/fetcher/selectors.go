package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// firstMatch tries an ordered list of selectors and returns the selection
// for the first one with any matches. This models "try several known page
// layouts, use whichever matches".
func firstMatch(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

// firstText tries an ordered list of selectors and returns the trimmed
// text of the first matching element.
func firstText(doc *goquery.Document, selectors []string) string {
	sel := firstMatch(doc, selectors)
	if sel == nil {
		return ""
	}
	return strings.TrimSpace(sel.First().Text())
}

// imageSrc pulls the image URL out of an img element, preferring src and
// falling back to data-src for lazy-loaded galleries.
func imageSrc(sel *goquery.Selection) string {
	if src, ok := sel.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	if src, ok := sel.Attr("data-src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	return ""
}

// containsAny reports whether s contains any of the given substrings,
// case-insensitively.
func containsAny(s string, substrings []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
