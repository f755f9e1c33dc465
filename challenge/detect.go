// Package challenge recognises anti-bot interstitial pages and waits for
// them to clear.
package challenge

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// wrapperSelectors match the container elements of known interstitials.
var wrapperSelectors = []string{
	"#cf-wrapper",
	"#challenge-form",
	"#cf-challenge-running",
	".cf-browser-verification",
}

var titleMarkers = []string{"Cloudflare", "Security Check", "Just a moment"}

const bodyMarker = "Checking your browser"

// Detect reports whether html is a challenge interstitial. A page is one if
// a wrapper element exists, the title carries a known marker, or the body
// text says the browser is being checked.
func Detect(html string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("parse document: %w", err)
	}

	for _, sel := range wrapperSelectors {
		if doc.Find(sel).Length() > 0 {
			return true, nil
		}
	}

	title := doc.Find("title").First().Text()
	for _, marker := range titleMarkers {
		if strings.Contains(title, marker) {
			return true, nil
		}
	}

	return strings.Contains(doc.Find("body").Text(), bodyMarker), nil
}
