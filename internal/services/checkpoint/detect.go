package checkpoint

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// urlMarkers identify manual-verification screens by location
var urlMarkers = []string{"/checkpoint", "/challenge", "/authwall", "captcha"}

// domMarkers identify verification screens served from an ordinary URL
var domMarkers = []string{
	"iframe[src*='captcha']",
	"iframe[title*='captcha']",
	"#captcha-internal",
	"form#challenge",
	"[data-test-id='challenge']",
}

var headingMarkers = []string{"security check", "security verification", "verify your identity", "confirm it's really you", "quick security check"}

// DetectURL reports whether the location alone identifies a checkpoint
func DetectURL(url string) bool {
	lower := strings.ToLower(url)
	for _, marker := range urlMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Detect reports whether the page at url with the given markup is a checkpoint
func Detect(url, html string) bool {
	if DetectURL(url) {
		return true
	}
	if html == "" {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	for _, sel := range domMarkers {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}

	found := false
	doc.Find("h1, h2").EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		for _, marker := range headingMarkers {
			if strings.Contains(text, marker) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// ScalePoint maps a point on a delivered frame to page coordinates.
// A zero frame size means no frame was delivered yet and the point is used as-is.
func ScalePoint(x, y float64, frameW, frameH, viewW, viewH int) (float64, float64) {
	if frameW <= 0 || frameH <= 0 || viewW <= 0 || viewH <= 0 {
		return x, y
	}
	px := clamp(x*float64(viewW)/float64(frameW), float64(viewW))
	py := clamp(y*float64(viewH)/float64(frameH), float64(viewH))
	return px, py
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
