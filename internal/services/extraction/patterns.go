package extraction

import (
	"regexp"
	"strings"
)

const (
	period         = `(?:\s*(?:/|per\s+)\s*(?:yr|year|hr|hour|mo|month)\b)`
	currencyAmount = `[$€£]\s?\d[\d,.]*\s?[kKmM]?`
	plainAmount    = `\d[\d,.]*\s?[kKmM]?`
	rangeSep       = `\s*(?:-|–|to)\s*`
)

// Salary families in priority order
var salaryPatterns = []*regexp.Regexp{
	// $120K/yr - $150K/yr, £40,000 to £50,000
	regexp.MustCompile(currencyAmount + period + `?` + rangeSep + `[$€£]?\s?` + plainAmount + period + `?`),
	// $55/hr
	regexp.MustCompile(currencyAmount + period),
	// 90,000 - 110,000 USD
	regexp.MustCompile(plainAmount + rangeSep + plainAmount + `\s*(?:USD|EUR|GBP|CAD|AUD)\b`),
}

// Location families in priority order
var locationPatterns = []*regexp.Regexp{
	// Austin, TX
	regexp.MustCompile(`\b[A-Z][A-Za-z.'-]*(?:\s[A-Z][A-Za-z.'-]*)*,\s[A-Z]{2}\b`),
	// San Francisco Bay Area, Greater Seattle Area
	regexp.MustCompile(`\b[A-Z][A-Za-z.'-]*(?:\s[A-Z][A-Za-z.'-]*)*\s(?:Metropolitan\s|Metro\s)?Area\b`),
	// Remote / Hybrid / On-site
	regexp.MustCompile(`(?i)\b(?:remote|hybrid|on-site)\b`),
}

// MatchSalary returns the highest-priority salary match across lines
func MatchSalary(lines ...string) string {
	return firstMatch(salaryPatterns, lines)
}

// MatchLocation returns the highest-priority location match across lines
func MatchLocation(lines ...string) string {
	return firstMatch(locationPatterns, lines)
}

func firstMatch(patterns []*regexp.Regexp, lines []string) string {
	for _, re := range patterns {
		for _, line := range lines {
			if m := re.FindString(line); m != "" {
				return strings.TrimSpace(m)
			}
		}
	}
	return ""
}
