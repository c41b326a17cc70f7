// -----------------------------------------------------------------------
// Extraction Engine - job listings and detail pages to structured drafts
// -----------------------------------------------------------------------

package extraction

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// Outcome summarizes an extraction pass
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeEmpty   Outcome = "empty"
	OutcomeError   Outcome = "error"
)

// OutcomeOf classifies the result of an extraction pass
func OutcomeOf(count int, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeError
	case count == 0:
		return OutcomeEmpty
	default:
		return OutcomeSuccess
	}
}

// Engine reads job listings and job details from rendered pages
type Engine struct {
	selectors    *Selectors
	maxScrolls   int
	scrollPause  time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
	defaultMax   int
	mdConverter  *md.Converter
	logger       arbor.ILogger
}

// NewEngine creates an engine using the configured selector file, or the embedded set
func NewEngine(config *common.ExtractionConfig, logger arbor.ILogger) (*Engine, error) {
	selectors, err := LoadSelectors(config.SelectorsFile)
	if err != nil {
		return nil, err
	}

	defaultMax := config.MaxListings
	if defaultMax <= 0 {
		defaultMax = 25
	}

	return &Engine{
		selectors:    selectors,
		maxScrolls:   config.MaxScrolls,
		scrollPause:  common.ParseDurationOr(config.ScrollPause, 750*time.Millisecond),
		waitTimeout:  10 * time.Second,
		pollInterval: 250 * time.Millisecond,
		defaultMax:   defaultMax,
		mdConverter:  md.NewConverter("", true, nil),
		logger:       logger,
	}, nil
}

// ExtractListings scrolls the listings pane to trigger lazy loading, then parses
// up to maxCount unique cards. Links are made absolute against the page URL.
func (e *Engine) ExtractListings(ctx context.Context, page interfaces.Page, maxCount int) ([]models.JobRecordDraft, error) {
	if maxCount <= 0 {
		maxCount = e.defaultMax
	}

	for i := 0; i < e.maxScrolls; i++ {
		if err := page.Scroll(ctx); err != nil {
			return nil, fmt.Errorf("scroll listings: %w", err)
		}
		if err := sleep(ctx, e.scrollPause); err != nil {
			return nil, err
		}
	}

	container, err := e.waitForAny(ctx, page, e.selectors.Listings.Container)
	if err != nil {
		return nil, err
	}

	html, err := page.HTML(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("read listings: %w", err)
	}
	pageURL, err := page.URL(ctx)
	if err != nil {
		return nil, err
	}

	drafts, err := e.ParseListings(html, maxCount)
	if err != nil {
		return nil, err
	}
	for i := range drafts {
		drafts[i].URL = CanonicalURL(pageURL, drafts[i].URL)
	}

	e.logger.Debug().
		Str("url", pageURL).
		Int("count", len(drafts)).
		Str("outcome", string(OutcomeOf(len(drafts), nil))).
		Msg("Listings extracted")

	return drafts, nil
}

// ExtractDetail parses the job detail page currently loaded
func (e *Engine) ExtractDetail(ctx context.Context, page interfaces.Page) (models.JobRecordDraft, error) {
	html, err := page.HTML(ctx, "")
	if err != nil {
		return models.JobRecordDraft{}, fmt.Errorf("read job detail: %w", err)
	}
	pageURL, err := page.URL(ctx)
	if err != nil {
		return models.JobRecordDraft{}, err
	}

	draft, err := e.ParseDetail(html)
	if err != nil {
		return models.JobRecordDraft{}, err
	}
	draft.URL = CanonicalURL("", pageURL)
	return draft, nil
}

// waitForAny polls until one of the selectors exists and returns it.
// Without any match the document root is used.
func (e *Engine) waitForAny(ctx context.Context, page interfaces.Page, selectors []string) (string, error) {
	deadline := time.Now().Add(e.waitTimeout)
	for {
		for _, sel := range selectors {
			found, err := page.Exists(ctx, sel)
			if err != nil {
				return "", err
			}
			if found {
				return sel, nil
			}
		}
		if time.Now().After(deadline) {
			e.logger.Warn().Str("selectors", strings.Join(selectors, ", ")).Msg("Listings container not found, parsing whole document")
			return "", nil
		}
		if err := sleep(ctx, e.pollInterval); err != nil {
			return "", err
		}
	}
}

// ParseListings turns listing markup into drafts. Cards without a title are
// discarded; duplicates by normalized title+company keep the first occurrence.
func (e *Engine) ParseListings(html string, maxCount int) ([]models.JobRecordDraft, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listings HTML: %w", err)
	}

	sel := e.selectors.Listings
	root := firstSelection(doc.Selection, sel.Container)
	if root == nil {
		root = doc.Selection
	}

	var cards *goquery.Selection
	for _, s := range sel.Card {
		if found := root.Find(s); found.Length() > 0 {
			cards = found
			break
		}
	}
	if cards == nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	var drafts []models.JobRecordDraft

	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		draft := e.parseCard(card)
		if draft.Title == "" {
			return true
		}
		key := common.DedupeKey(draft.Title, draft.Company)
		if seen[key] {
			return true
		}
		seen[key] = true
		drafts = append(drafts, draft)
		return maxCount <= 0 || len(drafts) < maxCount
	})

	return drafts, nil
}

func (e *Engine) parseCard(card *goquery.Selection) models.JobRecordDraft {
	sel := e.selectors.Listings
	draft := models.JobRecordDraft{
		Title:    firstText(card, sel.Title),
		Company:  firstText(card, sel.Company),
		Location: firstText(card, sel.Location),
		Salary:   firstText(card, sel.Salary),
	}

	for _, s := range sel.Link {
		if href, ok := card.Find(s).First().Attr("href"); ok && href != "" {
			draft.URL = href
			break
		}
	}

	if firstSelection(card, sel.QuickApply) != nil {
		draft.QuickApply = true
	} else {
		text := strings.ToLower(card.Text())
		for _, marker := range sel.QuickApplyText {
			if strings.Contains(text, marker) {
				draft.QuickApply = true
				break
			}
		}
	}

	// Text-pattern fallback over the card's leaf lines
	lines := textLines(card)
	if draft.Salary != "" {
		// the salary slot also carries benefit badges and "Actively recruiting"
		draft.Salary = MatchSalary(draft.Salary)
	}
	if draft.Salary == "" {
		draft.Salary = MatchSalary(lines...)
	}
	if draft.Location == "" {
		draft.Location = MatchLocation(lines...)
	}
	if draft.Title == "" && len(lines) > 0 {
		draft.Title = lines[0]
	}
	if draft.Company == "" {
		draft.Company = companyLine(lines, draft, sel.QuickApplyText)
	}

	return draft
}

// companyLine picks the first leaf line that is not the title or another known field
func companyLine(lines []string, draft models.JobRecordDraft, markers []string) string {
	for _, line := range lines {
		if line == draft.Title || line == draft.Location || line == draft.Salary {
			continue
		}
		if MatchLocation(line) != "" || MatchSalary(line) != "" {
			continue
		}
		lower := strings.ToLower(line)
		marker := false
		for _, m := range markers {
			if strings.Contains(lower, m) {
				marker = true
				break
			}
		}
		if !marker {
			return line
		}
	}
	return ""
}

// ParseDetail turns a job detail page into a draft
func (e *Engine) ParseDetail(html string) (models.JobRecordDraft, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.JobRecordDraft{}, fmt.Errorf("failed to parse detail HTML: %w", err)
	}

	sel := e.selectors.Detail
	root := firstSelection(doc.Selection, sel.Container)
	if root == nil {
		root = doc.Selection
	}

	draft := models.JobRecordDraft{
		Title:      firstText(root, sel.Title),
		Company:    firstText(root, sel.Company),
		Location:   firstText(root, sel.Location),
		QuickApply: firstSelection(doc.Selection, sel.ApplyButton) != nil,
	}
	if draft.Title == "" {
		draft.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	lines := textLines(root)
	if raw := firstText(root, sel.Salary); raw != "" {
		draft.Salary = MatchSalary(raw)
	}
	if draft.Salary == "" {
		draft.Salary = MatchSalary(lines...)
	}
	if draft.Location != "" {
		if m := MatchLocation(draft.Location); m != "" {
			draft.Location = m
		}
	} else {
		draft.Location = MatchLocation(lines...)
	}

	description := firstSelection(root, sel.Description)
	if description == nil {
		description = e.longestQualifyingBlock(doc.Selection)
	}
	if description != nil {
		draft.Description = e.toMarkdown(description)
	}

	return draft, nil
}

// longestQualifyingBlock returns the longest leaf block whose text is long enough
// and mentions a job-description keyword
func (e *Engine) longestQualifyingBlock(root *goquery.Selection) *goquery.Selection {
	const blocks = "div, section, article"
	sel := e.selectors.Detail

	var best *goquery.Selection
	bestLen := 0
	root.Find(blocks).Each(func(_ int, s *goquery.Selection) {
		if s.Find(blocks).Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if len(text) < sel.MinDescriptionLength || len(text) <= bestLen {
			return
		}
		lower := strings.ToLower(text)
		for _, kw := range sel.DescriptionKeywords {
			if strings.Contains(lower, kw) {
				best = s
				bestLen = len(text)
				return
			}
		}
	})
	return best
}

func (e *Engine) toMarkdown(s *goquery.Selection) string {
	html, err := s.Html()
	if err != nil {
		return strings.TrimSpace(s.Text())
	}
	markdown, err := e.mdConverter.ConvertString(html)
	if err != nil {
		e.logger.Debug().Err(err).Msg("Markdown conversion failed, using plain text")
		return strings.TrimSpace(s.Text())
	}
	return strings.TrimSpace(markdown)
}

// CanonicalURL resolves href against base and strips query and fragment
func CanonicalURL(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base != "" {
		if b, err := url.Parse(base); err == nil {
			ref = b.ResolveReference(ref)
		}
	}
	ref.RawQuery = ""
	ref.Fragment = ""
	return ref.String()
}

func firstSelection(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		if found := root.Find(s).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func firstText(root *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if text := collapse(root.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// textLines returns the trimmed text of every element without element children
func textLines(root *goquery.Selection) []string {
	var lines []string
	root.Find("*").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		switch goquery.NodeName(s) {
		case "script", "style", "button", "svg":
			return
		}
		if text := collapse(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	return lines
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
