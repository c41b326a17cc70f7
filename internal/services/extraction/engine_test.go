package extraction

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/services/browser/browsertest"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(&common.ExtractionConfig{MaxScrolls: 2, ScrollPause: "1ms", MaxListings: 10}, arbor.NewLogger())
	require.NoError(t, err)
	return engine
}

func TestExtractListings_FromSitePage(t *testing.T) {
	site := browsertest.NewSite("a@b.c", "pw")
	site.AddJob(&browsertest.SiteJob{ID: "101", Title: "Backend Engineer", Company: "Globex", Location: "Austin, TX", Salary: "$120K/yr - $150K/yr", QuickApply: true})
	site.AddJob(&browsertest.SiteJob{ID: "102", Title: "Data Analyst", Company: "Initech", Location: "Remote"})
	page := site.NewPage("u1")
	page.Load(site.JobsURL())

	engine := newTestEngine(t)
	drafts, err := engine.ExtractListings(context.Background(), page, 0)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, 2, page.Scrolls)

	assert.Equal(t, "Backend Engineer", drafts[0].Title)
	assert.Equal(t, "Globex", drafts[0].Company)
	assert.Equal(t, "Austin, TX", drafts[0].Location)
	assert.Equal(t, "$120K/yr - $150K/yr", drafts[0].Salary)
	assert.Equal(t, site.JobURL("101"), drafts[0].URL)
	assert.True(t, drafts[0].QuickApply)

	assert.Equal(t, "Remote", drafts[1].Location)
	assert.Empty(t, drafts[1].Salary)
	assert.False(t, drafts[1].QuickApply)
}

func TestParseListings_TextFallback(t *testing.T) {
	html := `<ul>
		<li data-occludable-job-id="1">
			<div>
				<span>Backend Engineer</span>
				<span>Globex</span>
				<span>Austin, TX (Remote)</span>
				<span>$120K/yr - $150K/yr</span>
				<span>Easy Apply</span>
			</div>
			<a href="/jobs/view/1/?trk=search">view</a>
		</li>
	</ul>`

	drafts, err := newTestEngine(t).ParseListings(html, 0)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	d := drafts[0]
	assert.Equal(t, "Backend Engineer", d.Title)
	assert.Equal(t, "Globex", d.Company)
	assert.Equal(t, "Austin, TX", d.Location)
	assert.Equal(t, "$120K/yr - $150K/yr", d.Salary)
	assert.Equal(t, "/jobs/view/1/?trk=search", d.URL)
	assert.True(t, d.QuickApply)
}

func TestParseListings_SalarySlotWithoutPayIsDropped(t *testing.T) {
	html := `<ul>
		<li class="jobs-search-results__list-item">
			<a class="job-card-list__title" href="/jobs/view/1/">Backend Engineer</a><h4>Globex</h4>
			<div class="job-card-container__salary-info">Medical, 401(k) benefits</div>
		</li>
		<li class="jobs-search-results__list-item">
			<a class="job-card-list__title" href="/jobs/view/2/">Data Analyst</a><h4>Initech</h4>
			<div class="job-card-container__salary-info">$90K/yr - $110K/yr · 401(k)</div>
		</li>
	</ul>`

	drafts, err := newTestEngine(t).ParseListings(html, 0)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Empty(t, drafts[0].Salary)
	assert.Equal(t, "$90K/yr - $110K/yr", drafts[1].Salary)
}

func TestParseListings_DedupesAndDropsUntitled(t *testing.T) {
	html := `<ul>
		<li class="jobs-search-results__list-item"><a class="job-card-list__title" href="/jobs/view/1/">Backend  Engineer</a><h4>Globex</h4></li>
		<li class="jobs-search-results__list-item"><a class="job-card-list__title" href="/jobs/view/2/">backend engineer</a><h4>GLOBEX</h4></li>
		<li class="jobs-search-results__list-item"><a href="/jobs/view/3/"></a></li>
		<li class="jobs-search-results__list-item"><a class="job-card-list__title" href="/jobs/view/4/">Site Reliability Engineer</a><h4>Globex</h4></li>
	</ul>`

	drafts, err := newTestEngine(t).ParseListings(html, 0)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "Backend Engineer", drafts[0].Title)
	assert.Equal(t, "/jobs/view/1/", drafts[0].URL)
	assert.Equal(t, "Site Reliability Engineer", drafts[1].Title)
}

func TestParseListings_RespectsMax(t *testing.T) {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, title := range []string{"One", "Two", "Three", "Four"} {
		b.WriteString(`<li class="jobs-search-results__list-item"><h3>` + title + `</h3><h4>Acme</h4></li>`)
	}
	b.WriteString("</ul>")

	drafts, err := newTestEngine(t).ParseListings(b.String(), 3)
	require.NoError(t, err)
	assert.Len(t, drafts, 3)
}

func TestParseListings_NoCards(t *testing.T) {
	drafts, err := newTestEngine(t).ParseListings(`<html><body><p>No results</p></body></html>`, 0)
	require.NoError(t, err)
	assert.Empty(t, drafts)
	assert.Equal(t, OutcomeEmpty, OutcomeOf(len(drafts), err))
}

func TestExtractDetail_FromSitePage(t *testing.T) {
	site := browsertest.NewSite("a@b.c", "pw")
	site.AddJob(&browsertest.SiteJob{
		ID: "7", Title: "Platform Engineer", Company: "Hooli", Location: "San Francisco Bay Area",
		Salary: "$150,000 - $180,000", Description: "Requirements: five years of Go.", QuickApply: true,
	})
	page := site.NewPage("u1")
	page.Load(site.JobURL("7"))

	draft, err := newTestEngine(t).ExtractDetail(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "Platform Engineer", draft.Title)
	assert.Equal(t, "Hooli", draft.Company)
	assert.Equal(t, "San Francisco Bay Area", draft.Location)
	assert.Equal(t, "$150,000 - $180,000", draft.Salary)
	assert.Equal(t, "Requirements: five years of Go.", draft.Description)
	assert.Equal(t, site.JobURL("7"), draft.URL)
	assert.True(t, draft.QuickApply)
}

func TestParseDetail_DescriptionFallback(t *testing.T) {
	long := strings.Repeat("We build reliable distributed systems for customers. ", 5)
	html := `<html><head><title>Go Developer | Acme</title></head><body>
		<div class="sidebar"><div>Similar jobs you may like and other unrelated recommendations for you to browse today and tomorrow and beyond, plenty of them, endless in fact, more and more and more and more.</div></div>
		<section><div><p>` + long + `</p><p><strong>Responsibilities</strong></p><ul><li>Ship services</li></ul></div></section>
		<div>Remote</div>
	</body></html>`

	draft, err := newTestEngine(t).ParseDetail(html)
	require.NoError(t, err)
	assert.Equal(t, "Go Developer | Acme", draft.Title)
	assert.Equal(t, "Remote", draft.Location)
	assert.Contains(t, draft.Description, "**Responsibilities**")
	assert.Contains(t, draft.Description, "Ship services")
	assert.NotContains(t, draft.Description, "Similar jobs")
	assert.Empty(t, draft.Salary)
	assert.False(t, draft.QuickApply)
}

func TestParseDetail_ShortBlocksIgnored(t *testing.T) {
	html := `<html><body><h1>Tester</h1><div>Requirements: none.</div></body></html>`
	draft, err := newTestEngine(t).ParseDetail(html)
	require.NoError(t, err)
	assert.Equal(t, "Tester", draft.Title)
	assert.Empty(t, draft.Description)
}

func TestMatchSalary_Priority(t *testing.T) {
	assert.Equal(t, "$120K/yr - $150K/yr", MatchSalary("$120K/yr - $150K/yr · Full-time"))
	assert.Equal(t, "$55/hr", MatchSalary("Contract · $55/hr"))
	assert.Equal(t, "90,000 - 110,000 USD", MatchSalary("90,000 - 110,000 USD"))
	assert.Equal(t, "£40,000 to £50,000", MatchSalary("Pays $30/hr", "£40,000 to £50,000"))
	assert.Empty(t, MatchSalary("Competitive pay"))
}

func TestMatchLocation_Priority(t *testing.T) {
	assert.Equal(t, "Austin, TX", MatchLocation("Remote", "Austin, TX"))
	assert.Equal(t, "Greater Seattle Area", MatchLocation("Hybrid", "Greater Seattle Area"))
	assert.Equal(t, "Hybrid", MatchLocation("Hybrid"))
	assert.Empty(t, MatchLocation("Globex"))
}

func TestCanonicalURL(t *testing.T) {
	assert.Equal(t, "https://site.test/jobs/view/9/", CanonicalURL("https://site.test/jobs/?page=2", "/jobs/view/9/?trk=abc#top"))
	assert.Equal(t, "https://other.test/x", CanonicalURL("https://site.test/", "https://other.test/x?y=1"))
}

func TestLoadSelectors_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listings:
  card: ["article.posting"]
  title: ["h2"]
detail:
  title: ["h2"]
`), 0o644))

	engine, err := NewEngine(&common.ExtractionConfig{SelectorsFile: path}, arbor.NewLogger())
	require.NoError(t, err)

	drafts, err := engine.ParseListings(`<article class="posting"><h2>Welder</h2></article>`, 0)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Welder", drafts[0].Title)
}

func TestLoadSelectors_RejectsEmptyCards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detail:\n  title: [h1]\n"), 0o644))
	_, err := LoadSelectors(path)
	assert.Error(t, err)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeOf(3, nil))
	assert.Equal(t, OutcomeError, OutcomeOf(0, assert.AnError))
}
