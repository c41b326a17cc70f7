package browsertest

import (
	"fmt"
	"html"
	"strings"
	"sync"
)

// Field kinds rendered by the fake application form
const (
	FieldText     = "text"
	FieldNumeric  = "numeric"
	FieldTextarea = "textarea"
	FieldSelect   = "select"
	FieldRadio    = "radio"
	FieldCheckbox = "checkbox"
	FieldFile     = "file"
)

// SiteField is one input of an application step. A text or checkbox field
// with no ID is rendered with only its Name, labelled by aria-label or a
// wrapping <label>.
type SiteField struct {
	ID       string
	Name     string
	Label    string
	Kind     string
	Options  []string
	Required bool
}

// Selector addresses the rendered input; "" when it has neither id nor name
func (f SiteField) Selector() string {
	switch {
	case f.ID != "":
		return IDSelector(f.ID)
	case f.Name != "":
		return fmt.Sprintf("[name=%q]", f.Name)
	}
	return ""
}

func (f SiteField) key() string {
	if f.ID != "" {
		return f.ID
	}
	return f.Name
}

// SiteStep is one page of the application modal
type SiteStep struct {
	Fields []SiteField
}

// SiteJob is a listing served by the fake site
type SiteJob struct {
	ID          string
	Title       string
	Company     string
	Location    string
	Salary      string
	Description string
	QuickApply  bool
	Closed      bool
	// Challenge serves a verification screen the first time the job is opened
	Challenge bool
	Steps     []SiteStep
}

// Site models the professional-network site: login, listings, job pages,
// the multi-step quick-apply modal and a verification challenge.
type Site struct {
	Base     string
	Email    string
	Password string
	// SignedIn simulates a persistent profile whose cookies are still valid
	SignedIn bool
	// ChallengeOnLogin presents a verification screen after a correct password
	ChallengeOnLogin bool

	mu        sync.Mutex
	jobs      []*SiteJob
	solved    bool
	signOuts  int
	submitted map[string]int
	answers   map[string]map[string]string
}

// NewSite creates a site with one account
func NewSite(email, password string) *Site {
	return &Site{
		Base:      "https://site.test",
		Email:     email,
		Password:  password,
		submitted: make(map[string]int),
		answers:   make(map[string]map[string]string),
	}
}

func (s *Site) LoginURL() string      { return s.Base + "/login" }
func (s *Site) FeedURL() string       { return s.Base + "/feed/" }
func (s *Site) JobsURL() string       { return s.Base + "/jobs/" }
func (s *Site) CheckpointURL() string { return s.Base + "/checkpoint/challenge/1" }
func (s *Site) JobURL(id string) string {
	return s.Base + "/jobs/view/" + id + "/"
}

// AddJob publishes a listing
func (s *Site) AddJob(job *SiteJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Submitted returns how many applications were sent for a job
func (s *Site) Submitted(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted[jobID]
}

// Answers returns the label -> value pairs the site accepted for a job
func (s *Site) Answers(jobID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for k, v := range s.answers[jobID] {
		out[k] = v
	}
	return out
}

// SignOutNextApply ends the login the next time an apply button is clicked
func (s *Site) SignOutNextApply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOuts++
}

// Solved reports whether the verification challenge was passed
func (s *Site) Solved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.solved
}

// IDSelector is the attribute selector form used for form fields
func IDSelector(id string) string {
	return fmt.Sprintf("[id=%q]", id)
}

// NewPage builds a page wired to the site; suitable as FakeLauncher.NewPage
func (s *Site) NewPage(userID string) *FakePage {
	p := NewFakePage(userID, 1366, 768)
	s.install(p)
	return p
}

func (s *Site) install(p *FakePage) {
	s.mu.Lock()
	signedIn := s.SignedIn
	jobs := append([]*SiteJob(nil), s.jobs...)
	s.mu.Unlock()

	if signedIn {
		p.Route(s.LoginURL(), s.feedHTML())
	} else {
		p.Route(s.LoginURL(), s.loginHTML(false))
	}
	p.Route(s.FeedURL(), s.feedHTML())
	p.Route(s.JobsURL(), s.listingsHTML(jobs))
	p.Route(s.CheckpointURL(), challengeHTML())
	for _, job := range jobs {
		if job.Challenge {
			p.Route(s.JobURL(job.ID), challengeHTML())
		} else {
			p.Route(s.JobURL(job.ID), s.detailHTML(job, ""))
		}
	}

	p.OnClick("button[type='submit']", s.onLoginSubmit)
	p.OnPoint(func(p *FakePage, pt Point) { s.onChallengeClick(p) })

	state := &applyState{}
	p.OnClick("button.jobs-apply-button", func(p *FakePage) { s.onApply(p, state) })
	p.OnClick("button[aria-label='Continue to next step']", func(p *FakePage) { s.onAdvance(p, state) })
	p.OnClick("button[aria-label='Review your application']", func(p *FakePage) { s.onAdvance(p, state) })
	p.OnClick("button[aria-label='Submit application']", func(p *FakePage) { s.onSubmit(p, state) })
	p.OnClick("button[aria-label='Dismiss']", func(p *FakePage) {
		if state.job != nil {
			p.Show(s.JobURL(state.job.ID), s.detailHTML(state.job, ""))
		}
	})
}

type applyState struct {
	job  *SiteJob
	step int
}

func (s *Site) onLoginSubmit(p *FakePage) {
	email := p.Value("#username")
	password := p.Value("#password")

	s.mu.Lock()
	ok := email == s.Email && password == s.Password
	challenge := s.ChallengeOnLogin && !s.solved
	s.mu.Unlock()

	switch {
	case !ok:
		p.Show(s.LoginURL(), s.loginHTML(true))
	case challenge:
		p.Show(s.CheckpointURL(), challengeHTML())
	default:
		p.Show(s.FeedURL(), s.feedHTML())
	}
}

func (s *Site) onChallengeClick(p *FakePage) {
	s.mu.Lock()
	s.solved = true
	jobs := append([]*SiteJob(nil), s.jobs...)
	s.mu.Unlock()

	for _, job := range jobs {
		p.Route(s.JobURL(job.ID), s.detailHTML(job, ""))
	}
	p.Route(s.LoginURL(), s.feedHTML())
	p.Show(s.FeedURL(), s.feedHTML())
}

func (s *Site) jobForURL(url string) *SiteJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if s.JobURL(job.ID) == url {
			return job
		}
	}
	return nil
}

func (s *Site) onApply(p *FakePage, state *applyState) {
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()

	s.mu.Lock()
	signOut := s.signOuts > 0
	if signOut {
		s.signOuts--
	}
	s.mu.Unlock()
	if signOut {
		p.Show(s.LoginURL()+"?session_redirect="+url, s.loginHTML(false))
		return
	}

	job := s.jobForURL(url)
	if job == nil {
		return
	}
	state.job = job
	state.step = 0
	p.Show(url, s.detailHTML(job, s.stepHTML(job, 0, nil)))
}

func (s *Site) onAdvance(p *FakePage, state *applyState) {
	job := state.job
	if job == nil || state.step >= len(job.Steps) {
		return
	}

	missing := s.collect(p, job, job.Steps[state.step])
	if len(missing) > 0 {
		p.Show(s.JobURL(job.ID), s.detailHTML(job, s.stepHTML(job, state.step, missing)))
		return
	}

	state.step++
	p.Show(s.JobURL(job.ID), s.detailHTML(job, s.stepHTML(job, state.step, nil)))
}

func (s *Site) onSubmit(p *FakePage, state *applyState) {
	job := state.job
	if job == nil {
		return
	}

	s.mu.Lock()
	s.submitted[job.ID]++
	s.mu.Unlock()

	modal := fmt.Sprintf(`<div class="artdeco-modal" id="post-apply-modal" role="dialog">
		<h2>Your application was sent to %s</h2>
		<button aria-label="Dismiss">Done</button>
	</div>`, html.EscapeString(job.Company))
	p.Show(s.JobURL(job.ID), s.detailHTML(job, modal))
}

// collect records filled values and returns the IDs of required fields left empty
func (s *Site) collect(p *FakePage, job *SiteJob, step SiteStep) map[string]bool {
	p.mu.Lock()
	values := make(map[string]string, len(p.Values))
	for k, v := range p.Values {
		values[k] = v
	}
	uploads := make(map[string]string, len(p.Uploads))
	for k, v := range p.Uploads {
		uploads[k] = v
	}
	clicks := append([]string(nil), p.Clicks...)
	p.mu.Unlock()

	clicked := func(sel string) bool {
		for _, c := range clicks {
			if c == sel {
				return true
			}
		}
		return false
	}

	missing := make(map[string]bool)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answers[job.ID] == nil {
		s.answers[job.ID] = make(map[string]string)
	}

	for _, f := range step.Fields {
		value := ""
		switch f.Kind {
		case FieldRadio:
			for i, opt := range f.Options {
				if clicked(IDSelector(fmt.Sprintf("%s-%d", f.ID, i))) {
					value = opt
				}
			}
		case FieldCheckbox:
			if clicked(f.Selector()) {
				value = "checked"
			}
		case FieldFile:
			value = uploads[f.Selector()]
		default:
			value = values[f.Selector()]
		}

		if value == "" && f.Required {
			missing[f.key()] = true
			continue
		}
		if value != "" {
			s.answers[job.ID][f.Label] = value
		}
	}
	return missing
}

func (s *Site) loginHTML(failed bool) string {
	errorBlock := ""
	if failed {
		errorBlock = `<div id="error-for-password" class="form__label--error">That's not the right password.</div>`
	}
	return `<html><head><title>Sign In</title></head><body>
		<form class="login__form">
			<input id="username" name="session_key" type="text">
			<input id="password" name="session_password" type="password">
			` + errorBlock + `
			<button type="submit">Sign in</button>
		</form>
	</body></html>`
}

func (s *Site) feedHTML() string {
	return `<html><head><title>Feed</title></head><body>
		<nav class="global-nav"><a href="/jobs/">Jobs</a></nav>
		<main><h1>Home</h1></main>
	</body></html>`
}

func challengeHTML() string {
	return `<html><head><title>Security Verification</title></head><body>
		<h1>Let's do a quick security check</h1>
		<iframe src="https://challenge.site.test/captcha/frame"></iframe>
	</body></html>`
}

func (s *Site) listingsHTML(jobs []*SiteJob) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Jobs</title></head><body>
		<nav class="global-nav"></nav>
		<div class="jobs-search-results-list"><ul class="scaffold-layout__list-container">`)
	for _, job := range jobs {
		b.WriteString(fmt.Sprintf(`
			<li class="jobs-search-results__list-item" data-occludable-job-id="%s">
				<div class="job-card-container">
					<a class="job-card-list__title" href="/jobs/view/%s/">%s</a>
					<div class="artdeco-entity-lockup__subtitle">%s</div>
					<ul><li class="job-card-container__metadata-item">%s</li></ul>`,
			job.ID, job.ID, html.EscapeString(job.Title), html.EscapeString(job.Company), html.EscapeString(job.Location)))
		if job.Salary != "" {
			b.WriteString(fmt.Sprintf(`<div class="job-card-container__salary-info">%s</div>`, html.EscapeString(job.Salary)))
		}
		if job.QuickApply {
			b.WriteString(`<ul><li class="job-card-container__apply-method">Easy Apply</li></ul>`)
		}
		b.WriteString(`</div></li>`)
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

func (s *Site) detailHTML(job *SiteJob, modal string) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>` + html.EscapeString(job.Title) + `</title></head><body>
		<nav class="global-nav"></nav>
		<div class="jobs-details">`)
	b.WriteString(fmt.Sprintf(`
			<h1 class="job-details-jobs-unified-top-card__job-title">%s</h1>
			<div class="job-details-jobs-unified-top-card__company-name">%s</div>
			<span class="job-details-jobs-unified-top-card__bullet">%s</span>`,
		html.EscapeString(job.Title), html.EscapeString(job.Company), html.EscapeString(job.Location)))
	if job.Salary != "" {
		b.WriteString(`<div class="job-details-jobs-unified-top-card__job-insight"><span>` + html.EscapeString(job.Salary) + ` · Full-time</span></div>`)
	}
	switch {
	case job.Closed:
		b.WriteString(`<div class="jobs-details-top-card__apply-error">No longer accepting applications</div>`)
	case job.QuickApply:
		b.WriteString(`<button class="jobs-apply-button" aria-label="Easy Apply to this job">Easy Apply</button>`)
	}
	if job.Description != "" {
		b.WriteString(`<div id="job-details"><p>` + html.EscapeString(job.Description) + `</p></div>`)
	}
	b.WriteString(`</div>`)
	b.WriteString(modal)
	b.WriteString(`</body></html>`)
	return b.String()
}

// stepHTML renders step i; i == len(Steps) is the review page
func (s *Site) stepHTML(job *SiteJob, i int, missing map[string]bool) string {
	var b strings.Builder
	b.WriteString(`<div class="jobs-easy-apply-modal artdeco-modal" role="dialog">`)
	b.WriteString(`<h2>Apply to ` + html.EscapeString(job.Company) + `</h2><form>`)

	if i < len(job.Steps) {
		for _, f := range job.Steps[i].Fields {
			b.WriteString(`<div class="jobs-easy-apply-form-section__grouping">`)
			b.WriteString(fieldHTML(f))
			if missing[f.key()] {
				b.WriteString(`<span class="artdeco-inline-feedback--error">Please enter a valid answer</span>`)
			}
			b.WriteString(`</div>`)
		}
	} else {
		b.WriteString(`<h3>Review your application</h3>`)
	}
	b.WriteString(`</form><footer>`)

	switch {
	case i < len(job.Steps)-1:
		b.WriteString(`<button aria-label="Continue to next step">Next</button>`)
	case i == len(job.Steps)-1:
		b.WriteString(`<button aria-label="Review your application">Review</button>`)
	default:
		b.WriteString(`<button aria-label="Submit application">Submit application</button>`)
	}
	b.WriteString(`</footer></div>`)
	return b.String()
}

func fieldHTML(f SiteField) string {
	required := ""
	if f.Required {
		required = ` required aria-required="true"`
	}
	label := html.EscapeString(f.Label)

	switch f.Kind {
	case FieldRadio:
		var b strings.Builder
		b.WriteString(`<fieldset><legend>` + label + `</legend>`)
		for i, opt := range f.Options {
			id := fmt.Sprintf("%s-%d", f.ID, i)
			b.WriteString(fmt.Sprintf(`<input type="radio" id="%s" name="%s" value="%s"%s><label for="%s">%s</label>`,
				id, f.ID, html.EscapeString(opt), required, id, html.EscapeString(opt)))
		}
		b.WriteString(`</fieldset>`)
		return b.String()

	case FieldSelect:
		var b strings.Builder
		b.WriteString(fmt.Sprintf(`<label for="%s">%s</label><select id="%s"%s><option value="">Select an option</option>`, f.ID, label, f.ID, required))
		for _, opt := range f.Options {
			b.WriteString(fmt.Sprintf(`<option value="%s">%s</option>`, html.EscapeString(opt), html.EscapeString(opt)))
		}
		b.WriteString(`</select>`)
		return b.String()

	case FieldTextarea:
		return fmt.Sprintf(`<label for="%s">%s</label><textarea id="%s"%s></textarea>`, f.ID, label, f.ID, required)

	case FieldCheckbox:
		if f.ID == "" {
			return fmt.Sprintf(`<label><input type="checkbox"%s%s> %s</label>`, nameAttr(f.Name), required, label)
		}
		return fmt.Sprintf(`<input type="checkbox" id="%s"%s><label for="%s">%s</label>`, f.ID, required, f.ID, label)

	case FieldFile:
		return fmt.Sprintf(`<label for="%s">%s</label><input type="file" id="%s"%s>`, f.ID, label, f.ID, required)

	case FieldNumeric:
		return fmt.Sprintf(`<label for="%s">%s</label><input type="number" id="%s"%s>`, f.ID, label, f.ID, required)
	}

	if f.ID == "" {
		return fmt.Sprintf(`<input type="text"%s aria-label="%s"%s>`, nameAttr(f.Name), label, required)
	}
	return fmt.Sprintf(`<label for="%s">%s</label><input type="text" id="%s"%s>`, f.ID, label, f.ID, required)
}

func nameAttr(name string) string {
	if name == "" {
		return ""
	}
	return fmt.Sprintf(` name="%s"`, html.EscapeString(name))
}
