// -----------------------------------------------------------------------
// Application Walker - drives the multi-step quick-apply form for one job
// -----------------------------------------------------------------------

package walker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/auth"
	"github.com/ternarybob/jobpilot/internal/services/checkpoint"
)

// Quick-apply modal markup of the target site
const (
	ApplyButtonSelector = "button.jobs-apply-button"
	ModalSelector       = ".jobs-easy-apply-modal"
	NextSelector        = "button[aria-label='Continue to next step']"
	ReviewSelector      = "button[aria-label='Review your application']"
	SubmitSelector      = "button[aria-label='Submit application']"
	DismissSelector     = "button[aria-label='Dismiss']"
	SuccessSelector     = "#post-apply-modal"
	FieldErrorSelector  = ".artdeco-inline-feedback--error"
)

// User-facing failure messages
var (
	ErrCoverLetterRequired = errors.New("cover letter required - skipped")
	ErrJobClosed           = errors.New("job is no longer accepting applications")
	ErrUnansweredRequired  = errors.New("application form has unanswered required questions")
	ErrNoQuickApply        = errors.New("quick apply is not available for this job")
)

var (
	closedMarkers  = []string{"no longer accepting applications", "applications are closed", "this job is closed"}
	successMarkers = []string{"application was sent", "application submitted"}
	coverLetterRe  = regexp.MustCompile(`(?i)cover\s*letter`)
	mandatoryRe    = regexp.MustCompile(`(?i)\b(required|must|mandatory)\b`)
)

const maxReasks = 3

// Answer is the human's reply to a pending question
type Answer struct {
	Text    string
	Skipped bool
}

// Interactor is the walker's channel to the human
type Interactor interface {
	Progress(text string)
	// Ask blocks until the question is answered or skipped, or ctx ends
	Ask(ctx context.Context, question models.PendingQuestion) (Answer, error)
}

// Result is the structured outcome of one apply attempt. Checkpoint and
// LoggedOut mean the attempt was interrupted by the site, not finished.
type Result struct {
	Status      models.ApplicationStatus
	Message     string
	Checkpoint  bool
	LoggedOut   bool
	CoverLetter bool
}

// Config bounds one apply attempt
type Config struct {
	StepLimit   int
	Settle      time.Duration
	WaitTimeout time.Duration
}

// Walker fills and submits quick-apply forms
type Walker struct {
	config   Config
	profiles interfaces.ProfileSource
	resumes  interfaces.ResumeService
	logger   arbor.ILogger
}

// NewWalker creates a walker. profiles and resumes may be nil.
func NewWalker(config Config, profiles interfaces.ProfileSource, resumes interfaces.ResumeService, logger arbor.ILogger) *Walker {
	if config.StepLimit <= 0 {
		config.StepLimit = 12
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 10 * time.Second
	}
	return &Walker{
		config:   config,
		profiles: profiles,
		resumes:  resumes,
		logger:   logger,
	}
}

// Apply walks the application for job. Site behavior is reported in Result;
// the error return is reserved for cancellation and a lost browser.
func (w *Walker) Apply(ctx context.Context, page interfaces.Page, job *models.JobRecord, profile *models.Profile, ui Interactor) (*Result, error) {
	if profile == nil {
		profile = &models.Profile{UserID: job.UserID}
	}
	a := &attempt{
		walker:   w,
		page:     page,
		job:      job,
		profile:  profile,
		ui:       ui,
		answered: make(map[string]string),
		logger:   w.logger.WithCorrelationId(job.ID),
	}
	return a.run(ctx)
}

type attempt struct {
	walker  *Walker
	page    interfaces.Page
	job     *models.JobRecord
	profile *models.Profile
	ui      Interactor
	// answered caches human answers by normalized label for this attempt
	answered map[string]string
	logger   arbor.ILogger
}

func failed(err error) *Result {
	return &Result{Status: models.ApplicationError, Message: err.Error()}
}

func (a *attempt) run(ctx context.Context) (*Result, error) {
	a.ui.Progress(fmt.Sprintf("Opening %s at %s", a.job.Title, a.job.Company))
	if missing := a.profile.MissingFields(); len(missing) > 0 {
		a.ui.Progress(fmt.Sprintf("Profile is missing %s; those questions will be asked or left empty", strings.Join(missing, ", ")))
	}

	if err := a.page.Navigate(ctx, a.job.URL); err != nil {
		return nil, fmt.Errorf("open job: %w", err)
	}
	if r, err := a.interrupted(ctx); r != nil || err != nil {
		return r, err
	}

	html, err := a.page.HTML(ctx, "")
	if err != nil {
		return nil, err
	}
	if containsAny(html, closedMarkers) {
		return &Result{Status: models.ApplicationJobClosed, Message: ErrJobClosed.Error()}, nil
	}

	hasApply, err := a.page.Exists(ctx, ApplyButtonSelector)
	if err != nil {
		return nil, err
	}
	if !hasApply {
		return failed(ErrNoQuickApply), nil
	}
	if err := a.page.Click(ctx, ApplyButtonSelector); err != nil {
		return nil, fmt.Errorf("open application: %w", err)
	}

	limit := a.walker.config.StepLimit
	for step := 1; step <= limit; step++ {
		if err := a.waitFor(ctx, ModalSelector, SuccessSelector); err != nil {
			return nil, err
		}
		if r, err := a.interrupted(ctx); r != nil || err != nil {
			return r, err
		}
		if done, err := a.succeeded(ctx); err != nil || done {
			return a.completed(ctx, done, err)
		}
		open, err := a.page.Exists(ctx, ModalSelector)
		if err != nil {
			return nil, err
		}
		if !open {
			return failed(errors.New("application form did not open")), nil
		}

		modal, err := a.page.HTML(ctx, ModalSelector)
		if err != nil {
			return nil, err
		}
		fields, err := parseFields(modal)
		if err != nil {
			return failed(err), nil
		}
		if coverLetterDemanded(fields) {
			a.logger.Info().Str("job_id", a.job.ID).Msg("Cover letter required, skipping job")
			return &Result{Status: models.ApplicationError, Message: ErrCoverLetterRequired.Error(), CoverLetter: true}, nil
		}

		a.logger.Debug().Int("step", step).Int("fields", len(fields)).Msg("Filling form page")
		unresolved, err := a.fill(ctx, fields)
		if err != nil {
			return nil, err
		}

		button, err := a.nextButton(ctx)
		if err != nil {
			return nil, err
		}
		if button == "" {
			return failed(errors.New("application form has no next, review or submit button")), nil
		}
		if err := a.page.Click(ctx, button); err != nil {
			return nil, fmt.Errorf("advance form: %w", err)
		}
		if err := sleep(ctx, a.walker.config.Settle); err != nil {
			return nil, err
		}

		if button == SubmitSelector {
			if err := a.waitFor(ctx, SuccessSelector); err != nil {
				return nil, err
			}
			done, err := a.succeeded(ctx)
			return a.completed(ctx, done, err)
		}

		blocked, err := a.page.Exists(ctx, ModalSelector+" "+FieldErrorSelector)
		if err != nil {
			return nil, err
		}
		if blocked {
			if unresolved > 0 {
				return failed(ErrUnansweredRequired), nil
			}
			a.ui.Progress("The form rejected an answer, retrying this step")
		}
	}

	return failed(fmt.Errorf("application did not finish within %d form pages", limit)), nil
}

// interrupted reports a checkpoint or a dropped login at the current page
func (a *attempt) interrupted(ctx context.Context) (*Result, error) {
	url, err := a.page.URL(ctx)
	if err != nil {
		return nil, err
	}
	if auth.IsLoginPage(url) {
		return &Result{Status: models.ApplicationError, Message: "signed out during application", LoggedOut: true}, nil
	}
	if checkpoint.DetectURL(url) {
		return &Result{Status: models.ApplicationError, Message: "security checkpoint interrupted the application", Checkpoint: true}, nil
	}
	html, err := a.page.HTML(ctx, "")
	if err != nil {
		return nil, err
	}
	if checkpoint.Detect(url, html) {
		return &Result{Status: models.ApplicationError, Message: "security checkpoint interrupted the application", Checkpoint: true}, nil
	}
	return nil, nil
}

func (a *attempt) succeeded(ctx context.Context) (bool, error) {
	found, err := a.page.Exists(ctx, SuccessSelector)
	if err != nil || found {
		return found, err
	}
	html, err := a.page.HTML(ctx, "")
	if err != nil {
		return false, err
	}
	return containsAny(html, successMarkers), nil
}

func (a *attempt) completed(ctx context.Context, done bool, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	if !done {
		return failed(errors.New("submission was not confirmed by the site")), nil
	}

	if found, _ := a.page.Exists(ctx, DismissSelector); found {
		if err := a.page.Click(ctx, DismissSelector); err != nil {
			a.logger.Debug().Err(err).Msg("Failed to dismiss confirmation")
		}
	}
	return &Result{Status: models.ApplicationCompleted, Message: fmt.Sprintf("Applied to %s at %s", a.job.Title, a.job.Company)}, nil
}

func (a *attempt) nextButton(ctx context.Context) (string, error) {
	for _, sel := range []string{SubmitSelector, ReviewSelector, NextSelector} {
		found, err := a.page.Exists(ctx, sel)
		if err != nil {
			return "", err
		}
		if found {
			return sel, nil
		}
	}
	return "", nil
}

// waitFor polls until any selector is present or the wait bound passes
func (a *attempt) waitFor(ctx context.Context, selectors ...string) error {
	deadline := time.Now().Add(a.walker.config.WaitTimeout)
	for {
		for _, sel := range selectors {
			found, err := a.page.Exists(ctx, sel)
			if err != nil {
				return err
			}
			if found {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return nil
		}
		if err := sleep(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
}

// fill answers every field on the page and returns how many required ones stayed empty
func (a *attempt) fill(ctx context.Context, fields []field) (int, error) {
	unresolved := 0
	for _, f := range fields {
		switch f.Kind {
		case kindFile:
			ok, err := a.fillResume(ctx, f)
			if err != nil {
				return unresolved, err
			}
			if !ok && f.Required {
				unresolved++
			}

		case kindCheckbox:
			if f.Required {
				if err := a.page.Click(ctx, f.Selector); err != nil {
					return unresolved, err
				}
			}

		default:
			value, ok, err := a.resolve(ctx, f)
			if err != nil {
				return unresolved, err
			}
			if !ok {
				if f.Required {
					unresolved++
				}
				continue
			}
			if err := a.set(ctx, f, value); err != nil {
				return unresolved, err
			}
		}
	}
	return unresolved, nil
}

// resolve finds an answer from the profile, remembered answers, this attempt, or the human
func (a *attempt) resolve(ctx context.Context, f field) (string, bool, error) {
	key := common.NormalizeKey(f.Label)

	candidates := []string{profileValue(f.Label, a.profile), a.profile.Answers[key], a.answered[key]}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if value, ok := f.accept(c); ok {
			return value, true, nil
		}
	}

	if !f.Required {
		return "", false, nil
	}
	return a.ask(ctx, f)
}

func (a *attempt) ask(ctx context.Context, f field) (string, bool, error) {
	key := common.NormalizeKey(f.Label)
	for i := 0; i < maxReasks; i++ {
		question := models.PendingQuestion{
			QuestionID: common.NewQuestionID(),
			Text:       f.Label,
			Kind:       f.questionKind(),
			Options:    f.Options,
		}
		answer, err := a.ui.Ask(ctx, question)
		if err != nil {
			return "", false, err
		}
		if answer.Skipped {
			a.logger.Debug().Str("question", f.Label).Msg("Question skipped")
			return "", false, nil
		}

		value, ok := f.accept(answer.Text)
		if !ok {
			a.ui.Progress(f.hint())
			continue
		}

		a.answered[key] = value
		a.remember(ctx, f.Label, value)
		return value, true, nil
	}

	a.ui.Progress(fmt.Sprintf("Leaving %q empty", f.Label))
	return "", false, nil
}

func (a *attempt) remember(ctx context.Context, question, answer string) {
	if a.walker.profiles == nil {
		return
	}
	if err := a.walker.profiles.RememberAnswer(ctx, a.job.UserID, question, answer); err != nil {
		a.logger.Warn().Err(err).Str("question", question).Msg("Failed to remember answer")
	}
}

func (a *attempt) set(ctx context.Context, f field, value string) error {
	switch f.Kind {
	case kindSelect:
		i := f.optionIndex(value)
		if i < 0 {
			return nil
		}
		return a.page.SetValue(ctx, f.Selector, f.OptionValues[i])
	case kindRadio:
		i := f.optionIndex(value)
		if i < 0 {
			return nil
		}
		return a.page.Click(ctx, f.OptionValues[i])
	}
	return a.page.SetValue(ctx, f.Selector, value)
}

// fillResume uploads the profile's resume, generating one when none is on file
func (a *attempt) fillResume(ctx context.Context, f field) (bool, error) {
	path := a.profile.ResumePath
	resumes := a.walker.resumes

	if path == "" {
		if !f.Required || resumes == nil {
			a.ui.Progress("No resume on file")
			return false, nil
		}
		generated, err := resumes.WriteResume(a.profile)
		if err != nil {
			a.ui.Progress(fmt.Sprintf("No resume on file and one could not be generated: %v", err))
			return false, nil
		}
		a.ui.Progress("No resume on file; generated one from the profile")
		path = generated
	} else if resumes != nil {
		if _, err := resumes.Inspect(path); err != nil {
			a.ui.Progress(fmt.Sprintf("Resume %s could not be validated: %v", filepath.Base(path), err))
		}
	}

	if err := a.page.Upload(ctx, f.Selector, path); err != nil {
		return false, err
	}
	return true, nil
}

// profileValue maps well-known labels to profile fields
func profileValue(label string, p *models.Profile) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "country code"):
		return ""
	case strings.Contains(l, "first name"):
		return p.FirstName
	case strings.Contains(l, "last name"), strings.Contains(l, "surname"):
		return p.LastName
	case strings.Contains(l, "full name"):
		return strings.TrimSpace(p.FirstName + " " + p.LastName)
	case strings.Contains(l, "email"):
		return p.Email
	case strings.Contains(l, "phone"), strings.Contains(l, "mobile"):
		return p.Phone
	case strings.Contains(l, "city"), l == "location":
		return p.City
	case strings.Contains(l, "headline"):
		return p.Headline
	case strings.Contains(l, "years") && strings.Contains(l, "experience") && !strings.Contains(l, " with ") && !strings.Contains(l, " in "):
		if p.YearsExperience > 0 {
			return strconv.Itoa(p.YearsExperience)
		}
	}
	return ""
}

// coverLetterDemanded spots a mandatory cover-letter question on the page
func coverLetterDemanded(fields []field) bool {
	for _, f := range fields {
		if !coverLetterRe.MatchString(f.Label) {
			continue
		}
		if f.Required || mandatoryRe.MatchString(f.Label) {
			return true
		}
	}
	return false
}

func containsAny(html string, markers []string) bool {
	lower := strings.ToLower(html)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
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
