package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/checkpoint"
)

// Login form and signed-in markers of the target site
const (
	UsernameSelector = "#username"
	PasswordSelector = "#password"
	SubmitSelector   = "button[type='submit']"
	SignedInSelector = "nav.global-nav"
)

var loginErrorSelectors = []string{"#error-for-password", "#error-for-username", ".form__label--error"}

var loginPaths = []string{"/login", "/uas/login", "/signup"}

// Outcome classifies the page reached after a login attempt
type Outcome string

const (
	OutcomeLoggedIn       Outcome = "logged_in"
	OutcomeCheckpoint     Outcome = "checkpoint"
	OutcomeBadCredentials Outcome = "bad_credentials"
	OutcomeUnexpected     Outcome = "unexpected_page"
)

// ErrLoginFailed wraps every unsuccessful login outcome
var ErrLoginFailed = errors.New("login failed")

// Service signs a browser into the target site
type Service struct {
	loginURL     string
	homeURL      string
	pollInterval time.Duration
	timeout      time.Duration
	logger       arbor.ILogger
}

// NewService creates a new site authentication service
func NewService(config *common.BrowserConfig, logger arbor.ILogger) *Service {
	return &Service{
		loginURL:     config.LoginURL,
		homeURL:      config.JobsURL,
		pollInterval: 250 * time.Millisecond,
		timeout:      common.ParseDurationOr(config.NavigationTimeout, 30*time.Second),
		logger:       logger,
	}
}

// Login opens the login page and submits credentials. A persistent profile that is
// already signed in short-circuits to OutcomeLoggedIn without touching the form.
func (s *Service) Login(ctx context.Context, page interfaces.Page, creds *models.Credentials) (Outcome, error) {
	if err := page.Navigate(ctx, s.loginURL); err != nil {
		return OutcomeUnexpected, fmt.Errorf("open login page: %w", err)
	}

	outcome, err := s.Classify(ctx, page)
	if err != nil {
		return OutcomeUnexpected, err
	}
	switch outcome {
	case OutcomeLoggedIn:
		s.logger.Debug().Msg("Profile already signed in")
		return outcome, nil
	case OutcomeCheckpoint:
		return outcome, nil
	}

	hasForm, err := page.Exists(ctx, UsernameSelector)
	if err != nil {
		return OutcomeUnexpected, err
	}
	if !hasForm {
		return OutcomeUnexpected, fmt.Errorf("%w: login form not found", ErrLoginFailed)
	}
	if creds == nil || creds.Email == "" || creds.Password == "" {
		return OutcomeBadCredentials, fmt.Errorf("%w: credentials missing", ErrLoginFailed)
	}

	if err := page.SetValue(ctx, UsernameSelector, creds.Email); err != nil {
		return OutcomeUnexpected, fmt.Errorf("fill username: %w", err)
	}
	if err := page.SetValue(ctx, PasswordSelector, creds.Password); err != nil {
		return OutcomeUnexpected, fmt.Errorf("fill password: %w", err)
	}
	if err := page.Click(ctx, SubmitSelector); err != nil {
		return OutcomeUnexpected, fmt.Errorf("submit login: %w", err)
	}

	return s.awaitOutcome(ctx, page)
}

// awaitOutcome polls until the site settles on a recognizable page or the timeout passes
func (s *Service) awaitOutcome(ctx context.Context, page interfaces.Page) (Outcome, error) {
	deadline := time.Now().Add(s.timeout)
	for {
		outcome, err := s.Classify(ctx, page)
		if err != nil {
			return OutcomeUnexpected, err
		}
		switch outcome {
		case OutcomeLoggedIn, OutcomeCheckpoint:
			return outcome, nil
		case OutcomeBadCredentials:
			return outcome, fmt.Errorf("%w: credentials rejected", ErrLoginFailed)
		}

		if time.Now().After(deadline) {
			return OutcomeUnexpected, fmt.Errorf("%w: no recognizable page after submit: %w", ErrLoginFailed, context.DeadlineExceeded)
		}

		select {
		case <-ctx.Done():
			return OutcomeUnexpected, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// Classify inspects the current page; OutcomeUnexpected means "not yet recognizable"
func (s *Service) Classify(ctx context.Context, page interfaces.Page) (Outcome, error) {
	url, err := page.URL(ctx)
	if err != nil {
		return OutcomeUnexpected, err
	}
	html, err := page.HTML(ctx, "")
	if err != nil {
		return OutcomeUnexpected, err
	}

	if checkpoint.Detect(url, html) {
		return OutcomeCheckpoint, nil
	}

	for _, sel := range loginErrorSelectors {
		found, err := page.Exists(ctx, sel)
		if err != nil {
			return OutcomeUnexpected, err
		}
		if found {
			return OutcomeBadCredentials, nil
		}
	}

	signedIn, err := page.Exists(ctx, SignedInSelector)
	if err != nil {
		return OutcomeUnexpected, err
	}
	if signedIn {
		return OutcomeLoggedIn, nil
	}
	if !IsLoginPage(url) && strings.Contains(url, "/feed") {
		return OutcomeLoggedIn, nil
	}
	return OutcomeUnexpected, nil
}

// Validate re-checks the session after a checkpoint: the current page must have left
// the challenge and a signed-in page must load.
func (s *Service) Validate(ctx context.Context, page interfaces.Page) (bool, error) {
	outcome, err := s.Classify(ctx, page)
	if err != nil {
		return false, err
	}
	if outcome == OutcomeCheckpoint {
		return false, nil
	}
	if outcome == OutcomeLoggedIn {
		return true, nil
	}

	if err := page.Navigate(ctx, s.homeURL); err != nil {
		return false, err
	}
	outcome, err = s.Classify(ctx, page)
	if err != nil {
		return false, err
	}
	return outcome == OutcomeLoggedIn, nil
}

// IsLoginPage reports whether url is one of the sign-in pages, i.e. the session was dropped
func IsLoginPage(url string) bool {
	lower := strings.ToLower(url)
	for _, path := range loginPaths {
		if strings.Contains(lower, path) {
			return true
		}
	}
	return false
}
