// -----------------------------------------------------------------------
// Session actor - one goroutine per user driving login, fetch, apply and
// checkpoint work strictly in sequence
// -----------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/auth"
	"github.com/ternarybob/jobpilot/internal/services/checkpoint"
	"github.com/ternarybob/jobpilot/internal/services/extraction"
	"github.com/ternarybob/jobpilot/internal/services/walker"
)

const (
	commandQueueSize = 8
	actionQueueSize  = 64
	maxDetours       = 2
)

type applyCommand struct {
	attempt *attempt
	job     *models.JobRecord
}

type fetchCommand struct {
	max   int
	reply chan fetchResult
}

// refetchCommand asks the actor to check for exhaustion after a swipe
type refetchCommand struct{}

type fetchResult struct {
	count int
	err   error
}

// attempt is one apply try. done flips when application_completed is emitted;
// nothing job-scoped is emitted for it afterwards.
type attempt struct {
	jobID  string
	ctx    context.Context
	cancel context.CancelFunc
	done   bool
}

// lostError ends the session; its message becomes the Closed reason
type lostError struct {
	err error
}

func (e *lostError) Error() string        { return e.err.Error() }
func (e *lostError) Unwrap() error        { return e.err }
func (e *lostError) Is(target error) bool { return target == errSessionLost }

func lost(err error) error {
	return &lostError{err: err}
}

type session struct {
	userID string
	m      *Manager
	outbox *Outbox
	logger arbor.ILogger

	ctx     context.Context
	cancel  context.CancelFunc
	cmds    chan interface{}
	answers chan walker.Answer
	actions chan models.CheckpointAction

	snap         atomic.Pointer[models.SessionSnapshot]
	lastActivity atomic.Int64

	// page is owned by the actor goroutine
	page interfaces.BrowserHandle

	mu         sync.Mutex
	handle     interfaces.BrowserHandle
	current    *attempt
	relogins   int
	stopping   bool
	stopReason string
	closed     bool

	closeOnce sync.Once
	exitOnce  sync.Once
	exited    chan struct{}
}

func newSession(m *Manager, userID string, outbox *Outbox) *session {
	ctx, cancel := context.WithCancel(m.ctx)
	now := time.Now()

	s := &session{
		userID:  userID,
		m:       m,
		outbox:  outbox,
		logger:  m.logger.WithCorrelationId(userID),
		ctx:     ctx,
		cancel:  cancel,
		cmds:    make(chan interface{}, commandQueueSize),
		answers: make(chan walker.Answer, 1),
		actions: make(chan models.CheckpointAction, actionQueueSize),
		exited:  make(chan struct{}),
	}
	s.lastActivity.Store(now.UnixNano())
	s.snap.Store(&models.SessionSnapshot{
		UserID:       userID,
		State:        models.SessionStarting,
		CreatedAt:    now,
		LastActivity: now,
	})
	return s
}

// snapshot returns a copy of the published state; it never blocks on the actor
func (s *session) snapshot() models.SessionSnapshot {
	snap := *s.snap.Load()
	snap.LastActivity = time.Unix(0, s.lastActivity.Load())
	return snap
}

func (s *session) state() models.SessionState {
	return s.snap.Load().State
}

func (s *session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *session) idleSince() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// setState publishes a new snapshot and emits it as a state message. Caller holds s.mu.
func (s *session) setState(state models.SessionState, mutate func(next *models.SessionSnapshot)) {
	prev := s.snap.Load()
	next := *prev
	next.State = state
	next.Error = ""
	if !state.HasJob() {
		next.CurrentJobID = ""
	}
	if state != models.SessionAwaitingAnswer {
		next.PendingQuestion = nil
	}
	if state == models.SessionCheckpoint {
		if prev.State != models.SessionCheckpoint {
			since := time.Now()
			next.CheckpointSince = &since
		}
	} else {
		next.CheckpointSince = nil
	}
	if mutate != nil {
		mutate(&next)
	}

	s.touch()
	next.LastActivity = s.idleSince()
	s.snap.Store(&next)
	s.outbox.Push(models.MsgState, "", next)

	if prev.State != state {
		s.logger.Debug().
			Str("from", string(prev.State)).
			Str("to", string(state)).
			Msg("Session state changed")
		s.m.publish(interfaces.EventSessionStateChanged, s.userID, map[string]interface{}{
			"from": string(prev.State),
			"to":   string(state),
		})
	}
}

func (s *session) progress(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.outbox.Push(models.MsgProgress, "", models.ProgressPayload{Text: text})
}

func (s *session) emitJob(att *attempt, msgType string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if att.done {
		return
	}
	s.touch()
	s.outbox.Push(msgType, att.jobID, payload)
}

// finishLocked emits the terminal message of an attempt once. Caller holds s.mu.
func (s *session) finishLocked(att *attempt, status models.ApplicationStatus, message string) {
	if att.done {
		return
	}
	att.done = true
	s.outbox.Push(models.MsgApplicationCompleted, att.jobID, models.CompletedPayload{
		JobID:   att.jobID,
		Status:  status,
		Message: message,
	})
	s.m.publish(interfaces.EventApplicationCompleted, s.userID, map[string]interface{}{
		"job_id":  att.jobID,
		"status":  string(status),
		"message": message,
	})
}

// end closes an attempt and moves the session to next if the attempt is still current
func (s *session) end(att *attempt, status models.ApplicationStatus, message string, next models.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finishLocked(att, status, message)
	if s.current != att || s.closed {
		return
	}
	s.current = nil
	if next == models.SessionCheckpoint {
		s.enterCheckpointLocked()
		return
	}
	s.setState(next, nil)
}

// enterCheckpointLocked discards stale relay input and switches to Checkpoint. Caller holds s.mu.
func (s *session) enterCheckpointLocked() {
	if s.snap.Load().State == models.SessionCheckpoint {
		return
	}
	for drained := false; !drained; {
		select {
		case <-s.actions:
		default:
			drained = true
		}
	}
	s.setState(models.SessionCheckpoint, nil)
	s.m.publish(interfaces.EventCheckpointEntered, s.userID, nil)
}

// ready reports whether new work may start. Caller holds s.mu.
func (s *session) readyLocked() error {
	switch s.snap.Load().State {
	case models.SessionLoggedIn:
		if s.current != nil {
			return ErrAlreadyApplying
		}
		return nil
	case models.SessionApplying, models.SessionAwaitingAnswer:
		return ErrAlreadyApplying
	}
	return ErrNotLoggedIn
}

// ---- protocol inputs (called from request goroutines) ----

func (s *session) submit(job *models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	att := &attempt{jobID: job.ID, ctx: ctx, cancel: cancel}
	select {
	case s.cmds <- applyCommand{attempt: att, job: job}:
	default:
		cancel()
		return ErrBusy
	}

	s.current = att
	s.setState(models.SessionApplying, func(next *models.SessionSnapshot) {
		next.CurrentJobID = job.ID
	})
	return nil
}

func (s *session) requestFetch(ctx context.Context, max int) (int, error) {
	s.mu.Lock()
	err := s.readyLocked()
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	reply := make(chan fetchResult, 1)
	select {
	case s.cmds <- fetchCommand{max: max, reply: reply}:
	default:
		return 0, ErrBusy
	}

	select {
	case r := <-reply:
		return r.count, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.exited:
		return 0, ErrNoSession
	}
}

// nudge queues an exhaustion check; a full queue already ends in one
func (s *session) nudge() {
	select {
	case s.cmds <- refetchCommand{}:
	default:
	}
}

func (s *session) answer(questionID string, reply walker.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap.Load()
	if snap.State != models.SessionAwaitingAnswer || snap.PendingQuestion == nil {
		return ErrNoPendingQuestion
	}
	if questionID != "" && questionID != snap.PendingQuestion.QuestionID {
		return fmt.Errorf("%w: question %s is not the pending one", ErrNoPendingQuestion, questionID)
	}

	jobID := snap.CurrentJobID
	s.setState(models.SessionApplying, func(next *models.SessionSnapshot) {
		next.CurrentJobID = jobID
	})
	select {
	case s.answers <- reply:
	default:
	}
	return nil
}

func (s *session) cancelApplication() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	att := s.current
	if att == nil || s.closed {
		return ErrNotApplying
	}
	s.current = nil
	att.cancel()
	s.finishLocked(att, models.ApplicationError, "application cancelled")
	s.setState(models.SessionLoggedIn, nil)
	return nil
}

func (s *session) checkpointAction(action models.CheckpointAction) error {
	if s.state() != models.SessionCheckpoint {
		return ErrNotInCheckpoint
	}
	select {
	case s.actions <- action:
		s.touch()
		return nil
	default:
		return ErrBusy
	}
}

// stop cancels in-flight work, waits up to wait for the actor and then closes
// the session regardless; the browser is released before stop returns.
func (s *session) stop(reason string, wait time.Duration) {
	s.mu.Lock()
	if !s.closed && !s.stopping {
		s.stopping = true
		s.stopReason = reason
		if s.snap.Load().State != models.SessionStopping {
			s.setState(models.SessionStopping, nil)
		}
	}
	s.mu.Unlock()

	s.cancel()

	select {
	case <-s.exited:
	case <-time.After(wait):
		s.logger.Warn().Dur("wait", wait).Msg("Session did not stop in time, releasing browser")
	}
	s.close(reason)
}

// close releases the browser and publishes Closed. Runs once.
func (s *session) close(reason string) {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		handle := s.handle
		s.handle = nil
		if att := s.current; att != nil {
			s.current = nil
			message := reason
			if message == "" {
				message = "session stopped"
			}
			s.finishLocked(att, models.ApplicationError, message)
		}
		if s.snap.Load().State != models.SessionStopping {
			s.setState(models.SessionStopping, nil)
		}
		s.mu.Unlock()

		if handle != nil {
			if err := handle.Release(); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to release browser")
			}
		}

		s.mu.Lock()
		s.setState(models.SessionClosed, func(next *models.SessionSnapshot) {
			next.Error = reason
		})
		s.mu.Unlock()

		s.m.publish(interfaces.EventSessionClosed, s.userID, map[string]interface{}{"reason": reason})

		event := s.logger.Info()
		if reason != "" {
			event = s.logger.Warn().Str("reason", reason)
		}
		event.Msg("Session closed")
	})
}

func (s *session) markExited() {
	s.exitOnce.Do(func() { close(s.exited) })
}

func (s *session) exitReason(err error) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return s.stopReason
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}

// attach hands the browser to the session unless it closed meanwhile
func (s *session) attach(handle interfaces.BrowserHandle) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		handle.Release()
		return false
	}
	s.handle = handle
	s.page = handle
	s.mu.Unlock()
	return true
}

// ---- actor ----

func (s *session) run() {
	err := s.loop()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Msg("Session ending on error")
	}
	s.close(s.exitReason(err))
	s.markExited()
}

func (s *session) loop() error {
	if err := s.start(); err != nil {
		return err
	}

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()

		case cmd := <-s.cmds:
			var err error
			switch c := cmd.(type) {
			case applyCommand:
				err = s.apply(c.attempt, c.job)
			case fetchCommand:
				var n int
				n, err = s.fetch(s.ctx, c.max, 0)
				c.reply <- fetchResult{count: n, err: err}
				if err == nil {
					err = s.autoFetch()
				}
			case refetchCommand:
				err = s.autoFetch()
			}
			if err != nil && s.fatal(err) {
				return err
			}
		}
	}
}

func (s *session) fatal(err error) bool {
	return errors.Is(err, errSessionLost) ||
		errors.Is(err, interfaces.ErrBrowserClosed) ||
		s.ctx.Err() != nil
}

func (s *session) start() error {
	s.progress("Launching browser")

	handle, err := s.m.deps.Launcher.Acquire(s.ctx, s.userID)
	if err != nil {
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		return lost(fmt.Errorf("launch browser: %w", err))
	}
	if !s.attach(handle) {
		return context.Canceled
	}
	s.m.publish(interfaces.EventSessionStarted, s.userID, nil)

	if err := s.signIn(); err != nil {
		return err
	}
	return s.autoFetch()
}

// signIn logs in and resolves a checkpoint if the site presents one
func (s *session) signIn() error {
	creds, err := s.m.deps.Credentials.GetCredentials(s.ctx, s.userID)
	if err != nil {
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		return lost(fmt.Errorf("credentials unavailable: %w", err))
	}

	s.progress("Signing in")
	outcome, err := s.m.deps.Auth.Login(s.ctx, s.page, creds)
	switch outcome {
	case auth.OutcomeLoggedIn:
		s.toLoggedIn("Signed in")
		return nil
	case auth.OutcomeCheckpoint:
		return s.runCheckpoint()
	}

	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	if err == nil {
		err = fmt.Errorf("%w: %s", auth.ErrLoginFailed, outcome)
	}
	return lost(err)
}

func (s *session) relogin() error {
	s.mu.Lock()
	if s.relogins >= s.m.opts.MaxRelogin {
		s.mu.Unlock()
		return lost(errors.New("signed out by the site"))
	}
	s.relogins++
	if s.snap.Load().State != models.SessionStarting {
		s.setState(models.SessionStarting, nil)
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Signed out by the site, signing in again")
	s.progress("Signed out by the site, signing in again")
	return s.signIn()
}

// signedInOK clears the re-login budget once the site has served a page
// without signing the user out
func (s *session) signedInOK() {
	s.mu.Lock()
	s.relogins = 0
	s.mu.Unlock()
}

func (s *session) toLoggedIn(text string) {
	s.mu.Lock()
	s.setState(models.SessionLoggedIn, nil)
	s.mu.Unlock()
	s.progress(text)
}

// runCheckpoint mirrors the challenge to the client until it is validated
func (s *session) runCheckpoint() error {
	s.mu.Lock()
	s.enterCheckpointLocked()
	s.mu.Unlock()

	s.logger.Info().Msg("Security checkpoint detected")
	s.progress("Security verification required; complete it in the mirrored page")

	relay := checkpoint.NewRelay(s.page, relayEmitter{s: s}, s.m.deps.Auth.Validate, s.m.opts.Checkpoint, s.logger)
	if err := relay.Run(s.ctx, s.actions); err != nil {
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		return lost(fmt.Errorf("checkpoint: %w", err))
	}

	s.toLoggedIn("Verification complete")
	return nil
}

// apply runs the walker for one attempt and records the outcome
func (s *session) apply(att *attempt, job *models.JobRecord) error {
	s.mu.Lock()
	skip := att.done || s.current != att
	s.mu.Unlock()
	if skip {
		return nil
	}
	defer att.cancel()

	var profile *models.Profile
	if s.m.deps.Profiles != nil {
		p, err := s.m.deps.Profiles.GetProfile(att.ctx, s.userID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Profile unavailable")
			s.emitJob(att, models.MsgProgress, models.ProgressPayload{Text: "Profile unavailable; every question will be asked"})
		}
		profile = p
	}

	result, err := s.m.deps.Walker.Apply(att.ctx, s.page, job, profile, &applyUI{s: s, att: att})
	if err != nil {
		switch {
		case s.ctx.Err() != nil:
			return s.ctx.Err()
		case att.ctx.Err() != nil:
			// cancelled by the client; already reported
			return nil
		}
		s.end(att, models.ApplicationError, err.Error(), models.SessionLoggedIn)
		if errors.Is(err, interfaces.ErrBrowserClosed) {
			return fmt.Errorf("apply %s: %w", job.ID, err)
		}
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Application attempt failed")
		return nil
	}

	switch {
	case result.Checkpoint:
		s.end(att, models.ApplicationError, result.Message, models.SessionCheckpoint)
		return s.runCheckpoint()
	case result.LoggedOut:
		s.end(att, models.ApplicationError, result.Message, models.SessionStarting)
		return s.relogin()
	}

	s.signedInOK()
	switch {
	case result.Status == models.ApplicationCompleted:
		s.recordApplication(job)
		s.mark(job.ID, models.SwipeApplied)
	case result.Status == models.ApplicationJobClosed:
		s.mark(job.ID, models.SwipeViewed)
	case result.CoverLetter:
		s.mark(job.ID, models.SwipeRejected)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(result.Status)).
		Str("message", result.Message).
		Msg("Application attempt finished")
	s.end(att, result.Status, result.Message, models.SessionLoggedIn)
	return s.autoFetch()
}

// recordApplication appends to the application log the daily quota counts
func (s *session) recordApplication(job *models.JobRecord) {
	if s.m.deps.Applications == nil {
		return
	}
	record := &models.ApplicationRecord{
		UserID:  s.userID,
		JobID:   job.ID,
		Title:   job.Title,
		Company: job.Company,
	}
	if err := s.m.deps.Applications.RecordApplication(s.ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record application")
	}
}

func (s *session) mark(jobID string, direction models.SwipeDirection) {
	if err := s.m.deps.Tracker.MarkViewed(s.ctx, s.userID, jobID, direction); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record swipe event")
	}
}

// autoFetch runs an extraction pass when the tracker reports exhaustion
func (s *session) autoFetch() error {
	should, err := s.m.deps.Tracker.ShouldRefetch(s.ctx, s.userID, s.state() == models.SessionLoggedIn)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read pagination state")
		return nil
	}
	if !should {
		return nil
	}

	s.progress("No unseen jobs left, fetching more")
	if _, err := s.fetch(s.ctx, 0, 0); err != nil && s.fatal(err) {
		return err
	}
	return nil
}

// fetch opens the listings page, extracts and records new jobs. detours bounds
// how often a checkpoint or re-login may interrupt one pass.
func (s *session) fetch(ctx context.Context, max, detours int) (int, error) {
	if max <= 0 {
		max = s.m.opts.MaxListings
	}
	s.progress("Fetching job listings")

	err := s.m.deps.Retry.Execute(ctx, s.logger, func(ctx context.Context) error {
		return s.page.Navigate(ctx, s.m.opts.JobsURL)
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrBrowserClosed) || ctx.Err() != nil {
			return 0, err
		}
		return 0, lost(fmt.Errorf("open listings: %w", err))
	}

	if detours < maxDetours {
		url, err := s.page.URL(ctx)
		if err != nil {
			return 0, err
		}
		html, err := s.page.HTML(ctx, "")
		if err != nil {
			return 0, err
		}
		switch {
		case auth.IsLoginPage(url):
			if err := s.relogin(); err != nil {
				return 0, err
			}
			return s.fetch(ctx, max, detours+1)
		case checkpoint.Detect(url, html):
			if err := s.runCheckpoint(); err != nil {
				return 0, err
			}
			return s.fetch(ctx, max, detours+1)
		}
	}

	drafts, err := s.m.deps.Extractor.ExtractListings(ctx, s.page, max)
	outcome := extraction.OutcomeOf(len(drafts), err)
	if err != nil {
		if errors.Is(err, interfaces.ErrBrowserClosed) || ctx.Err() != nil {
			return 0, err
		}
		s.logger.Warn().Err(err).Str("outcome", string(outcome)).Msg("Listing extraction failed")
		s.progress("Could not read job listings")
		return 0, fmt.Errorf("extract listings: %w", err)
	}

	if err := s.enrich(ctx, drafts); err != nil {
		return 0, err
	}

	added, err := s.m.deps.Tracker.RecordJobs(ctx, s.userID, drafts)
	if err != nil {
		return 0, err
	}
	state, err := s.m.deps.Tracker.GetState(ctx, s.userID)
	if err != nil {
		return added, err
	}

	s.logger.Info().
		Int("found", len(drafts)).
		Int("new", added).
		Int("remaining", state.Remaining).
		Str("outcome", string(outcome)).
		Msg("Job listings fetched")
	s.progress(fmt.Sprintf("Found %d new jobs, %d unseen", added, state.Remaining))
	s.m.publish(interfaces.EventJobsFetched, s.userID, map[string]interface{}{
		"found":     len(drafts),
		"new":       added,
		"remaining": state.Remaining,
	})
	return added, nil
}

// enrich opens the detail page of each draft that is not stored yet and takes
// its description, plus the salary and location the card did not show. Drafts
// keep their listing data when a detail page cannot be read.
func (s *session) enrich(ctx context.Context, drafts []models.JobRecordDraft) error {
	opened := 0
	for i := range drafts {
		d := &drafts[i]
		if d.URL == "" || d.Title == "" {
			continue
		}
		_, err := s.m.deps.Jobs.GetJob(ctx, common.JobID(s.userID, d.URL, d.Title, d.Company))
		if err == nil {
			continue
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return fmt.Errorf("look up job: %w", err)
		}

		err = s.m.deps.Retry.Execute(ctx, s.logger, func(ctx context.Context) error {
			return s.page.Navigate(ctx, d.URL)
		})
		if err != nil {
			if errors.Is(err, interfaces.ErrBrowserClosed) || ctx.Err() != nil {
				return err
			}
			s.logger.Warn().Err(err).Str("url", d.URL).Msg("Job detail page unavailable")
			continue
		}

		url, err := s.page.URL(ctx)
		if err != nil {
			return err
		}
		html, err := s.page.HTML(ctx, "")
		if err != nil {
			return err
		}
		if auth.IsLoginPage(url) || checkpoint.Detect(url, html) {
			// the next apply or fetch deals with the interruption
			s.logger.Warn().Str("url", url).Msg("Job details interrupted, recording listings as found")
			break
		}

		detail, err := s.m.deps.Extractor.ExtractDetail(ctx, s.page)
		if err != nil {
			if errors.Is(err, interfaces.ErrBrowserClosed) || ctx.Err() != nil {
				return err
			}
			s.logger.Warn().Err(err).Str("url", d.URL).Msg("Job detail extraction failed")
			continue
		}
		d.Description = detail.Description
		if d.Salary == "" {
			d.Salary = detail.Salary
		}
		if d.Location == "" {
			d.Location = detail.Location
		}
		opened++
	}

	if opened > 0 {
		s.logger.Debug().Int("details", opened).Msg("Job details extracted")
	}
	return nil
}

// ---- adapters ----

// applyUI routes walker output to the outbox, scoped to one attempt
type applyUI struct {
	s   *session
	att *attempt
}

func (u *applyUI) Progress(text string) {
	u.s.emitJob(u.att, models.MsgProgress, models.ProgressPayload{Text: text})
}

// Ask publishes the single pending question and blocks for the reply
func (u *applyUI) Ask(ctx context.Context, question models.PendingQuestion) (walker.Answer, error) {
	s := u.s

	s.mu.Lock()
	if u.att.done || s.current != u.att {
		s.mu.Unlock()
		return walker.Answer{}, context.Canceled
	}
	select {
	case <-s.answers:
	default:
	}
	s.setState(models.SessionAwaitingAnswer, func(next *models.SessionSnapshot) {
		next.CurrentJobID = u.att.jobID
		next.PendingQuestion = &question
	})
	s.outbox.Push(models.MsgQuestion, u.att.jobID, question)
	s.mu.Unlock()

	select {
	case reply := <-s.answers:
		return reply, nil
	case <-ctx.Done():
		s.mu.Lock()
		snap := s.snap.Load()
		if s.current == u.att && snap.PendingQuestion != nil && snap.PendingQuestion.QuestionID == question.QuestionID {
			s.setState(models.SessionApplying, func(next *models.SessionSnapshot) {
				next.CurrentJobID = u.att.jobID
			})
		}
		s.mu.Unlock()
		return walker.Answer{}, ctx.Err()
	}
}

// relayEmitter forwards checkpoint frames to the outbox
type relayEmitter struct {
	s *session
}

func (e relayEmitter) Frame(frame models.FramePayload) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.outbox.Push(models.MsgCheckpointFrame, "", frame)
}

func (e relayEmitter) Progress(text string) {
	e.s.progress(text)
}
