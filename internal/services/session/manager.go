// -----------------------------------------------------------------------
// Session Manager - per-user session lifecycle and protocol entry points
// -----------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/auth"
	"github.com/ternarybob/jobpilot/internal/services/browser"
	"github.com/ternarybob/jobpilot/internal/services/checkpoint"
	"github.com/ternarybob/jobpilot/internal/services/extraction"
	"github.com/ternarybob/jobpilot/internal/services/pagination"
	"github.com/ternarybob/jobpilot/internal/services/walker"
)

// Dependencies are the collaborators sessions drive. Profiles, Quota and
// Applications may be nil.
type Dependencies struct {
	Launcher     interfaces.BrowserLauncher
	Auth         *auth.Service
	Credentials  interfaces.CredentialSource
	Profiles     interfaces.ProfileSource
	Quota        interfaces.QuotaService
	Applications interfaces.ApplicationStorage
	Jobs         interfaces.JobStorage
	Tracker      *pagination.Tracker
	Extractor    *extraction.Engine
	Walker       *walker.Walker
	Events       interfaces.EventService
	Retry        *browser.RetryPolicy
}

// Options bound session lifetime and work
type Options struct {
	IdleTimeout     time.Duration
	DisconnectGrace time.Duration
	KillTimeout     time.Duration
	MaxRelogin      int
	OutboxSize      int
	JobsURL         string
	MaxListings     int
	Checkpoint      checkpoint.Config
}

// OptionsFromConfig reads session options from the application config
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		IdleTimeout:     common.ParseDurationOr(config.Session.IdleTimeout, 15*time.Minute),
		DisconnectGrace: common.ParseDurationOr(config.Session.DisconnectGrace, 30*time.Second),
		KillTimeout:     common.ParseDurationOr(config.Browser.KillTimeout, 5*time.Second),
		MaxRelogin:      config.Session.MaxReloginAttempts,
		OutboxSize:      config.Session.OutboxSize,
		JobsURL:         config.Browser.JobsURL,
		MaxListings:     config.Extraction.MaxListings,
		Checkpoint: checkpoint.Config{
			FrameInterval: common.ParseDurationOr(config.Checkpoint.FrameInterval, time.Second),
			JPEGQuality:   config.Checkpoint.JPEGQuality,
			ActionRate:    config.Checkpoint.ActionRate,
			ActionBurst:   config.Checkpoint.ActionBurst,
		},
	}
}

// StartResult reports whether a new session was created or an existing one reused
type StartResult struct {
	Accepted      bool                   `json:"accepted"`
	AlreadyActive bool                   `json:"already_active"`
	Snapshot      models.SessionSnapshot `json:"snapshot"`
}

// Manager owns at most one live session per user
type Manager struct {
	deps   Dependencies
	opts   Options
	logger arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	outboxes map[string]*Outbox
	graces   map[string]*time.Timer
	closed   bool
}

// NewManager creates a session manager
func NewManager(deps Dependencies, opts Options, logger arbor.ILogger) (*Manager, error) {
	switch {
	case deps.Launcher == nil:
		return nil, errors.New("session manager: browser launcher is required")
	case deps.Auth == nil:
		return nil, errors.New("session manager: auth service is required")
	case deps.Credentials == nil:
		return nil, errors.New("session manager: credential source is required")
	case deps.Jobs == nil || deps.Tracker == nil:
		return nil, errors.New("session manager: job storage and pagination tracker are required")
	case deps.Extractor == nil || deps.Walker == nil:
		return nil, errors.New("session manager: extractor and walker are required")
	}
	if deps.Retry == nil {
		deps.Retry = browser.NewRetryPolicy(3)
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 15 * time.Minute
	}
	if opts.DisconnectGrace <= 0 {
		opts.DisconnectGrace = 30 * time.Second
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 5 * time.Second
	}
	if opts.MaxRelogin < 0 {
		opts.MaxRelogin = 0
	}
	if opts.MaxListings <= 0 {
		opts.MaxListings = 25
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
		outboxes: make(map[string]*Outbox),
		graces:   make(map[string]*time.Timer),
	}, nil
}

func (m *Manager) publish(eventType interfaces.EventType, userID string, payload interface{}) {
	if m.deps.Events == nil {
		return
	}
	event := interfaces.Event{Type: eventType, UserID: userID, Payload: payload}
	if err := m.deps.Events.Publish(context.Background(), event); err != nil {
		m.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

// outboxLocked returns the user's outbox, creating it on first use. Caller holds m.mu.
func (m *Manager) outboxLocked(userID string) *Outbox {
	box, ok := m.outboxes[userID]
	if !ok {
		box = NewOutbox(m.opts.OutboxSize)
		m.outboxes[userID] = box
	}
	return box
}

// live returns the user's session unless it is absent or closed
func (m *Manager) live(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[userID]
	if s == nil || s.state() == models.SessionClosed {
		return nil
	}
	return s
}

// StartSession creates a session for userID unless a live one exists. Concurrent
// calls for the same user never launch a second browser.
func (m *Manager) StartSession(ctx context.Context, userID string) (StartResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return StartResult{}, errors.New("user id is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return StartResult{}, ErrManagerClosed
	}
	if existing := m.sessions[userID]; existing != nil && existing.state() != models.SessionClosed {
		m.mu.Unlock()
		return StartResult{AlreadyActive: true, Snapshot: existing.snapshot()}, nil
	}

	s := newSession(m, userID, m.outboxLocked(userID))
	m.sessions[userID] = s
	s.mu.Lock()
	s.outbox.Push(models.MsgState, "", s.snapshot())
	s.mu.Unlock()
	m.mu.Unlock()

	s.logger.Info().Str("user_id", userID).Msg("Starting session")
	common.SafeGoWithRecover(m.logger, "session:"+userID, s.run, func(r interface{}) {
		s.close(fmt.Sprintf("internal error: %v", r))
		s.markExited()
	})

	return StartResult{Accepted: true, Snapshot: s.snapshot()}, nil
}

// StopSession releases the user's browser and leaves the session Closed.
// Stopping an absent or closed session succeeds.
func (m *Manager) StopSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	s := m.sessions[userID]
	m.stopGraceLocked(userID)
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	s.stop("", m.opts.KillTimeout)
	return nil
}

// GetStatus returns the user's snapshot; unknown users report Idle
func (m *Manager) GetStatus(userID string) models.SessionSnapshot {
	m.mu.Lock()
	s := m.sessions[userID]
	m.mu.Unlock()

	if s == nil {
		return models.SessionSnapshot{UserID: userID, State: models.SessionIdle}
	}
	return s.snapshot()
}

// SubmitApply hands a stored job to the user's session
func (m *Manager) SubmitApply(ctx context.Context, userID, jobID string) error {
	s := m.live(userID)
	if s == nil {
		return ErrNotLoggedIn
	}
	s.touch()

	s.mu.Lock()
	err := s.readyLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	job, err := m.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.UserID != userID {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if m.deps.Quota != nil {
		exceeded, err := m.deps.Quota.Exceeded(ctx, userID)
		if err != nil {
			return fmt.Errorf("check quota: %w", err)
		}
		if exceeded {
			return ErrQuotaExceeded
		}
	}

	if err := s.submit(job); err != nil {
		return err
	}
	s.logger.Info().Str("job_id", job.ID).Str("title", job.Title).Msg("Application accepted")
	return nil
}

// Swipe records the user's decision about one of their jobs. It works without a
// live session; with one, the session fetches more listings once none are unseen.
func (m *Manager) Swipe(ctx context.Context, userID, jobID string, direction models.SwipeDirection) error {
	if !direction.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	job, err := m.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.UserID != userID {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if err := m.deps.Tracker.MarkViewed(ctx, userID, jobID, direction); err != nil {
		return fmt.Errorf("record swipe: %w", err)
	}

	if s := m.live(userID); s != nil {
		s.touch()
		s.nudge()
	}
	return nil
}

// FetchJobs runs an extraction pass on the user's session and returns the number of new records
func (m *Manager) FetchJobs(ctx context.Context, userID string, max int) (int, error) {
	s := m.live(userID)
	if s == nil {
		return 0, ErrNotLoggedIn
	}
	s.touch()
	return s.requestFetch(ctx, max)
}

// Answer replies to the pending question. An empty questionID answers whichever is pending.
func (m *Manager) Answer(userID, questionID, text string) error {
	s := m.live(userID)
	if s == nil {
		return ErrNoPendingQuestion
	}
	s.touch()
	return s.answer(questionID, walker.Answer{Text: text})
}

// SkipQuestion leaves the pending question unanswered
func (m *Manager) SkipQuestion(userID string) error {
	s := m.live(userID)
	if s == nil {
		return ErrNoPendingQuestion
	}
	s.touch()
	return s.answer("", walker.Answer{Skipped: true})
}

// CancelApplication aborts the current attempt; the session returns to LoggedIn at once
func (m *Manager) CancelApplication(userID string) error {
	s := m.live(userID)
	if s == nil {
		return ErrNotApplying
	}
	s.touch()
	return s.cancelApplication()
}

// CheckpointAction queues human input for the checkpoint relay
func (m *Manager) CheckpointAction(userID string, action models.CheckpointAction) error {
	s := m.live(userID)
	if s == nil {
		return ErrNotInCheckpoint
	}
	return s.checkpointAction(action)
}

// Subscribe attaches the live subscriber for userID, replacing any previous one.
// The returned func detaches; detaching mid-application starts the disconnect grace timer.
func (m *Manager) Subscribe(userID string) (<-chan models.ServerMessage, func()) {
	m.mu.Lock()
	box := m.outboxLocked(userID)
	m.stopGraceLocked(userID)
	m.mu.Unlock()

	ch, cancel := box.Subscribe()
	return ch, func() {
		if cancel() {
			m.detached(userID)
		}
	}
}

// Drain removes up to max queued messages for short-poll clients
func (m *Manager) Drain(userID string, max int) []models.ServerMessage {
	m.mu.Lock()
	box := m.outboxes[userID]
	m.mu.Unlock()

	if box == nil {
		return []models.ServerMessage{}
	}
	if s := m.live(userID); s != nil {
		s.touch()
	}
	return box.Drain(max)
}

func (m *Manager) stopGraceLocked(userID string) {
	if t := m.graces[userID]; t != nil {
		t.Stop()
		delete(m.graces, userID)
	}
}

func (m *Manager) detached(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[userID]
	if s == nil || !s.state().HasJob() {
		return
	}
	m.stopGraceLocked(userID)
	s.logger.Info().Dur("grace", m.opts.DisconnectGrace).Msg("Client disconnected mid-application")
	m.graces[userID] = time.AfterFunc(m.opts.DisconnectGrace, func() {
		m.abandon(userID, s)
	})
}

// abandon force-stops a session whose client did not come back within the grace period
func (m *Manager) abandon(userID string, s *session) {
	m.mu.Lock()
	delete(m.graces, userID)
	current := m.sessions[userID] == s
	box := m.outboxes[userID]
	m.mu.Unlock()

	if !current || (box != nil && box.Attached()) {
		return
	}
	s.logger.Warn().Msg("Client did not reconnect, stopping session")
	s.stop("client disconnected", m.opts.KillTimeout)
}

// SweepIdle force-stops sessions without activity for the idle timeout and
// forgets closed sessions and unused outboxes past it. Returns how many were stopped.
func (m *Manager) SweepIdle() int {
	cutoff := time.Now().Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	var idle []*session
	for userID, s := range m.sessions {
		if !s.idleSince().Before(cutoff) {
			continue
		}
		if s.state() == models.SessionClosed {
			delete(m.sessions, userID)
			continue
		}
		idle = append(idle, s)
	}
	for userID, box := range m.outboxes {
		if _, ok := m.sessions[userID]; !ok && !box.Attached() && box.Len() == 0 {
			delete(m.outboxes, userID)
		}
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range idle {
		wg.Add(1)
		s := s
		common.SafeGo(m.logger, "session-sweep:"+s.userID, func() {
			defer wg.Done()
			s.logger.Info().Str("last_activity", s.idleSince().Format(time.RFC3339)).Msg("Stopping idle session")
			s.progress("Session stopped after inactivity")
			s.stop("", m.opts.KillTimeout)
		})
	}
	wg.Wait()

	if len(idle) > 0 {
		m.logger.Info().Int("stopped", len(idle)).Msg("Idle sessions swept")
	}
	return len(idle)
}

// ActiveSessions counts sessions that are not Closed
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.state() != models.SessionClosed {
			n++
		}
	}
	return n
}

// Shutdown stops every session and rejects new ones
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for userID, s := range m.sessions {
		sessions = append(sessions, s)
		m.stopGraceLocked(userID)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, s := range sessions {
			wg.Add(1)
			go func(s *session) {
				defer wg.Done()
				s.stop("", m.opts.KillTimeout)
			}(s)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
	m.cancel()
	m.logger.Info().Int("sessions", len(sessions)).Msg("Session manager stopped")
	return nil
}
