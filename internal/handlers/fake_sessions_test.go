package handlers

import (
	"context"
	"sync"

	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/session"
)

type call struct {
	op   string
	user string
	arg  string
}

// fakeSessions records calls and lets tests push outbox traffic
type fakeSessions struct {
	mu       sync.Mutex
	calls    []call
	errs     map[string]error
	started  map[string]bool
	action   models.CheckpointAction
	fetched  int
	queued   []models.ServerMessage
	out      chan models.ServerMessage
	detached chan string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		errs:     make(map[string]error),
		started:  make(map[string]bool),
		out:      make(chan models.ServerMessage, 16),
		detached: make(chan string, 4),
	}
}

func (f *fakeSessions) record(op, user, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: op, user: user, arg: arg})
	return f.errs[op]
}

func (f *fakeSessions) failWith(op string, err error) {
	f.mu.Lock()
	f.errs[op] = err
	f.mu.Unlock()
}

func (f *fakeSessions) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeSessions) called(op string) bool {
	for _, c := range f.recorded() {
		if c.op == op {
			return true
		}
	}
	return false
}

func (f *fakeSessions) StartSession(ctx context.Context, userID string) (session.StartResult, error) {
	if err := f.record("start", userID, ""); err != nil {
		return session.StartResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := models.SessionSnapshot{UserID: userID, State: models.SessionStarting}
	if f.started[userID] {
		return session.StartResult{AlreadyActive: true, Snapshot: snap}, nil
	}
	f.started[userID] = true
	return session.StartResult{Accepted: true, Snapshot: snap}, nil
}

func (f *fakeSessions) StopSession(ctx context.Context, userID string) error {
	return f.record("stop", userID, "")
}

func (f *fakeSessions) GetStatus(userID string) models.SessionSnapshot {
	f.record("status", userID, "")
	return models.SessionSnapshot{UserID: userID, State: models.SessionLoggedIn}
}

func (f *fakeSessions) SubmitApply(ctx context.Context, userID, jobID string) error {
	return f.record("apply", userID, jobID)
}

func (f *fakeSessions) FetchJobs(ctx context.Context, userID string, max int) (int, error) {
	if err := f.record("fetch", userID, ""); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched, nil
}

func (f *fakeSessions) Answer(userID, questionID, text string) error {
	return f.record("answer", userID, questionID+"="+text)
}

func (f *fakeSessions) SkipQuestion(userID string) error {
	return f.record("skip", userID, "")
}

func (f *fakeSessions) CancelApplication(userID string) error {
	return f.record("cancel", userID, "")
}

func (f *fakeSessions) CheckpointAction(userID string, action models.CheckpointAction) error {
	f.mu.Lock()
	f.action = action
	f.mu.Unlock()
	return f.record("checkpoint", userID, string(action.Kind))
}

func (f *fakeSessions) Subscribe(userID string) (<-chan models.ServerMessage, func()) {
	f.record("subscribe", userID, "")
	var once sync.Once
	return f.out, func() {
		once.Do(func() { f.detached <- userID })
	}
}

func (f *fakeSessions) Drain(userID string, max int) []models.ServerMessage {
	f.record("drain", userID, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if max > len(f.queued) {
		max = len(f.queued)
	}
	out := f.queued[:max]
	f.queued = f.queued[max:]
	return out
}

func (f *fakeSessions) Swipe(ctx context.Context, userID, jobID string, direction models.SwipeDirection) error {
	return f.record("swipe", userID, jobID+"="+string(direction))
}
