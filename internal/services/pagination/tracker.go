package pagination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// State is the per-user pagination view; Remaining == Total - Viewed
type State struct {
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
	Viewed    int `json:"viewed"`
}

// Tracker derives "already shown" from the swipe event log and decides when a
// fresh extraction pass is due.
type Tracker struct {
	jobs   interfaces.JobStorage
	swipes interfaces.SwipeStorage
	logger arbor.ILogger

	mu sync.Mutex
	// fired holds users whose refetch latch is spent for the current exhaustion
	fired map[string]bool
}

// NewTracker creates a new pagination tracker
func NewTracker(jobs interfaces.JobStorage, swipes interfaces.SwipeStorage, logger arbor.ILogger) *Tracker {
	return &Tracker{
		jobs:   jobs,
		swipes: swipes,
		logger: logger,
		fired:  make(map[string]bool),
	}
}

// RecordJobs persists drafts as new job records owned by userID and returns how
// many were new. Untitled drafts are dropped; known records are never rewritten.
func (t *Tracker) RecordJobs(ctx context.Context, userID string, drafts []models.JobRecordDraft) (int, error) {
	now := time.Now()
	records := make([]*models.JobRecord, 0, len(drafts))
	for _, d := range drafts {
		if strings.TrimSpace(d.Title) == "" {
			continue
		}
		records = append(records, &models.JobRecord{
			ID:           common.JobID(userID, d.URL, d.Title, d.Company),
			UserID:       userID,
			Title:        d.Title,
			Company:      d.Company,
			Location:     d.Location,
			Salary:       d.Salary,
			Description:  d.Description,
			URL:          d.URL,
			QuickApply:   d.QuickApply,
			DiscoveredAt: now,
		})
	}
	if len(records) == 0 {
		return 0, nil
	}

	inserted, err := t.jobs.SaveJobs(ctx, records)
	if err != nil {
		return inserted, fmt.Errorf("record jobs: %w", err)
	}
	if inserted > 0 {
		// new records end the current exhaustion episode
		t.mu.Lock()
		delete(t.fired, userID)
		t.mu.Unlock()
	}

	t.logger.Debug().
		Str("user_id", userID).
		Int("offered", len(records)).
		Int("inserted", inserted).
		Msg("Job records stored")
	return inserted, nil
}

// MarkViewed writes the (user, job) event; repeated writes replace the direction
func (t *Tracker) MarkViewed(ctx context.Context, userID, jobID string, direction models.SwipeDirection) error {
	if !direction.Valid() {
		return fmt.Errorf("invalid swipe direction %q", direction)
	}
	event := &models.SwipeEvent{
		UserID:    userID,
		JobID:     jobID,
		Direction: direction,
		Timestamp: time.Now(),
	}
	if err := t.swipes.UpsertSwipe(ctx, event); err != nil {
		return fmt.Errorf("mark viewed: %w", err)
	}
	return nil
}

// GetState counts the user's job records and the distinct ones carrying any event
func (t *Tracker) GetState(ctx context.Context, userID string) (State, error) {
	jobs, err := t.jobs.ListJobsByUser(ctx, userID)
	if err != nil {
		return State{}, err
	}
	seen, err := t.seenSet(ctx, userID)
	if err != nil {
		return State{}, err
	}

	state := State{Total: len(jobs)}
	for _, job := range jobs {
		if seen[job.ID] {
			state.Viewed++
		}
	}
	state.Remaining = state.Total - state.Viewed
	return state, nil
}

// Unseen returns up to limit records without an event, oldest first
func (t *Tracker) Unseen(ctx context.Context, userID string, limit int) ([]*models.JobRecord, error) {
	jobs, err := t.jobs.ListJobsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen, err := t.seenSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	var unseen []*models.JobRecord
	for _, job := range jobs {
		if seen[job.ID] {
			continue
		}
		unseen = append(unseen, job)
		if limit > 0 && len(unseen) == limit {
			break
		}
	}
	return unseen, nil
}

// ShouldRefetch reports true once per exhaustion episode: remaining must be zero
// while the session is logged in. The latch re-arms when remaining rises above zero.
func (t *Tracker) ShouldRefetch(ctx context.Context, userID string, loggedIn bool) (bool, error) {
	state, err := t.GetState(ctx, userID)
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if state.Remaining > 0 {
		delete(t.fired, userID)
		return false, nil
	}
	if !loggedIn || t.fired[userID] {
		return false, nil
	}
	t.fired[userID] = true
	return true, nil
}

// Reset deletes the user's events; job records are retained
func (t *Tracker) Reset(ctx context.Context, userID string) (int, error) {
	deleted, err := t.swipes.DeleteSwipesByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reset pagination: %w", err)
	}

	t.mu.Lock()
	delete(t.fired, userID)
	t.mu.Unlock()

	t.logger.Info().Str("user_id", userID).Int("deleted", deleted).Msg("Pagination reset")
	return deleted, nil
}

func (t *Tracker) seenSet(ctx context.Context, userID string) (map[string]bool, error) {
	events, err := t.swipes.ListSwipesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		seen[e.JobID] = true
	}
	return seen, nil
}
