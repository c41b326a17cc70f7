package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SwipeStorage implements the SwipeStorage interface for Badger
type SwipeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSwipeStorage creates a new SwipeStorage instance
func NewSwipeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SwipeStorage {
	return &SwipeStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertSwipe stores the event under user:job so repeated writes stay idempotent
func (s *SwipeStorage) UpsertSwipe(ctx context.Context, event *models.SwipeEvent) error {
	if event.UserID == "" || event.JobID == "" {
		return fmt.Errorf("swipe requires user and job")
	}
	event.ID = models.SwipeKey(event.UserID, event.JobID)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := s.db.Store().Upsert(event.ID, event); err != nil {
		return fmt.Errorf("failed to upsert swipe: %w", err)
	}
	return nil
}

func (s *SwipeStorage) ListSwipesByUser(ctx context.Context, userID string) ([]*models.SwipeEvent, error) {
	var events []models.SwipeEvent
	if err := s.db.Store().Find(&events, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("failed to list swipes: %w", err)
	}

	result := make([]*models.SwipeEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

func (s *SwipeStorage) CountSwipesByUser(ctx context.Context, userID string) (int, error) {
	count, err := s.db.Store().Count(&models.SwipeEvent{}, badgerhold.Where("UserID").Eq(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to count swipes: %w", err)
	}
	return int(count), nil
}

func (s *SwipeStorage) DeleteSwipesByUser(ctx context.Context, userID string) (int, error) {
	count, err := s.CountSwipesByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.db.Store().DeleteMatching(&models.SwipeEvent{}, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return 0, fmt.Errorf("failed to delete swipes: %w", err)
	}

	s.logger.Debug().Str("user_id", userID).Int("deleted", count).Msg("Deleted swipe events")
	return count, nil
}
