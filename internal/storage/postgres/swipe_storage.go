package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/jobpilot/internal/models"
)

// SwipeStorage persists swipe events keyed by (user_id, job_id)
type SwipeStorage struct {
	db *DB
}

func (s *SwipeStorage) UpsertSwipe(ctx context.Context, event *models.SwipeEvent) error {
	if event.UserID == "" || event.JobID == "" {
		return fmt.Errorf("swipe requires user and job")
	}
	event.ID = models.SwipeKey(event.UserID, event.JobID)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO swipe_events (user_id, job_id, direction, at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, job_id) DO UPDATE SET direction = EXCLUDED.direction, at = EXCLUDED.at`,
		event.UserID, event.JobID, string(event.Direction), event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to upsert swipe: %w", err)
	}
	return nil
}

func (s *SwipeStorage) ListSwipesByUser(ctx context.Context, userID string) ([]*models.SwipeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, job_id, direction, at FROM swipe_events WHERE user_id = $1 ORDER BY at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list swipes: %w", err)
	}
	defer rows.Close()

	var events []*models.SwipeEvent
	for rows.Next() {
		var e models.SwipeEvent
		var direction string
		if err := rows.Scan(&e.UserID, &e.JobID, &direction, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan swipe: %w", err)
		}
		e.Direction = models.SwipeDirection(direction)
		e.ID = models.SwipeKey(e.UserID, e.JobID)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *SwipeStorage) CountSwipesByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM swipe_events WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count swipes: %w", err)
	}
	return count, nil
}

func (s *SwipeStorage) DeleteSwipesByUser(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM swipe_events WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete swipes: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
