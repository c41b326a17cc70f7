package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/jobpilot/internal/models"
)

// ApplicationStorage appends to the applications table; rows are never updated
type ApplicationStorage struct {
	db *DB
}

func (s *ApplicationStorage) RecordApplication(ctx context.Context, record *models.ApplicationRecord) error {
	if record.UserID == "" || record.JobID == "" {
		return fmt.Errorf("application requires user and job")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.AppliedAt.IsZero() {
		record.AppliedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, user_id, job_id, title, company, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.UserID, record.JobID, record.Title, record.Company, record.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to record application: %w", err)
	}
	return nil
}

func (s *ApplicationStorage) ListApplicationsByUser(ctx context.Context, userID string) ([]*models.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, job_id, title, company, applied_at FROM applications WHERE user_id = $1 ORDER BY applied_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var records []*models.ApplicationRecord
	for rows.Next() {
		var r models.ApplicationRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.JobID, &r.Title, &r.Company, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (s *ApplicationStorage) CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE user_id = $1 AND applied_at >= $2`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return count, nil
}
