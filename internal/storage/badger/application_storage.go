package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ApplicationStorage implements the ApplicationStorage interface for Badger
type ApplicationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewApplicationStorage creates a new ApplicationStorage instance
func NewApplicationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ApplicationStorage {
	return &ApplicationStorage{
		db:     db,
		logger: logger,
	}
}

// RecordApplication appends a record; every call adds one, even for the same job
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

	if err := s.db.Store().Insert(record.ID, record); err != nil {
		return fmt.Errorf("failed to record application: %w", err)
	}
	return nil
}

func (s *ApplicationStorage) ListApplicationsByUser(ctx context.Context, userID string) ([]*models.ApplicationRecord, error) {
	var records []models.ApplicationRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].AppliedAt.Before(records[j].AppliedAt)
	})

	result := make([]*models.ApplicationRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// CountApplicationsSince counts records at or after since
func (s *ApplicationStorage) CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	records, err := s.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, r := range records {
		if !r.AppliedAt.Before(since) {
			count++
		}
	}
	return count, nil
}
