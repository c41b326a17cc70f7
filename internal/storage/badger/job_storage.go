package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// SaveJobs inserts records whose ID is not yet present; existing records are left untouched
func (s *JobStorage) SaveJobs(ctx context.Context, jobs []*models.JobRecord) (int, error) {
	inserted := 0
	for _, job := range jobs {
		if job.ID == "" {
			return inserted, fmt.Errorf("job ID is required")
		}
		err := s.db.Store().Insert(job.ID, job)
		if errors.Is(err, badgerhold.ErrKeyExists) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("failed to insert job %s: %w", job.ID, err)
		}
		inserted++
	}

	if inserted > 0 {
		s.logger.Debug().Int("inserted", inserted).Int("offered", len(jobs)).Msg("Saved job records")
	}
	return inserted, nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	var job models.JobRecord
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobsByUser(ctx context.Context, userID string) ([]*models.JobRecord, error) {
	var jobs []models.JobRecord
	if err := s.db.Store().Find(&jobs, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].DiscoveredAt.Before(jobs[j].DiscoveredAt)
	})

	result := make([]*models.JobRecord, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// GetJobsByIDs returns found records in request order; unknown IDs are skipped
func (s *JobStorage) GetJobsByIDs(ctx context.Context, ids []string) ([]*models.JobRecord, error) {
	result := make([]*models.JobRecord, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if errors.Is(err, interfaces.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, nil
}

func (s *JobStorage) CountJobsByUser(ctx context.Context, userID string) (int, error) {
	count, err := s.db.Store().Count(&models.JobRecord{}, badgerhold.Where("UserID").Eq(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}
