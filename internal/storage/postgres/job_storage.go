package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// JobStorage persists job records in the job_records table
type JobStorage struct {
	db *DB
}

const jobColumns = `id, user_id, title, company, location, salary, description, url, quick_apply, discovered_at`

// SaveJobs inserts with ON CONFLICT DO NOTHING so stored records are never mutated
func (s *JobStorage) SaveJobs(ctx context.Context, jobs []*models.JobRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO job_records (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	inserted := 0
	for _, job := range jobs {
		res, err := tx.ExecContext(ctx, query,
			job.ID, job.UserID, job.Title, job.Company, job.Location, job.Salary,
			job.Description, job.URL, job.QuickApply, job.DiscoveredAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert job %s: %w", job.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit jobs: %w", err)
	}
	return inserted, nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM job_records WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, interfaces.ErrNotFound)
	}
	return job, err
}

func (s *JobStorage) ListJobsByUser(ctx context.Context, userID string) ([]*models.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM job_records WHERE user_id = $1 ORDER BY discovered_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// GetJobsByIDs selects by id list; result order follows discovery time
func (s *JobStorage) GetJobsByIDs(ctx context.Context, ids []string) ([]*models.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM job_records WHERE id = ANY($1) ORDER BY discovered_at`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStorage) CountJobsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_records WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*models.JobRecord, error) {
	var job models.JobRecord
	err := row.Scan(&job.ID, &job.UserID, &job.Title, &job.Company, &job.Location,
		&job.Salary, &job.Description, &job.URL, &job.QuickApply, &job.DiscoveredAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*models.JobRecord, error) {
	var jobs []*models.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
