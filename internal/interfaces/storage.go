package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/jobpilot/internal/models"
)

// ErrNotFound is returned by storage lookups for a missing key
var ErrNotFound = errors.New("not found")

// JobStorage persists immutable job records
type JobStorage interface {
	// SaveJobs inserts records that do not exist yet and returns how many were new.
	// Existing records are never mutated.
	SaveJobs(ctx context.Context, jobs []*models.JobRecord) (int, error)
	GetJob(ctx context.Context, id string) (*models.JobRecord, error)
	ListJobsByUser(ctx context.Context, userID string) ([]*models.JobRecord, error)
	GetJobsByIDs(ctx context.Context, ids []string) ([]*models.JobRecord, error)
	CountJobsByUser(ctx context.Context, userID string) (int, error)
}

// SwipeStorage persists swipe/view events keyed by (user, job)
type SwipeStorage interface {
	// UpsertSwipe writes the event, replacing any prior direction for the same (user, job)
	UpsertSwipe(ctx context.Context, event *models.SwipeEvent) error
	ListSwipesByUser(ctx context.Context, userID string) ([]*models.SwipeEvent, error)
	CountSwipesByUser(ctx context.Context, userID string) (int, error)
	DeleteSwipesByUser(ctx context.Context, userID string) (int, error)
}

// ApplicationStorage is the append-only log of submitted applications
type ApplicationStorage interface {
	RecordApplication(ctx context.Context, record *models.ApplicationRecord) error
	ListApplicationsByUser(ctx context.Context, userID string) ([]*models.ApplicationRecord, error)
	CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// ProfileStorage persists applicant profiles
type ProfileStorage interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
}

// CredentialStorage persists versioned credential envelopes
type CredentialStorage interface {
	GetEnvelope(ctx context.Context, userID string) (*models.CredentialEnvelope, error)
	SaveEnvelope(ctx context.Context, envelope *models.CredentialEnvelope) error
	DeleteEnvelope(ctx context.Context, userID string) error
}

// StorageManager aggregates all storage backends
type StorageManager interface {
	JobStorage() JobStorage
	SwipeStorage() SwipeStorage
	ApplicationStorage() ApplicationStorage
	ProfileStorage() ProfileStorage
	CredentialStorage() CredentialStorage
	DB() interface{}
	Close() error
}
