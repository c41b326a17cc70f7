package handlers

import (
	"context"

	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/pagination"
	"github.com/ternarybob/jobpilot/internal/services/quota"
	"github.com/ternarybob/jobpilot/internal/services/session"
)

// SessionController is the session manager surface the protocol handlers drive.
// *session.Manager satisfies it.
type SessionController interface {
	StartSession(ctx context.Context, userID string) (session.StartResult, error)
	StopSession(ctx context.Context, userID string) error
	GetStatus(userID string) models.SessionSnapshot
	SubmitApply(ctx context.Context, userID, jobID string) error
	FetchJobs(ctx context.Context, userID string, max int) (int, error)
	Swipe(ctx context.Context, userID, jobID string, direction models.SwipeDirection) error
	Answer(userID, questionID, text string) error
	SkipQuestion(userID string) error
	CancelApplication(userID string) error
	CheckpointAction(userID string, action models.CheckpointAction) error
	Subscribe(userID string) (<-chan models.ServerMessage, func())
	Drain(userID string, max int) []models.ServerMessage
}

// PaginationReporter exposes a user's job pagination view
type PaginationReporter interface {
	GetState(ctx context.Context, userID string) (pagination.State, error)
	Unseen(ctx context.Context, userID string, limit int) ([]*models.JobRecord, error)
	Reset(ctx context.Context, userID string) (int, error)
}

// QuotaReporter exposes today's application usage
type QuotaReporter interface {
	Usage(ctx context.Context, userID string) (quota.Usage, error)
}

// ProfileManager reads and writes applicant profiles
type ProfileManager interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
	ForgetAnswer(ctx context.Context, userID, question string) error
}

// CredentialManager stores site credentials as versioned envelopes
type CredentialManager interface {
	SaveCredentials(ctx context.Context, userID string, creds *models.Credentials) error
	DeleteCredentials(ctx context.Context, userID string) error
	Version() int
}

var (
	_ SessionController  = (*session.Manager)(nil)
	_ PaginationReporter = (*pagination.Tracker)(nil)
	_ QuotaReporter      = (*quota.Service)(nil)
)
