package interfaces

import (
	"context"

	"github.com/ternarybob/jobpilot/internal/models"
)

// CredentialSource supplies login credentials at login time
type CredentialSource interface {
	GetCredentials(ctx context.Context, userID string) (*models.Credentials, error)
}

// ProfileSource supplies the applicant profile and remembers human answers
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	RememberAnswer(ctx context.Context, userID, question, answer string) error
}

// QuotaService answers whether a user exhausted today's application count
type QuotaService interface {
	Exceeded(ctx context.Context, userID string) (bool, error)
}
