package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ProfileStorage implements the ProfileStorage interface for Badger
type ProfileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProfileStorage creates a new ProfileStorage instance
func NewProfileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProfileStorage {
	return &ProfileStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProfileStorage) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.Store().Get(userID, &profile); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("profile %s: %w", userID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (s *ProfileStorage) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if profile.UserID == "" {
		return fmt.Errorf("profile user ID is required")
	}
	profile.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(profile.UserID, profile); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}
