package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// Service provides applicant profiles and the remembered-answer cache
type Service struct {
	storage interfaces.ProfileStorage
	logger  arbor.ILogger

	// mu serializes read-modify-write of answer maps
	mu sync.Mutex
}

var _ interfaces.ProfileSource = (*Service)(nil)

// NewService creates a new profile service
func NewService(storage interfaces.ProfileStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// GetProfile returns the stored profile, or an empty one for a user without a profile
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.storage.GetProfile(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		s.logger.Debug().Str("user_id", userID).Msg("No profile stored, using empty profile")
		return &models.Profile{UserID: userID}, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to get profile")
		return nil, err
	}
	return profile, nil
}

// SaveProfile stores a profile, keeping remembered answers the caller did not send
func (s *Service) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if profile == nil || strings.TrimSpace(profile.UserID) == "" {
		return fmt.Errorf("profile user id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.Answers == nil {
		if existing, err := s.storage.GetProfile(ctx, profile.UserID); err == nil {
			profile.Answers = existing.Answers
		}
	}
	profile.UpdatedAt = time.Now()

	if err := s.storage.SaveProfile(ctx, profile); err != nil {
		s.logger.Error().Err(err).Str("user_id", profile.UserID).Msg("Failed to save profile")
		return err
	}

	s.logger.Info().Str("user_id", profile.UserID).Msg("Stored profile")
	return nil
}

// RememberAnswer stores a human answer under the normalized question text
func (s *Service) RememberAnswer(ctx context.Context, userID, question, answer string) error {
	key := common.NormalizeKey(question)
	if key == "" {
		return fmt.Errorf("question cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if profile.Answers == nil {
		profile.Answers = make(map[string]string)
	}
	profile.Answers[key] = answer
	profile.UpdatedAt = time.Now()

	if err := s.storage.SaveProfile(ctx, profile); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to remember answer")
		return err
	}

	s.logger.Debug().Str("user_id", userID).Str("question", key).Msg("Remembered answer")
	return nil
}

// ForgetAnswer removes one remembered answer
func (s *Service) ForgetAnswer(ctx context.Context, userID, question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	key := common.NormalizeKey(question)
	if _, ok := profile.Answers[key]; !ok {
		return nil
	}
	delete(profile.Answers, key)
	return s.storage.SaveProfile(ctx, profile)
}
