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

// CredentialStorage implements the CredentialStorage interface for Badger
type CredentialStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CredentialStorage {
	return &CredentialStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CredentialStorage) GetEnvelope(ctx context.Context, userID string) (*models.CredentialEnvelope, error) {
	var envelope models.CredentialEnvelope
	if err := s.db.Store().Get(userID, &envelope); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("credentials for %s: %w", userID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &envelope, nil
}

func (s *CredentialStorage) SaveEnvelope(ctx context.Context, envelope *models.CredentialEnvelope) error {
	if envelope.UserID == "" {
		return fmt.Errorf("credentials user ID is required")
	}
	envelope.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(envelope.UserID, envelope); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

func (s *CredentialStorage) DeleteEnvelope(ctx context.Context, userID string) error {
	if err := s.db.Store().Delete(userID, &models.CredentialEnvelope{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
