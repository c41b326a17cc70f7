package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// ProfileStorage keeps each profile as a JSONB document
type ProfileStorage struct {
	db *DB
}

func (s *ProfileStorage) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

func (s *ProfileStorage) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if profile.UserID == "" {
		return fmt.Errorf("profile user ID is required")
	}
	profile.UpdatedAt = time.Now()

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		profile.UserID, data, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// CredentialStorage keeps versioned credential envelopes
type CredentialStorage struct {
	db *DB
}

func (s *CredentialStorage) GetEnvelope(ctx context.Context, userID string) (*models.CredentialEnvelope, error) {
	envelope := models.CredentialEnvelope{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT version, payload, updated_at FROM credential_envelopes WHERE user_id = $1`, userID).
		Scan(&envelope.Version, &envelope.Payload, &envelope.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credentials for %s: %w", userID, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return &envelope, nil
}

func (s *CredentialStorage) SaveEnvelope(ctx context.Context, envelope *models.CredentialEnvelope) error {
	if envelope.UserID == "" {
		return fmt.Errorf("credentials user ID is required")
	}
	envelope.UpdatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credential_envelopes (user_id, version, payload, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET version = EXCLUDED.version, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		envelope.UserID, envelope.Version, envelope.Payload, envelope.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

func (s *CredentialStorage) DeleteEnvelope(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credential_envelopes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
