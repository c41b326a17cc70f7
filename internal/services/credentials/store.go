// -----------------------------------------------------------------------
// Credential Store - versioned credential envelopes
// -----------------------------------------------------------------------

package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// Envelope versions
const (
	VersionPlain     = 1 // JSON payload
	VersionEncrypted = 2 // AES-GCM sealed JSON, nonce prefixed, user id as additional data
)

var (
	ErrUnsupportedVersion = errors.New("unsupported credential envelope version")
	ErrNoKey              = errors.New("credential key not configured")
)

type codec interface {
	seal(userID string, plaintext []byte) ([]byte, error)
	open(userID string, payload []byte) ([]byte, error)
}

type plainCodec struct{}

func (plainCodec) seal(userID string, plaintext []byte) ([]byte, error) { return plaintext, nil }
func (plainCodec) open(userID string, payload []byte) ([]byte, error)   { return payload, nil }

type gcmCodec struct {
	aead cipher.AEAD
}

func (c gcmCodec) seal(userID string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, []byte(userID)), nil
}

func (c gcmCodec) open(userID string, payload []byte) ([]byte, error) {
	size := c.aead.NonceSize()
	if len(payload) < size {
		return nil, errors.New("sealed credentials too short")
	}
	return c.aead.Open(nil, payload[:size], payload[size:], []byte(userID))
}

// Store reads and writes credential envelopes, dispatching on the version tag
type Store struct {
	storage interfaces.CredentialStorage
	codecs  map[int]codec
	write   int
	logger  arbor.ILogger
}

var _ interfaces.CredentialSource = (*Store)(nil)

// NewStore creates a credential store. With a key configured new envelopes are
// written as version 2; without one only version 1 is available.
func NewStore(storage interfaces.CredentialStorage, config *common.CredentialsConfig, logger arbor.ILogger) (*Store, error) {
	s := &Store{
		storage: storage,
		codecs:  map[int]codec{VersionPlain: plainCodec{}},
		write:   VersionPlain,
		logger:  logger,
	}

	if config != nil && strings.TrimSpace(config.Key) != "" {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(config.Key))
		if err != nil {
			return nil, fmt.Errorf("credential key is not valid base64: %w", err)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("credential key: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		s.codecs[VersionEncrypted] = gcmCodec{aead: aead}
		s.write = VersionEncrypted
	} else {
		logger.Warn().Msg("No credential key configured, credentials are stored unencrypted")
	}

	return s, nil
}

// GetCredentials decodes the user's envelope
func (s *Store) GetCredentials(ctx context.Context, userID string) (*models.Credentials, error) {
	envelope, err := s.storage.GetEnvelope(ctx, userID)
	if err != nil {
		return nil, err
	}

	c, ok := s.codecs[envelope.Version]
	if !ok {
		if envelope.Version == VersionEncrypted {
			return nil, fmt.Errorf("credentials for %s: %w", userID, ErrNoKey)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, envelope.Version)
	}

	plaintext, err := c.open(userID, envelope.Payload)
	if err != nil {
		return nil, fmt.Errorf("open credentials for %s: %w", userID, err)
	}

	var creds models.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials for %s: %w", userID, err)
	}
	return &creds, nil
}

// SaveCredentials seals creds with the preferred version
func (s *Store) SaveCredentials(ctx context.Context, userID string, creds *models.Credentials) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if creds == nil || creds.Email == "" || creds.Password == "" {
		return fmt.Errorf("email and password are required")
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	payload, err := s.codecs[s.write].seal(userID, plaintext)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}

	envelope := &models.CredentialEnvelope{
		UserID:    userID,
		Version:   s.write,
		Payload:   payload,
		UpdatedAt: time.Now(),
	}
	if err := s.storage.SaveEnvelope(ctx, envelope); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to save credentials")
		return err
	}

	s.logger.Info().Str("user_id", userID).Int("version", s.write).Msg("Stored credentials")
	return nil
}

// DeleteCredentials removes the user's envelope
func (s *Store) DeleteCredentials(ctx context.Context, userID string) error {
	return s.storage.DeleteEnvelope(ctx, userID)
}

// Version returns the envelope version new writes use
func (s *Store) Version() int {
	return s.write
}
