package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	badgerstore "github.com/ternarybob/jobpilot/internal/storage/badger"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func newStorage(t *testing.T) interfaces.CredentialStorage {
	t.Helper()
	manager, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager.CredentialStorage()
}

func TestStore_PlainEnvelope(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	store, err := NewStore(storage, &common.CredentialsConfig{}, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, VersionPlain, store.Version())

	require.NoError(t, store.SaveCredentials(ctx, "ada", &models.Credentials{Email: "ada@example.com", Password: "pw"}))

	creds, err := store.GetCredentials(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", creds.Email)
	assert.Equal(t, "pw", creds.Password)
}

func TestStore_EncryptedEnvelope(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	store, err := NewStore(storage, &common.CredentialsConfig{Key: testKey}, arbor.NewLogger())
	require.NoError(t, err)

	require.NoError(t, store.SaveCredentials(ctx, "ada", &models.Credentials{Email: "ada@example.com", Password: "secret"}))

	envelope, err := storage.GetEnvelope(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, VersionEncrypted, envelope.Version)
	assert.NotContains(t, string(envelope.Payload), "secret")

	creds, err := store.GetCredentials(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "secret", creds.Password)
}

func TestStore_EnvelopeBoundToUser(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	store, err := NewStore(storage, &common.CredentialsConfig{Key: testKey}, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, store.SaveCredentials(ctx, "ada", &models.Credentials{Email: "a", Password: "b"}))

	envelope, err := storage.GetEnvelope(ctx, "ada")
	require.NoError(t, err)
	envelope.UserID = "mallory"
	require.NoError(t, storage.SaveEnvelope(ctx, envelope))

	_, err = store.GetCredentials(ctx, "mallory")
	assert.Error(t, err)
}

func TestStore_ReadsPlainEnvelopesAfterKeyIsAdded(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	plain, err := NewStore(storage, nil, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, plain.SaveCredentials(ctx, "ada", &models.Credentials{Email: "a", Password: "b"}))

	keyed, err := NewStore(storage, &common.CredentialsConfig{Key: testKey}, arbor.NewLogger())
	require.NoError(t, err)
	creds, err := keyed.GetCredentials(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "b", creds.Password)
}

func TestStore_RejectsUnknownOrUnkeyedVersions(t *testing.T) {
	ctx := context.Background()
	storage := newStorage(t)
	store, err := NewStore(storage, nil, arbor.NewLogger())
	require.NoError(t, err)

	require.NoError(t, storage.SaveEnvelope(ctx, &models.CredentialEnvelope{UserID: "ada", Version: 2, Payload: []byte("x")}))
	_, err = store.GetCredentials(ctx, "ada")
	assert.True(t, errors.Is(err, ErrNoKey))

	require.NoError(t, storage.SaveEnvelope(ctx, &models.CredentialEnvelope{UserID: "ada", Version: 9, Payload: []byte("x")}))
	_, err = store.GetCredentials(ctx, "ada")
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))

	_, err = store.GetCredentials(ctx, "nobody")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestNewStore_RejectsBadKeys(t *testing.T) {
	storage := newStorage(t)
	_, err := NewStore(storage, &common.CredentialsConfig{Key: "not base64!"}, arbor.NewLogger())
	assert.Error(t, err)
	_, err = NewStore(storage, &common.CredentialsConfig{Key: base64.StdEncoding.EncodeToString([]byte("short"))}, arbor.NewLogger())
	assert.Error(t, err)
}
