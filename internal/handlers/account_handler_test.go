package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/credentials"
	"github.com/ternarybob/jobpilot/internal/services/profiles"
	badgerstore "github.com/ternarybob/jobpilot/internal/storage/badger"
)

func newAccountFixture(t *testing.T) (*AccountHandler, *profiles.Service, *credentials.Store) {
	t.Helper()
	logger := arbor.NewLogger()
	store, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	profileService := profiles.NewService(store.ProfileStorage(), logger)
	credentialStore, err := credentials.NewStore(store.CredentialStorage(), &common.CredentialsConfig{}, logger)
	require.NoError(t, err)
	return NewAccountHandler(profileService, credentialStore, logger), profileService, credentialStore
}

func TestAccountHandler_ProfileRoundTrip(t *testing.T) {
	h, profileService, _ := newAccountFixture(t)
	ctx := context.Background()
	require.NoError(t, profileService.RememberAnswer(ctx, "ada", "Years of Go?", "6"))

	req := httptest.NewRequest(http.MethodPut, "/api/profiles/ada", strings.NewReader(`{"first_name":"Ada","email":"ada@example.com"}`))
	rec := httptest.NewRecorder()
	h.HandleProfileRoutes(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "last_name")

	stored, err := profileService.GetProfile(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", stored.FirstName)
	assert.Len(t, stored.Answers, 1, "remembered answers survive a profile update")

	req = httptest.NewRequest(http.MethodDelete, "/api/profiles/ada/answers?question=years+of+go%3F", nil)
	rec = httptest.NewRecorder()
	h.HandleProfileRoutes(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err = profileService.GetProfile(ctx, "ada")
	require.NoError(t, err)
	assert.Empty(t, stored.Answers)
}

func TestAccountHandler_Credentials(t *testing.T) {
	h, _, store := newAccountFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/api/credentials/ada", strings.NewReader(`{"email":"not-an-email","password":"x"}`))
	rec := httptest.NewRecorder()
	h.HandleCredentialRoutes(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/credentials/ada", strings.NewReader(`{"email":"ada@example.com","password":"hunter2"}`))
	rec = httptest.NewRecorder()
	h.HandleCredentialRoutes(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	creds, err := store.GetCredentials(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, &models.Credentials{Email: "ada@example.com", Password: "hunter2"}, creds)

	req = httptest.NewRequest(http.MethodGet, "/api/credentials/ada", nil)
	rec = httptest.NewRecorder()
	h.HandleCredentialRoutes(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
