package profiles

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	badgerstore "github.com/ternarybob/jobpilot/internal/storage/badger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	manager, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return NewService(manager.ProfileStorage(), arbor.NewLogger())
}

func TestGetProfile_MissingIsEmpty(t *testing.T) {
	svc := newTestService(t)

	profile, err := svc.GetProfile(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, "ada", profile.UserID)
	assert.NotEmpty(t, profile.MissingFields())
}

func TestRememberAnswer_NormalizesQuestion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.RememberAnswer(ctx, "ada", "  Do you require   VISA sponsorship? ", "No"))
	require.NoError(t, svc.RememberAnswer(ctx, "ada", "Years of Go experience", "6"))

	profile, err := svc.GetProfile(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "No", profile.Answers[common.NormalizeKey("do you require visa sponsorship?")])
	assert.Len(t, profile.Answers, 2)

	require.NoError(t, svc.ForgetAnswer(ctx, "ada", "years of go experience"))
	profile, err = svc.GetProfile(ctx, "ada")
	require.NoError(t, err)
	assert.Len(t, profile.Answers, 1)
}

func TestSaveProfile_KeepsRememberedAnswers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.RememberAnswer(ctx, "ada", "Notice period", "2 weeks"))
	require.NoError(t, svc.SaveProfile(ctx, &models.Profile{UserID: "ada", FirstName: "Ada"}))

	profile, err := svc.GetProfile(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.FirstName)
	assert.Equal(t, "2 weeks", profile.Answers["notice period"])
	assert.False(t, profile.UpdatedAt.IsZero())

	assert.Error(t, svc.SaveProfile(ctx, &models.Profile{}))
}
