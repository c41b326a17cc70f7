package badger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func job(user, title, company string) *models.JobRecord {
	url := "https://example.test/jobs/" + title
	return &models.JobRecord{
		ID:           common.JobID(user, url, title, company),
		UserID:       user,
		Title:        title,
		Company:      company,
		URL:          url,
		DiscoveredAt: time.Now(),
	}
}

func TestJobStorage_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	jobs := newTestManager(t).JobStorage()

	first := job("alice", "Go Engineer", "Acme")
	n, err := jobs.SaveJobs(ctx, []*models.JobRecord{first, job("alice", "SRE", "Initech")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same ID with a different title must not overwrite the stored record
	changed := *first
	changed.Title = "Mutated"
	n, err = jobs.SaveJobs(ctx, []*models.JobRecord{&changed})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := jobs.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go Engineer", stored.Title)

	count, err := jobs.CountJobsByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = jobs.GetJob(ctx, "missing")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestJobStorage_SelectByUserAndIDs(t *testing.T) {
	ctx := context.Background()
	jobs := newTestManager(t).JobStorage()

	a := job("alice", "A", "X")
	b := job("bob", "B", "Y")
	_, err := jobs.SaveJobs(ctx, []*models.JobRecord{a, b})
	require.NoError(t, err)

	list, err := jobs.ListJobsByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	byIDs, err := jobs.GetJobsByIDs(ctx, []string{b.ID, "nope", a.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, b.ID, byIDs[0].ID)
	assert.Equal(t, a.ID, byIDs[1].ID)
}

func TestSwipeStorage_UpsertIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	swipes := newTestManager(t).SwipeStorage()

	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "alice", JobID: "j1", Direction: models.SwipeViewed}))
	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "alice", JobID: "j1", Direction: models.SwipeApplied}))
	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "alice", JobID: "j2", Direction: models.SwipeRejected}))
	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "bob", JobID: "j1", Direction: models.SwipeApplied}))

	count, err := swipes.CountSwipesByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	events, err := swipes.ListSwipesByUser(ctx, "alice")
	require.NoError(t, err)
	directions := map[string]models.SwipeDirection{}
	for _, e := range events {
		directions[e.JobID] = e.Direction
	}
	assert.Equal(t, models.SwipeApplied, directions["j1"])
	assert.Equal(t, models.SwipeRejected, directions["j2"])
}

func TestApplicationStorage_AppendOnlyAndSurvivesSwipeReset(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	applications := manager.ApplicationStorage()
	swipes := manager.SwipeStorage()

	require.NoError(t, applications.RecordApplication(ctx, &models.ApplicationRecord{UserID: "alice", JobID: "j1", Title: "Go Dev"}))
	require.NoError(t, applications.RecordApplication(ctx, &models.ApplicationRecord{UserID: "alice", JobID: "j1", Title: "Go Dev"}))
	require.NoError(t, applications.RecordApplication(ctx, &models.ApplicationRecord{UserID: "alice", JobID: "j2", AppliedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, applications.RecordApplication(ctx, &models.ApplicationRecord{UserID: "bob", JobID: "j1"}))
	assert.Error(t, applications.RecordApplication(ctx, &models.ApplicationRecord{UserID: "alice"}))

	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "alice", JobID: "j1", Direction: models.SwipeApplied}))
	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "alice", JobID: "j1", Direction: models.SwipeViewed}))
	_, err := swipes.DeleteSwipesByUser(ctx, "alice")
	require.NoError(t, err)

	today, err := applications.CountApplicationsSince(ctx, "alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, today)

	all, err := applications.ListApplicationsByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "j2", all[0].JobID, "oldest first")
	assert.NotEqual(t, all[1].ID, all[2].ID)
}

func TestSwipeStorage_DeleteByUserKeepsOthers(t *testing.T) {
	ctx := context.Background()
	swipes := newTestManager(t).SwipeStorage()

	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "alice", JobID: "j1", Direction: models.SwipeViewed}))
	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "alice", JobID: "j2", Direction: models.SwipeViewed}))
	require.NoError(t, swipes.UpsertSwipe(ctx, &models.SwipeEvent{UserID: "bob", JobID: "j1", Direction: models.SwipeViewed}))

	deleted, err := swipes.DeleteSwipesByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := swipes.CountSwipesByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = swipes.CountSwipesByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProfileAndCredentialStorage(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	_, err := manager.ProfileStorage().GetProfile(ctx, "alice")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))

	require.NoError(t, manager.ProfileStorage().SaveProfile(ctx, &models.Profile{
		UserID:    "alice",
		FirstName: "Alice",
		Answers:   map[string]string{"do you need sponsorship": "No"},
	}))
	profile, err := manager.ProfileStorage().GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.FirstName)
	assert.Equal(t, "No", profile.Answers["do you need sponsorship"])

	require.NoError(t, manager.CredentialStorage().SaveEnvelope(ctx, &models.CredentialEnvelope{
		UserID: "alice", Version: 1, Payload: []byte(`{"email":"a@x"}`),
	}))
	env, err := manager.CredentialStorage().GetEnvelope(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)

	require.NoError(t, manager.CredentialStorage().DeleteEnvelope(ctx, "alice"))
	require.NoError(t, manager.CredentialStorage().DeleteEnvelope(ctx, "alice"))
	_, err = manager.CredentialStorage().GetEnvelope(ctx, "alice")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}
