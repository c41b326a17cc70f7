package quota

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/pagination"
	badgerstore "github.com/ternarybob/jobpilot/internal/storage/badger"
)

func newStore(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func applied(t *testing.T, store interfaces.StorageManager, user, job string, at time.Time) {
	t.Helper()
	require.NoError(t, store.ApplicationStorage().RecordApplication(context.Background(), &models.ApplicationRecord{
		UserID: user, JobID: job, AppliedAt: at,
	}))
}

func TestExceeded_CountsOnlyTodaysApplications(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local)

	applied(t, store, "ada", "a", now.Add(-time.Hour))
	applied(t, store, "ada", "b", now.Add(-20*time.Hour)) // yesterday
	applied(t, store, "bob", "d", now.Add(-time.Minute))

	svc := NewService(store.ApplicationStorage(), 2, arbor.NewLogger())
	svc.now = func() time.Time { return now }

	usage, err := svc.Usage(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Applied)
	assert.Equal(t, 1, usage.Remaining)

	exceeded, err := svc.Exceeded(ctx, "ada")
	require.NoError(t, err)
	assert.False(t, exceeded)

	applied(t, store, "ada", "e", now.Add(-time.Minute))
	exceeded, err = svc.Exceeded(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestExceeded_SurvivesResetAndReswipe(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tracker := pagination.NewTracker(store.JobStorage(), store.SwipeStorage(), arbor.NewLogger())
	svc := NewService(store.ApplicationStorage(), 2, arbor.NewLogger())

	for _, job := range []string{"a", "b"} {
		applied(t, store, "ada", job, time.Now())
		require.NoError(t, tracker.MarkViewed(ctx, "ada", job, models.SwipeApplied))
	}
	exceeded, err := svc.Exceeded(ctx, "ada")
	require.NoError(t, err)
	require.True(t, exceeded)

	// a later swipe on an applied job replaces its event
	require.NoError(t, tracker.MarkViewed(ctx, "ada", "a", models.SwipeViewed))
	exceeded, err = svc.Exceeded(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, exceeded)

	_, err = tracker.Reset(ctx, "ada")
	require.NoError(t, err)
	exceeded, err = svc.Exceeded(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, exceeded, "starting over does not restore today's quota")

	usage, err := svc.Usage(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Applied)
	assert.Zero(t, usage.Remaining)
}

func TestExceeded_ZeroLimitDisablesCheck(t *testing.T) {
	store := newStore(t)
	applied(t, store, "ada", "a", time.Now())

	exceeded, err := NewService(store.ApplicationStorage(), 0, arbor.NewLogger()).Exceeded(context.Background(), "ada")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestStartOfDay(t *testing.T) {
	at := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), StartOfDay(at))
}
