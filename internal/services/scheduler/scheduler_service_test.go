package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@every 30s"))
	assert.NoError(t, ValidateSchedule("*/5 * * * *"))
	assert.Error(t, ValidateSchedule(""))
	assert.Error(t, ValidateSchedule("every half minute"))
}

func TestRegisterJob_RejectsDuplicatesAndBadSchedules(t *testing.T) {
	s := NewService(arbor.NewLogger())
	noop := func() error { return nil }

	require.NoError(t, s.RegisterJob("sweep", "@every 1m", "idle sweep", noop))
	assert.Error(t, s.RegisterJob("sweep", "@every 1m", "again", noop))
	assert.Error(t, s.RegisterJob("bad", "not a schedule", "", noop))
	assert.Error(t, s.RegisterJob("nil", "@every 1m", "", nil))
	assert.Len(t, s.GetAllJobStatuses(), 1)
}

func TestScheduledJobRuns(t *testing.T) {
	s := NewService(arbor.NewLogger())
	var runs atomic.Int32
	require.NoError(t, s.RegisterJob("tick", "@every 1s", "", func() error {
		runs.Add(1)
		return nil
	}))

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(), "second start is rejected")

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	status, err := s.GetJobStatus("tick")
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	assert.Empty(t, status.LastError)
}

func TestTriggerJob_RecordsErrorsAndPanics(t *testing.T) {
	s := NewService(arbor.NewLogger())
	require.NoError(t, s.RegisterJob("fails", "@every 1h", "", func() error { return errors.New("boom") }))
	require.NoError(t, s.RegisterJob("panics", "@every 1h", "", func() error { panic("bad state") }))

	require.NoError(t, s.TriggerJob("fails"))
	require.NoError(t, s.TriggerJob("panics"))
	assert.Error(t, s.TriggerJob("missing"))

	require.Eventually(t, func() bool {
		status, _ := s.GetJobStatus("fails")
		return status.LastError == "boom"
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		status, _ := s.GetJobStatus("panics")
		return status.LastError == "panic: bad state"
	}, time.Second, 10*time.Millisecond)
}

func TestDisableAndEnableJob(t *testing.T) {
	s := NewService(arbor.NewLogger())
	require.NoError(t, s.RegisterJob("sweep", "@every 1h", "", func() error { return nil }))
	require.NoError(t, s.Start())
	defer s.Stop()

	require.NoError(t, s.DisableJob("sweep"))
	status, err := s.GetJobStatus("sweep")
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Nil(t, status.NextRun)

	require.NoError(t, s.EnableJob("sweep"))
	status, err = s.GetJobStatus("sweep")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	require.NotNil(t, status.NextRun)
	assert.True(t, status.NextRun.After(time.Now()))

	assert.Error(t, s.DisableJob("missing"))
}
