package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_Validates(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, "badger", config.Storage.Type)
	assert.Equal(t, 256, config.Session.OutboxSize)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000

[quota]
daily_limit = 10
`), 0o644))
	require.NoError(t, os.WriteFile(local, []byte(`
[quota]
daily_limit = 3

[session]
idle_timeout = "2m"
`), 0o644))

	config, err := LoadFromFiles(base, local)
	require.NoError(t, err)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, 3, config.Quota.DailyLimit)
	assert.Equal(t, 2*time.Minute, ParseDurationOr(config.Session.IdleTimeout, 0))
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobpilot.toml")
	require.NoError(t, os.WriteFile(path, []byte("[quota]\ndaily_limit = 10\n"), 0o644))
	t.Setenv("JOBPILOT_QUOTA_DAILY_LIMIT", "7")
	t.Setenv("JOBPILOT_SERVER_HOST", "0.0.0.0")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 7, config.Quota.DailyLimit)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	ApplyFlagOverrides(config, 9100, "")
	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestValidate_Rejections(t *testing.T) {
	config := NewDefaultConfig()
	config.Session.IdleTimeout = "soon"
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Storage.Type = "postgres"
	assert.Error(t, config.Validate())
	config.Storage.Postgres.DSN = "postgres://localhost/jobpilot"
	assert.NoError(t, config.Validate())

	config = NewDefaultConfig()
	config.Session.MaxReloginAttempts = 2
	assert.Error(t, config.Validate())
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, time.Second, ParseDurationOr("", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("bad", time.Second))
	assert.Equal(t, 5*time.Millisecond, ParseDurationOr("5ms", time.Second))
}

func TestLoadFromFiles_SampleDeployment(t *testing.T) {
	config, err := LoadFromFiles(filepath.Join("..", "..", "deployments", "local", "jobpilot.toml"))
	require.NoError(t, err)
	require.NoError(t, config.Validate())
	assert.Equal(t, 8086, config.Server.Port)
	assert.Equal(t, 50, config.Quota.DailyLimit)
	assert.Equal(t, 12, config.Session.StepLimit)
}
