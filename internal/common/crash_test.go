package common

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	prev := CrashLogDir
	t.Cleanup(func() { CrashLogDir = prev })

	InstallCrashHandler(t.TempDir())
	path := WriteCrashFile("boom", GetStackTrace())
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(path, CrashLogDir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "JOBPILOT CRASH REPORT")
	assert.Contains(t, report, "boom")
	assert.Contains(t, report, "ALL GOROUTINES")
}
