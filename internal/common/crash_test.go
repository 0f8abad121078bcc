package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	config := NewDefaultConfig()
	config.Report.OutputDir = t.TempDir()
	previous := CrashLogDir
	t.Cleanup(func() { CrashLogDir = previous; crashTarget = "" })

	InstallCrashHandler(config)
	assert.Equal(t, filepath.Join(config.Report.OutputDir, "logs"), CrashLogDir)

	path := WriteCrashFile("boom", GetStackTrace())
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "=== SITEPROBE CRASH REPORT ===")
	assert.Contains(t, report, "Target: https://rebet.app")
	assert.Contains(t, report, "boom")
	assert.Contains(t, report, "=== ALL GOROUTINES ===")
}
