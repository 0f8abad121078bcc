package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/siteprobe/internal/models"
)

func TestBuildPolicyTable_Defaults(t *testing.T) {
	table, err := BuildPolicyTable(NewDefaultPolicyConfig())
	require.NoError(t, err)
	assert.Len(t, table, 6)

	chromium, ok := table.Lookup(models.BrowserChromium, false)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, chromium.NavigationTimeout)
	assert.Equal(t, 45*time.Second, chromium.ActionTimeout)
	assert.Equal(t, 5, chromium.Thresholds.MaxConsoleErrors)

	firefox, _ := table.Lookup(models.BrowserFirefox, false)
	assert.Equal(t, 90*time.Second, firefox.NavigationTimeout)
	assert.Equal(t, 60*time.Second, firefox.ActionTimeout)

	firefoxCI, _ := table.Lookup(models.BrowserFirefox, true)
	assert.Equal(t, 90*time.Second, firefoxCI.NavigationTimeout, "browser row still applies in CI")
	assert.Equal(t, 10, firefoxCI.Thresholds.MaxConsoleErrors, "CI row raises thresholds")
	assert.Equal(t, 12*time.Second, firefoxCI.Thresholds.MaxLoadTime)

	webkitCI, _ := table.Lookup(models.BrowserWebKit, true)
	assert.Greater(t, webkitCI.Thresholds.MaxNetworkErrors, chromium.Thresholds.MaxNetworkErrors)
}

func TestPolicyConfig_FromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[policy.default]
navigation_timeout = "30s"

[[policy.entries]]
browser = "webkit"
ci = true
action_timeout = "20s"
max_console_errors = 15
`), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	table, err := BuildPolicyTable(config.Policy)
	require.NoError(t, err)

	webkitCI, _ := table.Lookup(models.BrowserWebKit, true)
	assert.Equal(t, 30*time.Second, webkitCI.NavigationTimeout)
	assert.Equal(t, 20*time.Second, webkitCI.ActionTimeout)
	assert.Equal(t, 15, webkitCI.Thresholds.MaxConsoleErrors)

	webkit, _ := table.Lookup(models.BrowserWebKit, false)
	assert.Equal(t, 45*time.Second, webkit.ActionTimeout, "ci-only entry must not leak into local runs")
	assert.Equal(t, 5, webkit.Thresholds.MaxConsoleErrors)
}

func TestPolicyConfig_ResolveErrors(t *testing.T) {
	cfg := NewDefaultPolicyConfig()
	cfg.Entries = append(cfg.Entries, PolicyEntry{Browser: "chromium", NavigationTimeout: "soon"})
	_, err := cfg.Resolve(models.BrowserChromium, false)
	assert.Error(t, err)

	_, err = cfg.Resolve(models.BrowserFirefox, false)
	assert.NoError(t, err, "entry for another browser is not applied")

	short := NewDefaultPolicyConfig()
	short.Default.ScenarioTimeout = "10s"
	_, err = short.Resolve(models.BrowserChromium, false)
	assert.Error(t, err)
}
