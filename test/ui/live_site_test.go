//go:build e2e

package ui

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/siteprobe/internal/common"
)

// liveTarget returns the site under test or skips
func liveTarget(t *testing.T) string {
	t.Helper()
	if os.Getenv("SITEPROBE_E2E") == "" {
		t.Skip("set SITEPROBE_E2E=1 to run against the live site")
	}
	requireChrome(t)
	if url := os.Getenv("SITEPROBE_BASE_URL"); url != "" {
		return url
	}
	return common.NewDefaultConfig().Target.BaseURL
}

// TestLiveSite_Smoke runs the smoke tag against the configured target
func TestLiveSite_Smoke(t *testing.T) {
	cfg := newConfig(t, liveTarget(t), "smoke")
	cfg.Suite.Retries = 1
	a, ctx := newApp(t, cfg)

	result, err := a.RunSuite(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result.Outcomes)

	for _, o := range result.Outcomes {
		if o.Flaky {
			t.Logf("%s passed after %d attempts", o.Label(), o.Attempts)
		}
		assert.True(t, o.Passed(), "%s: %v", o.Label(), o.Err())
	}
}

// TestLiveSite_Navigation follows the footer links to each legal page
func TestLiveSite_Navigation(t *testing.T) {
	cfg := newConfig(t, liveTarget(t), "navigation")
	cfg.Suite.Retries = 1
	a, ctx := newApp(t, cfg)

	result, err := a.RunSuite(ctx)
	require.NoError(t, err)
	for _, o := range result.Outcomes {
		assert.True(t, o.Passed(), "%s: %v", o.Label(), o.Err())
	}
}
