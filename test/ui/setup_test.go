//go:build e2e

// -----------------------------------------------------------------------
// Browser end-to-end tests
// Run with: go test -tags e2e ./test/ui/...
// Live-site tests need SITEPROBE_E2E=1 and reach the configured target.
// -----------------------------------------------------------------------

package ui

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/app"
	"github.com/ternarybob/siteprobe/internal/common"
)

// requireChrome skips when no Chrome or Chromium binary is on PATH
func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("chrome not found on PATH")
}

// newConfig returns a chromedp configuration writing under a temp dir
func newConfig(t *testing.T, baseURL string, filter ...string) *common.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := common.NewDefaultConfig()
	cfg.Target.BaseURL = baseURL
	cfg.Browser.Driver = "chromedp"
	cfg.Browser.NoSandbox = os.Getenv("CI") != ""
	cfg.Browser.PoolSize = 1
	cfg.Suite.Workers = 2
	cfg.Suite.Filter = filter
	cfg.Report.OutputDir = filepath.Join(dir, "results")
	cfg.Report.Formats = []string{"json", "markdown"}
	cfg.Storage.Path = filepath.Join(dir, "history")
	cfg.Logging.Output = []string{"stdout"}
	require.NoError(t, cfg.Validate())
	return cfg
}

// newApp wires the application and closes it with the test
func newApp(t *testing.T, cfg *common.Config) (*app.App, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	t.Cleanup(cancel)

	a, err := app.New(ctx, cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, ctx
}
