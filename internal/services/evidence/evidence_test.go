package evidence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/browser"
	"github.com/ternarybob/siteprobe/internal/services/locator"
	"github.com/ternarybob/siteprobe/internal/services/probe"
)

// eventPage lets a test fire console and network events at subscribers
type eventPage struct {
	interfaces.Page
	console  []func(models.ConsoleEntry)
	response []func(models.NetworkEntry)
	shots    []string
}

func (p *eventPage) OnConsoleMessage(fn func(models.ConsoleEntry)) { p.console = append(p.console, fn) }
func (p *eventPage) OnResponse(fn func(models.NetworkEntry))       { p.response = append(p.response, fn) }
func (p *eventPage) URL() string                                   { return "https://rebet.app/" }

func (p *eventPage) Screenshot(_ context.Context, path string, _ bool) error {
	p.shots = append(p.shots, path)
	return os.WriteFile(path, []byte("png"), 0644)
}

func (p *eventPage) Content(context.Context) (string, error) {
	return `<html><body><h1>Rebet</h1><p>Bet with friends</p></body></html>`, nil
}

func (p *eventPage) emitConsole(level, text string) {
	for _, fn := range p.console {
		fn(models.ConsoleEntry{Level: level, Text: text, At: time.Now()})
	}
}

func (p *eventPage) emitResponse(url string, status int) {
	for _, fn := range p.response {
		fn(models.NetworkEntry{URL: url, Status: status, At: time.Now()})
	}
}

func newContext(scenario string) *models.ScenarioContext {
	policy := models.Policy{
		ActionTimeout: 5 * time.Second,
		Thresholds: models.Thresholds{
			MaxConsoleErrors:      2,
			MaxNetworkErrors:      2,
			MinSecureRequestRatio: 0.9,
		},
	}
	return models.NewScenarioContext("run_1", scenario, "https://rebet.app/", models.BrowserChromium,
		models.Viewport{Name: "desktop-1366", Width: 1366, Height: 768}, false, policy)
}

func evaluate(t *testing.T, page interfaces.Page, sctx *models.ScenarioContext, spec probe.Spec) models.ProbeResult {
	t.Helper()
	logger := arbor.NewLogger()
	return probe.NewEvaluator(locator.NewResolver(logger), logger, 2).Evaluate(context.Background(), page, sctx, spec)
}

func TestCollector_AttachRecordsEvents(t *testing.T) {
	page := &eventPage{}
	sctx := newContext("homepage")
	NewCollector(CollectorConfig{}, arbor.NewLogger()).Attach(page, sctx)

	page.emitConsole("error", "Uncaught TypeError")
	page.emitConsole("log", "hello")
	page.emitResponse("https://rebet.app/missing.js", 404)
	page.emitResponse("https://rebet.app/", 200)

	consoleErrors, networkErrors := Tally(sctx)
	assert.Equal(t, 1, consoleErrors)
	assert.Equal(t, 1, networkErrors)
	assert.Len(t, sctx.Console(), 2)
	assert.Len(t, sctx.Network(), 2)
}

func TestThresholds_ErrorCounts(t *testing.T) {
	page := &eventPage{}
	sctx := newContext("errors")
	NewCollector(CollectorConfig{}, arbor.NewLogger()).Attach(page, sctx)

	r := evaluate(t, page, sctx, ConsoleErrorsWithinPolicy("console"))
	assert.True(t, r.Matched)
	assert.True(t, ConsoleErrorsWithinPolicy("console").Deferred)

	page.emitConsole("error", "first")
	page.emitConsole("error", "second")
	r = evaluate(t, page, sctx, ConsoleErrorsWithinPolicy("console"))
	assert.False(t, r.Matched)
	assert.Equal(t, "2 console errors, limit 2", r.SampleValues[0])
	assert.True(t, evaluate(t, page, sctx, ConsoleErrorsBelow("console", 10)).Matched)

	page.emitResponse("https://rebet.app/a", 500)
	r = evaluate(t, page, sctx, NetworkErrorsWithinPolicy("network"))
	assert.True(t, r.Matched)
	assert.Contains(t, r.SampleValues[1], "500: https://rebet.app/a")
	assert.False(t, evaluate(t, page, sctx, NetworkErrorsBelow("network", 1)).Matched)
}

func TestThresholds_MixedContent(t *testing.T) {
	page := &eventPage{}
	sctx := newContext("security")
	NewCollector(CollectorConfig{}, arbor.NewLogger()).Attach(page, sctx)

	page.emitResponse("https://rebet.app/app.js", 200)
	assert.True(t, evaluate(t, page, sctx, NoMixedContent("mixed")).Matched)

	page.emitResponse("http://cdn.example.com/pixel.gif", 200)
	r := evaluate(t, page, sctx, NoMixedContent("mixed"))
	assert.False(t, r.Matched)
	assert.Equal(t, []string{"insecure request: http://cdn.example.com/pixel.gif"}, r.SampleValues)

	t.Run("console warning", func(t *testing.T) {
		page := &eventPage{}
		sctx := newContext("security")
		NewCollector(CollectorConfig{}, arbor.NewLogger()).Attach(page, sctx)
		page.emitConsole("warning", "Mixed Content: the page was loaded over HTTPS")
		assert.False(t, evaluate(t, page, sctx, NoMixedContent("mixed")).Matched)
	})
}

func TestThresholds_SecureRequestRatio(t *testing.T) {
	assert.True(t, IsAPIRequest("https://api.rebet.app/v1/games"))
	assert.True(t, IsAPIRequest("https://rebet.app/data/feed.json"))
	assert.False(t, IsAPIRequest("https://rebet.app/logo.png"))

	page := &eventPage{}
	sctx := newContext("api")
	NewCollector(CollectorConfig{}, arbor.NewLogger()).Attach(page, sctx)

	r := evaluate(t, page, sctx, SecureRequestRatioWithinPolicy("api-https"))
	assert.True(t, r.Matched)
	assert.Equal(t, []string{"no api requests observed"}, r.SampleValues)

	page.emitResponse("https://rebet.app/api/a", 200)
	page.emitResponse("https://rebet.app/api/a", 200)
	page.emitResponse("http://rebet.app/api/b", 200)
	r = evaluate(t, page, sctx, SecureRequestRatioWithinPolicy("api-https"))
	assert.False(t, r.Matched)
	assert.Equal(t, "1/2 api requests over https", r.SampleValues[0])
	assert.True(t, evaluate(t, page, sctx, SecureRequestRatioAbove("api-https", 0.4)).Matched)
}

func TestCollector_Capture(t *testing.T) {
	dir := t.TempDir()
	sctx := newContext("home page/title")

	t.Run("on failure writes screenshot and snapshot", func(t *testing.T) {
		page := &eventPage{}
		c := NewCollector(CollectorConfig{Screenshots: ScreenshotsOnFailure, MarkdownSnapshots: true, OutputDir: dir}, arbor.NewLogger())

		ev := c.Capture(context.Background(), page, sctx, false)
		require.Len(t, ev.Screenshots, 1)
		assert.Empty(t, ev.Degradations)
		assert.Equal(t, filepath.Join(dir, "screenshots", "home-page-title_chromium_desktop-1366_attempt0.png"), ev.Screenshots[0])

		data, err := os.ReadFile(ev.Snapshot)
		require.NoError(t, err)
		assert.Contains(t, string(data), "# Rebet")
		assert.Contains(t, string(data), "Bet with friends")
	})

	t.Run("on failure skips passing runs", func(t *testing.T) {
		page := &eventPage{}
		c := NewCollector(CollectorConfig{Screenshots: ScreenshotsOnFailure, MarkdownSnapshots: true, OutputDir: dir}, arbor.NewLogger())
		ev := c.Capture(context.Background(), page, sctx, true)
		assert.Empty(t, ev.Screenshots)
		assert.Empty(t, ev.Snapshot)
		assert.Empty(t, page.shots)
	})

	t.Run("always", func(t *testing.T) {
		page := &eventPage{}
		c := NewCollector(CollectorConfig{Screenshots: ScreenshotsAlways, OutputDir: dir}, arbor.NewLogger())
		ev := c.Capture(context.Background(), page, sctx, true)
		assert.Len(t, ev.Screenshots, 1)
	})

	t.Run("unsupported screenshot degrades", func(t *testing.T) {
		page := browser.NewStaticPage(arbor.NewLogger())
		require.NoError(t, page.SetContent("https://rebet.app/", `<html><body><h2>FAQ</h2></body></html>`))
		c := NewCollector(CollectorConfig{Screenshots: ScreenshotsAlways, MarkdownSnapshots: true, OutputDir: dir}, arbor.NewLogger())

		ev := c.Capture(context.Background(), page, sctx, false)
		assert.Empty(t, ev.Screenshots)
		require.Len(t, ev.Degradations, 1)
		assert.Contains(t, ev.Degradations[0], "screenshot unavailable")
		assert.NotEmpty(t, ev.Snapshot)
	})
}
