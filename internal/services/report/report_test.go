package report

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/aggregator"
)

func sampleResult() *models.SuiteResult {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	desktop := models.Viewport{Name: "desktop-1366", Width: 1366, Height: 768}

	brand := models.ProbeResult{Name: "brand", Required: true, MinCount: 1, Count: 1, Matched: true, SampleValues: []string{"Welcome to Rebet"}}
	passing := aggregator.Aggregate(models.AnyOneMatches(), []models.ProbeResult{brand})

	signup := models.ProbeResult{Name: "signup", Required: true, MinCount: 1, Error: "<script>alert(1)</script>"}
	failing := aggregator.Aggregate(models.AllRequiredMatch(), []models.ProbeResult{signup})

	return &models.SuiteResult{
		ID:         "suite_test",
		Target:     "https://rebet.app",
		Driver:     "static",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Outcomes: []models.ScenarioOutcome{
			{RunID: "run_1", Scenario: "homepage", Browser: models.BrowserChromium, Viewport: desktop, State: models.StatePassed, Verdict: &passing, Attempts: 2, Flaky: true, ElapsedMs: 820},
			{RunID: "run_2", Scenario: "signup", Browser: models.BrowserChromium, Viewport: desktop, State: models.StateFailed, FailureKind: models.FailureAssertion, Verdict: &failing, Attempts: 1, ElapsedMs: 640, Degradations: []string{"load state networkidle not reached"}},
			{RunID: "run_3", Scenario: "contact", Browser: models.BrowserChromium, Viewport: desktop, State: models.StateNavigationFailed, FailureKind: models.FailureNavigation, Error: "navigation failure: connection refused", Attempts: 1},
		},
		Skipped: []string{"homepage [firefox]: driver static does not support firefox"},
	}
}

func TestJSONReporter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewJSONReporter(dir, arbor.NewLogger()).Report(context.Background(), sampleResult()))

	data, err := os.ReadFile(filepath.Join(dir, "results", "suite_test.json"))
	require.NoError(t, err)
	latest, err := os.ReadFile(filepath.Join(dir, "results", "latest.json"))
	require.NoError(t, err)
	assert.Equal(t, data, latest)

	var decoded struct {
		Outcomes []struct {
			Scenario string `json:"scenario"`
			State    string `json:"state"`
			Verdict  *struct {
				Passed     bool              `json:"passed"`
				Reasons    []string          `json:"reasons"`
				RawResults []json.RawMessage `json:"raw_results"`
			} `json:"verdict"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Outcomes, 3)
	assert.True(t, decoded.Outcomes[0].Verdict.Passed)
	assert.Len(t, decoded.Outcomes[0].Verdict.RawResults, 1)
	assert.False(t, decoded.Outcomes[1].Verdict.Passed)
	assert.Nil(t, decoded.Outcomes[2].Verdict, "navigation failures carry no verdict")
}

func TestYAMLReporter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewYAMLReporter(dir, arbor.NewLogger()).Report(context.Background(), sampleResult()))

	data, err := os.ReadFile(filepath.Join(dir, "results", "suite_test.yaml"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "suite_test", decoded["id"])
	outcomes, ok := decoded["outcomes"].([]interface{})
	require.True(t, ok)
	assert.Len(t, outcomes, 3)
}

func TestEventsReporter(t *testing.T) {
	dir := t.TempDir()
	r := NewEventsReporter(dir, arbor.NewLogger())
	require.NoError(t, r.Report(context.Background(), sampleResult()))
	require.NoError(t, r.Report(context.Background(), sampleResult()), "the stream is appended")

	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	counts := map[string]int{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		counts[event["event"].(string)]++
		assert.Equal(t, "suite_test", event["suite_id"])
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, map[string]int{"probe": 4, "scenario": 6, "suite": 2}, counts)
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(sampleResult())
	assert.Contains(t, md, "**1 passed, 2 failed, 1 flaky**, 1 skipped")
	assert.Contains(t, md, "| homepage | chromium | desktop-1366(1366x768) | passed (flaky) | 2 | 820ms |")
	assert.Contains(t, md, "### signup [chromium desktop-1366(1366x768)]")
	assert.Contains(t, md, "missing signup -> failed")
	assert.Contains(t, md, "- Degraded: load state networkidle not reached")
	assert.Contains(t, md, "- State: navigation_failed (navigation)")
	assert.Contains(t, md, "## Skipped")
	assert.NotContains(t, md, "### homepage", "passing runs are not triaged")
}

func TestHTMLReporter_Sanitizes(t *testing.T) {
	dir := t.TempDir()
	r := NewHTMLReporter(dir, arbor.NewLogger())
	require.NoError(t, r.Report(context.Background(), sampleResult()))

	data, err := os.ReadFile(filepath.Join(dir, "summary.html"))
	require.NoError(t, err)
	page := string(data)
	assert.Contains(t, page, "<title>SiteProbe suite_test (failed)</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<h3>")
	assert.NotContains(t, page, "<script>alert")
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsoleReporter(&buf).Report(context.Background(), sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "FLAKY homepage [chromium desktop-1366(1366x768)] 820ms attempts=2")
	assert.Contains(t, out, "FAIL  signup")
	assert.Contains(t, out, `scenario "contact" failed (navigation)`)
	assert.Contains(t, out, "SKIP  homepage [firefox]")
	assert.True(t, strings.HasSuffix(out, "1 passed, 2 failed, 1 flaky, 1 skipped\n"))
}

func TestNewReporters(t *testing.T) {
	reporters, err := NewReporters([]string{"json", "yaml", "events", "markdown", "html", "console"}, t.TempDir(), &bytes.Buffer{}, arbor.NewLogger())
	require.NoError(t, err)
	assert.Len(t, reporters, 6)

	_, err = NewReporters([]string{"junit"}, t.TempDir(), nil, arbor.NewLogger())
	assert.Error(t, err)
}
