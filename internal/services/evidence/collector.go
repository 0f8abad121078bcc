// -----------------------------------------------------------------------
// Evidence Collector - passive console/network capture, screenshots and
// markdown page snapshots attached to scenario outcomes
// -----------------------------------------------------------------------

package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// ScreenshotMode controls when screenshots are taken
type ScreenshotMode string

const (
	ScreenshotsOff       ScreenshotMode = "off"
	ScreenshotsOnFailure ScreenshotMode = "on-failure"
	ScreenshotsAlways    ScreenshotMode = "always"
)

// CollectorConfig configures evidence capture
type CollectorConfig struct {
	Screenshots       ScreenshotMode
	FullPage          bool
	MarkdownSnapshots bool
	OutputDir         string
}

// Evidence is what Capture wrote for one run
type Evidence struct {
	Screenshots  []string
	Snapshot     string
	Degradations []string
}

// Collector records side evidence. It never influences a verdict directly,
// threshold probes read the tallies it leaves in the ScenarioContext.
type Collector struct {
	config CollectorConfig
	logger arbor.ILogger
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NewCollector creates a collector
func NewCollector(config CollectorConfig, logger arbor.ILogger) *Collector {
	if config.Screenshots == "" {
		config.Screenshots = ScreenshotsOnFailure
	}
	return &Collector{config: config, logger: logger}
}

// Attach subscribes to page events for the lifetime of the page.
// Call it before navigation so document-level errors are counted.
func (c *Collector) Attach(page interfaces.Page, sctx *models.ScenarioContext) {
	page.OnConsoleMessage(func(entry models.ConsoleEntry) {
		sctx.RecordConsole(entry)
		if entry.IsError() {
			c.logger.Debug().
				Str("scenario", sctx.Scenario).
				Str("text", entry.Text).
				Msg("Console error observed")
		}
	})
	page.OnResponse(func(entry models.NetworkEntry) {
		sctx.RecordNetwork(entry)
		if entry.IsError() {
			c.logger.Debug().
				Str("scenario", sctx.Scenario).
				Str("url", entry.URL).
				Int("status", entry.Status).
				Str("error", entry.ErrorText).
				Msg("Network error observed")
		}
	})
}

// Tally returns the console and network error counts of a run
func Tally(sctx *models.ScenarioContext) (consoleErrors, networkErrors int) {
	return len(sctx.ConsoleErrors()), len(sctx.NetworkErrors())
}

// FileStem is the artifact base name of one run
func FileStem(sctx *models.ScenarioContext) string {
	viewport := sctx.Viewport.Name
	if viewport == "" {
		viewport = fmt.Sprintf("%dx%d", sctx.Viewport.Width, sctx.Viewport.Height)
	}
	stem := fmt.Sprintf("%s_%s_%s_attempt%d", sctx.Scenario, sctx.Browser, viewport, sctx.Attempt)
	return strings.Trim(unsafeName.ReplaceAllString(stem, "-"), "-")
}

// Capture writes the screenshot and snapshot artifacts configured for a run
// that ended with passed. Capture failures are returned as degradations.
func (c *Collector) Capture(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext, passed bool) Evidence {
	var ev Evidence
	if page == nil || c.config.OutputDir == "" {
		return ev
	}
	stem := FileStem(sctx)

	if c.wantScreenshot(passed) {
		path, err := c.screenshot(ctx, page, stem)
		if err != nil {
			ev.Degradations = append(ev.Degradations, fmt.Sprintf("screenshot unavailable: %v", err))
		} else {
			ev.Screenshots = append(ev.Screenshots, path)
		}
	}

	if c.config.MarkdownSnapshots && !passed {
		path, err := c.snapshot(ctx, page, sctx, stem)
		if err != nil {
			ev.Degradations = append(ev.Degradations, fmt.Sprintf("markdown snapshot unavailable: %v", err))
		} else {
			ev.Snapshot = path
		}
	}

	for _, d := range ev.Degradations {
		c.logger.Warn().Str("scenario", sctx.Scenario).Str("run_id", sctx.RunID).Msg(d)
	}
	return ev
}

func (c *Collector) wantScreenshot(passed bool) bool {
	switch c.config.Screenshots {
	case ScreenshotsAlways:
		return true
	case ScreenshotsOnFailure:
		return !passed
	default:
		return false
	}
}

func (c *Collector) screenshot(ctx context.Context, page interfaces.Page, stem string) (string, error) {
	dir := filepath.Join(c.config.OutputDir, "screenshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(dir, stem+".png")
	if err := page.Screenshot(ctx, path, c.config.FullPage); err != nil {
		if errors.Is(err, interfaces.ErrUnsupported) {
			return "", interfaces.ErrUnsupported
		}
		return "", err
	}
	return path, nil
}

func (c *Collector) snapshot(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext, stem string) (string, error) {
	content, err := page.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("page has no content")
	}

	baseURL := page.URL()
	if baseURL == "" {
		baseURL = sctx.FinalURL()
	}
	converter := md.NewConverter(baseURL, true, nil)
	markdown, err := converter.ConvertString(content)
	if err != nil {
		return "", fmt.Errorf("failed to convert page to markdown: %w", err)
	}

	dir := filepath.Join(c.config.OutputDir, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	path := filepath.Join(dir, stem+".md")

	var b strings.Builder
	fmt.Fprintf(&b, "<!-- %s %s %s -->\n\n", sctx.Scenario, baseURL, sctx.RunID)
	b.WriteString(markdown)
	b.WriteString("\n")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	c.logger.Debug().
		Str("path", path).
		Int("markdown_length", len(markdown)).
		Msg("Markdown snapshot written")
	return path, nil
}
