package report

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/siteprobe/internal/models"
)

// RenderMarkdown renders the triage summary of a suite result
func RenderMarkdown(result *models.SuiteResult) string {
	var b strings.Builder
	passed, failed, flaky := result.Counts()

	fmt.Fprintf(&b, "# SiteProbe suite %s\n\n", result.ID)
	fmt.Fprintf(&b, "- Target: %s\n", result.Target)
	fmt.Fprintf(&b, "- Driver: %s\n", result.Driver)
	fmt.Fprintf(&b, "- CI mode: %t\n", result.CIMode)
	fmt.Fprintf(&b, "- Started: %s\n", result.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Duration: %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "- Result: **%d passed, %d failed, %d flaky**", passed, failed, flaky)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(result.Skipped))
	}
	b.WriteString("\n\n")

	if len(result.Outcomes) > 0 {
		b.WriteString("| Scenario | Browser | Viewport | State | Attempts | Elapsed |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for i := range result.Outcomes {
			o := &result.Outcomes[i]
			state := string(o.State)
			if o.Flaky {
				state += " (flaky)"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %dms |\n",
				cell(o.Scenario), o.Browser, cell(o.Viewport.String()), state, o.Attempts, o.ElapsedMs)
		}
		b.WriteString("\n")
	}

	if failed > 0 {
		b.WriteString("## Failures\n\n")
		for i := range result.Outcomes {
			o := &result.Outcomes[i]
			if o.Passed() {
				continue
			}
			writeFailure(&b, o)
		}
	}

	if len(result.Skipped) > 0 {
		b.WriteString("## Skipped\n\n")
		for _, s := range result.Skipped {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeFailure(b *strings.Builder, o *models.ScenarioOutcome) {
	fmt.Fprintf(b, "### %s\n\n", o.Label())
	fmt.Fprintf(b, "- URL: %s\n", o.URL)
	fmt.Fprintf(b, "- State: %s", o.State)
	if o.FailureKind != models.FailureNone {
		fmt.Fprintf(b, " (%s)", o.FailureKind)
	}
	b.WriteString("\n")
	if o.Error != "" {
		fmt.Fprintf(b, "- Error: `%s`\n", strings.ReplaceAll(o.Error, "`", "'"))
	}
	fmt.Fprintf(b, "- Console errors: %d, network errors: %d\n", o.ConsoleErrors, o.NetworkErrors)
	if o.Verdict != nil {
		b.WriteString("- Reasons:\n")
		for _, r := range o.Verdict.Reasons {
			fmt.Fprintf(b, "  - %s\n", r)
		}
	}
	for _, d := range o.Degradations {
		fmt.Fprintf(b, "- Degraded: %s\n", d)
	}
	for _, s := range o.Screenshots {
		fmt.Fprintf(b, "- Screenshot: %s\n", s)
	}
	if o.Snapshot != "" {
		fmt.Fprintf(b, "- Snapshot: %s\n", o.Snapshot)
	}
	b.WriteString("\n")
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// MarkdownReporter writes summary.md
type MarkdownReporter struct {
	dir    string
	logger arbor.ILogger
}

// NewMarkdownReporter writes to <outputDir>/summary.md
func NewMarkdownReporter(outputDir string, logger arbor.ILogger) *MarkdownReporter {
	return &MarkdownReporter{dir: outputDir, logger: logger}
}

func (r *MarkdownReporter) Name() string { return FormatMarkdown }

func (r *MarkdownReporter) Report(_ context.Context, result *models.SuiteResult) error {
	path, err := writeArtifact(r.dir, "summary.md", "", []byte(RenderMarkdown(result)))
	if err != nil {
		return err
	}
	r.logger.Info().Str("path", path).Msg("Markdown summary written")
	return nil
}

// HTMLReporter renders the markdown summary to sanitized HTML
type HTMLReporter struct {
	dir      string
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	logger   arbor.ILogger
}

// NewHTMLReporter writes to <outputDir>/summary.html
func NewHTMLReporter(outputDir string, logger arbor.ILogger) *HTMLReporter {
	return &HTMLReporter{
		dir: outputDir,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		policy: bluemonday.UGCPolicy(),
		logger: logger,
	}
}

func (r *HTMLReporter) Name() string { return FormatHTML }

// Render converts the summary of result to a standalone HTML page
func (r *HTMLReporter) Render(result *models.SuiteResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(RenderMarkdown(result)), &buf); err != nil {
		return nil, fmt.Errorf("failed to render summary: %w", err)
	}
	body := r.policy.SanitizeBytes(buf.Bytes())

	passed := "passed"
	if !result.Passed() {
		passed = "failed"
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&page, "<title>SiteProbe %s (%s)</title>", result.ID, passed)
	page.WriteString("<style>body{font-family:sans-serif;max-width:1100px;margin:2em auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}</style>")
	page.WriteString("</head><body>\n")
	page.Write(body)
	page.WriteString("\n</body></html>\n")
	return page.Bytes(), nil
}

func (r *HTMLReporter) Report(_ context.Context, result *models.SuiteResult) error {
	data, err := r.Render(result)
	if err != nil {
		return err
	}
	path, err := writeArtifact(r.dir, "summary.html", "", data)
	if err != nil {
		return err
	}
	r.logger.Info().Str("path", filepath.Clean(path)).Msg("HTML summary written")
	return nil
}
