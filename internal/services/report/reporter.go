// -----------------------------------------------------------------------
// Reporters - suite result artifacts (json, yaml, events, markdown, html,
// console triage)
// -----------------------------------------------------------------------

package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
)

// Format names accepted in report.formats
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatEvents   = "events"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatConsole  = "console"
)

// NewReporters builds the reporters for formats, writing under outputDir.
// Console output goes to console, os.Stdout when nil.
func NewReporters(formats []string, outputDir string, console io.Writer, logger arbor.ILogger) ([]interfaces.Reporter, error) {
	if console == nil {
		console = os.Stdout
	}
	reporters := make([]interfaces.Reporter, 0, len(formats))
	for _, f := range formats {
		switch f {
		case FormatJSON:
			reporters = append(reporters, NewJSONReporter(outputDir, logger))
		case FormatYAML:
			reporters = append(reporters, NewYAMLReporter(outputDir, logger))
		case FormatEvents:
			reporters = append(reporters, NewEventsReporter(outputDir, logger))
		case FormatMarkdown:
			reporters = append(reporters, NewMarkdownReporter(outputDir, logger))
		case FormatHTML:
			reporters = append(reporters, NewHTMLReporter(outputDir, logger))
		case FormatConsole:
			reporters = append(reporters, NewConsoleReporter(console))
		default:
			return nil, fmt.Errorf("unknown report format %q", f)
		}
	}
	return reporters, nil
}

// writeArtifact writes data to dir/name and a latest copy next to it
func writeArtifact(dir, name, latest string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if latest != "" {
		if err := os.WriteFile(filepath.Join(dir, latest), data, 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", latest, err)
		}
	}
	return path, nil
}
