package report

import (
	"context"
	"fmt"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/siteprobe/internal/models"
)

// JSONReporter writes the full suite result as JSON
type JSONReporter struct {
	dir    string
	logger arbor.ILogger
}

// NewJSONReporter writes to <outputDir>/results
func NewJSONReporter(outputDir string, logger arbor.ILogger) *JSONReporter {
	return &JSONReporter{dir: filepath.Join(outputDir, "results"), logger: logger}
}

func (r *JSONReporter) Name() string { return FormatJSON }

func (r *JSONReporter) Report(_ context.Context, result *models.SuiteResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal suite result: %w", err)
	}
	path, err := writeArtifact(r.dir, result.ID+".json", "latest.json", data)
	if err != nil {
		return err
	}
	r.logger.Info().Str("path", path).Msg("JSON report written")
	return nil
}

// YAMLReporter writes the full suite result as YAML
type YAMLReporter struct {
	dir    string
	logger arbor.ILogger
}

// NewYAMLReporter writes to <outputDir>/results
func NewYAMLReporter(outputDir string, logger arbor.ILogger) *YAMLReporter {
	return &YAMLReporter{dir: filepath.Join(outputDir, "results"), logger: logger}
}

func (r *YAMLReporter) Name() string { return FormatYAML }

func (r *YAMLReporter) Report(_ context.Context, result *models.SuiteResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal suite result: %w", err)
	}
	path, err := writeArtifact(r.dir, result.ID+".yaml", "latest.yaml", data)
	if err != nil {
		return err
	}
	r.logger.Info().Str("path", path).Msg("YAML report written")
	return nil
}
