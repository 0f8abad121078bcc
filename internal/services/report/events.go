package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/models"
)

// EventsReporter appends one JSON line per probe, per run and per suite to
// <outputDir>/events.jsonl, for log shippers and dashboards
type EventsReporter struct {
	path   string
	logger arbor.ILogger
}

// NewEventsReporter creates the JSONL event stream reporter
func NewEventsReporter(outputDir string, logger arbor.ILogger) *EventsReporter {
	return &EventsReporter{path: filepath.Join(outputDir, "events.jsonl"), logger: logger}
}

func (r *EventsReporter) Name() string { return FormatEvents }

func (r *EventsReporter) Report(_ context.Context, result *models.SuiteResult) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create events directory: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	defer f.Close()

	events := plog.Logger{
		Level:      plog.InfoLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Writer:     &plog.IOWriter{Writer: f},
	}

	for i := range result.Outcomes {
		o := &result.Outcomes[i]
		if o.Verdict != nil {
			for _, p := range o.Verdict.RawResults {
				events.Info().
					Str("event", "probe").
					Str("suite_id", result.ID).
					Str("run_id", o.RunID).
					Str("scenario", o.Scenario).
					Str("probe", p.Name).
					Bool("matched", p.Matched).
					Bool("required", p.Required).
					Int("count", p.Count).
					Int("min_count", p.MinCount).
					Int("chain_index", p.ChainIndex).
					Int64("elapsed_ms", p.ElapsedMs).
					Str("error", p.Error).
					Msg("probe evaluated")
			}
		}

		entry := events.Info()
		if !o.Passed() {
			entry = events.Warn()
		}
		entry.
			Str("event", "scenario").
			Str("suite_id", result.ID).
			Str("run_id", o.RunID).
			Str("scenario", o.Scenario).
			Str("browser", string(o.Browser)).
			Str("viewport", o.Viewport.String()).
			Str("state", string(o.State)).
			Str("failure_kind", string(o.FailureKind)).
			Bool("flaky", o.Flaky).
			Int("attempts", o.Attempts).
			Int("console_errors", o.ConsoleErrors).
			Int("network_errors", o.NetworkErrors).
			Strs("degradations", o.Degradations).
			Int64("elapsed_ms", o.ElapsedMs).
			Msg("scenario finished")
	}

	passed, failed, flaky := result.Counts()
	events.Info().
		Str("event", "suite").
		Str("suite_id", result.ID).
		Str("target", result.Target).
		Str("driver", result.Driver).
		Bool("ci_mode", result.CIMode).
		Int("passed", passed).
		Int("failed", failed).
		Int("flaky", flaky).
		Int("skipped", len(result.Skipped)).
		Int64("elapsed_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds()).
		Msg("suite finished")

	r.logger.Info().Str("path", r.path).Msg("Event stream appended")
	return nil
}
