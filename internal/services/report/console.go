package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/siteprobe/internal/models"
)

// ConsoleReporter prints a triage summary: one line per run, failure
// reasons indented below
type ConsoleReporter struct {
	w io.Writer
}

// NewConsoleReporter writes to w
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (r *ConsoleReporter) Name() string { return FormatConsole }

func (r *ConsoleReporter) Report(_ context.Context, result *models.SuiteResult) error {
	var b strings.Builder
	passed, failed, flaky := result.Counts()

	fmt.Fprintf(&b, "\nSuite %s against %s (%s)\n", result.ID, result.Target, result.Driver)
	for i := range result.Outcomes {
		o := &result.Outcomes[i]
		mark := "PASS"
		switch {
		case o.Passed() && o.Flaky:
			mark = "FLAKY"
		case !o.Passed():
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "  %-5s %s %dms", mark, o.Label(), o.ElapsedMs)
		if o.Attempts > 1 {
			fmt.Fprintf(&b, " attempts=%d", o.Attempts)
		}
		b.WriteString("\n")

		if o.Passed() {
			continue
		}
		if err := o.Err(); err != nil {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(&b, "        %s\n", strings.TrimSpace(line))
			}
		}
		for _, d := range o.Degradations {
			fmt.Fprintf(&b, "        degraded: %s\n", d)
		}
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(&b, "  SKIP  %s\n", s)
	}
	fmt.Fprintf(&b, "%d passed, %d failed, %d flaky, %d skipped\n", passed, failed, flaky, len(result.Skipped))

	if _, err := io.WriteString(r.w, b.String()); err != nil {
		return fmt.Errorf("failed to write console report: %w", err)
	}
	return nil
}
