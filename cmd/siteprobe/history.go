package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/siteprobe/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show pass rates and recent runs from run history",
	RunE:  runHistory,
}

var (
	historyScenario string
	historyLimit    int
	historyDays     int
)

func init() {
	historyCmd.Flags().StringVar(&historyScenario, "scenario", "", "Show recent runs of one scenario")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	historyCmd.Flags().IntVar(&historyDays, "days", 7, "Stats window in days")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if !config.Storage.Enabled {
		return fmt.Errorf("run history is disabled (storage.enabled = false)")
	}
	manager, err := storage.NewStorageManager(ctx, logger, config)
	if err != nil {
		return err
	}
	defer manager.Close()
	history := manager.RunHistory()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	if historyScenario != "" {
		runs, err := history.ListRuns(ctx, historyScenario, historyLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "WHEN\tBROWSER\tVIEWPORT\tRESULT\tATTEMPTS\tELAPSED\tREASONS")
		for _, r := range runs {
			verdict := "pass"
			switch {
			case !r.Passed:
				verdict = "FAIL " + string(r.FailureKind)
			case r.Flaky:
				verdict = "flaky"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				r.Browser, r.Viewport, verdict, r.Attempts,
				time.Duration(r.ElapsedMs)*time.Millisecond,
				strings.Join(r.Reasons, "; "))
		}
		return w.Flush()
	}

	since := time.Now().AddDate(0, 0, -historyDays)
	stats, err := history.Stats(ctx, since)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "SCENARIO\tRUNS\tPASS RATE\tFAILED\tFLAKY\tLAST RUN\tLAST")
	for _, s := range stats {
		last := "pass"
		if !s.LastPass {
			last = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%d\t%.0f%%\t%d\t%d\t%s\t%s\n",
			s.Scenario, s.Runs, s.PassRate()*100, s.Failed, s.Flaky,
			s.LastRunAt.Local().Format("2006-01-02 15:04"), last)
	}
	return w.Flush()
}
