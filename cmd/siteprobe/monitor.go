package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/siteprobe/internal/app"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the suite on a cron schedule until interrupted",
	Long:  `Runs the selected scenarios on monitor.schedule. A tick that arrives while a run is still going is skipped.`,
	RunE:  runMonitor,
}

var (
	monitorSchedule string
	monitorNow      bool
)

func init() {
	monitorCmd.Flags().StringVar(&monitorSchedule, "schedule", "", "Cron expression, seconds optional (overrides monitor.schedule)")
	monitorCmd.Flags().BoolVar(&monitorNow, "now", false, "Run once immediately before waiting for the schedule")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	// Fail on a bad filter before the first tick
	if _, err := application.Selected(); err != nil {
		return err
	}

	schedule := config.Monitor.Schedule
	if monitorSchedule != "" {
		schedule = monitorSchedule
	}

	if err := application.SchedulerService.Start(schedule); err != nil {
		return err
	}

	// Ticks that land during the initial run are skipped like any overlap
	if monitorNow {
		if err := application.SchedulerService.TriggerAsync(ctx); err != nil {
			logger.Warn().Err(err).Msg("Initial run not started")
		}
	}

	status := application.SchedulerService.Status()
	nextRun := "unknown"
	if status.NextRun != nil {
		nextRun = status.NextRun.Format("2006-01-02 15:04:05")
	}
	logger.Info().
		Str("schedule", status.Schedule).
		Str("next_run", nextRun).
		Msg("Monitor running - Press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Interrupt signal received")

	if err := application.SchedulerService.Stop(); err != nil {
		logger.Error().Err(err).Msg("Scheduler shutdown failed")
	}

	status = application.SchedulerService.Status()
	logger.Info().
		Int("runs", status.Runs).
		Int("skipped", status.Skipped).
		Str("last_suite_id", status.LastSuiteID).
		Msg("Monitor stopped")
	return nil
}
