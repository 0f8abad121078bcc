package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/siteprobe/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scenario suite once",
	Long:  `Runs every selected scenario across the configured browsers and viewports, writes reports and exits non-zero when any run fails.`,
	RunE:  runSuite,
}

func runSuite(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.RunSuite(ctx)
	if result == nil {
		return err
	}
	if err != nil {
		// Reporter and history failures do not change the verdict
		logger.Error().Err(err).Msg("Suite completed with errors")
	}

	passed, failed, flaky := result.Counts()
	logger.Info().
		Str("suite_id", result.ID).
		Int("passed", passed).
		Int("failed", failed).
		Int("flaky", flaky).
		Int("skipped", len(result.Skipped)).
		Msg("Suite complete")

	if !result.Passed() {
		return errSuiteFailed
	}
	return nil
}
