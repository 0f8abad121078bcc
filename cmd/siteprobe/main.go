package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
)

// errSuiteFailed makes the process exit non-zero without printing usage
var errSuiteFailed = errors.New("suite failed")

var (
	// Command-line flags
	configFiles []string
	flags       common.FlagOverrides

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "siteprobe",
	Short:         "Synthetic UI checks for a marketing site",
	Long:          `Runs scenario checks against a live site in real browsers and reports a verdict per scenario, browser and viewport.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	pf.StringVar(&flags.BaseURL, "base-url", "", "Site under test (overrides config)")
	pf.StringVar(&flags.Driver, "driver", "", "Browser driver: chromedp, rod, playwright or static")
	pf.StringSliceVar(&flags.Browsers, "browsers", nil, "Browser engines to run: chromium, firefox, webkit")
	pf.IntVarP(&flags.Workers, "workers", "w", 0, "Concurrent scenario runs")
	pf.IntVar(&flags.Retries, "retries", 0, "Retries per failing run")
	pf.BoolVar(&flags.CIMode, "ci", false, "Use CI worker and retry settings")
	pf.BoolVar(&flags.Headed, "headed", false, "Show the browser window")
	pf.StringSliceVarP(&flags.Filter, "filter", "f", nil, "Scenario names or tags to run")
	pf.StringVarP(&flags.OutputDir, "output", "o", "", "Report output directory")
	pf.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd, listCmd, historyCmd, monitorCmd, versionCmd)
}

// loadConfig runs the startup sequence:
// defaults -> config files -> env -> CLI flags, then logger and banner
func loadConfig(cmd *cobra.Command) error {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("siteprobe.toml"); err == nil {
			configFiles = append(configFiles, "siteprobe.toml")
		} else if _, err := os.Stat("deployments/local/siteprobe.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/siteprobe.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return err
	}

	common.ApplyFlagOverrides(config, flags)

	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.InitLogger(config)
	common.InstallCrashHandler(config)

	if cmd.Name() == "run" || cmd.Name() == "monitor" {
		// Production logs are machine-read, keep the banner out of them
		if !config.IsProduction() {
			common.PrintBanner(common.GetVersion())
		}
		common.LogStartup(config, logger)
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Bool("storage_enabled", config.Storage.Enabled).
		Msg("Resolved configuration")
	return nil
}

// signalContext is cancelled on interrupt or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSuiteFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
