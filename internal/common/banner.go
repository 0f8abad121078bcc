package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner
func PrintBanner(version string) {
	banner.PrintSimple("SiteProbe", version)
}

// LogStartup records the effective run settings after the banner
func LogStartup(config *Config, logger arbor.ILogger) {
	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("target", config.Target.BaseURL).
		Str("driver", config.Browser.Driver).
		Strs("browsers", config.Browser.Browsers).
		Bool("ci_mode", config.Suite.CIMode).
		Int("workers", config.Suite.EffectiveWorkers()).
		Int("retries", config.Suite.EffectiveRetries()).
		Str("output_dir", config.Report.OutputDir).
		Str("log_file", GetLogFilePath(logger)).
		Msg("SiteProbe starting")
}
