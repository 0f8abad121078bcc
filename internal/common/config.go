package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/siteprobe/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Target      TargetConfig     `toml:"target"`
	Browser     BrowserConfig    `toml:"browser"`
	Suite       SuiteConfig      `toml:"suite"`
	Policy      PolicyConfig     `toml:"policy"`
	Viewports   []ViewportConfig `toml:"viewports" validate:"min=1,dive"`
	Report      ReportConfig     `toml:"report"`
	Storage     StorageConfig    `toml:"storage"`
	Monitor     MonitorConfig    `toml:"monitor"`
	Logging     LoggingConfig    `toml:"logging"`
}

// TargetConfig identifies the site under test
type TargetConfig struct {
	BaseURL string            `toml:"base_url" validate:"required,url"`
	PlayURL string            `toml:"play_url" validate:"omitempty,url"` // Cross-domain target of the primary call to action
	Paths   map[string]string `toml:"paths"`                             // Named sub-paths: home, contact, faq, privacy, terms, blog
}

// BrowserConfig selects and configures the automation driver
type BrowserConfig struct {
	Driver            string   `toml:"driver" validate:"oneof=chromedp rod playwright static"`
	Browsers          []string `toml:"browsers" validate:"min=1,dive,oneof=chromium firefox webkit"`
	Headless          bool     `toml:"headless"`
	PoolSize          int      `toml:"pool_size" validate:"min=1,max=20"` // Browser instances kept warm by the driver
	UserAgent         string   `toml:"user_agent"`
	NoSandbox         bool     `toml:"no_sandbox"`
	DisableGPU        bool     `toml:"disable_gpu"`
	Stealth           bool     `toml:"stealth"`            // rod only: apply go-rod/stealth evasions
	InstallPlaywright bool     `toml:"install_playwright"` // playwright only: download drivers and browsers on start
	HTTPTimeout       string   `toml:"http_timeout"`       // static only: per-request HTTP timeout
}

// SuiteConfig controls how scenarios are scheduled
type SuiteConfig struct {
	CIMode               bool     `toml:"ci_mode"`
	Workers              int      `toml:"workers" validate:"min=1,max=64"`
	Retries              int      `toml:"retries" validate:"min=0,max=5"`
	CIWorkers            int      `toml:"ci_workers" validate:"min=1,max=64"`
	CIRetries            int      `toml:"ci_retries" validate:"min=0,max=5"`
	Filter               []string `toml:"filter"` // Scenario names or tags; empty runs everything
	ProbeParallelism     int      `toml:"probe_parallelism" validate:"min=1"`
	NavigationsPerSecond float64  `toml:"navigations_per_second" validate:"gte=0"` // 0 disables the limiter
	DefaultViewport      string   `toml:"default_viewport" validate:"required"`
	DefinitionsDir       string   `toml:"definitions_dir"` // Extra *.toml scenario definitions
}

// EffectiveWorkers returns the worker count for the current mode
func (s SuiteConfig) EffectiveWorkers() int {
	if s.CIMode {
		return s.CIWorkers
	}
	return s.Workers
}

// EffectiveRetries returns the retry count for the current mode
func (s SuiteConfig) EffectiveRetries() int {
	if s.CIMode {
		return s.CIRetries
	}
	return s.Retries
}

// ViewportConfig is one named entry of the viewport table
type ViewportConfig struct {
	Name   string `toml:"name" validate:"required"`
	Width  int    `toml:"width" validate:"min=200,max=8000"`
	Height int    `toml:"height" validate:"min=200,max=8000"`
	Mobile bool   `toml:"mobile"`
	Group  string `toml:"group" validate:"omitempty,oneof=mobile tablet desktop"`
}

// ToModel converts to the runtime viewport value
func (v ViewportConfig) ToModel() models.Viewport {
	return models.Viewport{Name: v.Name, Width: v.Width, Height: v.Height, Mobile: v.Mobile}
}

// ReportConfig controls artifacts written for each suite run
type ReportConfig struct {
	OutputDir         string   `toml:"output_dir" validate:"required"`
	Formats           []string `toml:"formats" validate:"dive,oneof=json yaml events markdown html console"`
	Screenshots       string   `toml:"screenshots" validate:"oneof=off on-failure always"`
	FullPage          bool     `toml:"full_page"`
	MarkdownSnapshots bool     `toml:"markdown_snapshots"` // Save a markdown rendering of the page on failure
}

// StorageConfig configures run history persistence
type StorageConfig struct {
	Enabled        bool   `toml:"enabled"`
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
	RetentionDays  int    `toml:"retention_days" validate:"min=0"`
}

// MonitorConfig configures scheduled suite runs
type MonitorConfig struct {
	Schedule string `toml:"schedule"` // Cron expression with optional seconds field
}

// LoggingConfig configures the arbor logger
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Target: TargetConfig{
			BaseURL: "https://rebet.app",
			PlayURL: "https://play.rebet.app/",
			Paths: map[string]string{
				"home":    "/",
				"contact": "/contact-us",
				"faq":     "/faq",
				"privacy": "/privacy-policy",
				"terms":   "/terms-of-use",
				"blog":    "/blog",
			},
		},
		Browser: BrowserConfig{
			Driver:     "chromedp",
			Browsers:   []string{"chromium"},
			Headless:   true,
			PoolSize:   2,
			UserAgent:  "",
			NoSandbox:  false,
			DisableGPU: true,
			Stealth:    false,
			// Playwright downloads drivers only when asked
			InstallPlaywright: false,
			HTTPTimeout:       "30s",
		},
		Suite: SuiteConfig{
			CIMode:               false,
			Workers:              4,
			Retries:              0,
			CIWorkers:            1,
			CIRetries:            2,
			ProbeParallelism:     8,
			NavigationsPerSecond: 2,
			DefaultViewport:      "desktop-1366",
		},
		Policy:    NewDefaultPolicyConfig(),
		Viewports: DefaultViewports(),
		Report: ReportConfig{
			OutputDir:         "test-results",
			Formats:           []string{"json", "markdown", "console"},
			Screenshots:       "on-failure",
			FullPage:          true,
			MarkdownSnapshots: true,
		},
		Storage: StorageConfig{
			Enabled:       true,
			Path:          "./data/history",
			RetentionDays: 30,
		},
		Monitor: MonitorConfig{
			Schedule: "0 */30 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// DefaultViewports is the viewport table exercised by the responsive scenarios
func DefaultViewports() []ViewportConfig {
	return []ViewportConfig{
		{Name: "mobile-320", Width: 320, Height: 568, Mobile: true, Group: "mobile"},
		{Name: "mobile-360", Width: 360, Height: 640, Mobile: true, Group: "mobile"},
		{Name: "mobile-375", Width: 375, Height: 667, Mobile: true, Group: "mobile"},
		{Name: "mobile-414", Width: 414, Height: 896, Mobile: true, Group: "mobile"},
		{Name: "pixel-5", Width: 393, Height: 851, Mobile: true, Group: "mobile"},
		{Name: "iphone-12", Width: 390, Height: 844, Mobile: true, Group: "mobile"},
		{Name: "tablet-768", Width: 768, Height: 1024, Group: "tablet"},
		{Name: "tablet-800", Width: 800, Height: 1280, Group: "tablet"},
		{Name: "tablet-1024", Width: 1024, Height: 768, Group: "tablet"},
		{Name: "desktop-1366", Width: 1366, Height: 768, Group: "desktop"},
		{Name: "desktop-1920", Width: 1920, Height: 1080, Group: "desktop"},
		{Name: "desktop-2560", Width: 2560, Height: 1440, Group: "desktop"},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> .env -> env
// Later files override earlier files. CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// A missing .env is normal, values already in the environment win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SITEPROBE_ENV"); env != "" {
		config.Environment = env
	}

	// Target configuration (BASE_URL kept for parity with the existing CI pipeline)
	if baseURL := os.Getenv("SITEPROBE_BASE_URL"); baseURL != "" {
		config.Target.BaseURL = baseURL
	} else if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		config.Target.BaseURL = baseURL
	}
	if playURL := os.Getenv("SITEPROBE_PLAY_URL"); playURL != "" {
		config.Target.PlayURL = playURL
	}

	// Browser configuration
	if driver := os.Getenv("SITEPROBE_DRIVER"); driver != "" {
		config.Browser.Driver = driver
	}
	if browsers := os.Getenv("SITEPROBE_BROWSERS"); browsers != "" {
		config.Browser.Browsers = splitString(browsers, ",")
	}
	if headless := os.Getenv("SITEPROBE_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}
	if poolSize := os.Getenv("SITEPROBE_POOL_SIZE"); poolSize != "" {
		if n, err := strconv.Atoi(poolSize); err == nil {
			config.Browser.PoolSize = n
		}
	}
	if noSandbox := os.Getenv("SITEPROBE_NO_SANDBOX"); noSandbox != "" {
		if b, err := strconv.ParseBool(noSandbox); err == nil {
			config.Browser.NoSandbox = b
		}
	}

	// Suite configuration
	if ci := os.Getenv("CI"); ci != "" {
		if b, err := strconv.ParseBool(ci); err == nil {
			config.Suite.CIMode = b
		} else {
			// Some CI systems export CI=yes or CI=1
			config.Suite.CIMode = true
		}
	}
	if workers := os.Getenv("SITEPROBE_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			config.Suite.Workers = n
		}
	}
	if retries := os.Getenv("SITEPROBE_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Suite.Retries = n
		}
	}
	if filter := os.Getenv("SITEPROBE_FILTER"); filter != "" {
		config.Suite.Filter = splitString(filter, ",")
	}

	// Report configuration
	if dir := os.Getenv("SITEPROBE_OUTPUT_DIR"); dir != "" {
		config.Report.OutputDir = dir
	}
	if shots := os.Getenv("SITEPROBE_SCREENSHOTS"); shots != "" {
		config.Report.Screenshots = shots
	}

	// Storage configuration
	if path := os.Getenv("SITEPROBE_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}

	// Logging configuration
	if level := os.Getenv("SITEPROBE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// FlagOverrides carries command-line values; zero values leave config untouched
type FlagOverrides struct {
	BaseURL   string
	Driver    string
	Browsers  []string
	Workers   int
	Retries   int
	CIMode    bool
	Headed    bool
	Filter    []string
	OutputDir string
	LogLevel  string
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	if flags.BaseURL != "" {
		config.Target.BaseURL = flags.BaseURL
	}
	if flags.Driver != "" {
		config.Browser.Driver = flags.Driver
	}
	if len(flags.Browsers) > 0 {
		config.Browser.Browsers = flags.Browsers
	}
	if flags.Workers > 0 {
		config.Suite.Workers = flags.Workers
	}
	if flags.Retries > 0 {
		config.Suite.Retries = flags.Retries
	}
	if flags.CIMode {
		config.Suite.CIMode = true
	}
	if flags.Headed {
		config.Browser.Headless = false
	}
	if len(flags.Filter) > 0 {
		config.Suite.Filter = flags.Filter
	}
	if flags.OutputDir != "" {
		config.Report.OutputDir = flags.OutputDir
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}
}

// Validate checks struct tags, the policy table and the monitor schedule
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := BuildPolicyTable(c.Policy); err != nil {
		return fmt.Errorf("invalid policy configuration: %w", err)
	}

	if _, ok := c.Viewport(c.Suite.DefaultViewport); !ok {
		return fmt.Errorf("default viewport %q is not in the viewport table", c.Suite.DefaultViewport)
	}

	if c.Monitor.Schedule != "" {
		if err := ValidateSchedule(c.Monitor.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// Viewport looks up a named viewport
func (c *Config) Viewport(name string) (models.Viewport, bool) {
	for _, v := range c.Viewports {
		if strings.EqualFold(v.Name, name) {
			return v.ToModel(), true
		}
	}
	return models.Viewport{}, false
}

// BrowserNames parses the configured browser list
func (c *Config) BrowserNames() ([]models.BrowserName, error) {
	names := make([]models.BrowserName, 0, len(c.Browser.Browsers))
	for _, b := range c.Browser.Browsers {
		name, err := models.ParseBrowserName(b)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// ValidateSchedule validates a cron expression, seconds field optional
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// IsProduction reports whether environment is production or prod
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// splitString splits a string by separator and trims whitespace
func splitString(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
