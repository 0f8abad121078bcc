package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/siteprobe/internal/models"
)

// PolicyConfig is the {browser, ciMode} -> {timeouts, thresholds} table.
// Default is the base row; every matching entry is overlaid in file order.
type PolicyConfig struct {
	Default PolicyEntry   `toml:"default"`
	Entries []PolicyEntry `toml:"entries"`
}

// PolicyEntry is one row of the policy table. Zero fields inherit.
type PolicyEntry struct {
	Browser               string  `toml:"browser"` // Engine name or "*"
	CI                    *bool   `toml:"ci"`      // nil matches both modes
	NavigationTimeout     string  `toml:"navigation_timeout"`
	LoadStateTimeout      string  `toml:"load_state_timeout"`
	ActionTimeout         string  `toml:"action_timeout"`
	ScenarioTimeout       string  `toml:"scenario_timeout"`
	MaxConsoleErrors      int     `toml:"max_console_errors"`
	MaxNetworkErrors      int     `toml:"max_network_errors"`
	MinImageLoadRatio     float64 `toml:"min_image_load_ratio"`
	MinAltTextRatio       float64 `toml:"min_alt_text_ratio"`
	MinSecureRequestRatio float64 `toml:"min_secure_request_ratio"`
	MinSecurityHeaders    int     `toml:"min_security_headers"`
	OverflowMarginPx      int     `toml:"overflow_margin_px"`
	MaxLoadTime           string  `toml:"max_load_time"`
}

// PolicyKey addresses one cell of the policy table
type PolicyKey struct {
	Browser models.BrowserName
	CI      bool
}

// PolicyTable is the resolved policy for every {browser, ciMode} pair
type PolicyTable map[PolicyKey]models.Policy

// Lookup returns the policy for a pair
func (t PolicyTable) Lookup(browser models.BrowserName, ci bool) (models.Policy, bool) {
	p, ok := t[PolicyKey{Browser: browser, CI: ci}]
	return p, ok
}

func boolPtr(b bool) *bool { return &b }

// NewDefaultPolicyConfig returns the tuned defaults.
// Firefox gets longer action and navigation bounds, CI mode raises error thresholds.
func NewDefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Default: PolicyEntry{
			Browser:               "*",
			NavigationTimeout:     "60s",
			LoadStateTimeout:      "15s",
			ActionTimeout:         "45s",
			ScenarioTimeout:       "120s",
			MaxConsoleErrors:      5,
			MaxNetworkErrors:      5,
			MinImageLoadRatio:     0.3,
			MinAltTextRatio:       0.5,
			MinSecureRequestRatio: 0.9,
			MinSecurityHeaders:    1,
			OverflowMarginPx:      20,
			MaxLoadTime:           "8s",
		},
		Entries: []PolicyEntry{
			{
				Browser:           "firefox",
				NavigationTimeout: "90s",
				ActionTimeout:     "60s",
				ScenarioTimeout:   "150s",
			},
			{
				Browser:          "*",
				CI:               boolPtr(true),
				MaxConsoleErrors: 10,
				MaxNetworkErrors: 8,
				OverflowMarginPx: 50,
				MaxLoadTime:      "12s",
			},
		},
	}
}

func (e PolicyEntry) matches(browser models.BrowserName, ci bool) bool {
	if e.CI != nil && *e.CI != ci {
		return false
	}
	b := strings.ToLower(strings.TrimSpace(e.Browser))
	return b == "" || b == "*" || b == string(browser)
}

// overlay applies the non-zero fields of e onto p
func (e PolicyEntry) overlay(p *models.Policy) error {
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"navigation_timeout", e.NavigationTimeout, &p.NavigationTimeout},
		{"load_state_timeout", e.LoadStateTimeout, &p.LoadStateTimeout},
		{"action_timeout", e.ActionTimeout, &p.ActionTimeout},
		{"scenario_timeout", e.ScenarioTimeout, &p.ScenarioTimeout},
		{"max_load_time", e.MaxLoadTime, &p.Thresholds.MaxLoadTime},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = v
	}

	th := &p.Thresholds
	if e.MaxConsoleErrors != 0 {
		th.MaxConsoleErrors = e.MaxConsoleErrors
	}
	if e.MaxNetworkErrors != 0 {
		th.MaxNetworkErrors = e.MaxNetworkErrors
	}
	if e.MinImageLoadRatio != 0 {
		th.MinImageLoadRatio = e.MinImageLoadRatio
	}
	if e.MinAltTextRatio != 0 {
		th.MinAltTextRatio = e.MinAltTextRatio
	}
	if e.MinSecureRequestRatio != 0 {
		th.MinSecureRequestRatio = e.MinSecureRequestRatio
	}
	if e.MinSecurityHeaders != 0 {
		th.MinSecurityHeaders = e.MinSecurityHeaders
	}
	if e.OverflowMarginPx != 0 {
		th.OverflowMarginPx = e.OverflowMarginPx
	}
	return nil
}

// Resolve computes the policy for one pair
func (c PolicyConfig) Resolve(browser models.BrowserName, ci bool) (models.Policy, error) {
	var p models.Policy
	if err := c.Default.overlay(&p); err != nil {
		return p, fmt.Errorf("default policy: %w", err)
	}
	for i, e := range c.Entries {
		if !e.matches(browser, ci) {
			continue
		}
		if err := e.overlay(&p); err != nil {
			return p, fmt.Errorf("policy entry %d: %w", i, err)
		}
	}

	if p.NavigationTimeout <= 0 || p.LoadStateTimeout <= 0 || p.ScenarioTimeout <= 0 {
		return p, fmt.Errorf("policy for %s (ci=%t) must set navigation, load state and scenario timeouts", browser, ci)
	}
	if p.ActionTimeout < models.MinProbeTimeout {
		return p, fmt.Errorf("policy for %s (ci=%t) has action timeout %s below the %s floor", browser, ci, p.ActionTimeout, models.MinProbeTimeout)
	}
	if p.ScenarioTimeout < p.NavigationTimeout {
		return p, fmt.Errorf("policy for %s (ci=%t) has scenario timeout %s shorter than navigation timeout %s", browser, ci, p.ScenarioTimeout, p.NavigationTimeout)
	}
	return p, nil
}

// BuildPolicyTable resolves every {browser, ciMode} pair up front
func BuildPolicyTable(c PolicyConfig) (PolicyTable, error) {
	table := make(PolicyTable, len(models.AllBrowsers)*2)
	for _, b := range models.AllBrowsers {
		for _, ci := range []bool{false, true} {
			p, err := c.Resolve(b, ci)
			if err != nil {
				return nil, err
			}
			table[PolicyKey{Browser: b, CI: ci}] = p
		}
	}
	return table, nil
}
