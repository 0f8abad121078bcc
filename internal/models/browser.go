package models

import (
	"fmt"
	"strings"
	"time"
)

// BrowserName identifies a browser engine
type BrowserName string

const (
	BrowserChromium BrowserName = "chromium"
	BrowserFirefox  BrowserName = "firefox"
	BrowserWebKit   BrowserName = "webkit"
)

// AllBrowsers lists every engine in matrix order
var AllBrowsers = []BrowserName{BrowserChromium, BrowserFirefox, BrowserWebKit}

// ParseBrowserName accepts the engine names plus the common aliases chrome and safari
func ParseBrowserName(s string) (BrowserName, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chromium", "chrome":
		return BrowserChromium, nil
	case "firefox":
		return BrowserFirefox, nil
	case "webkit", "safari":
		return BrowserWebKit, nil
	default:
		return "", fmt.Errorf("unknown browser %q", s)
	}
}

// Viewport is a named window size
type Viewport struct {
	Name   string `json:"name" yaml:"name" toml:"name"`
	Width  int    `json:"width" yaml:"width" toml:"width"`
	Height int    `json:"height" yaml:"height" toml:"height"`
	Mobile bool   `json:"mobile,omitempty" yaml:"mobile,omitempty" toml:"mobile"`
}

func (v Viewport) String() string {
	if v.Name != "" {
		return fmt.Sprintf("%s(%dx%d)", v.Name, v.Width, v.Height)
	}
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// LoadState is the document readiness signal waited for after navigation
type LoadState string

const (
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateLoad             LoadState = "load"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// Thresholds are the tuned limits used by threshold probes
type Thresholds struct {
	MaxConsoleErrors      int           // Passes while console errors stay below this
	MaxNetworkErrors      int           // Passes while failed responses stay below this
	MinImageLoadRatio     float64       // Loaded images over checked images
	MinAltTextRatio       float64       // Images with alt text over checked images
	MinSecureRequestRatio float64       // https share of api-like requests
	MinSecurityHeaders    int           // Security headers that must be present
	OverflowMarginPx      int           // Allowed scrollWidth excess over the viewport
	MaxLoadTime           time.Duration // Navigation plus load state
}

// Policy is the resolved timeout and threshold set for one {browser, ciMode} pair
type Policy struct {
	NavigationTimeout time.Duration
	LoadStateTimeout  time.Duration
	ActionTimeout     time.Duration
	ScenarioTimeout   time.Duration
	Thresholds        Thresholds
}

// ConsoleEntry is one console message observed on a page
type ConsoleEntry struct {
	Level string    `json:"level" yaml:"level"` // error, warning, info, log, debug
	Text  string    `json:"text" yaml:"text"`
	URL   string    `json:"url,omitempty" yaml:"url,omitempty"`
	At    time.Time `json:"at" yaml:"at"`
}

// IsError reports whether the message is an error-level message
func (c ConsoleEntry) IsError() bool {
	return c.Level == "error"
}

// NetworkEntry is one response or failed request observed on a page
type NetworkEntry struct {
	URL          string    `json:"url" yaml:"url"`
	Status       int       `json:"status" yaml:"status"`
	ResourceType string    `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
	Failed       bool      `json:"failed,omitempty" yaml:"failed,omitempty"`
	ErrorText    string    `json:"error_text,omitempty" yaml:"error_text,omitempty"`
	At           time.Time `json:"at" yaml:"at"`
}

// IsError reports whether the entry counts as a network error
func (n NetworkEntry) IsError() bool {
	return n.Failed || n.Status >= 400
}
