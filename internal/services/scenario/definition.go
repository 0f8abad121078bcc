package scenario

import (
	"fmt"
	"strings"

	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/probe"
)

// Definition is one canonical end-to-end check: navigate, wait, step, probe, assert
type Definition struct {
	Name        string
	Description string
	Tags        []string
	Path        string           // Relative to the target base URL, or absolute
	LoadState   models.LoadState // Defaults to domcontentloaded
	Steps       []Step
	Probes      []probe.Spec
	Rule        models.AggregationRule

	// Viewports lists viewport or group names ("mobile", "tablet", "desktop", "all").
	// Empty runs the suite default viewport only.
	Viewports []string

	// Browsers restricts the configured browser matrix. Empty runs every configured browser.
	Browsers []models.BrowserName
}

// Validate checks the definition can run
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("scenario requires a name")
	}
	if err := d.Rule.Validate(); err != nil {
		return fmt.Errorf("scenario %s: %w", d.Name, err)
	}
	if len(d.Probes) == 0 {
		return fmt.Errorf("scenario %s: at least one probe is required", d.Name)
	}
	switch d.LoadState {
	case "", models.LoadStateDOMContentLoaded, models.LoadStateLoad, models.LoadStateNetworkIdle:
	default:
		return fmt.Errorf("scenario %s: unknown load state %q", d.Name, d.LoadState)
	}

	seen := make(map[string]bool, len(d.Probes))
	for _, p := range d.Probes {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("scenario %s: %w", d.Name, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("scenario %s: duplicate probe name %q", d.Name, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// EffectiveLoadState returns the load state waited for after navigation
func (d Definition) EffectiveLoadState() models.LoadState {
	if d.LoadState == "" {
		return models.LoadStateDOMContentLoaded
	}
	return d.LoadState
}

// HasTag reports whether the definition carries tag, case-insensitive
func (d Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Matches reports whether any filter term names the scenario or one of its
// tags. An empty filter matches everything.
func (d Definition) Matches(filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, d.Name) || d.HasTag(f) {
			return true
		}
	}
	return false
}

// RunsOn reports whether the definition allows browser
func (d Definition) RunsOn(browser models.BrowserName) bool {
	if len(d.Browsers) == 0 {
		return true
	}
	for _, b := range d.Browsers {
		if b == browser {
			return true
		}
	}
	return false
}
