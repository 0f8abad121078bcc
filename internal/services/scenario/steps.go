package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/locator"
)

// ErrNoLink is returned by FollowLink when nothing on the page qualifies
var ErrNoLink = errors.New("no matching link")

// StepEnv is what a step may touch
type StepEnv struct {
	Page     interfaces.Page
	Context  *models.ScenarioContext
	Resolver *locator.Resolver
	Logger   arbor.ILogger
}

// Step runs between load and probing. A failing step is a degradation.
type Step interface {
	Name() string
	Run(ctx context.Context, env StepEnv) error
}

type scrollStep struct {
	fraction float64
}

// ScrollTo scrolls to fraction of the document height, 0 is top and 1 is bottom
func ScrollTo(fraction float64) Step {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return scrollStep{fraction: fraction}
}

func (s scrollStep) Name() string { return fmt.Sprintf("scroll to %.0f%%", s.fraction*100) }

func (s scrollStep) Run(ctx context.Context, env StepEnv) error {
	var ok bool
	expr := fmt.Sprintf("(window.scrollTo(0, document.body.scrollHeight * %g), true)", s.fraction)
	return env.Page.Evaluate(ctx, expr, &ok)
}

type pauseStep struct {
	d time.Duration
}

// Pause waits for d, for content revealed by timers
func Pause(d time.Duration) Step {
	return pauseStep{d: d}
}

func (s pauseStep) Name() string { return "pause " + s.d.String() }

func (s pauseStep) Run(ctx context.Context, _ StepEnv) error {
	t := time.NewTimer(s.d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type viewportStep struct {
	viewport models.Viewport
}

// SetViewport resizes the page mid-scenario
func SetViewport(v models.Viewport) Step {
	return viewportStep{viewport: v}
}

func (s viewportStep) Name() string { return "set viewport " + s.viewport.String() }

func (s viewportStep) Run(ctx context.Context, env StepEnv) error {
	if err := env.Page.SetViewport(ctx, s.viewport); err != nil {
		return err
	}
	env.Context.Viewport = s.viewport
	return nil
}

type followStep struct {
	descriptor  models.Descriptor
	mustContain string
}

// FollowLink navigates to the first matching element whose href contains
// mustContain. An empty mustContain accepts any href.
func FollowLink(d models.Descriptor, mustContain string) Step {
	return followStep{descriptor: d, mustContain: mustContain}
}

func (s followStep) Name() string {
	if s.mustContain == "" {
		return "follow " + s.descriptor.String()
	}
	return fmt.Sprintf("follow %s to %q", s.descriptor, s.mustContain)
}

func (s followStep) Run(ctx context.Context, env StepEnv) error {
	els, err := env.Resolver.Resolve(ctx, env.Page, s.descriptor, nil)
	if err != nil {
		return err
	}

	var href string
	for _, el := range els {
		v, ok, err := env.Page.Attribute(ctx, el, "href")
		if err != nil || !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(strings.ToLower(v), "javascript:") {
			continue
		}
		if s.mustContain == "" || strings.Contains(strings.ToLower(v), strings.ToLower(s.mustContain)) {
			href = v
			break
		}
	}
	if href == "" {
		return fmt.Errorf("%w for %s", ErrNoLink, s.descriptor)
	}

	from := env.Page.URL()
	target, err := resolveHref(from, href)
	if err != nil {
		return err
	}

	policy := env.Context.Policy
	nav, err := env.Page.Navigate(ctx, target, policy.NavigationTimeout)
	if err != nil {
		return fmt.Errorf("failed to follow %s: %w", target, err)
	}
	env.Context.SetDocument(nav.URL, nav.Status, nav.Headers)

	if err := env.Page.WaitForLoad(ctx, models.LoadStateDOMContentLoaded, policy.LoadStateTimeout); err != nil {
		env.Logger.Warn().Err(err).Str("url", nav.URL).Msg("Followed page did not reach domcontentloaded")
	}

	env.Logger.Debug().
		Str("href", href).
		Str("url", nav.URL).
		Int("status", nav.Status).
		Bool("same_site", common.SameHost(from, nav.URL)).
		Msg("Followed link")
	return nil
}

func resolveHref(pageURL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("cannot resolve relative href %q against %q", href, pageURL)
	}
	return base.ResolveReference(ref).String(), nil
}
