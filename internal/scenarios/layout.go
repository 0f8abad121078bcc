package scenarios

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

// Product tokens expected in navigator.userAgent per engine
var engineTokens = map[models.BrowserName]string{
	models.BrowserChromium: "Chrome",
	models.BrowserFirefox:  "Firefox",
	models.BrowserWebKit:   "AppleWebKit",
}

// engineUserAgent passes when the user agent names the engine the run asked for
func engineUserAgent(name string) probe.Spec {
	return probe.NewSignal(name, func(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext) (probe.Observation, error) {
		var ua string
		if err := page.Evaluate(ctx, `navigator.userAgent`, &ua); err != nil {
			return probe.Observation{}, err
		}
		token, ok := engineTokens[sctx.Browser]
		if !ok || strings.Contains(ua, token) {
			return probe.Observation{Count: 1, Samples: []string{ua}}, nil
		}
		return probe.Observation{Samples: []string{ua}}, nil
	})
}

// scrolled passes when the window has scrolled away from the top
func scrolled(name string) probe.Spec {
	return probe.NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (probe.Observation, error) {
		var offset float64
		if err := page.Evaluate(ctx, `window.pageYOffset`, &offset); err != nil {
			return probe.Observation{}, err
		}
		sample := fmt.Sprintf("pageYOffset %.0f", offset)
		if offset > 0 {
			return probe.Observation{Count: 1, Samples: []string{sample}}, nil
		}
		return probe.Observation{Samples: []string{sample}}, nil
	})
}

func layout(s site) []scenario.Definition {
	home := s.path("home", "/")

	return []scenario.Definition{
		{
			Name:        "responsive-layout",
			Description: "Layout does not overflow horizontally on any configured viewport",
			Tags:        []string{TagResponsive},
			Path:        home,
			Viewports:   []string{"all"},
			Steps:       []scenario.Step{scenario.Pause(time.Second)},
			Probes: []probe.Spec{
				probe.New("body", models.CSS("body")).Visible(),
				probe.NoHorizontalOverflow("no-overflow", 50),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "mobile-essentials",
			Description: "Brand and a call to action are visible on phones",
			Tags:        []string{TagResponsive, TagHomepage},
			Path:        home,
			Viewports:   []string{"mobile"},
			Probes: []probe.Spec{
				probe.New("brand", models.Text("rebet")).
					Visible().
					Fallback(models.AnyOf(models.Attr("alt", "rebet"), models.CSS(".logo"), models.AttrOn("img", "src", "logo"))),
				probe.New("play", models.Text(`play.*now`)).
					Visible().
					Fallback(models.AnyOf(models.Text(`get.*started|join.*now`), models.CSS(".cta-button, .play-button"))),
				probe.New("headings", models.CSS("h1, h2, h3")).Visible(),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "mobile-menu",
			Description: "A mobile menu trigger is reported when the site has one",
			Tags:        []string{TagResponsive},
			Path:        home,
			Viewports:   []string{"mobile-375"},
			Probes: []probe.Spec{
				probe.New("menu-trigger", models.AnyOf(
					models.CSS(".menu-toggle, .hamburger"),
					models.Attr("aria-label", "menu"),
				)).AtLeast(0),
			},
			Rule: models.AnyOneMatches(),
		},
		{
			Name:        "touch-scroll",
			Description: "Touch targets exist and the page scrolls on a phone",
			Tags:        []string{TagResponsive},
			Path:        home,
			Viewports:   []string{"iphone-12"},
			Steps:       []scenario.Step{scenario.ScrollTo(0.5), scenario.Pause(500 * time.Millisecond)},
			Probes: []probe.Spec{
				probe.New("touch-targets", models.CSS("button, a[href], [onclick]")).Visible(),
				scrolled("scrolled"),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "cross-browser",
			Description: "Title and body carry the brand on every browser engine",
			Tags:        []string{TagCrossBrowser, TagSmoke},
			Path:        home,
			Probes: []probe.Spec{
				probe.TitleMatches("title", brandPattern),
				probe.BodyTextMatches("body-brand", brandPattern),
				engineUserAgent("engine").Optional(),
			},
			Rule: models.AllRequiredMatch(),
		},
	}
}
