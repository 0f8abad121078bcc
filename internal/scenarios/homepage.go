package scenarios

import (
	"time"

	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

func homepage(s site) []scenario.Definition {
	home := s.path("home", "/")

	return []scenario.Definition{
		{
			Name:        "homepage-load",
			Description: "Homepage loads with a branded title and a visible heading",
			Tags:        []string{TagHomepage, TagSmoke},
			Path:        home,
			Probes: []probe.Spec{
				probe.TitleMatches("title", brandPattern),
				probe.New("heading", models.CSS("h1, h2, h3")).Visible(),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "homepage-branding",
			Description: "Brand name is rendered and present in the body text",
			Tags:        []string{TagHomepage, TagSmoke},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("brand", models.Text("rebet")).Visible(),
				probe.BodyTextMatches("body-brand", brandPattern),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "homepage-cta",
			Description: "A primary call to action is visible, any clickable element as a last resort",
			Tags:        []string{TagHomepage},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("cta", exact("Play Now")).
					Visible().
					Fallback(
						exact("Sign Up"),
						exact("Get Started"),
						exact("Download"),
						models.CSS("button, a[href]"),
					),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "homepage-sports-content",
			Description: "Sports or gaming content is visible",
			Tags:        []string{TagHomepage, TagContent},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("sport", models.Text("sport")).Visible(),
				probe.New("gaming", models.Text("gaming")).Visible(),
				probe.New("casino", models.Text("casino")).Visible(),
				probe.New("bet", models.Text("bet")).Visible(),
				probe.New("social", models.Text("social")).Visible(),
			},
			Rule: models.AnyOneMatches(),
		},
		{
			Name:        "homepage-footer",
			Description: "Footer or copyright notice is visible after scrolling to the bottom",
			Tags:        []string{TagHomepage},
			Path:        home,
			Steps:       []scenario.Step{scenario.ScrollTo(1), scenario.Pause(time.Second)},
			Probes: []probe.Spec{
				probe.New("footer", models.CSS("footer")).Visible().Fallback(models.Text("copyright")),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "homepage-images",
			Description: "Sampled visible images finished loading",
			Tags:        []string{TagHomepage, TagPerformance},
			Path:        home,
			LoadState:   models.LoadStateLoad,
			Probes: []probe.Spec{
				probe.ImageLoadRatioWithinPolicy("images-loaded", models.SampleCap),
				probe.New("images", models.CSS("img")).AtLeast(0).Samples("src"),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "homepage-mobile-layout",
			Description: "Homepage body stays within a small mobile viewport",
			Tags:        []string{TagHomepage, TagResponsive},
			Path:        home,
			Viewports:   []string{"mobile-375"},
			Steps:       []scenario.Step{scenario.Pause(2 * time.Second)},
			Probes: []probe.Spec{
				probe.New("body", models.CSS("body")).Visible(),
				probe.NoHorizontalOverflowWithinPolicy("no-overflow"),
			},
			Rule: models.AllRequiredMatch(),
		},
	}
}

func navigation(s site) []scenario.Definition {
	home := s.path("home", "/")
	page := models.AnyOf(
		models.CSS("h1, h2, h3, .title, .heading"),
		models.CSS("main, .content, .container"),
	)

	follow := func(name, key, description string, extra ...probe.Spec) scenario.Definition {
		probes := []probe.Spec{
			probe.URLMatches("url", regexpFor(key)),
			probe.StatusBelow("status", 400),
			probe.New("content", page).Visible(),
		}
		return scenario.Definition{
			Name:        name,
			Description: description,
			Tags:        []string{TagNavigation},
			Path:        home,
			Steps:       []scenario.Step{scenario.FollowLink(hrefContains(key), key)},
			Probes:      append(probes, extra...),
			Rule:        models.AllRequiredMatch(),
		}
	}

	return []scenario.Definition{
		follow("navigate-contact", "contact", "Contact link leads to a page with content"),
		follow("navigate-faq", "faq", "FAQ link leads to the questions page",
			probe.New("faq-content", models.Text("frequently|questions|faq")).Optional()),
		follow("navigate-privacy", "privacy", "Privacy policy link leads to a page with content"),
		follow("navigate-terms", "terms", "Terms of use link leads to a page with content"),
		{
			Name:        "play-cta-target",
			Description: "Primary call to action points at the play domain",
			Tags:        []string{TagNavigation, TagSmoke},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("play-link", hrefContains(s.playHost)).Samples("href"),
				probe.New("play-now", exact("Play Now")).Optional(),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "app-store-links",
			Description: "App store links, when present, point at the stores",
			Tags:        []string{TagNavigation},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("app-store", models.AnyOf(hrefContains("apps.apple.com"), hrefContains("play.google.com"))).
					AtLeast(0).
					Samples("href"),
			},
			Rule: models.AnyOneMatches(),
		},
	}
}
