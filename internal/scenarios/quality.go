package scenarios

import (
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/evidence"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

const focusableSelector = `button, a[href], input, select, textarea, [tabindex]:not([tabindex="-1"])`

func quality(s site) []scenario.Definition {
	home := s.path("home", "/")

	return []scenario.Definition{
		{
			Name:        "performance-load",
			Description: "Homepage reaches network idle within the load budget and renders content",
			Tags:        []string{TagPerformance, TagSmoke},
			Path:        home,
			LoadState:   models.LoadStateNetworkIdle,
			Probes: []probe.Spec{
				probe.LoadTimeWithinPolicy("load-time"),
				probe.New("body", models.CSS("body")).Visible(),
				probe.New("main-content", models.CSS("main, .main-content, #main, .content")).Optional(),
				probe.BodyTextLength("body-text", 100),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "error-budget",
			Description: "Console and network errors stay within budget and images load",
			Tags:        []string{TagPerformance},
			Path:        home,
			LoadState:   models.LoadStateNetworkIdle,
			Probes: []probe.Spec{
				evidence.ConsoleErrorsWithinPolicy("console-errors"),
				evidence.NetworkErrorsWithinPolicy("network-errors"),
				probe.ImageLoadRatioWithinPolicy("images-loaded", 10),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "accessibility",
			Description: "Headings and focusable elements exist, image alt text is reported",
			Tags:        []string{TagAccessible},
			Path:        home,
			LoadState:   models.LoadStateNetworkIdle,
			Probes: []probe.Spec{
				probe.New("headings", models.CSS("h1, h2, h3, h4, h5, h6")),
				probe.New("focusable", models.CSS(focusableSelector)),
				probe.AltTextRatioWithinPolicy("alt-text", 10).Optional(),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "seo-meta",
			Description: "Title and meta description lengths are search friendly",
			Tags:        []string{TagSEO},
			Path:        home,
			Probes: []probe.Spec{
				probe.TitleLength("title-length", 6, 79),
				probe.MetaDescriptionLength("meta-description", 21, 199),
				probe.New("og-title", models.AttrOn("meta", "property", "og:title")).AtLeast(0).Samples("content"),
			},
			Rule: models.AllRequiredMatch(),
		},
	}
}
