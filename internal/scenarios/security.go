package scenarios

import (
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/evidence"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

func security(s site) []scenario.Definition {
	home := s.path("home", "/")

	return []scenario.Definition{
		{
			Name:        "https-enforced",
			Description: "The site is served over https without mixed content, security headers are reported",
			Tags:        []string{TagSecurity, TagSmoke},
			Path:        home,
			Probes: []probe.Spec{
				probe.HTTPSOnly("https"),
				evidence.NoMixedContent("no-mixed-content"),
				probe.SecurityHeadersWithinPolicy("security-headers").Optional(),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "api-https",
			Description: "API-like requests made by the page go over https",
			Tags:        []string{TagSecurity},
			Path:        home,
			LoadState:   models.LoadStateNetworkIdle,
			Probes: []probe.Spec{
				evidence.SecureRequestRatioWithinPolicy("api-https-ratio"),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "responsible-gaming",
			Description: "Responsible gaming, age or regulatory wording appears somewhere on the page",
			Tags:        []string{TagSecurity, TagContent},
			Path:        home,
			LoadState:   models.LoadStateNetworkIdle,
			Probes: []probe.Spec{
				probe.New("responsible-gaming", anyText(
					"responsible gaming", "responsible gambling", "problem gambling", "gambling addiction",
					"self-exclusion", "deposit limit", "time limit", `18\+`, "age verification", "gamble responsibly",
				)).AtLeast(0),
				probe.New("age", models.Text(`18|21|\+|age|verify|adult`)).AtLeast(0),
				probe.New("regulatory", models.Text("license|regulated|commission|authority")).AtLeast(0),
			},
			Rule: models.WeightedSumAtLeast(1),
		},
		{
			Name:        "privacy-compliance",
			Description: "A privacy policy is linked, cookie consent wording is reported",
			Tags:        []string{TagSecurity},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("privacy-link", hrefContains("privacy")).Fallback(exact("Privacy Policy")).Samples("href"),
				probe.New("cookie-consent", models.AnyOf(
					models.Text("cookie|consent|gdpr"),
					models.Attr("class", "cookie"),
					models.Attr("class", "consent"),
					models.Attr("id", "cookie"),
				)).Optional(),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "signup-forms",
			Description: "Sign up or login entry points exist, forms and their inputs are reported",
			Tags:        []string{TagSecurity, TagJourney},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("auth-entry", models.Text(`sign.*up|log.*in|register|join`)),
				probe.New("forms", models.CSS("form")).AtLeast(0),
				probe.New("csrf-token", models.AnyOf(
					models.AttrOn("input", "name", "token"),
					models.AttrOn("input", "name", "csrf"),
				)).AtLeast(0),
			},
			Rule: models.AllRequiredMatch(),
		},
	}
}
