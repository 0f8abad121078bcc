package scenarios

import (
	"time"

	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

// hits counts every match of d toward a weighted sum
func hits(name string, d models.Descriptor) probe.Spec {
	return probe.New(name, d).AtLeast(0)
}

// theme weighs 1 when d matches at least min elements
func theme(name string, min int, d models.Descriptor) probe.Spec {
	return probe.New(name, d).AtLeast(min).Boolean()
}

func engagement(s site) []scenario.Definition {
	home := s.path("home", "/")

	return []scenario.Definition{
		{
			Name:        "gaming-features",
			Description: "Gaming platform elements are hinted in the markup",
			Tags:        []string{TagEngagement},
			Path:        home,
			Probes: []probe.Spec{
				hits("game-cards", models.AnyOf(models.Attr("class", "game"), models.Attr("class", "card"), models.CSS("[data-game]"))),
				hits("betting-controls", models.AnyOf(models.Attr("class", "bet"), models.Attr("class", "stake"), models.CSS(`input[type="number"]`))),
				hits("social-features", models.AnyOf(models.Attr("class", "social"), models.Attr("class", "share"), models.Attr("class", "follow"))),
				hits("user-profile", models.AnyOf(models.Attr("class", "profile"), models.Attr("class", "avatar"), models.Attr("class", "user"))),
				hits("balance-display", models.AnyOf(models.Attr("class", "balance"), models.Attr("class", "coin"), models.Attr("class", "money"))),
				hits("live-updates", models.AnyOf(models.Attr("class", "live"), models.Attr("class", "update"), models.Attr("class", "real-time"))),
			},
			Rule: models.WeightedSumAtLeast(1),
		},
		{
			Name:        "social-features",
			Description: "Social betting wording or activity feeds appear on the page",
			Tags:        []string{TagEngagement},
			Path:        home,
			Probes: []probe.Spec{
				theme("follow-system", 1, anyText("follow", "friend", "connect")),
				theme("comments", 1, anyText("comment", "chat", "message")),
				theme("sharing", 1, anyText("share", "post", "publish")),
				theme("leaderboards", 1, anyText("leaderboard", "ranking", "top")),
				theme("challenges", 1, anyText("challenge", "compete", "versus")),
				hits("community", models.Text("community|social|together|users")),
				hits("activity-feed", models.AnyOf(models.Attr("class", "feed"), models.Attr("class", "activity"), models.Attr("class", "stream"))),
			},
			Rule: models.WeightedSumAtLeast(1),
		},
		{
			Name:        "app-promotion",
			Description: "Mobile app promotion is present in some form",
			Tags:        []string{TagEngagement},
			Path:        home,
			Steps:       []scenario.Step{scenario.Pause(time.Second)},
			Probes: []probe.Spec{
				theme("app-store-link", 1, hrefContains("apps.apple.com")),
				theme("google-play-link", 1, hrefContains("play.google.com")),
				theme("download-text", 1, models.Text(`download.*app|get.*app|mobile.*app`)),
				theme("app-screenshots", 1, models.AnyOf(models.AttrOn("img", "src", "phone"), models.AttrOn("img", "src", "mobile"), models.AttrOn("img", "src", "app"))),
				theme("qr-code", 1, models.AnyOf(models.AttrOn("img", "src", "qr"), models.Attr("class", "qr"))),
			},
			Rule: models.WeightedSumAtLeast(1),
		},
		{
			Name:        "conversion-funnel",
			Description: "Awareness, interest, consideration and action elements add up to a funnel",
			Tags:        []string{TagEngagement, TagJourney},
			Path:        home,
			Steps:       []scenario.Step{scenario.Pause(time.Second)},
			Probes: []probe.Spec{
				hits("awareness", models.AnyOf(models.CSS("h1, h2"), models.Attr("class", "hero"), models.Attr("class", "banner"))),
				hits("interest", models.AnyOf(models.Text("feature|benefit|why"), models.Attr("class", "feature"))),
				hits("consideration", models.AnyOf(models.Text("review|testimonial|rating"), models.AttrOn("img", "src", "star"))),
				hits("action", models.AnyOf(models.CSS("button"), exact("Play Now"), exact("Sign Up"), exact("Download"))),
				hits("offers", models.Text("free|bonus|match|win")),
				hits("urgency", models.Text(`limited.*time|exclusive|special`)),
				hits("calls", models.Text(`join.*now|start.*today|play.*now`)),
			},
			Rule: models.WeightedSumAtLeast(11),
		},
		{
			Name:        "competitive-positioning",
			Description: "At least three differentiator themes are mentioned",
			Tags:        []string{TagEngagement},
			Path:        home,
			Probes: []probe.Spec{
				theme("social", 1, anyText("social", "community", "friends", "share", "follow")),
				theme("variety", 1, anyText("variety", "games", "options", "choice", "entertainment")),
				theme("innovation", 1, anyText("first", "new", "innovative", "unique", "revolutionary")),
				theme("quality", 1, anyText("best", "top", "premium", "quality", "superior")),
				theme("trust", 1, anyText("secure", "safe", "trusted", "reliable", "licensed")),
				hits("usp", models.Text(`why.*rebet|rebet.*difference|unlike.*other`)).Optional(),
			},
			Rule: models.WeightedSumAtLeast(3),
		},
		{
			Name:        "brand-consistency",
			Description: "Brand mentions, logos and recurring messaging themes",
			Tags:        []string{TagEngagement, TagHomepage},
			Path:        home,
			Probes: []probe.Spec{
				hits("brand-mentions", models.AnyOf(
					models.TextCase(`^\s*Rebet\s*$`),
					models.TextCase(`^\s*ReBet\s*$`),
					models.TextCase(`^\s*rebet\s*$`),
					models.TextCase(`^\s*REBET\s*$`),
				)),
				hits("logos", models.AnyOf(models.AttrOn("img", "src", "logo"), models.AttrOn("img", "alt", "logo"), models.AttrOn("img", "alt", "rebet"))),
				theme("social-gaming", 2, anyText("social", "together", "community", "friends")),
				theme("entertainment", 2, anyText("fun", "exciting", "entertainment", "enjoy")),
				theme("innovation", 2, anyText("new", "first", "innovative", "groundbreaking")),
				theme("accessibility", 2, anyText("easy", "simple", "accessible", "user-friendly")),
			},
			Rule: models.WeightedSumAtLeast(6),
		},
		{
			Name:        "user-journey",
			Description: "Full discovery journey: hero, section scroll-through, primary CTA and footer links",
			Tags:        []string{TagJourney},
			Path:        home,
			Steps: []scenario.Step{
				scenario.ScrollTo(0.3), scenario.Pause(1500 * time.Millisecond),
				scenario.ScrollTo(0.5), scenario.Pause(1500 * time.Millisecond),
				scenario.ScrollTo(0.7), scenario.Pause(1500 * time.Millisecond),
				scenario.ScrollTo(0.9), scenario.Pause(1500 * time.Millisecond),
				scenario.ScrollTo(0), scenario.Pause(time.Second),
			},
			Probes: []probe.Spec{
				probe.New("hero-heading", models.CSS("h1, h2")).Visible(),
				probe.New("primary-cta", hrefContains(s.playHost)).
					Fallback(exact("Sign Up to Play Now"), exact("Play Now")).
					Samples("href"),
				probe.New("legal-links", models.AnyOf(hrefContains("privacy"), hrefContains("terms"), exact("Contact Us"))).
					Samples("href"),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "signup-journey",
			Description: "Following the primary CTA lands on the play domain",
			Tags:        []string{TagJourney},
			Path:        home,
			Steps:       []scenario.Step{scenario.FollowLink(hrefContains(s.playHost), s.playHost)},
			Browsers:    []models.BrowserName{models.BrowserChromium},
			Probes: []probe.Spec{
				probe.URLMatches("play-domain", regexpFor(s.playHost)),
				probe.StatusBelow("status", 400),
				probe.New("signup-form", models.CSS(`form, input[type="email"], input[type="password"]`)).Optional(),
			},
			Rule: models.AllRequiredMatch(),
		},
	}
}
