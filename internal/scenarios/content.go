package scenarios

import (
	"time"

	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

// Questions the FAQ section is known to carry
var knownQuestions = []string{
	"What is Rebet?",
	"Is Rebet available in my state?",
	"What is the difference between Rebet Cash and Rebet Coins?",
	"Is Rebet legal?",
}

func content(s site) []scenario.Definition {
	home := s.path("home", "/")

	questions := make([]models.Descriptor, len(knownQuestions))
	for i, q := range knownQuestions {
		questions[i] = exact(q)
	}

	return []scenario.Definition{
		{
			Name:        "social-sportsbook",
			Description: "Social sportsbook positioning is visible, the brand name as the last resort",
			Tags:        []string{TagContent, TagSmoke},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("sportsbook", models.Text(`social.*sport`)).
					Visible().
					Fallback(
						models.Text("sportsbook"),
						models.Text("sweepstakes"),
						models.Text(`sport.*bet`),
						models.Text(`free.*play`),
						models.AnyOf(models.Attr("data-testid", "sport"), models.Attr("class", "sport")),
						models.Text("casino"),
						models.Text("rebet"),
					),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "casino-games",
			Description: "Casino game content is visible",
			Tags:        []string{TagContent},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("casino", models.Text("casino")).
					Visible().
					Fallback(
						models.Text("slots"),
						models.Text("plinko"),
						models.Text("blackjack"),
						models.Text("roulette"),
						models.Text("table games"),
						models.Text("live dealer"),
					),
			},
			Rule: models.AllRequiredMatch(),
		},
		{
			Name:        "user-reviews",
			Description: "Reviews or star ratings are visible further down the page",
			Tags:        []string{TagContent},
			Path:        home,
			Steps:       []scenario.Step{scenario.ScrollTo(0.7), scenario.Pause(2 * time.Second)},
			Probes: []probe.Spec{
				probe.New("reviews", models.Text(`review|rating|star|user.*think`)).Visible(),
				probe.New("star-images", models.AnyOf(models.AttrOn("img", "src", "star"), models.AttrOn("img", "alt", "star"))).Visible(),
			},
			Rule: models.AnyOneMatches(),
		},
		{
			Name:        "app-downloads",
			Description: "At least one app store download link is visible",
			Tags:        []string{TagContent},
			Path:        home,
			Probes: []probe.Spec{
				probe.New("app-store", hrefContains("apps.apple.com")).Visible().Samples("href"),
				probe.New("play-store", hrefContains("play.google.com")).Visible().Samples("href"),
			},
			Rule: models.AnyOneMatches(),
		},
		{
			Name:        "faq-questions",
			Description: "The FAQ section lists at least one of the known questions",
			Tags:        []string{TagContent},
			Path:        home,
			Steps:       []scenario.Step{scenario.ScrollTo(1), scenario.Pause(2 * time.Second)},
			Probes: []probe.Spec{
				probe.New("faq-heading", models.Text(`frequently.*asked|faq`)).Optional(),
				probe.New("known-questions", models.AnyOf(questions...)).Visible(),
			},
			Rule: models.AllRequiredMatch(),
		},
	}
}
