package scenarios

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/browser"
	"github.com/ternarybob/siteprobe/internal/services/evidence"
	"github.com/ternarybob/siteprobe/internal/services/locator"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
	"github.com/ternarybob/siteprobe/internal/services/suite"
)

const fixtureHome = `<!DOCTYPE html>
<html><head>
<title>Rebet - Social Sports Betting</title>
<meta name="description" content="Rebet is the social sportsbook and casino where friends play together.">
<meta property="og:title" content="Rebet">
</head><body>
<nav>
  <a href="/contact-us">Contact Us</a>
  <a href="/faq">FAQ</a>
  <a href="/privacy-policy">Privacy Policy</a>
  <a href="/terms-of-use">Terms of Use</a>
</nav>
<main>
  <h1>Welcome to Rebet</h1>
  <p>The first social sportsbook. Play casino games with friends.</p>
  <a class="cta" href="https://play.rebet.app/">Play Now</a>
  <button>Sign Up</button>
  <div class="game-card">Plinko</div>
</main>
<footer>Copyright 2026 Rebet. 18+ only. Please gamble responsibly.</footer>
</body></html>`

const fixtureContact = `<html><head><title>Contact Rebet</title></head><body><main><h1>Contact us</h1></main></body></html>`

func newFixtureSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, fixtureHome)
	})
	mux.HandleFunc("/contact-us", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fixtureContact)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func target(baseURL string) common.TargetConfig {
	cfg := common.NewDefaultConfig()
	cfg.Target.BaseURL = baseURL
	return cfg.Target
}

func TestCatalog_DefinitionsAreValid(t *testing.T) {
	defs := Catalog(target("https://rebet.app"))
	require.NotEmpty(t, defs)

	names := map[string]bool{}
	for _, d := range defs {
		require.NoError(t, d.Validate(), d.Name)
		assert.False(t, names[d.Name], "duplicate scenario %s", d.Name)
		names[d.Name] = true
		assert.NotEmpty(t, d.Tags, d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
	}

	for _, family := range []string{TagHomepage, TagNavigation, TagContent, TagPerformance, TagAccessible, TagSEO, TagSecurity, TagResponsive, TagCrossBrowser, TagEngagement, TagJourney} {
		selected, err := Select(defs, []string{family})
		require.NoError(t, err)
		assert.NotEmpty(t, selected, family)
	}
}

func TestCatalog_PlansAgainstDefaultViewports(t *testing.T) {
	cfg := common.NewDefaultConfig()
	options, err := suite.OptionsFromConfig(cfg)
	require.NoError(t, err)

	s := suite.New(nil, browser.NewStaticDriver(browser.StaticDriverConfig{}, arbor.NewLogger()), options, nil, nil, arbor.NewLogger())
	runs, skipped, err := s.Plan(Catalog(cfg.Target))
	require.NoError(t, err, "every viewport name in the catalog exists in the default table")
	assert.Empty(t, skipped)
	assert.Greater(t, len(runs), len(Catalog(cfg.Target)), "responsive scenarios fan out")
}

func TestSelect(t *testing.T) {
	defs := Catalog(target("https://rebet.app"))

	smoke, err := Select(defs, []string{"smoke"})
	require.NoError(t, err)
	for _, d := range smoke {
		assert.True(t, d.HasTag(TagSmoke))
	}

	one, err := Select(defs, []string{"homepage-load"})
	require.NoError(t, err)
	require.Len(t, one, 1)

	_, err = Select(defs, []string{"smoke", "no-such-scenario"})
	assert.Error(t, err)

	all, err := Select(defs, nil)
	require.NoError(t, err)
	assert.Len(t, all, len(defs))
}

func TestMerge_ReplacesByName(t *testing.T) {
	builtin := Catalog(target("https://rebet.app"))
	replacement := scenario.Definition{
		Name:   "Homepage-Load",
		Tags:   []string{"custom"},
		Probes: []probe.Spec{probe.New("h1", models.CSS("h1"))},
		Rule:   models.AllRequiredMatch(),
	}
	extra := scenario.Definition{
		Name:   "blog",
		Probes: []probe.Spec{probe.New("posts", models.CSS("article"))},
		Rule:   models.AllRequiredMatch(),
	}

	merged := Merge(builtin, []scenario.Definition{replacement, extra})
	assert.Len(t, merged, len(builtin)+1)
	assert.Equal(t, "Homepage-Load", merged[0].Name)
	assert.Equal(t, "blog", merged[len(merged)-1].Name)
	assert.Equal(t, "homepage-load", builtin[0].Name, "the built-in slice is not modified")
}

func TestTags(t *testing.T) {
	tags := Tags(Catalog(target("https://rebet.app")))
	assert.Contains(t, tags, TagSmoke)
	assert.IsIncreasing(t, tags)
}

func TestCatalog_RunsOfflineAgainstFixture(t *testing.T) {
	srv := newFixtureSite(t)
	logger := arbor.NewLogger()

	driver := browser.NewStaticDriver(browser.StaticDriverConfig{}, logger)
	resolver := locator.NewResolver(logger)
	collector := evidence.NewCollector(evidence.CollectorConfig{Screenshots: evidence.ScreenshotsOff, OutputDir: t.TempDir()}, logger)
	runner := scenario.NewRunner(driver, resolver, probe.NewEvaluator(resolver, logger, 4), collector, nil, logger)

	cfg := common.NewDefaultConfig()
	cfg.Target.BaseURL = srv.URL
	options, err := suite.OptionsFromConfig(cfg)
	require.NoError(t, err)
	options.Workers = 4

	defs, err := Select(Catalog(cfg.Target), []string{
		"homepage-load", "homepage-branding", "homepage-cta", "navigate-contact",
		"play-cta-target", "app-store-links", "social-sportsbook", "casino-games",
		"seo-meta", "responsible-gaming", "gaming-features", "signup-forms",
		"https-enforced",
	})
	require.NoError(t, err)

	result, err := suite.New(runner, driver, options, nil, nil, logger).Execute(context.Background(), defs)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, len(defs))

	for _, o := range result.Outcomes {
		if o.Scenario == "https-enforced" {
			assert.Equal(t, models.StateFailed, o.State, "the fixture is served over plain http")
			assert.Equal(t, models.FailureAssertion, o.FailureKind)
			continue
		}
		assert.Equal(t, models.StatePassed, o.State, "%s: %v", o.Scenario, o.Err())
	}
}
