package probe

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/browser"
)

const seoMarkup = `<html><head>
<title>Rebet - Social Sports Betting App</title>
<meta name="description" content="Rebet is the social sportsbook where you bet with friends.">
</head><body>
<h1>Rebet</h1>
<img src="/logo.png" alt="Rebet logo">
<img src="/hero.png" alt="  ">
<img src="/app.png" alt="App screenshot">
</body></html>`

func TestSignals_TitleAndBody(t *testing.T) {
	page := staticPage(t, seoMarkup)
	e := newEvaluator()
	ctx := context.Background()
	sctx := testContext()

	r := e.Evaluate(ctx, page, sctx, TitleMatches("title", regexp.MustCompile(`(?i)rebet`)))
	assert.True(t, r.Matched)
	assert.True(t, r.BooleanOnly)
	assert.Equal(t, []string{"Rebet - Social Sports Betting App"}, r.SampleValues)

	assert.True(t, e.Evaluate(ctx, page, sctx, TitleLength("title-length", 6, 79)).Matched)
	assert.False(t, e.Evaluate(ctx, page, sctx, TitleLength("title-length", 6, 10)).Matched)

	assert.True(t, e.Evaluate(ctx, page, sctx, BodyTextMatches("brand", regexp.MustCompile(`(?i)rebet`))).Matched)
	assert.False(t, e.Evaluate(ctx, page, sctx, BodyTextLength("content", 100)).Matched)
}

func TestSignals_MetaDescription(t *testing.T) {
	e := newEvaluator()
	ctx := context.Background()

	assert.True(t, e.Evaluate(ctx, staticPage(t, seoMarkup), testContext(), MetaDescriptionLength("meta", 21, 199)).Matched)
	assert.False(t, e.Evaluate(ctx, staticPage(t, seoMarkup), testContext(), MetaDescriptionLength("meta", 100, 199)).Matched)

	r := e.Evaluate(ctx, staticPage(t, `<html><body>x</body></html>`), testContext(), MetaDescriptionLength("meta", 21, 199))
	assert.True(t, r.Matched)
	assert.Equal(t, []string{"not present"}, r.SampleValues)
}

func TestSignals_AltText(t *testing.T) {
	e := newEvaluator()
	page := staticPage(t, seoMarkup)
	ctx := context.Background()

	r := e.Evaluate(ctx, page, testContext(), AltTextRatioWithinPolicy("alt", 10))
	assert.True(t, r.Matched, "2 of 3 is above the 0.5 policy ratio")
	assert.Contains(t, r.SampleValues[0], "2/3 with alt")
	assert.Contains(t, r.SampleValues[1], "/hero.png")

	assert.False(t, e.Evaluate(ctx, page, testContext(), AltTextRatioAbove("alt", 0.7, 10)).Matched)
	assert.True(t, e.Evaluate(ctx, page, testContext(), AltTextRatioAbove("alt", 0.7, 1)).Matched)
}

func TestSignals_DocumentResponse(t *testing.T) {
	e := newEvaluator()
	page := staticPage(t, seoMarkup)
	ctx := context.Background()

	sctx := testContext()
	sctx.SetDocument("https://rebet.app/", 200, map[string]string{
		"Strict-Transport-Security": "max-age=1",
		"X-Frame-Options":           "DENY",
	})

	r := e.Evaluate(ctx, page, sctx, SecurityHeaders("headers", 2))
	assert.True(t, r.Matched)
	assert.Equal(t, 2, r.Count)
	assert.False(t, r.BooleanOnly)
	assert.Equal(t, []string{"strict-transport-security", "x-frame-options"}, r.SampleValues)

	assert.False(t, e.Evaluate(ctx, page, sctx, SecurityHeaders("headers", 3)).Matched)
	assert.True(t, e.Evaluate(ctx, page, sctx, SecurityHeadersWithinPolicy("headers")).Matched)
	assert.True(t, e.Evaluate(ctx, page, sctx, StatusBelow("status", 400)).Matched)
	assert.True(t, e.Evaluate(ctx, page, sctx, HTTPSOnly("https")).Matched)

	t.Run("plain http", func(t *testing.T) {
		insecure := browser.NewStaticPage(arbor.NewLogger())
		require.NoError(t, insecure.SetContent("http://rebet.app/", "<html><body></body></html>"))
		assert.False(t, e.Evaluate(ctx, insecure, testContext(), HTTPSOnly("https")).Matched)
	})

	t.Run("no response recorded", func(t *testing.T) {
		r := e.Evaluate(ctx, page, testContext(), SecurityHeaders("headers", 1))
		assert.False(t, r.Matched)
		assert.Contains(t, r.Error, "no document response")
	})
}

func TestSignals_LoadTime(t *testing.T) {
	e := newEvaluator()
	page := staticPage(t, seoMarkup)
	ctx := context.Background()

	sctx := testContext()
	sctx.SetTimings(3*time.Second, 2*time.Second)
	assert.True(t, e.Evaluate(ctx, page, sctx, LoadTimeWithinPolicy("load")).Matched)
	assert.False(t, e.Evaluate(ctx, page, sctx, LoadTimeBelow("load", 5*time.Second)).Matched)
}

func TestSignals_ScriptSignalsNeedAnEngine(t *testing.T) {
	e := newEvaluator()
	page := staticPage(t, seoMarkup)

	r := e.Evaluate(context.Background(), page, testContext(), NoHorizontalOverflowWithinPolicy("overflow"))
	assert.False(t, r.Matched)
	assert.Contains(t, r.Error, "not supported")

	r = e.Evaluate(context.Background(), page, testContext(), ImageLoadRatioAbove("images", 0.3, 10))
	assert.False(t, r.Matched)
	assert.Contains(t, r.Error, "not supported")
}

func TestSpec_Builders(t *testing.T) {
	base := New("cta", models.Text("play now"))
	assert.True(t, base.Required)
	assert.Equal(t, models.DefaultMinCount, base.MinCount)

	withFallback := base.Fallback(models.CSS(".cta"))
	again := withFallback.Fallback(models.CSS(".play-button"))
	assert.Len(t, withFallback.Fallbacks, 1, "builders never share fallback storage")
	assert.Len(t, again.Fallbacks, 2)
	assert.Len(t, again.Chain(), 3)

	assert.False(t, base.Optional().Required)
	assert.True(t, base.Optional().Require().Required)
	assert.True(t, base.Defer().Deferred)
	assert.NoError(t, base.Validate())

	sig := NewSignal("s", func(context.Context, interfaces.Page, *models.ScenarioContext) (Observation, error) {
		return Observation{}, nil
	})
	assert.True(t, sig.BooleanOnly)
	assert.NoError(t, sig.Validate())
	assert.Error(t, sig.Visible().Validate())

	sig.Descriptor = models.CSS("a")
	assert.Error(t, sig.Validate())
}
