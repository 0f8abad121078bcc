package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

const fixtureHTML = `<!DOCTYPE html>
<html>
<head><title> Rebet | Social Sports Betting </title><script>var x = "Download";</script></head>
<body>
  <nav id="main-nav">
    <a href="/faq">FAQ</a>
    <a href="https://apps.apple.com/us/app/rebet/id1">Download on the App Store</a>
  </nav>
  <section id="hero">
    <h1>Bet with <span>friends</span></h1>
    <p>Download the app today</p>
  </section>
  <div hidden><a href="https://play.google.com/store/apps/details?id=rebet">Get it on Google Play</a></div>
  <div style="display: none"><p>Secret download</p></div>
  <input type="hidden" name="csrf" value="x">
  <img src="/a.png" alt="Logo">
  <img src="/b.png">
</body>
</html>`

func fixturePage(t *testing.T) *StaticPage {
	t.Helper()
	page := NewStaticPage(arbor.NewLogger())
	require.NoError(t, page.SetContent("https://rebet.app/", fixtureHTML))
	return page
}

func TestStaticPage_QueryCSS(t *testing.T) {
	page := fixturePage(t)
	ctx := context.Background()

	els, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: `a[href*="apps.apple.com"]`}, nil)
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, "a", els[0].Tag)

	els, err = page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "img"}, nil)
	require.NoError(t, err)
	assert.Len(t, els, 2)

	_, err = page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "a[href"}, nil)
	assert.Error(t, err)
}

func TestStaticPage_QueryTextReturnsDeepestMatches(t *testing.T) {
	page := fixturePage(t)
	ctx := context.Background()

	els, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryText, Pattern: "download"}, nil)
	require.NoError(t, err)

	tags := make([]string, 0, len(els))
	for _, el := range els {
		tags = append(tags, el.Tag)
	}
	// anchor in nav, hero paragraph, hidden paragraph; never the head script
	assert.ElementsMatch(t, []string{"a", "p", "p"}, tags)

	t.Run("case sensitive", func(t *testing.T) {
		els, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryText, Pattern: "Download", CaseSensitive: true}, nil)
		require.NoError(t, err)
		assert.Len(t, els, 2)
	})

	t.Run("nested markup", func(t *testing.T) {
		els, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryText, Pattern: "with friends"}, nil)
		require.NoError(t, err)
		require.Len(t, els, 1)
		assert.Equal(t, "h1", els[0].Tag)
	})
}

func TestStaticPage_TextIgnoresScriptPayloads(t *testing.T) {
	page := NewStaticPage(arbor.NewLogger())
	require.NoError(t, page.SetContent("https://rebet.app/", `<html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"brand":"rebet","tags":["casino","bet"]}}</script>
<style>.rebet-logo{color:red}</style>
<div id="root"><p>Hello <noscript>rebet</noscript>world</p></div>
</body></html>`))
	ctx := context.Background()

	els, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryText, Pattern: "rebet|casino"}, nil)
	require.NoError(t, err)
	assert.Empty(t, els)

	els, err = page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryText, Pattern: "hello world"}, nil)
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, "p", els[0].Tag)

	text, err := page.TextContent(ctx, els[0])
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
}

func TestStaticPage_ScopedQuery(t *testing.T) {
	page := fixturePage(t)
	ctx := context.Background()

	navs, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "#main-nav"}, nil)
	require.NoError(t, err)
	require.Len(t, navs, 1)

	links, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "a"}, &navs[0])
	require.NoError(t, err)
	assert.Len(t, links, 2)

	texts, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryText, Pattern: "download"}, &navs[0])
	require.NoError(t, err)
	assert.Len(t, texts, 1)

	_, err = page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "a"}, &interfaces.Element{Ref: "missing"})
	assert.ErrorIs(t, err, interfaces.ErrElementDetached)
}

func TestStaticPage_Visibility(t *testing.T) {
	page := fixturePage(t)
	ctx := context.Background()

	visible := func(selector string) bool {
		els, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: selector}, nil)
		require.NoError(t, err)
		require.NotEmpty(t, els, selector)
		v, err := page.IsVisible(ctx, els[0])
		require.NoError(t, err)
		return v
	}

	assert.True(t, visible(`a[href*="apps.apple.com"]`))
	assert.False(t, visible(`a[href*="play.google.com"]`), "hidden attribute on ancestor")
	assert.False(t, visible(`div[style] p`), "inline display none")
	assert.False(t, visible(`input[name="csrf"]`))
	assert.False(t, visible("script"))
}

func TestStaticPage_AttributeTitleContent(t *testing.T) {
	page := fixturePage(t)
	ctx := context.Background()

	imgs, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "img"}, nil)
	require.NoError(t, err)
	require.Len(t, imgs, 2)

	alt, ok, err := page.Attribute(ctx, imgs[0], "alt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Logo", alt)

	_, ok, err = page.Attribute(ctx, imgs[1], "alt")
	require.NoError(t, err)
	assert.False(t, ok)

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rebet | Social Sports Betting", title)

	content, err := page.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "main-nav")
	assert.Equal(t, "https://rebet.app/", page.URL())
}

func TestStaticPage_UnsupportedAndEmpty(t *testing.T) {
	ctx := context.Background()
	page := NewStaticPage(arbor.NewLogger())

	_, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "a"}, nil)
	assert.ErrorIs(t, err, interfaces.ErrNoDocument)
	assert.ErrorIs(t, page.WaitForLoad(ctx, models.LoadStateLoad, time.Second), interfaces.ErrNoDocument)

	var out int
	assert.True(t, errors.Is(page.Evaluate(ctx, "1", &out), interfaces.ErrUnsupported))
	assert.True(t, errors.Is(page.Screenshot(ctx, "x.png", true), interfaces.ErrUnsupported))
}

func TestStaticDriver_Navigate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Strict-Transport-Security", "max-age=63072000")
			_, _ = w.Write([]byte(fixtureHTML))
		case "/old":
			http.Redirect(w, r, "/", http.StatusMovedPermanently)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	driver := NewStaticDriver(StaticDriverConfig{Client: server.Client()}, arbor.NewLogger())
	require.NoError(t, driver.Start(context.Background()))
	defer driver.Stop()

	assert.True(t, driver.Supports(models.BrowserWebKit))

	page, release, err := driver.Acquire(context.Background(), interfaces.PageOptions{Browser: models.BrowserChromium})
	require.NoError(t, err)
	defer release()

	var mu sync.Mutex
	var responses []models.NetworkEntry
	page.OnResponse(func(e models.NetworkEntry) {
		mu.Lock()
		defer mu.Unlock()
		responses = append(responses, e)
	})

	t.Run("follows redirects and lowercases headers", func(t *testing.T) {
		nav, err := page.Navigate(context.Background(), server.URL+"/old", 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, nav.Status)
		assert.Equal(t, server.URL+"/", nav.URL)
		assert.Equal(t, "DENY", nav.Headers["x-frame-options"])
		assert.Contains(t, nav.Headers, "strict-transport-security")
		assert.NoError(t, page.WaitForLoad(context.Background(), models.LoadStateNetworkIdle, time.Second))
	})

	t.Run("not found is a response, not an error", func(t *testing.T) {
		nav, err := page.Navigate(context.Background(), server.URL+"/missing", 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, nav.Status)
	})

	t.Run("unreachable host emits a failed entry", func(t *testing.T) {
		_, err := page.Navigate(context.Background(), "http://127.0.0.1:1/", 2*time.Second)
		assert.Error(t, err)
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, responses, 3)
	assert.False(t, responses[0].IsError())
	assert.True(t, responses[1].IsError())
	assert.True(t, responses[2].Failed)
}

func TestStaticDriver_ReleaseIsIdempotent(t *testing.T) {
	driver := NewStaticDriver(StaticDriverConfig{}, arbor.NewLogger())
	page, release, err := driver.Acquire(context.Background(), interfaces.PageOptions{})
	require.NoError(t, err)
	require.NotNil(t, page)

	release()
	release()

	_, err = page.Navigate(context.Background(), "http://example.invalid/", time.Second)
	assert.Error(t, err)
}
