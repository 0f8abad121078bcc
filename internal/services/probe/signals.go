package probe

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// SecurityHeaderNames are the response headers counted by SecurityHeaders
var SecurityHeaderNames = []string{
	"strict-transport-security",
	"content-security-policy",
	"x-frame-options",
	"x-content-type-options",
	"referrer-policy",
}

func pass(ok bool, samples ...string) Observation {
	if ok {
		return Observation{Count: 1, Samples: samples}
	}
	return Observation{Samples: samples}
}

// TitleMatches passes when the document title matches re
func TitleMatches(name string, re *regexp.Regexp) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (Observation, error) {
		title, err := page.Title(ctx)
		if err != nil {
			return Observation{}, err
		}
		return pass(re.MatchString(title), title), nil
	})
}

// TitleLength passes when the title has between min and max characters
func TitleLength(name string, min, max int) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (Observation, error) {
		title, err := page.Title(ctx)
		if err != nil {
			return Observation{}, err
		}
		n := len([]rune(strings.TrimSpace(title)))
		return pass(n >= min && n <= max, fmt.Sprintf("%d chars: %s", n, title)), nil
	})
}

// BodyTextMatches passes when the text of the body matches re
func BodyTextMatches(name string, re *regexp.Regexp) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (Observation, error) {
		text, err := bodyText(ctx, page)
		if err != nil {
			return Observation{}, err
		}
		found := re.FindString(text)
		return pass(found != "", found), nil
	})
}

// BodyTextLength passes when the body carries at least min characters of text
func BodyTextLength(name string, min int) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (Observation, error) {
		text, err := bodyText(ctx, page)
		if err != nil {
			return Observation{}, err
		}
		n := len([]rune(strings.Join(strings.Fields(text), " ")))
		return pass(n >= min, fmt.Sprintf("%d chars", n)), nil
	})
}

func bodyText(ctx context.Context, page interfaces.Page) (string, error) {
	bodies, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "body"}, nil)
	if err != nil {
		return "", err
	}
	if len(bodies) == 0 {
		return "", nil
	}
	return page.TextContent(ctx, bodies[0])
}

// URLMatches passes when the current page URL matches re
func URLMatches(name string, re *regexp.Regexp) Spec {
	return NewSignal(name, func(_ context.Context, page interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		u := currentURL(page, sctx)
		return pass(re.MatchString(u), u), nil
	})
}

// HTTPSOnly passes when the page ended up on an https URL
func HTTPSOnly(name string) Spec {
	return NewSignal(name, func(_ context.Context, page interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		u := currentURL(page, sctx)
		return pass(common.IsSecureURL(u), u), nil
	})
}

func currentURL(page interfaces.Page, sctx *models.ScenarioContext) string {
	if u := page.URL(); u != "" {
		return u
	}
	if sctx != nil {
		return sctx.FinalURL()
	}
	return ""
}

// StatusBelow passes when the main document status is known and below limit
func StatusBelow(name string, limit int) Spec {
	return NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		if sctx == nil || sctx.DocumentStatus() == 0 {
			return Observation{}, fmt.Errorf("document status unknown")
		}
		status := sctx.DocumentStatus()
		return pass(status < limit, fmt.Sprintf("status %d", status)), nil
	})
}

// SecurityHeaders counts the security headers on the main document response
func SecurityHeaders(name string, min int) Spec {
	return NewCountSignal(name, min, securityHeaders)
}

// SecurityHeadersWithinPolicy passes when the policy minimum of security headers is present
func SecurityHeadersWithinPolicy(name string) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		obs, err := securityHeaders(ctx, page, sctx)
		if err != nil {
			return obs, err
		}
		min := sctx.Policy.Thresholds.MinSecurityHeaders
		return pass(obs.Count >= min, append([]string{fmt.Sprintf("%d of %d required", obs.Count, min)}, obs.Samples...)...), nil
	})
}

func securityHeaders(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
	if sctx == nil || sctx.DocumentStatus() == 0 {
		return Observation{}, fmt.Errorf("no document response recorded")
	}
	var found []string
	for _, h := range SecurityHeaderNames {
		if _, ok := sctx.DocumentHeader(h); ok {
			found = append(found, h)
		}
	}
	return Observation{Count: len(found), Samples: found}, nil
}

const overflowScript = `({scroll: document.body ? document.body.scrollWidth : 0, inner: window.innerWidth})`

// NoHorizontalOverflow passes when the body is no wider than the window plus margin
func NoHorizontalOverflow(name string, marginPx int) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (Observation, error) {
		return overflow(ctx, page, marginPx)
	})
}

// NoHorizontalOverflowWithinPolicy uses the policy overflow margin
func NoHorizontalOverflowWithinPolicy(name string) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		margin := 0
		if sctx != nil {
			margin = sctx.Policy.Thresholds.OverflowMarginPx
		}
		return overflow(ctx, page, margin)
	})
}

func overflow(ctx context.Context, page interfaces.Page, margin int) (Observation, error) {
	var dims struct {
		Scroll int `json:"scroll"`
		Inner  int `json:"inner"`
	}
	if err := page.Evaluate(ctx, overflowScript, &dims); err != nil {
		return Observation{}, err
	}
	return pass(dims.Scroll <= dims.Inner+margin, fmt.Sprintf("scrollWidth %d, innerWidth %d, margin %d", dims.Scroll, dims.Inner, margin)), nil
}

const imageLoadScript = `(function(limit){
  var imgs = Array.prototype.slice.call(document.images, 0, limit);
  var loaded = 0, visible = 0;
  imgs.forEach(function(img){
    var r = img.getBoundingClientRect();
    var s = window.getComputedStyle(img);
    if (r.width === 0 || r.height === 0 || s.visibility === "hidden" || s.display === "none") return;
    visible++;
    if (img.complete && img.naturalHeight !== 0) loaded++;
  });
  return {checked: imgs.length, visible: visible, loaded: loaded};
})(%d)`

// ImageLoadRatioAbove passes when the share of loaded images among the first
// sample images exceeds ratio. A page without images passes.
func ImageLoadRatioAbove(name string, ratio float64, sample int) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (Observation, error) {
		return imageLoadRatio(ctx, page, ratio, sample)
	})
}

// ImageLoadRatioWithinPolicy uses the policy image load ratio over the first sample images
func ImageLoadRatioWithinPolicy(name string, sample int) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		ratio := 0.0
		if sctx != nil {
			ratio = sctx.Policy.Thresholds.MinImageLoadRatio
		}
		return imageLoadRatio(ctx, page, ratio, sample)
	})
}

func imageLoadRatio(ctx context.Context, page interfaces.Page, ratio float64, sample int) (Observation, error) {
	var res struct {
		Checked int `json:"checked"`
		Visible int `json:"visible"`
		Loaded  int `json:"loaded"`
	}
	if err := page.Evaluate(ctx, fmt.Sprintf(imageLoadScript, sample), &res); err != nil {
		return Observation{}, err
	}
	if res.Checked == 0 {
		return pass(true, "no images"), nil
	}
	got := float64(res.Loaded) / float64(res.Checked)
	return pass(got > ratio, fmt.Sprintf("%d/%d loaded (%.0f%%)", res.Loaded, res.Checked, got*100)), nil
}

// AltTextRatioAbove passes when the share of the first sample images with a
// non-blank alt exceeds ratio. A page without images passes.
func AltTextRatioAbove(name string, ratio float64, sample int) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (Observation, error) {
		return altTextRatio(ctx, page, ratio, sample)
	})
}

// AltTextRatioWithinPolicy uses the policy alt text ratio
func AltTextRatioWithinPolicy(name string, sample int) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		ratio := 0.0
		if sctx != nil {
			ratio = sctx.Policy.Thresholds.MinAltTextRatio
		}
		return altTextRatio(ctx, page, ratio, sample)
	})
}

func altTextRatio(ctx context.Context, page interfaces.Page, ratio float64, sample int) (Observation, error) {
	imgs, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: "img"}, nil)
	if err != nil {
		return Observation{}, err
	}
	if sample > 0 && len(imgs) > sample {
		imgs = imgs[:sample]
	}
	if len(imgs) == 0 {
		return pass(true, "no images"), nil
	}

	withAlt := 0
	var missing []string
	for _, img := range imgs {
		alt, ok, err := page.Attribute(ctx, img, "alt")
		if err != nil {
			continue
		}
		if ok && strings.TrimSpace(alt) != "" {
			withAlt++
			continue
		}
		if src, ok, _ := page.Attribute(ctx, img, "src"); ok && len(missing) < models.SampleCap-1 {
			missing = append(missing, "missing alt: "+src)
		}
	}
	got := float64(withAlt) / float64(len(imgs))
	samples := append([]string{fmt.Sprintf("%d/%d with alt (%.0f%%)", withAlt, len(imgs), got*100)}, missing...)
	return pass(got > ratio, samples...), nil
}

// LoadTimeBelow passes when navigation plus the load-state wait took less than max
func LoadTimeBelow(name string, max time.Duration) Spec {
	return NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		return loadTime(sctx, max)
	})
}

// LoadTimeWithinPolicy uses the policy maximum load time
func LoadTimeWithinPolicy(name string) Spec {
	return NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (Observation, error) {
		if sctx == nil {
			return Observation{}, fmt.Errorf("no scenario context")
		}
		return loadTime(sctx, sctx.Policy.Thresholds.MaxLoadTime)
	})
}

func loadTime(sctx *models.ScenarioContext, max time.Duration) (Observation, error) {
	if sctx == nil {
		return Observation{}, fmt.Errorf("no scenario context")
	}
	elapsed := sctx.LoadTime()
	return pass(elapsed < max, fmt.Sprintf("%s (max %s)", elapsed.Round(time.Millisecond), max)), nil
}

// MetaDescriptionLength passes when the meta description is absent or has
// between min and max characters
func MetaDescriptionLength(name string, min, max int) Spec {
	return NewSignal(name, func(ctx context.Context, page interfaces.Page, _ *models.ScenarioContext) (Observation, error) {
		metas, err := page.QueryAll(ctx, interfaces.Query{Kind: interfaces.QueryCSS, Selector: `meta[name="description"]`}, nil)
		if err != nil {
			return Observation{}, err
		}
		if len(metas) == 0 {
			return pass(true, "not present"), nil
		}
		content, _, err := page.Attribute(ctx, metas[0], "content")
		if err != nil {
			return Observation{}, err
		}
		n := len([]rune(strings.TrimSpace(content)))
		return pass(n >= min && n <= max, fmt.Sprintf("%d chars: %s", n, content)), nil
	})
}
