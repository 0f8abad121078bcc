package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/probe"
)

// Threshold probes read the evidence gathered in the ScenarioContext. They are
// deferred so every other probe has finished generating traffic first.

// apiMarkers identify api-like request URLs
var apiMarkers = []string{"/api/", "/v1/", ".json"}

// mixedContentMarkers identify browser mixed content warnings
var mixedContentMarkers = []string{"Mixed Content", "insecure"}

func firstN[T any](values []T, n int) []T {
	if len(values) > n {
		return values[:n]
	}
	return values
}

// ConsoleErrorsBelow passes while fewer than limit console errors were seen
func ConsoleErrorsBelow(name string, limit int) probe.Spec {
	return probe.NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (probe.Observation, error) {
		return consoleErrors(sctx, limit), nil
	}).Defer()
}

// ConsoleErrorsWithinPolicy is ConsoleErrorsBelow with the policy limit
func ConsoleErrorsWithinPolicy(name string) probe.Spec {
	return probe.NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (probe.Observation, error) {
		return consoleErrors(sctx, sctx.Policy.Thresholds.MaxConsoleErrors), nil
	}).Defer()
}

func consoleErrors(sctx *models.ScenarioContext, limit int) probe.Observation {
	errs := sctx.ConsoleErrors()
	samples := []string{fmt.Sprintf("%d console errors, limit %d", len(errs), limit)}
	for _, e := range firstN(errs, models.SampleCap-1) {
		samples = append(samples, e.Text)
	}
	return observe(len(errs) < limit, samples)
}

// NetworkErrorsBelow passes while fewer than limit responses failed
func NetworkErrorsBelow(name string, limit int) probe.Spec {
	return probe.NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (probe.Observation, error) {
		return networkErrors(sctx, limit), nil
	}).Defer()
}

// NetworkErrorsWithinPolicy is NetworkErrorsBelow with the policy limit
func NetworkErrorsWithinPolicy(name string) probe.Spec {
	return probe.NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (probe.Observation, error) {
		return networkErrors(sctx, sctx.Policy.Thresholds.MaxNetworkErrors), nil
	}).Defer()
}

func networkErrors(sctx *models.ScenarioContext, limit int) probe.Observation {
	errs := sctx.NetworkErrors()
	samples := []string{fmt.Sprintf("%d network errors, limit %d", len(errs), limit)}
	for _, e := range firstN(errs, models.SampleCap-1) {
		if e.Failed {
			samples = append(samples, fmt.Sprintf("failed: %s (%s)", e.URL, e.ErrorText))
		} else {
			samples = append(samples, fmt.Sprintf("%d: %s", e.Status, e.URL))
		}
	}
	return observe(len(errs) < limit, samples)
}

// NoMixedContent fails on mixed content console warnings or on plain http
// requests made by an https page
func NoMixedContent(name string) probe.Spec {
	return probe.NewSignal(name, func(_ context.Context, page interfaces.Page, sctx *models.ScenarioContext) (probe.Observation, error) {
		var findings []string
		for _, e := range sctx.Console() {
			for _, marker := range mixedContentMarkers {
				if strings.Contains(e.Text, marker) {
					findings = append(findings, e.Text)
					break
				}
			}
		}

		pageURL := sctx.FinalURL()
		if page != nil && page.URL() != "" {
			pageURL = page.URL()
		}
		if strings.HasPrefix(pageURL, "https://") {
			for _, e := range sctx.Network() {
				if strings.HasPrefix(e.URL, "http://") {
					findings = append(findings, "insecure request: "+e.URL)
				}
			}
		}

		if len(findings) == 0 {
			return observe(true, nil), nil
		}
		return observe(false, firstN(findings, models.SampleCap)), nil
	}).Defer()
}

// IsAPIRequest reports whether url looks like an api call
func IsAPIRequest(url string) bool {
	for _, marker := range apiMarkers {
		if strings.Contains(url, marker) {
			return true
		}
	}
	return false
}

// SecureRequestRatioAbove passes when more than ratio of the api-like
// requests used https. A page without api traffic passes.
func SecureRequestRatioAbove(name string, ratio float64) probe.Spec {
	return probe.NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (probe.Observation, error) {
		return secureRequestRatio(sctx, ratio), nil
	}).Defer()
}

// SecureRequestRatioWithinPolicy is SecureRequestRatioAbove with the policy ratio
func SecureRequestRatioWithinPolicy(name string) probe.Spec {
	return probe.NewSignal(name, func(_ context.Context, _ interfaces.Page, sctx *models.ScenarioContext) (probe.Observation, error) {
		return secureRequestRatio(sctx, sctx.Policy.Thresholds.MinSecureRequestRatio), nil
	}).Defer()
}

func secureRequestRatio(sctx *models.ScenarioContext, ratio float64) probe.Observation {
	seen := make(map[string]bool)
	total, secure := 0, 0
	var insecure []string
	for _, e := range sctx.Network() {
		if seen[e.URL] || !IsAPIRequest(e.URL) {
			continue
		}
		seen[e.URL] = true
		total++
		if strings.HasPrefix(e.URL, "https://") {
			secure++
		} else {
			insecure = append(insecure, e.URL)
		}
	}

	if total == 0 {
		return observe(true, []string{"no api requests observed"})
	}
	got := float64(secure) / float64(total)
	samples := append([]string{fmt.Sprintf("%d/%d api requests over https", secure, total)}, firstN(insecure, models.SampleCap-1)...)
	return observe(got > ratio || secure == total, samples)
}

func observe(ok bool, samples []string) probe.Observation {
	if ok {
		return probe.Observation{Count: 1, Samples: samples}
	}
	return probe.Observation{Samples: samples}
}
