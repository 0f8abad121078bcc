// -----------------------------------------------------------------------
// Probe Evaluator - bounded, non-throwing evaluation of probe specs
// -----------------------------------------------------------------------

package probe

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/locator"
)

const (
	defaultActionTimeout = 45 * time.Second
	visibilityPoll       = 100 * time.Millisecond
	maxSampleLength      = 120
)

// Evaluator runs probe specs against a page. It never returns an error: every
// failure is folded into the ProbeResult.
type Evaluator struct {
	resolver    *locator.Resolver
	logger      arbor.ILogger
	parallelism int
}

// NewEvaluator creates an evaluator running at most parallelism probes at once
func NewEvaluator(resolver *locator.Resolver, logger arbor.ILogger, parallelism int) *Evaluator {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Evaluator{resolver: resolver, logger: logger, parallelism: parallelism}
}

// Timeout returns the bound applied to spec: its own timeout, else the policy
// action timeout, never below the floor
func Timeout(spec Spec, sctx *models.ScenarioContext) time.Duration {
	timeout := spec.Timeout
	if timeout <= 0 && sctx != nil {
		timeout = sctx.Policy.ActionTimeout
	}
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	if timeout < models.MinProbeTimeout {
		timeout = models.MinProbeTimeout
	}
	return timeout
}

// EvaluateAll evaluates every spec and returns results in input order.
// Independent probes run concurrently and are joined before deferred ones run.
func (e *Evaluator) EvaluateAll(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext, specs []Spec) []models.ProbeResult {
	results := make([]models.ProbeResult, len(specs))

	run := func(deferred bool) {
		g := new(errgroup.Group)
		g.SetLimit(e.parallelism)
		for i := range specs {
			if specs[i].Deferred != deferred {
				continue
			}
			i := i
			g.Go(func() error {
				results[i] = e.Evaluate(ctx, page, sctx, specs[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	run(false)
	run(true)
	return results
}

// Evaluate runs one spec within its timeout
func (e *Evaluator) Evaluate(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext, spec Spec) models.ProbeResult {
	start := time.Now()
	base := models.ProbeResult{
		Name:               spec.Name,
		Required:           spec.Required,
		MinCount:           spec.MinCount,
		VisibilityRequired: spec.VisibilityRequired,
		BooleanOnly:        spec.BooleanOnly,
	}
	if spec.Signal == nil {
		base.Descriptor = spec.Descriptor.String()
	}

	finish := func(r models.ProbeResult) models.ProbeResult {
		r.ElapsedMs = time.Since(start).Milliseconds()
		r.Matched = models.MatchedFor(r.Count, r.MinCount, r.VisibilityRequired, r.Visible)
		e.logger.Debug().
			Str("probe", r.Name).
			Bool("matched", r.Matched).
			Int("count", r.Count).
			Int("chain_index", r.ChainIndex).
			Int64("elapsed_ms", r.ElapsedMs).
			Str("error", r.Error).
			Msg("Probe evaluated")
		return r
	}

	if err := spec.Validate(); err != nil {
		// An invalid spec never matches, whatever min count it asked for
		base.Error = err.Error()
		if base.MinCount < models.DefaultMinCount {
			base.MinCount = models.DefaultMinCount
		}
		return finish(base)
	}

	timeout := Timeout(spec, sctx)
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan models.ProbeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Str("probe", spec.Name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in probe")
				failed := base
				failed.Error = fmt.Sprintf("panic: %v", r)
				done <- failed
			}
		}()
		if spec.Signal != nil {
			done <- e.evaluateSignal(probeCtx, page, sctx, spec, base)
		} else {
			done <- e.evaluateDescriptor(probeCtx, page, spec, base, timeout)
		}
	}()

	select {
	case r := <-done:
		return finish(r)
	case <-probeCtx.Done():
		timedOut := base
		timedOut.Error = fmt.Sprintf("probe did not finish within %s: %v", timeout, probeCtx.Err())
		return finish(timedOut)
	}
}

func (e *Evaluator) evaluateSignal(ctx context.Context, page interfaces.Page, sctx *models.ScenarioContext, spec Spec, r models.ProbeResult) models.ProbeResult {
	obs, err := spec.Signal(ctx, page, sctx)
	if err != nil {
		r.Error = err.Error()
	}
	r.Count = obs.Count
	r.SampleValues = capSamples(obs.Samples)
	return r
}

// evaluateDescriptor walks the fallback chain until an attempt reaches MinCount.
// Without a success the attempt with the highest count is reported.
func (e *Evaluator) evaluateDescriptor(ctx context.Context, page interfaces.Page, spec Spec, r models.ProbeResult, timeout time.Duration) models.ProbeResult {
	chain := spec.Chain()
	r.AttemptCounts = make([]int, 0, len(chain))

	var (
		chosen     = -1
		best       = 0
		bestEls    []interfaces.Element
		attemptErr = make([]error, 0, len(chain))
	)
	for i, d := range chain {
		els, err := e.resolver.Resolve(ctx, page, d, nil)
		attemptErr = append(attemptErr, err)
		r.AttemptCounts = append(r.AttemptCounts, len(els))

		if i == 0 || len(els) > len(bestEls) {
			best = i
			bestEls = els
		}
		if err == nil && len(els) >= spec.MinCount {
			chosen = i
			best = i
			bestEls = els
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.ChainIndex = best
	r.Descriptor = chain[best].String()
	r.Count = len(bestEls)

	if chosen < 0 {
		for _, err := range attemptErr {
			if err != nil {
				r.Error = err.Error()
				break
			}
		}
	}

	if spec.VisibilityRequired && len(bestEls) > 0 {
		r.Visible = e.anyVisible(ctx, page, bestEls, timeout-timeout/10)
	}
	r.SampleValues = e.samples(ctx, page, bestEls, spec.SampleAttribute)
	return r
}

// anyVisible polls the first SampleCap elements until one is visible or the
// window closes. Check failures count as not visible.
func (e *Evaluator) anyVisible(ctx context.Context, page interfaces.Page, els []interfaces.Element, window time.Duration) bool {
	if len(els) > models.SampleCap {
		els = els[:models.SampleCap]
	}
	deadline := time.Now().Add(window)
	for {
		for _, el := range els {
			visible, err := page.IsVisible(ctx, el)
			if err == nil && visible {
				return true
			}
		}
		if time.Now().Add(visibilityPoll).After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(visibilityPoll):
		}
	}
}

func (e *Evaluator) samples(ctx context.Context, page interfaces.Page, els []interfaces.Element, attribute string) []string {
	if len(els) > models.SampleCap {
		els = els[:models.SampleCap]
	}
	var out []string
	for _, el := range els {
		var (
			value string
			err   error
		)
		if attribute != "" {
			var ok bool
			value, ok, err = page.Attribute(ctx, el, attribute)
			if !ok {
				continue
			}
		} else {
			value, err = page.TextContent(ctx, el)
		}
		if err != nil {
			continue
		}
		if value = normalizeSample(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func capSamples(samples []string) []string {
	if len(samples) > models.SampleCap {
		samples = samples[:models.SampleCap]
	}
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, normalizeSample(s))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeSample(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxSampleLength {
		s = string(r[:maxSampleLength]) + "..."
	}
	return s
}
