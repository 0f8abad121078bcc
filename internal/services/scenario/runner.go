// -----------------------------------------------------------------------
// Scenario Runner - navigate, wait, step, probe, aggregate
// -----------------------------------------------------------------------

package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/aggregator"
	"github.com/ternarybob/siteprobe/internal/services/evidence"
	"github.com/ternarybob/siteprobe/internal/services/locator"
	"github.com/ternarybob/siteprobe/internal/services/probe"
)

// Request is one concrete run of a definition
type Request struct {
	RunID      string
	Definition Definition
	URL        string
	Browser    models.BrowserName
	Viewport   models.Viewport
	CIMode     bool
	Policy     models.Policy
	Attempt    int
}

// Runner executes scenario requests. It is safe for concurrent use; every
// run owns its page and ScenarioContext.
type Runner struct {
	driver    interfaces.Driver
	resolver  *locator.Resolver
	evaluator *probe.Evaluator
	collector *evidence.Collector
	limiter   *rate.Limiter
	logger    arbor.ILogger
}

// NewRunner creates a runner. limiter may be nil.
func NewRunner(driver interfaces.Driver, resolver *locator.Resolver, evaluator *probe.Evaluator, collector *evidence.Collector, limiter *rate.Limiter, logger arbor.ILogger) *Runner {
	return &Runner{
		driver:    driver,
		resolver:  resolver,
		evaluator: evaluator,
		collector: collector,
		limiter:   limiter,
		logger:    logger,
	}
}

// run tracks the state machine of one request
type run struct {
	outcome *models.ScenarioOutcome
	logger  arbor.ILogger
}

func (r *run) transition(to models.ScenarioState, note string) {
	from := r.outcome.State
	if !models.CanTransition(from, to) {
		r.logger.Error().
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Illegal scenario transition ignored")
		return
	}
	r.outcome.State = to
	r.outcome.Transitions = append(r.outcome.Transitions, models.StateTransition{
		From: from,
		To:   to,
		At:   time.Now(),
		Note: note,
	})
}

func (r *run) degrade(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.outcome.Degradations = append(r.outcome.Degradations, msg)
	r.logger.Warn().Str("degradation", msg).Msg("Scenario degraded, continuing")
}

func (r *run) fail(to models.ScenarioState, kind models.FailureKind, err error) {
	r.outcome.FailureKind = kind
	if err != nil {
		r.outcome.Error = err.Error()
	}
	r.transition(to, string(kind))
}

// timedOut reports whether the scenario bound, not the step, ended the wait
func timedOut(ctx context.Context) bool {
	return ctx.Err() != nil
}

func timeoutError(ctx context.Context, bound time.Duration, stage string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: canceled while %s", models.ErrScenarioTimeout, stage)
	}
	return fmt.Errorf("%w: exceeded %s while %s", models.ErrScenarioTimeout, bound, stage)
}

// Run executes req and always returns an outcome; the page is released on every path
func (r *Runner) Run(ctx context.Context, req Request) *models.ScenarioOutcome {
	start := time.Now()
	def := req.Definition
	policy := req.Policy

	logger := r.logger.WithCorrelationId(req.RunID)
	rn := &run{
		logger: logger,
		outcome: &models.ScenarioOutcome{
			RunID:       req.RunID,
			Scenario:    def.Name,
			Description: def.Description,
			Tags:        def.Tags,
			Browser:     req.Browser,
			Viewport:    req.Viewport,
			URL:         req.URL,
			State:       models.StateInit,
			Attempts:    1,
			StartedAt:   start,
		},
	}
	o := rn.outcome

	sctx := models.NewScenarioContext(req.RunID, def.Name, req.URL, req.Browser, req.Viewport, req.CIMode, policy)
	sctx.Attempt = req.Attempt

	defer func() {
		o.ConsoleErrors, o.NetworkErrors = evidence.Tally(sctx)
		o.FinishedAt = time.Now()
		o.ElapsedMs = o.FinishedAt.Sub(start).Milliseconds()
		logger.Info().
			Str("scenario", def.Name).
			Str("browser", string(req.Browser)).
			Str("viewport", req.Viewport.String()).
			Str("state", string(o.State)).
			Str("failure_kind", string(o.FailureKind)).
			Int("degradations", len(o.Degradations)).
			Int64("elapsed_ms", o.ElapsedMs).
			Msg("Scenario finished")
	}()

	if err := def.Validate(); err != nil {
		rn.fail(models.StateFailed, models.FailureAssertion, err)
		return o
	}

	ctx, cancel := context.WithTimeout(ctx, policy.ScenarioTimeout)
	defer cancel()

	page, release, err := r.driver.Acquire(ctx, interfaces.PageOptions{Browser: req.Browser, Viewport: req.Viewport})
	if err != nil {
		rn.fail(models.StateNavigationFailed, models.FailureNavigation, fmt.Errorf("%w: failed to acquire page: %v", models.ErrNavigationFailure, err))
		return o
	}
	defer release()

	r.collector.Attach(page, sctx)

	rn.transition(models.StateNavigating, req.URL)
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			rn.fail(models.StateFailed, models.FailureTimeout, timeoutError(ctx, policy.ScenarioTimeout, "waiting for the navigation limiter"))
			return o
		}
	}

	nav, err := page.Navigate(ctx, req.URL, policy.NavigationTimeout)
	if err != nil {
		if timedOut(ctx) {
			rn.fail(models.StateFailed, models.FailureTimeout, timeoutError(ctx, policy.ScenarioTimeout, "navigating"))
			return o
		}
		rn.fail(models.StateNavigationFailed, models.FailureNavigation, fmt.Errorf("%w: %v", models.ErrNavigationFailure, err))
		return o
	}
	sctx.SetDocument(nav.URL, nav.Status, nav.Headers)
	o.URL = nav.URL
	logger.Debug().
		Str("url", nav.URL).
		Int("status", nav.Status).
		Dur("elapsed", nav.Elapsed).
		Msg("Navigation complete")

	state := def.EffectiveLoadState()
	rn.transition(models.StateWaitingForLoad, string(state))
	loadStart := time.Now()
	if err := page.WaitForLoad(ctx, state, policy.LoadStateTimeout); err != nil {
		if timedOut(ctx) {
			rn.fail(models.StateFailed, models.FailureTimeout, timeoutError(ctx, policy.ScenarioTimeout, "waiting for "+string(state)))
			return o
		}
		rn.degrade("load state %s not reached within %s: %v", state, policy.LoadStateTimeout, err)
	}
	sctx.SetTimings(nav.Elapsed, time.Since(loadStart))

	env := StepEnv{Page: page, Context: sctx, Resolver: r.resolver, Logger: logger}
	for _, step := range def.Steps {
		stepCtx, stepCancel := context.WithTimeout(ctx, policy.NavigationTimeout+policy.ActionTimeout)
		err := step.Run(stepCtx, env)
		stepCancel()
		if timedOut(ctx) {
			rn.fail(models.StateFailed, models.FailureTimeout, timeoutError(ctx, policy.ScenarioTimeout, "running step "+step.Name()))
			return o
		}
		if err != nil {
			rn.degrade("step %s: %v", step.Name(), err)
		}
	}

	rn.transition(models.StateProbing, fmt.Sprintf("%d probes", len(def.Probes)))
	results := r.evaluator.EvaluateAll(ctx, page, sctx, def.Probes)
	if timedOut(ctx) {
		rn.fail(models.StateFailed, models.FailureTimeout, timeoutError(ctx, policy.ScenarioTimeout, "probing"))
		return o
	}

	verdict := aggregator.Aggregate(def.Rule, results)
	rn.transition(models.StateVerdictReached, def.Rule.String())
	o.Verdict = &verdict

	ev := r.collector.Capture(ctx, page, sctx, verdict.Passed)
	o.Screenshots = ev.Screenshots
	o.Snapshot = ev.Snapshot
	o.Degradations = append(o.Degradations, ev.Degradations...)

	if verdict.Passed {
		rn.transition(models.StatePassed, "")
		return o
	}
	rn.fail(models.StateFailed, models.FailureAssertion, nil)
	return o
}
