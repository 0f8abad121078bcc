// -----------------------------------------------------------------------
// Suite - expands definitions over browsers and viewports, runs them on a
// bounded worker pool with retries, then reports and records history
// -----------------------------------------------------------------------

package suite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
)

// Options is the resolved suite configuration
type Options struct {
	BaseURL         string
	Browsers        []models.BrowserName
	Viewports       []common.ViewportConfig
	DefaultViewport string
	CIMode          bool
	Workers         int
	Retries         int
	Policies        common.PolicyTable
}

// OptionsFromConfig resolves suite options from the application config
func OptionsFromConfig(cfg *common.Config) (Options, error) {
	browsers, err := cfg.BrowserNames()
	if err != nil {
		return Options{}, err
	}
	policies, err := common.BuildPolicyTable(cfg.Policy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		BaseURL:         cfg.Target.BaseURL,
		Browsers:        browsers,
		Viewports:       cfg.Viewports,
		DefaultViewport: cfg.Suite.DefaultViewport,
		CIMode:          cfg.Suite.CIMode,
		Workers:         cfg.Suite.EffectiveWorkers(),
		Retries:         cfg.Suite.EffectiveRetries(),
		Policies:        policies,
	}, nil
}

// NewLimiter returns the shared navigation limiter, nil when disabled
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// PlannedRun is one cell of the scenario x browser x viewport matrix
type PlannedRun struct {
	Definition scenario.Definition
	Browser    models.BrowserName
	Viewport   models.Viewport
	URL        string
	Policy     models.Policy
}

// Suite executes scenario definitions
type Suite struct {
	runner    *scenario.Runner
	driver    interfaces.Driver
	options   Options
	reporters []interfaces.Reporter
	history   interfaces.RunHistoryStorage
	logger    arbor.ILogger
}

// New creates a suite. history may be nil.
func New(runner *scenario.Runner, driver interfaces.Driver, options Options, reporters []interfaces.Reporter, history interfaces.RunHistoryStorage, logger arbor.ILogger) *Suite {
	if options.Workers <= 0 {
		options.Workers = 1
	}
	if options.Retries < 0 {
		options.Retries = 0
	}
	return &Suite{
		runner:    runner,
		driver:    driver,
		options:   options,
		reporters: reporters,
		history:   history,
		logger:    logger,
	}
}

// ExpandViewports resolves viewport and group names in table order.
// Empty names yield the default viewport.
func (s *Suite) ExpandViewports(names []string) ([]models.Viewport, error) {
	if len(names) == 0 {
		names = []string{s.options.DefaultViewport}
	}

	var out []models.Viewport
	seen := make(map[string]bool)
	add := func(v common.ViewportConfig) {
		if !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v.ToModel())
		}
	}

	for _, name := range names {
		found := false
		for _, v := range s.options.Viewports {
			if strings.EqualFold(name, "all") || strings.EqualFold(v.Name, name) || strings.EqualFold(v.Group, name) {
				add(v)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown viewport or group %q", name)
		}
	}
	return out, nil
}

// Plan expands definitions into runs in definition, browser, viewport order.
// Cells the driver cannot serve are returned as skipped labels.
func (s *Suite) Plan(defs []scenario.Definition) ([]PlannedRun, []string, error) {
	var runs []PlannedRun
	var skipped []string

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, nil, err
		}
		url, err := common.ResolveTargetURL(s.options.BaseURL, def.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", def.Name, err)
		}
		viewports, err := s.ExpandViewports(def.Viewports)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", def.Name, err)
		}

		for _, browser := range s.options.Browsers {
			if !def.RunsOn(browser) {
				continue
			}
			if !s.driver.Supports(browser) {
				skipped = append(skipped, fmt.Sprintf("%s [%s]: driver %s does not support %s", def.Name, browser, s.driver.Name(), browser))
				continue
			}
			policy, ok := s.options.Policies.Lookup(browser, s.options.CIMode)
			if !ok {
				return nil, nil, fmt.Errorf("no policy for %s (ci=%t)", browser, s.options.CIMode)
			}
			for _, v := range viewports {
				runs = append(runs, PlannedRun{Definition: def, Browser: browser, Viewport: v, URL: url, Policy: policy})
			}
		}
	}
	return runs, skipped, nil
}

// Execute runs every planned cell and returns outcomes in plan order.
// The returned error covers planning, reporting and history failures only;
// scenario failures are in the result.
func (s *Suite) Execute(ctx context.Context, defs []scenario.Definition) (*models.SuiteResult, error) {
	runs, skipped, err := s.Plan(defs)
	if err != nil {
		return nil, fmt.Errorf("failed to plan suite: %w", err)
	}

	result := &models.SuiteResult{
		ID:        common.NewSuiteID(),
		Target:    s.options.BaseURL,
		CIMode:    s.options.CIMode,
		Driver:    s.driver.Name(),
		StartedAt: time.Now(),
		Outcomes:  make([]models.ScenarioOutcome, len(runs)),
		Skipped:   skipped,
	}

	s.logger.Info().
		Str("suite_id", result.ID).
		Str("target", result.Target).
		Str("driver", result.Driver).
		Int("runs", len(runs)).
		Int("skipped", len(skipped)).
		Int("workers", s.options.Workers).
		Int("retries", s.options.Retries).
		Bool("ci_mode", s.options.CIMode).
		Msg("Suite starting")

	g := new(errgroup.Group)
	g.SetLimit(s.options.Workers)
	for i := range runs {
		i := i
		g.Go(func() error {
			// Stands in for the outcome if the run panics
			result.Outcomes[i] = runs[i].aborted()
			defer common.RecoverPanic(s.logger, "suite run "+runs[i].Definition.Name)
			result.Outcomes[i] = *s.runWithRetries(ctx, runs[i])
			return nil
		})
	}
	_ = g.Wait()
	result.FinishedAt = time.Now()

	passed, failed, flaky := result.Counts()
	s.logger.Info().
		Str("suite_id", result.ID).
		Int("passed", passed).
		Int("failed", failed).
		Int("flaky", flaky).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Suite finished")

	var errs []error
	if s.history != nil {
		for i := range result.Outcomes {
			if err := s.history.SaveRun(ctx, models.NewRunRecord(result.ID, result.Target, &result.Outcomes[i])); err != nil {
				errs = append(errs, fmt.Errorf("failed to save run %s: %w", result.Outcomes[i].RunID, err))
			}
		}
	}
	for _, r := range s.reporters {
		if err := r.Report(ctx, result); err != nil {
			s.logger.Error().Err(err).Str("reporter", r.Name()).Msg("Reporter failed")
			errs = append(errs, fmt.Errorf("reporter %s: %w", r.Name(), err))
		}
	}
	return result, errors.Join(errs...)
}

// aborted is the FAILED outcome recorded for a run that never returned one
func (r PlannedRun) aborted() models.ScenarioOutcome {
	now := time.Now()
	return models.ScenarioOutcome{
		RunID:       common.NewRunID(),
		Scenario:    r.Definition.Name,
		Description: r.Definition.Description,
		Tags:        r.Definition.Tags,
		Browser:     r.Browser,
		Viewport:    r.Viewport,
		URL:         r.URL,
		State:       models.StateFailed,
		FailureKind: models.FailureAssertion,
		Error:       "run aborted by a panic",
		Transitions: []models.StateTransition{{From: models.StateInit, To: models.StateFailed, At: now, Note: "panic"}},
		Attempts:    1,
		StartedAt:   now,
		FinishedAt:  now,
	}
}

// runWithRetries runs one cell until it passes or the retry budget is spent.
// A pass after a failure is flagged flaky.
func (s *Suite) runWithRetries(ctx context.Context, run PlannedRun) *models.ScenarioOutcome {
	runID := common.NewRunID()
	var outcome *models.ScenarioOutcome

	for attempt := 0; attempt <= s.options.Retries; attempt++ {
		outcome = s.runner.Run(ctx, scenario.Request{
			RunID:      runID,
			Definition: run.Definition,
			URL:        run.URL,
			Browser:    run.Browser,
			Viewport:   run.Viewport,
			CIMode:     s.options.CIMode,
			Policy:     run.Policy,
			Attempt:    attempt,
		})
		outcome.Attempts = attempt + 1

		if outcome.Passed() {
			outcome.Flaky = attempt > 0
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < s.options.Retries {
			s.logger.Warn().
				Str("run_id", runID).
				Str("scenario", run.Definition.Name).
				Int("attempt", attempt+1).
				Str("failure_kind", string(outcome.FailureKind)).
				Msg("Scenario failed, retrying")
		}
	}
	return outcome
}
