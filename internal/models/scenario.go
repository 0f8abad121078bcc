package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ScenarioState is a state of the scenario runner
type ScenarioState string

const (
	StateInit             ScenarioState = "init"
	StateNavigating       ScenarioState = "navigating"
	StateWaitingForLoad   ScenarioState = "waiting_for_load"
	StateProbing          ScenarioState = "probing"
	StateVerdictReached   ScenarioState = "verdict_reached"
	StatePassed           ScenarioState = "passed"
	StateFailed           ScenarioState = "failed"
	StateNavigationFailed ScenarioState = "navigation_failed"
)

// IsTerminal reports whether no further transitions are possible
func (s ScenarioState) IsTerminal() bool {
	return s == StatePassed || s == StateFailed || s == StateNavigationFailed
}

// scenarioTransitions lists the allowed successors of every non-terminal state.
// FAILED is reachable from any live state because a scenario timeout can preempt it.
var scenarioTransitions = map[ScenarioState][]ScenarioState{
	StateInit:           {StateNavigating, StateNavigationFailed, StateFailed},
	StateNavigating:     {StateWaitingForLoad, StateNavigationFailed, StateFailed},
	StateWaitingForLoad: {StateProbing, StateNavigationFailed, StateFailed},
	StateProbing:        {StateVerdictReached, StateFailed},
	StateVerdictReached: {StatePassed, StateFailed},
}

// CanTransition reports whether from -> to is a legal runner transition
func CanTransition(from, to ScenarioState) bool {
	for _, next := range scenarioTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateTransition records one state change
type StateTransition struct {
	From ScenarioState `json:"from" yaml:"from"`
	To   ScenarioState `json:"to" yaml:"to"`
	At   time.Time     `json:"at" yaml:"at"`
	Note string        `json:"note,omitempty" yaml:"note,omitempty"`
}

// FailureKind classifies a user-visible scenario failure
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureNavigation FailureKind = "navigation"
	FailureAssertion  FailureKind = "assertion"
	FailureTimeout    FailureKind = "timeout"
)

var (
	ErrNavigationFailure = errors.New("navigation failure")
	ErrAssertionFailure  = errors.New("assertion failure")
	ErrScenarioTimeout   = errors.New("scenario timeout")
)

// ScenarioError is the typed failure of one scenario run
type ScenarioError struct {
	Kind     FailureKind
	Scenario string
	Reasons  []string
	Err      error
}

func (e *ScenarioError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %q failed (%s)", e.Scenario, e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, r := range e.Reasons {
		b.WriteString("\n  - ")
		b.WriteString(r)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *ScenarioError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *ScenarioError) sentinel() error {
	switch e.Kind {
	case FailureNavigation:
		return ErrNavigationFailure
	case FailureTimeout:
		return ErrScenarioTimeout
	default:
		return ErrAssertionFailure
	}
}

// ScenarioContext is the state owned by exactly one scenario run.
// Event subscriptions write into it concurrently, so the evidence lists are guarded.
type ScenarioContext struct {
	RunID     string
	Scenario  string
	TargetURL string
	Viewport  Viewport
	Browser   BrowserName
	CIMode    bool
	Attempt   int
	Policy    Policy

	mu                sync.Mutex
	console           []ConsoleEntry
	network           []NetworkEntry
	documentHeaders   map[string]string
	documentStatus    int
	finalURL          string
	navigationElapsed time.Duration
	loadElapsed       time.Duration
}

// NewScenarioContext creates the context for one run
func NewScenarioContext(runID, scenario, targetURL string, browser BrowserName, viewport Viewport, ciMode bool, policy Policy) *ScenarioContext {
	return &ScenarioContext{
		RunID:     runID,
		Scenario:  scenario,
		TargetURL: targetURL,
		Browser:   browser,
		Viewport:  viewport,
		CIMode:    ciMode,
		Policy:    policy,
	}
}

// RecordConsole appends a console message
func (c *ScenarioContext) RecordConsole(entry ConsoleEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, entry)
}

// RecordNetwork appends a response or request failure
func (c *ScenarioContext) RecordNetwork(entry NetworkEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network = append(c.network, entry)
}

// Console returns a copy of every console message seen so far
func (c *ScenarioContext) Console() []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConsoleEntry(nil), c.console...)
}

// Network returns a copy of every network entry seen so far
func (c *ScenarioContext) Network() []NetworkEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]NetworkEntry(nil), c.network...)
}

// ConsoleErrors returns the error-level console messages
func (c *ScenarioContext) ConsoleErrors() []ConsoleEntry {
	var out []ConsoleEntry
	for _, e := range c.Console() {
		if e.IsError() {
			out = append(out, e)
		}
	}
	return out
}

// NetworkErrors returns failed requests and responses with status >= 400
func (c *ScenarioContext) NetworkErrors() []NetworkEntry {
	var out []NetworkEntry
	for _, e := range c.Network() {
		if e.IsError() {
			out = append(out, e)
		}
	}
	return out
}

// SetDocument records the main document response
func (c *ScenarioContext) SetDocument(finalURL string, status int, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalURL = finalURL
	c.documentStatus = status
	c.documentHeaders = make(map[string]string, len(headers))
	for k, v := range headers {
		c.documentHeaders[strings.ToLower(k)] = v
	}
}

// DocumentHeader returns a main document response header, case-insensitive
func (c *ScenarioContext) DocumentHeader(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.documentHeaders[strings.ToLower(name)]
	return v, ok
}

// DocumentStatus returns the main document status code, 0 if unknown
func (c *ScenarioContext) DocumentStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.documentStatus
}

// FinalURL returns the URL after redirects, falling back to the target
func (c *ScenarioContext) FinalURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalURL == "" {
		return c.TargetURL
	}
	return c.finalURL
}

// SetTimings records navigation and load-state durations
func (c *ScenarioContext) SetTimings(navigation, load time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navigationElapsed = navigation
	c.loadElapsed = load
}

// LoadTime is navigation plus load-state wait
func (c *ScenarioContext) LoadTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navigationElapsed + c.loadElapsed
}

// ScenarioOutcome is everything the runner reports about one scenario run
type ScenarioOutcome struct {
	RunID         string            `json:"run_id" yaml:"run_id"`
	Scenario      string            `json:"scenario" yaml:"scenario"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tags          []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Browser       BrowserName       `json:"browser" yaml:"browser"`
	Viewport      Viewport          `json:"viewport" yaml:"viewport"`
	URL           string            `json:"url" yaml:"url"`
	State         ScenarioState     `json:"state" yaml:"state"`
	Verdict       *Verdict          `json:"verdict,omitempty" yaml:"verdict,omitempty"` // nil when no verdict was attempted
	FailureKind   FailureKind       `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	Error         string            `json:"error,omitempty" yaml:"error,omitempty"`
	Degradations  []string          `json:"degradations,omitempty" yaml:"degradations,omitempty"`
	Transitions   []StateTransition `json:"transitions" yaml:"transitions"`
	ConsoleErrors int               `json:"console_errors" yaml:"console_errors"`
	NetworkErrors int               `json:"network_errors" yaml:"network_errors"`
	Screenshots   []string          `json:"screenshots,omitempty" yaml:"screenshots,omitempty"`
	Snapshot      string            `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Attempts      int               `json:"attempts" yaml:"attempts"`
	Flaky         bool              `json:"flaky,omitempty" yaml:"flaky,omitempty"`
	StartedAt     time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time         `json:"finished_at" yaml:"finished_at"`
	ElapsedMs     int64             `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// Passed reports whether the run reached PASSED
func (o *ScenarioOutcome) Passed() bool {
	return o.State == StatePassed
}

// Err returns the typed failure, nil when the run passed
func (o *ScenarioOutcome) Err() error {
	if o.Passed() || o.FailureKind == FailureNone {
		return nil
	}
	se := &ScenarioError{Kind: o.FailureKind, Scenario: o.Scenario}
	if o.Error != "" {
		se.Err = errors.New(o.Error)
	}
	if o.Verdict != nil {
		se.Reasons = o.Verdict.Reasons
	}
	return se
}

// Label identifies the run within a suite
func (o *ScenarioOutcome) Label() string {
	return fmt.Sprintf("%s [%s %s]", o.Scenario, o.Browser, o.Viewport)
}

// SuiteResult collects the outcomes of one suite execution in plan order
type SuiteResult struct {
	ID         string            `json:"id" yaml:"id"`
	Target     string            `json:"target" yaml:"target"`
	CIMode     bool              `json:"ci_mode" yaml:"ci_mode"`
	Driver     string            `json:"driver" yaml:"driver"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time         `json:"finished_at" yaml:"finished_at"`
	Outcomes   []ScenarioOutcome `json:"outcomes" yaml:"outcomes"`
	Skipped    []string          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Counts returns passed, failed and flaky run totals
func (s *SuiteResult) Counts() (passed, failed, flaky int) {
	for i := range s.Outcomes {
		if s.Outcomes[i].Passed() {
			passed++
			if s.Outcomes[i].Flaky {
				flaky++
			}
		} else {
			failed++
		}
	}
	return passed, failed, flaky
}

// Passed reports whether every run passed
func (s *SuiteResult) Passed() bool {
	_, failed, _ := s.Counts()
	return failed == 0
}
