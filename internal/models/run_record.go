package models

import "time"

// RunRecord is the persisted summary of one scenario run
type RunRecord struct {
	ID          string      `json:"id"`
	SuiteID     string      `json:"suite_id"`
	Scenario    string      `json:"scenario"`
	Browser     BrowserName `json:"browser"`
	Viewport    string      `json:"viewport"`
	Target      string      `json:"target"`
	Passed      bool        `json:"passed"`
	Flaky       bool        `json:"flaky"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	Attempts    int         `json:"attempts"`
	ElapsedMs   int64       `json:"elapsed_ms"`
	Reasons     []string    `json:"reasons,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewRunRecord summarises an outcome for history storage
func NewRunRecord(suiteID, target string, o *ScenarioOutcome) *RunRecord {
	rec := &RunRecord{
		ID:          o.RunID,
		SuiteID:     suiteID,
		Scenario:    o.Scenario,
		Browser:     o.Browser,
		Viewport:    o.Viewport.String(),
		Target:      target,
		Passed:      o.Passed(),
		Flaky:       o.Flaky,
		FailureKind: o.FailureKind,
		Attempts:    o.Attempts,
		ElapsedMs:   o.ElapsedMs,
		CreatedAt:   o.FinishedAt,
	}
	if o.Verdict != nil && !o.Passed() {
		rec.Reasons = o.Verdict.Reasons
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return rec
}

// ScenarioStats aggregates the stored history of one scenario
type ScenarioStats struct {
	Scenario  string    `json:"scenario"`
	Runs      int       `json:"runs"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Flaky     int       `json:"flaky"`
	LastRunAt time.Time `json:"last_run_at"`
	LastPass  bool      `json:"last_pass"`
}

// PassRate is passed over runs, 0 when there are no runs
func (s ScenarioStats) PassRate() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Runs)
}
