package models

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ScenarioState
		want     bool
	}{
		{StateInit, StateNavigating, true},
		{StateNavigating, StateWaitingForLoad, true},
		{StateNavigating, StateNavigationFailed, true},
		{StateWaitingForLoad, StateProbing, true},
		{StateWaitingForLoad, StateNavigationFailed, true},
		{StateProbing, StateVerdictReached, true},
		{StateProbing, StateNavigationFailed, false},
		{StateVerdictReached, StatePassed, true},
		{StateVerdictReached, StateFailed, true},
		{StateInit, StateProbing, false},
		{StatePassed, StateFailed, false},
		{StateNavigationFailed, StateProbing, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestScenarioError_Is(t *testing.T) {
	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
	navErr := &ScenarioError{Kind: FailureNavigation, Scenario: "homepage", Err: cause}

	assert.ErrorIs(t, navErr, ErrNavigationFailure)
	assert.ErrorIs(t, navErr, cause)
	assert.NotErrorIs(t, navErr, ErrAssertionFailure)

	assertErr := &ScenarioError{Kind: FailureAssertion, Scenario: "homepage", Reasons: []string{"r1"}}
	assert.ErrorIs(t, assertErr, ErrAssertionFailure)
	assert.Contains(t, assertErr.Error(), "r1")

	var se *ScenarioError
	require.True(t, errors.As(error(navErr), &se))
	assert.Equal(t, FailureNavigation, se.Kind)
}

func TestScenarioContext_ConcurrentRecording(t *testing.T) {
	sctx := NewScenarioContext("run-1", "homepage", "https://example.test", BrowserChromium, Viewport{Width: 1366, Height: 768}, false, Policy{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			level := "log"
			if i%5 == 0 {
				level = "error"
			}
			sctx.RecordConsole(ConsoleEntry{Level: level, Text: "msg"})
		}(i)
		go func(i int) {
			defer wg.Done()
			status := 200
			if i%10 == 0 {
				status = 404
			}
			sctx.RecordNetwork(NetworkEntry{URL: "https://example.test/a", Status: status})
		}(i)
	}
	wg.Wait()

	assert.Len(t, sctx.Console(), 50)
	assert.Len(t, sctx.ConsoleErrors(), 10)
	assert.Len(t, sctx.NetworkErrors(), 5)
}

func TestScenarioContext_DocumentHeadersCaseInsensitive(t *testing.T) {
	sctx := NewScenarioContext("run-1", "security", "https://example.test", BrowserChromium, Viewport{}, false, Policy{})
	sctx.SetDocument("https://example.test/", 200, map[string]string{"Strict-Transport-Security": "max-age=63072000"})

	v, ok := sctx.DocumentHeader("strict-transport-security")
	assert.True(t, ok)
	assert.Equal(t, "max-age=63072000", v)
	assert.Equal(t, "https://example.test/", sctx.FinalURL())
	assert.Equal(t, 200, sctx.DocumentStatus())
}

func TestSuiteResult_Counts(t *testing.T) {
	res := &SuiteResult{Outcomes: []ScenarioOutcome{
		{State: StatePassed},
		{State: StatePassed, Flaky: true},
		{State: StateFailed, FailureKind: FailureAssertion},
		{State: StateNavigationFailed, FailureKind: FailureNavigation},
	}}
	passed, failed, flaky := res.Counts()
	assert.Equal(t, 2, passed)
	assert.Equal(t, 2, failed)
	assert.Equal(t, 1, flaky)
	assert.False(t, res.Passed())
}

func TestScenarioOutcome_Err(t *testing.T) {
	ok := &ScenarioOutcome{State: StatePassed}
	assert.NoError(t, ok.Err())

	failed := &ScenarioOutcome{
		Scenario:    "footer",
		State:       StateFailed,
		FailureKind: FailureAssertion,
		Verdict:     &Verdict{Reasons: []string{"footer missing"}},
	}
	err := failed.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssertionFailure)
	assert.Contains(t, err.Error(), "footer missing")
}
