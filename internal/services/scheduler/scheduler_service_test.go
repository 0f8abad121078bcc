package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

func suiteResult(id string, passed bool) *models.SuiteResult {
	state := models.StatePassed
	if !passed {
		state = models.StateFailed
	}
	return &models.SuiteResult{ID: id, Outcomes: []models.ScenarioOutcome{{Scenario: "homepage", State: state}}}
}

func TestTriggerNow_RecordsStatus(t *testing.T) {
	passed := true
	s := NewService(func(ctx context.Context) (*models.SuiteResult, error) {
		return suiteResult("suite_a", passed), nil
	}, arbor.NewLogger())

	require.NoError(t, s.TriggerNow(context.Background()))
	status := s.Status()
	assert.Equal(t, 1, status.Runs)
	assert.True(t, status.LastPassed)
	assert.Equal(t, "suite_a", status.LastSuiteID)
	require.NotNil(t, status.LastRun)
	assert.False(t, status.Running)
	assert.Nil(t, status.NextRun)

	passed = false
	require.NoError(t, s.TriggerNow(context.Background()))
	assert.False(t, s.Status().LastPassed, "a failing suite is not an error but is not passed")
}

func TestTriggerNow_RejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := NewService(func(ctx context.Context) (*models.SuiteResult, error) {
		close(entered)
		<-release
		return suiteResult("suite_b", true), nil
	}, arbor.NewLogger())

	done := make(chan error, 1)
	go func() { done <- s.TriggerNow(context.Background()) }()
	<-entered

	assert.True(t, s.Status().InProgress)
	assert.ErrorIs(t, s.TriggerNow(context.Background()), interfaces.ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, s.Status().Runs)
}

func TestTriggerAsync_StopWaitsForRun(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := NewService(func(ctx context.Context) (*models.SuiteResult, error) {
		close(entered)
		<-release
		return suiteResult("suite_async", true), nil
	}, arbor.NewLogger())

	require.NoError(t, s.TriggerAsync(context.Background()))
	<-entered
	assert.ErrorIs(t, s.TriggerAsync(context.Background()), interfaces.ErrRunInProgress)
	assert.ErrorIs(t, s.TriggerNow(context.Background()), interfaces.ErrRunInProgress)

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a triggered run was still executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped
	status := s.Status()
	assert.Equal(t, 1, status.Runs)
	assert.Equal(t, "suite_async", status.LastSuiteID)
	assert.False(t, status.InProgress)
}

func TestTriggerAsync_RecoversPanics(t *testing.T) {
	s := NewService(func(ctx context.Context) (*models.SuiteResult, error) {
		panic("nil page")
	}, arbor.NewLogger())
	require.NoError(t, s.TriggerAsync(context.Background()))
	require.NoError(t, s.Stop())
	assert.Contains(t, s.Status().LastError, "nil page")
}

func TestTriggerNow_ErrorsAndPanics(t *testing.T) {
	boom := errors.New("driver unavailable")
	s := NewService(func(ctx context.Context) (*models.SuiteResult, error) {
		return nil, boom
	}, arbor.NewLogger())
	assert.ErrorIs(t, s.TriggerNow(context.Background()), boom)
	assert.Equal(t, "driver unavailable", s.Status().LastError)

	p := NewService(func(ctx context.Context) (*models.SuiteResult, error) {
		panic("nil page")
	}, arbor.NewLogger())
	err := p.TriggerNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil page")
	assert.False(t, p.Status().InProgress, "the guard is released after a panic")
}

func TestStart_RunsOnSchedule(t *testing.T) {
	var calls atomic.Int32
	s := NewService(func(ctx context.Context) (*models.SuiteResult, error) {
		calls.Add(1)
		return suiteResult("suite_c", true), nil
	}, arbor.NewLogger())

	require.NoError(t, s.Start("@every 1s"))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start("@every 1s"), "already running")

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	status := s.Status()
	assert.Equal(t, "@every 1s", status.Schedule)
	assert.NotNil(t, status.NextRun)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop(), "stopping twice is a no-op")
}

func TestStart_RejectsInvalidSchedule(t *testing.T) {
	s := NewService(func(ctx context.Context) (*models.SuiteResult, error) { return nil, nil }, arbor.NewLogger())
	assert.Error(t, s.Start("every tuesday"))
	assert.False(t, s.IsRunning())
}

func TestStop_CancelsInFlightRun(t *testing.T) {
	entered := make(chan struct{}, 1)
	s := NewService(func(ctx context.Context) (*models.SuiteResult, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}, arbor.NewLogger())

	require.NoError(t, s.Start("@every 1s"))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run never started")
	}

	require.NoError(t, s.Stop())
	status := s.Status()
	assert.False(t, status.InProgress)
	assert.Equal(t, context.Canceled.Error(), status.LastError)
}
