package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrRunInProgress is returned when a suite run is requested while one is executing
var ErrRunInProgress = errors.New("suite run already in progress")

// MonitorStatus is a snapshot of the monitor schedule
type MonitorStatus struct {
	Schedule    string
	Running     bool
	InProgress  bool
	Runs        int
	Skipped     int // ticks dropped because the previous run was still executing
	LastRun     *time.Time
	NextRun     *time.Time
	LastSuiteID string
	LastPassed  bool
	LastError   string
}

// SchedulerService runs the suite on a cron schedule
type SchedulerService interface {
	// Start the scheduler with a cron expression, seconds field optional
	Start(schedule string) error

	// Stop the scheduler and wait for an in-flight run to finish
	Stop() error

	// TriggerNow runs the suite immediately, outside the schedule
	TriggerNow(ctx context.Context) error

	// TriggerAsync starts a run in the background, ErrRunInProgress when busy
	TriggerAsync(ctx context.Context) error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	Status() MonitorStatus
}
