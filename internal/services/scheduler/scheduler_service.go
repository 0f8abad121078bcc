package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// SuiteFunc executes one full suite run
type SuiteFunc func(ctx context.Context) (*models.SuiteResult, error)

// Service implements interfaces.SchedulerService. Runs never overlap: a tick
// that fires while a suite is executing is skipped.
type Service struct {
	runSuite SuiteFunc
	cron     *cron.Cron
	logger   arbor.ILogger

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup // Background runs started by TriggerAsync

	mu           sync.Mutex // Protects every field below
	schedule     string
	entryID      cron.EntryID
	running      bool
	isProcessing bool
	runs         int
	skipped      int
	lastRun      *time.Time
	lastSuiteID  string
	lastPassed   bool
	lastError    string
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates a scheduler around runSuite
func NewService(runSuite SuiteFunc, logger arbor.ILogger) *Service {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		runSuite: runSuite,
		cron:     cron.New(cron.WithParser(parser)),
		logger:   logger,
	}
}

// Start begins the scheduler with the given cron expression
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if schedule == "" {
		schedule = "0 */15 * * * *" // every 15 minutes
	}

	id, err := s.cron.AddFunc(schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.schedule = schedule
	s.entryID = id
	s.running = true
	s.cron.Start()

	s.logger.Info().Str("schedule", schedule).Msg("Monitor scheduler started")
	return nil
}

// Stop halts the scheduler, cancels an in-flight run and waits for it
func (s *Service) Stop() error {
	defer s.inflight.Wait()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cron.Remove(s.entryID)
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()

	s.logger.Info().Msg("Monitor scheduler stopped")
	return nil
}

// TriggerNow runs the suite synchronously, ErrRunInProgress when one is executing
func (s *Service) TriggerNow(ctx context.Context) error {
	if !s.begin() {
		return interfaces.ErrRunInProgress
	}
	return s.execute(ctx)
}

// TriggerAsync starts a run in the background and returns at once.
// Stop waits for it to finish.
func (s *Service) TriggerAsync(ctx context.Context) error {
	if !s.begin() {
		return interfaces.ErrRunInProgress
	}
	s.inflight.Add(1)
	common.SafeGo(s.logger, "monitorTrigger", func() {
		defer s.inflight.Done()
		if err := s.execute(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Triggered suite run failed")
		}
	})
	return nil
}

// IsRunning returns true if the schedule is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of the schedule state
func (s *Service) Status() interfaces.MonitorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := interfaces.MonitorStatus{
		Schedule:    s.schedule,
		Running:     s.running,
		InProgress:  s.isProcessing,
		Runs:        s.runs,
		Skipped:     s.skipped,
		LastRun:     s.lastRun,
		LastSuiteID: s.lastSuiteID,
		LastPassed:  s.lastPassed,
		LastError:   s.lastError,
	}
	if s.running {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

func (s *Service) runScheduled() {
	if !s.begin() {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous suite run still in progress, skipping this tick")
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.execute(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled suite run failed")
	}
}

func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isProcessing {
		return false
	}
	s.isProcessing = true
	return true
}

func (s *Service) execute(ctx context.Context) (err error) {
	started := time.Now()
	var result *models.SuiteResult

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("suite run panicked: %v", r)
		}

		s.mu.Lock()
		s.isProcessing = false
		s.runs++
		s.lastRun = &started
		s.lastError = ""
		if err != nil {
			s.lastError = err.Error()
		}
		s.lastPassed = err == nil && result != nil && result.Passed()
		if result != nil {
			s.lastSuiteID = result.ID
		}
		s.mu.Unlock()
	}()

	s.logger.Info().Msg("Starting monitored suite run")
	result, err = s.runSuite(ctx)
	if result != nil {
		passed, failed, flaky := result.Counts()
		s.logger.Info().
			Str("suite_id", result.ID).
			Int("passed", passed).
			Int("failed", failed).
			Int("flaky", flaky).
			Str("elapsed", time.Since(started).Round(time.Millisecond).String()).
			Msg("Monitored suite run finished")
	}
	return err
}
