package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// RunStorage implements interfaces.RunHistoryStorage for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunHistoryStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, record *models.RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("run record ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var record models.RunRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run record: %w", err)
	}
	return &record, nil
}

func (s *RunStorage) ListRuns(ctx context.Context, scenario string, limit int) ([]*models.RunRecord, error) {
	var query *badgerhold.Query
	if scenario != "" {
		query = badgerhold.Where("Scenario").Eq(scenario)
	}

	var records []models.RunRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}

	newestFirst(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	result := make([]*models.RunRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *RunStorage) Stats(ctx context.Context, since time.Time) ([]models.ScenarioStats, error) {
	var records []models.RunRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to load run records: %w", err)
	}
	newestFirst(records)

	byScenario := make(map[string]*models.ScenarioStats)
	for _, r := range records {
		if r.CreatedAt.Before(since) {
			continue
		}
		st, ok := byScenario[r.Scenario]
		if !ok {
			// records are newest first, so the first one seen is the latest run
			st = &models.ScenarioStats{Scenario: r.Scenario, LastRunAt: r.CreatedAt, LastPass: r.Passed}
			byScenario[r.Scenario] = st
		}
		st.Runs++
		if r.Passed {
			st.Passed++
		} else {
			st.Failed++
		}
		if r.Flaky {
			st.Flaky++
		}
	}

	stats := make([]models.ScenarioStats, 0, len(byScenario))
	for _, st := range byScenario {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Scenario < stats[j].Scenario })
	return stats, nil
}

func (s *RunStorage) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	var records []models.RunRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return 0, fmt.Errorf("failed to load run records: %w", err)
	}

	deleted := 0
	for _, r := range records {
		if !r.CreatedAt.Before(before) {
			continue
		}
		if err := s.db.Store().Delete(r.ID, &models.RunRecord{}); err != nil {
			return deleted, fmt.Errorf("failed to delete run record %s: %w", r.ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("deleted", deleted).Str("before", before.Format(time.RFC3339)).Msg("Pruned run history")
	}
	return deleted, nil
}

func newestFirst(records []models.RunRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
