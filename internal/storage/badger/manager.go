package badger

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/interfaces"
)

// Manager owns the database connection and the storages built on it
type Manager struct {
	db     *BadgerDB
	runs   interfaces.RunHistoryStorage
	logger arbor.ILogger
}

// NewManager opens the database and applies the retention window
func NewManager(ctx context.Context, logger arbor.ILogger, config *common.StorageConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		runs:   NewRunStorage(db, logger),
		logger: logger,
	}

	if config.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)
		if _, err := manager.runs.DeleteBefore(ctx, cutoff); err != nil {
			logger.Warn().Err(err).Int("retention_days", config.RetentionDays).Msg("Failed to prune run history")
		}
	}

	logger.Debug().Str("path", config.Path).Msg("Badger storage manager initialized")
	return manager, nil
}

// RunHistory returns the run history storage
func (m *Manager) RunHistory() interfaces.RunHistoryStorage {
	return m.runs
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
