package storage

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/storage/badger"
)

// NewStorageManager opens run history storage, nil when storage is disabled
func NewStorageManager(ctx context.Context, logger arbor.ILogger, config *common.Config) (*badger.Manager, error) {
	if !config.Storage.Enabled {
		logger.Debug().Msg("Run history storage disabled")
		return nil, nil
	}
	return badger.NewManager(ctx, logger, &config.Storage)
}
