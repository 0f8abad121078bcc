package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/siteprobe/internal/models"
)

// ErrRunNotFound is returned when a run record does not exist
var ErrRunNotFound = errors.New("run record not found")

// RunHistoryStorage persists scenario run records
type RunHistoryStorage interface {
	SaveRun(ctx context.Context, record *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns newest first; empty scenario lists every scenario, limit <= 0 means no limit
	ListRuns(ctx context.Context, scenario string, limit int) ([]*models.RunRecord, error)
	Stats(ctx context.Context, since time.Time) ([]models.ScenarioStats, error)
	DeleteBefore(ctx context.Context, before time.Time) (int, error)
}

// Reporter renders a suite result
type Reporter interface {
	Name() string
	Report(ctx context.Context, result *models.SuiteResult) error
}
