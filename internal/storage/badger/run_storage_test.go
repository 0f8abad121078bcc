package badger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

func openManager(t *testing.T, config *common.StorageConfig) *Manager {
	t.Helper()
	if config.Path == "" {
		config.Path = filepath.Join(t.TempDir(), "history")
	}
	m, err := NewManager(context.Background(), arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func record(id, scenario string, passed bool, at time.Time) *models.RunRecord {
	return &models.RunRecord{
		ID:        id,
		SuiteID:   "suite_1",
		Scenario:  scenario,
		Browser:   models.BrowserChromium,
		Viewport:  "desktop-1366(1366x768)",
		Target:    "https://rebet.app",
		Passed:    passed,
		Attempts:  1,
		CreatedAt: at,
	}
}

func TestRunStorage_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	runs := openManager(t, &common.StorageConfig{}).RunHistory()

	rec := record("run_1", "homepage", false, time.Now())
	rec.Reasons = []string{"ALL_REQUIRED_MATCH: 0 of 1 required probes matched, missing brand -> failed"}
	require.NoError(t, runs.SaveRun(ctx, rec))

	got, err := runs.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, "homepage", got.Scenario)
	assert.Equal(t, rec.Reasons, got.Reasons)
	assert.False(t, got.Passed)

	_, err = runs.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, interfaces.ErrRunNotFound))

	assert.Error(t, runs.SaveRun(ctx, &models.RunRecord{}), "an ID is required")
}

func TestRunStorage_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	runs := openManager(t, &common.StorageConfig{}).RunHistory()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, runs.SaveRun(ctx, record("run_a", "homepage", true, base)))
	require.NoError(t, runs.SaveRun(ctx, record("run_b", "seo", true, base.Add(time.Minute))))
	require.NoError(t, runs.SaveRun(ctx, record("run_c", "homepage", false, base.Add(2*time.Minute))))

	all, err := runs.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"run_c", "run_b", "run_a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	homepage, err := runs.ListRuns(ctx, "homepage", 1)
	require.NoError(t, err)
	require.Len(t, homepage, 1)
	assert.Equal(t, "run_c", homepage[0].ID)
}

func TestRunStorage_Stats(t *testing.T) {
	ctx := context.Background()
	runs := openManager(t, &common.StorageConfig{}).RunHistory()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	flaky := record("run_2", "homepage", true, base.Add(time.Hour))
	flaky.Flaky = true
	require.NoError(t, runs.SaveRun(ctx, record("run_0", "homepage", true, base.Add(-48*time.Hour))))
	require.NoError(t, runs.SaveRun(ctx, record("run_1", "homepage", false, base)))
	require.NoError(t, runs.SaveRun(ctx, flaky))
	require.NoError(t, runs.SaveRun(ctx, record("run_3", "contact", false, base.Add(2*time.Hour))))

	stats, err := runs.Stats(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "contact", stats[0].Scenario)
	assert.Equal(t, 1, stats[0].Failed)
	assert.False(t, stats[0].LastPass)

	home := stats[1]
	assert.Equal(t, 2, home.Runs, "runs before the window are excluded")
	assert.Equal(t, 1, home.Passed)
	assert.Equal(t, 1, home.Flaky)
	assert.True(t, home.LastPass)
	assert.True(t, home.LastRunAt.Equal(base.Add(time.Hour)))
	assert.InDelta(t, 0.5, home.PassRate(), 0.001)
}

func TestRunStorage_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	runs := openManager(t, &common.StorageConfig{}).RunHistory()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, runs.SaveRun(ctx, record("old", "homepage", true, base.Add(-time.Hour))))
	require.NoError(t, runs.SaveRun(ctx, record("new", "homepage", true, base)))

	deleted, err := runs.DeleteBefore(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := runs.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].ID)
}

func TestManager_RetentionAndReset(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history")

	m, err := NewManager(ctx, arbor.NewLogger(), &common.StorageConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, m.RunHistory().SaveRun(ctx, record("ancient", "homepage", true, time.Now().AddDate(0, 0, -30))))
	require.NoError(t, m.RunHistory().SaveRun(ctx, record("recent", "homepage", true, time.Now())))
	require.NoError(t, m.Close())

	m, err = NewManager(ctx, arbor.NewLogger(), &common.StorageConfig{Path: path, RetentionDays: 7})
	require.NoError(t, err)
	remaining, err := m.RunHistory().ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent", remaining[0].ID)
	require.NoError(t, m.Close())

	m, err = NewManager(ctx, arbor.NewLogger(), &common.StorageConfig{Path: path, ResetOnStartup: true})
	require.NoError(t, err)
	defer m.Close()
	remaining, err = m.RunHistory().ListRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestNewBadgerDB_RequiresPath(t *testing.T) {
	_, err := NewBadgerDB(arbor.NewLogger(), &common.StorageConfig{})
	assert.Error(t, err)
}
