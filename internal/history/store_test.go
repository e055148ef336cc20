package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", DefaultFile))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(session string, created time.Time) Run {
	return Run{
		SessionID:  session,
		Subject:    "BTC",
		Request:    "full analysis of BTC",
		Tier:       "full",
		Status:     "finalized",
		CreatedAt:  created,
		FinishedAt: created.Add(50 * time.Second),
		ReportPath: "reports/2026-03-01-btc/consolidated-report.md",
		Degraded:   []string{"news-sentiment"},
		Tasks: []TaskOutcome{
			{TaskID: "task_1", Worker: "market-monitor", Phase: 1, Status: "completed"},
			{TaskID: "task_2", Worker: "news-sentiment", Phase: 1, Status: "pending", Degraded: true, Note: "timeout"},
		},
	}
}

func TestOpen_WALAndMigrations(t *testing.T) {
	s := openStore(t)

	var mode string
	require.NoError(t, s.db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)

	var versions []int64
	require.NoError(t, s.db.Select(&versions, "SELECT version FROM schema_migrations ORDER BY version"))
	assert.Len(t, versions, len(migrations))

	// Re-running is a no-op.
	require.NoError(t, migrate(context.Background(), s.db, migrations))
}

func TestSaveAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	saved, err := s.Save(ctx, sampleRun("sess_a", created))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := s.Get(ctx, "sess_a")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, created.Add(50*time.Second), got.FinishedAt)
	assert.Equal(t, []string{"news-sentiment"}, got.Degraded)
	require.Len(t, got.Tasks, 2)
	assert.True(t, got.Tasks[1].Degraded)
	assert.Equal(t, "timeout", got.Tasks[1].Note)
}

func TestSave_ReplacesSameSession(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first, err := s.Save(ctx, sampleRun("sess_a", created))
	require.NoError(t, err)

	again := sampleRun("sess_a", created)
	again.Degraded = nil
	second, err := s.Save(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.Degraded)

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSave_RequiresSession(t *testing.T) {
	s := openStore(t)
	_, err := s.Save(context.Background(), Run{})
	assert.Error(t, err)
}

func TestList_NewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.Save(ctx, sampleRun("sess_old", base))
	require.NoError(t, err)
	_, err = s.Save(ctx, sampleRun("sess_mid", base.Add(500*time.Millisecond)))
	require.NoError(t, err)
	_, err = s.Save(ctx, sampleRun("sess_new", base.Add(time.Hour)))
	require.NoError(t, err)

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "sess_new", runs[0].SessionID)
	assert.Equal(t, "sess_mid", runs[1].SessionID)
	assert.Equal(t, "sess_old", runs[2].SessionID)

	runs, err = s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "sess_new", runs[0].SessionID)
}

func TestGet_NotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
