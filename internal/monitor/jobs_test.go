package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/regionwatch/internal/export"
	"github.com/Saul-Punybz/regionwatch/internal/models"
)

type fakePruner struct {
	days int
	n    int64
	err  error
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, days int) (int64, error) {
	f.days = days
	return f.n, f.err
}

func (f *fakePruner) DeleteExpired(context.Context) (int64, error) {
	return f.n, f.err
}

func TestCleanupOldResults(t *testing.T) {
	p := &fakePruner{n: 12}
	logs := &fakeLogs{}
	n, err := CleanupOldResults(context.Background(), p, logs, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, 90, p.days)
	require.Len(t, logs.entries, 1)
	assert.Contains(t, logs.entries[0], "removed 12 results older than 90 days")

	p.err = errors.New("db down")
	_, err = CleanupOldResults(context.Background(), p, logs, 90)
	assert.Error(t, err)
	assert.Contains(t, logs.entries[1], "ERROR")
}

func TestPruneAuthSessions(t *testing.T) {
	n, err := PruneAuthSessions(context.Background(), &fakePruner{n: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

type memBackups struct {
	configured bool
	stored     [][]byte
	keep       int
}

func (m *memBackups) Configured() bool { return m.configured }

func (m *memBackups) StoreBackup(_ context.Context, data []byte) (string, error) {
	m.stored = append(m.stored, data)
	return "backups/b.json.gz", nil
}

func (m *memBackups) PruneBackups(_ context.Context, keep int) ([]string, error) {
	m.keep = keep
	return []string{"backups/old.json.gz"}, nil
}

type snapSource struct{}

func (snapSource) ListAll(context.Context) ([]models.Site, error) {
	return []models.Site{{Name: "A"}}, nil
}

func (snapSource) List(context.Context, bool, []uuid.UUID) ([]models.Query, error) {
	return nil, nil
}

type snapSessions struct{}

func (snapSessions) List(context.Context, int) ([]models.MonitoringSession, error) { return nil, nil }

type snapResults struct{}

func (snapResults) List(context.Context, models.ResultFilter) ([]models.MonitoringResult, error) {
	return nil, nil
}

func TestBackup(t *testing.T) {
	src := export.Sources{Sites: snapSource{}, Queries: snapSource{}, Sessions: snapSessions{}, Results: snapResults{}}

	_, err := Backup(context.Background(), src, &memBackups{}, nil, 10)
	assert.Error(t, err)

	store := &memBackups{configured: true}
	logs := &fakeLogs{}
	key, err := Backup(context.Background(), src, store, logs, 7)
	require.NoError(t, err)
	assert.Equal(t, "backups/b.json.gz", key)
	assert.Equal(t, 7, store.keep)
	require.Len(t, store.stored, 1)
	assert.Contains(t, string(store.stored[0]), `"name":"A"`)
	assert.Contains(t, logs.entries[0], "1 old backups removed")
}
