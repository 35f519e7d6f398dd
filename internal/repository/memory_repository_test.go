package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanner-service/internal/model"
)

func runAt(port string, startedAt time.Time) *model.SessionRun {
	run := model.NewSessionRun(port)
	run.StartedAt = startedAt
	return run
}

func TestMemoryRepositoryCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRunRepository(10)

	run := model.NewSessionRun("/dev/ttyACM0")
	require.NoError(t, repo.Create(ctx, run))

	// stored copies are isolated from the caller
	run.Model = "BC125AT"
	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Model)

	run.Finish(nil)
	require.NoError(t, repo.Update(ctx, run))

	got, err = repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "BC125AT", got.Model)
	assert.Equal(t, model.SessionRunStatusCompleted, got.Status)
	assert.True(t, got.IsFinished())
}

func TestMemoryRepositoryMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRunRepository(10)

	_, err := repo.GetByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))

	err = repo.Update(ctx, model.NewSessionRun("COM1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRunRepository(10)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, runAt("COM1", base.Add(time.Duration(i)*time.Minute))))
	}
	failed := runAt("COM2", base.Add(time.Hour))
	failed.Finish(errors.New("timed out"))
	require.NoError(t, repo.Create(ctx, failed))

	port := "COM1"
	runs, total, err := repo.List(ctx, &SessionRunFilter{Port: &port, Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, runs, 2)
	assert.Equal(t, base.Add(4*time.Minute), runs[0].StartedAt)
	assert.Equal(t, base.Add(3*time.Minute), runs[1].StartedAt)

	runs, _, err = repo.List(ctx, &SessionRunFilter{Port: &port, Page: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, _, err = repo.List(ctx, &SessionRunFilter{Port: &port, Page: 9, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, runs)

	status := model.SessionRunStatusFailed
	runs, total, err = repo.List(ctx, &SessionRunFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Equal(t, "timed out", *runs[0].ErrorMessage)
}

func TestMemoryRepositoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRunRepository(2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	oldest := runAt("COM1", base)
	require.NoError(t, repo.Create(ctx, oldest))
	require.NoError(t, repo.Create(ctx, runAt("COM1", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, runAt("COM1", base.Add(2*time.Minute))))

	_, err := repo.GetByID(ctx, oldest.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, total, err := repo.List(ctx, &SessionRunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestMemoryRepositoryDeleteFinishedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRunRepository(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := runAt("COM1", base)
	old.Finish(nil)
	stillRunning := runAt("COM1", base)
	recent := runAt("COM1", base.Add(48*time.Hour))
	recent.Finish(nil)
	for _, run := range []*model.SessionRun{old, stillRunning, recent} {
		require.NoError(t, repo.Create(ctx, run))
	}

	deleted, err := repo.DeleteFinishedBefore(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(ctx, stillRunning.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(ctx, recent.ID)
	assert.NoError(t, err)
}
