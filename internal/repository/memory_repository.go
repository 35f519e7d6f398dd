// internal/repository/memory_repository.go
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scanner-service/internal/model"
)

// memorySessionRunRepository keeps session history in process memory,
// bounded to the newest maxRuns entries
type memorySessionRunRepository struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]*model.SessionRun
	maxRuns int
}

// NewMemorySessionRunRepository creates an in-memory session run repository
func NewMemorySessionRunRepository(maxRuns int) SessionRunRepository {
	if maxRuns <= 0 {
		maxRuns = 1000
	}
	return &memorySessionRunRepository{
		runs:    make(map[uuid.UUID]*model.SessionRun),
		maxRuns: maxRuns,
	}
}

func (r *memorySessionRunRepository) Create(_ context.Context, run *model.SessionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *run
	r.runs[run.ID] = &copied
	r.evict()
	return nil
}

func (r *memorySessionRunRepository) Update(_ context.Context, run *model.SessionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; !ok {
		return ErrNotFound
	}
	copied := *run
	r.runs[run.ID] = &copied
	return nil
}

func (r *memorySessionRunRepository) GetByID(_ context.Context, id uuid.UUID) (*model.SessionRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (r *memorySessionRunRepository) List(_ context.Context, filter *SessionRunFilter) ([]*model.SessionRun, int, error) {
	filter.Normalize()

	r.mu.RLock()
	matched := make([]*model.SessionRun, 0, len(r.runs))
	for _, run := range r.runs {
		if filter.matches(run) {
			copied := *run
			matched = append(matched, &copied)
		}
	}
	r.mu.RUnlock()

	sortNewestFirst(matched)

	total := len(matched)
	start := (filter.Page - 1) * filter.PerPage
	if start >= total {
		return []*model.SessionRun{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memorySessionRunRepository) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, run := range r.runs {
		if run.IsFinished() && run.StartedAt.Before(cutoff) {
			delete(r.runs, id)
			deleted++
		}
	}
	return deleted, nil
}

// evict drops the oldest runs above maxRuns; callers hold mu
func (r *memorySessionRunRepository) evict() {
	if len(r.runs) <= r.maxRuns {
		return
	}

	all := make([]*model.SessionRun, 0, len(r.runs))
	for _, run := range r.runs {
		all = append(all, run)
	}
	sortNewestFirst(all)
	for _, run := range all[r.maxRuns:] {
		delete(r.runs, run.ID)
	}
}

func sortNewestFirst(runs []*model.SessionRun) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}
