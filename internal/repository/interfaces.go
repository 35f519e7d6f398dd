// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"scanner-service/internal/model"
)

// ErrNotFound is returned when a session run does not exist
var ErrNotFound = errors.New("session run not found")

// SessionRunRepository defines session history data access operations
type SessionRunRepository interface {
	Create(ctx context.Context, run *model.SessionRun) error
	Update(ctx context.Context, run *model.SessionRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.SessionRun, error)
	List(ctx context.Context, filter *SessionRunFilter) ([]*model.SessionRun, int, error)
	// DeleteFinishedBefore removes finished runs started before cutoff
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRunFilter represents session history listing filters
type SessionRunFilter struct {
	Port    *string                 `json:"port,omitempty"`
	Status  *model.SessionRunStatus `json:"status,omitempty"`
	Page    int                     `json:"page"`
	PerPage int                     `json:"per_page"`
}

// Normalize clamps paging to sane values
func (f *SessionRunFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}
}

func (f *SessionRunFilter) matches(run *model.SessionRun) bool {
	if f.Port != nil && run.Port != *f.Port {
		return false
	}
	if f.Status != nil && run.Status != *f.Status {
		return false
	}
	return true
}
