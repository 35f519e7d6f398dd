// internal/repository/session_run_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scanner-service/internal/database"
	"scanner-service/internal/model"
	"scanner-service/internal/utils"
)

const sessionRunColumns = `
	id, port, baud_rate, baud_detected, trusted, model, memory_used,
	system_count, systems_read, state, status, error_message, port_stats,
	started_at, completed_at, duration_ms`

// sessionRunRepository implements SessionRunRepository on PostgreSQL
type sessionRunRepository struct {
	db     *database.DB
	logger *utils.ServiceLogger
}

// NewSessionRunRepository creates a PostgreSQL session run repository
func NewSessionRunRepository(db *database.DB, logger *zap.Logger) SessionRunRepository {
	return &sessionRunRepository{
		db:     db,
		logger: utils.NewServiceLogger(logger, "session-run-repository"),
	}
}

// Create inserts a new session run
func (r *sessionRunRepository) Create(ctx context.Context, run *model.SessionRun) error {
	query := `INSERT INTO session_runs (` + sessionRunColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	args := []interface{}{
		run.ID, run.Port, run.BaudRate, run.BaudDetected, run.Trusted, run.Model,
		run.MemoryUsed, run.SystemCount, run.SystemsRead, run.State, run.Status,
		run.ErrorMessage, run.PortStats, run.StartedAt, run.CompletedAt, run.DurationMs,
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query, args...)
	r.logger.LogDatabaseQuery("insert session_run", []interface{}{run.ID}, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to create session run: %w", err)
	}
	return nil
}

// Update stores the current outcome of a session run
func (r *sessionRunRepository) Update(ctx context.Context, run *model.SessionRun) error {
	query := `
		UPDATE session_runs SET
			baud_rate = $2, baud_detected = $3, trusted = $4, model = $5,
			memory_used = $6, system_count = $7, systems_read = $8, state = $9,
			status = $10, error_message = $11, port_stats = $12,
			completed_at = $13, duration_ms = $14
		WHERE id = $1
	`

	start := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		run.ID, run.BaudRate, run.BaudDetected, run.Trusted, run.Model,
		run.MemoryUsed, run.SystemCount, run.SystemsRead, run.State,
		run.Status, run.ErrorMessage, run.PortStats,
		run.CompletedAt, run.DurationMs,
	)
	r.logger.LogDatabaseQuery("update session_run", []interface{}{run.ID}, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update session run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session run by id
func (r *sessionRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SessionRun, error) {
	query := `SELECT ` + sessionRunColumns + ` FROM session_runs WHERE id = $1`

	run, err := scanSessionRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get session run", zap.Error(err), zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get session run: %w", err)
	}
	return run, nil
}

// List returns one page of session runs, newest first, and the total count
func (r *sessionRunRepository) List(ctx context.Context, filter *SessionRunFilter) ([]*model.SessionRun, int, error) {
	filter.Normalize()

	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Port != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("port = $%d", argIndex))
		args = append(args, *filter.Port)
		argIndex++
	}

	if filter.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM session_runs %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count session runs: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM session_runs %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
		sessionRunColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list session runs", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list session runs: %w", err)
	}
	defer rows.Close()

	runs := []*model.SessionRun{}
	for rows.Next() {
		run, err := scanSessionRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate session runs: %w", err)
	}

	return runs, total, nil
}

// DeleteFinishedBefore removes finished runs started before cutoff
func (r *sessionRunRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM session_runs WHERE started_at < $1 AND status <> $2`

	start := time.Now()
	result, err := r.db.ExecContext(ctx, query, cutoff, model.SessionRunStatusRunning)
	r.logger.LogDatabaseQuery("delete old session_runs", []interface{}{cutoff}, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old session runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSessionRun(row rowScanner) (*model.SessionRun, error) {
	run := &model.SessionRun{}
	err := row.Scan(
		&run.ID, &run.Port, &run.BaudRate, &run.BaudDetected, &run.Trusted, &run.Model,
		&run.MemoryUsed, &run.SystemCount, &run.SystemsRead, &run.State, &run.Status,
		&run.ErrorMessage, &run.PortStats, &run.StartedAt, &run.CompletedAt, &run.DurationMs,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
