// internal/model/session_run.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionRunStatus represents the outcome of a session run
type SessionRunStatus string

const (
	SessionRunStatusRunning   SessionRunStatus = "RUNNING"
	SessionRunStatusCompleted SessionRunStatus = "COMPLETED"
	SessionRunStatusFailed    SessionRunStatus = "FAILED"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// SessionRun is the history row of one scanner read session. It records
// what was negotiated and how far the session got, not the records read.
type SessionRun struct {
	ID           uuid.UUID           `json:"id" db:"id"`
	Port         string              `json:"port" db:"port"`
	BaudRate     int                 `json:"baud_rate" db:"baud_rate"`
	BaudDetected bool                `json:"baud_detected" db:"baud_detected"`
	Trusted      bool                `json:"trusted" db:"trusted"`
	Model        string              `json:"model" db:"model"`
	MemoryUsed   decimal.NullDecimal `json:"memory_used" db:"memory_used" swaggertype:"string"`
	SystemCount  int                 `json:"system_count" db:"system_count"`
	SystemsRead  int                 `json:"systems_read" db:"systems_read"`
	State        string              `json:"state" db:"state"`
	Status       SessionRunStatus    `json:"status" db:"status"`
	ErrorMessage *string             `json:"error_message,omitempty" db:"error_message"`
	PortStats    JSONObject          `json:"port_stats,omitempty" db:"port_stats"`
	StartedAt    time.Time           `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs   *int                `json:"duration_ms,omitempty" db:"duration_ms"`
}

// NewSessionRun creates a running session record for port
func NewSessionRun(port string) *SessionRun {
	return &SessionRun{
		ID:        uuid.New(),
		Port:      port,
		Status:    SessionRunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the completion time and outcome
func (r *SessionRun) Finish(err error) {
	now := time.Now().UTC()
	duration := int(now.Sub(r.StartedAt).Milliseconds())
	r.CompletedAt = &now
	r.DurationMs = &duration

	if err != nil {
		msg := err.Error()
		r.ErrorMessage = &msg
		r.Status = SessionRunStatusFailed
		return
	}
	r.Status = SessionRunStatusCompleted
}

// IsFinished reports whether the run has completed either way
func (r *SessionRun) IsFinished() bool {
	return r.Status != SessionRunStatusRunning
}
