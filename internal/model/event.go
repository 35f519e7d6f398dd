// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventSessionStarted   EventType = "SESSION_STARTED"
	EventSessionLog       EventType = "SESSION_LOG"
	EventBaudDetected     EventType = "BAUD_DETECTED"
	EventSystemFound      EventType = "SYSTEM_FOUND"
	EventSessionCompleted EventType = "SESSION_COMPLETED"
	EventSessionFailed    EventType = "SESSION_FAILED"
)

// SessionEvent represents an event emitted while a session runs
type SessionEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	SessionID uuid.UUID  `json:"session_id"`
	Port      string     `json:"port"`
	Data      JSONObject `json:"data,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewSessionEvent creates an event stamped now
func NewSessionEvent(eventType EventType, sessionID uuid.UUID, port string, data JSONObject) *SessionEvent {
	severity := "INFO"
	if eventType == EventSessionFailed {
		severity = "ERROR"
	}

	return &SessionEvent{
		ID:        uuid.New(),
		EventType: eventType,
		SessionID: sessionID,
		Port:      port,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Severity:  severity,
	}
}
