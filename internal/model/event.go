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
	EventSessionCompleted EventType = "SESSION_COMPLETED"
	EventSessionFailed    EventType = "SESSION_FAILED"
)

// SessionEvent is published on every session state change.
type SessionEvent struct {
	ID        uuid.UUID     `json:"id"`
	EventType EventType     `json:"event_type"`
	SessionID uuid.UUID     `json:"session_id"`
	Operation OperationType `json:"operation"`
	Data      JSONObject    `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Severity  string        `json:"severity"` // INFO, ERROR
}

// NewSessionEvent builds the event matching the session's status.
func NewSessionEvent(s *Session, now time.Time) *SessionEvent {
	event := &SessionEvent{
		ID:        uuid.New(),
		SessionID: s.ID,
		Operation: s.Operation,
		Timestamp: now,
		Source:    "v850-service",
		Severity:  "INFO",
		Data: JSONObject{
			"device":        s.Device,
			"transfer_mode": s.TransferMode,
		},
	}

	switch s.Status {
	case SessionStatusRunning:
		event.EventType = EventSessionStarted
		event.Data["parameters"] = s.Parameters
	case SessionStatusSuccess:
		event.EventType = EventSessionCompleted
		event.Data["result"] = s.Result
	case SessionStatusFailed:
		event.EventType = EventSessionFailed
		event.Severity = "ERROR"
		if s.ErrorMessage != nil {
			event.Data["error_message"] = *s.ErrorMessage
		}
	}
	if s.DurationMs != nil {
		event.Data["duration_ms"] = *s.DurationMs
	}
	return event
}
