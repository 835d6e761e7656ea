// internal/model/session.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationType names what a session ran against the target.
type OperationType string

const (
	OperationBringUp     OperationType = "BRINGUP"
	OperationReset       OperationType = "RESET"
	OperationSignature   OperationType = "SIGNATURE"
	OperationOscillator  OperationType = "OSCILLATOR_SET"
	OperationBaudRateSet OperationType = "BAUD_RATE_SET"
)

// IsValid reports whether o is a known operation.
func (o OperationType) IsValid() bool {
	switch o {
	case OperationBringUp, OperationReset, OperationSignature, OperationOscillator, OperationBaudRateSet:
		return true
	}
	return false
}

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusRunning SessionStatus = "RUNNING"
	SessionStatusSuccess SessionStatus = "SUCCESS"
	SessionStatusFailed  SessionStatus = "FAILED"
)

// IsValid reports whether s is a known status.
func (s SessionStatus) IsValid() bool {
	return s == SessionStatusRunning || s == SessionStatusSuccess || s == SessionStatusFailed
}

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

// Scan implements sql.Scanner.
func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONObject", value)
	}
	return json.Unmarshal(raw, j)
}

// Value implements driver.Valuer.
func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Session is one recorded run of a sequencer operation.
type Session struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Operation    OperationType `json:"operation" db:"operation"`
	Parameters   JSONObject    `json:"parameters" db:"parameters"`
	Status       SessionStatus `json:"status" db:"status"`
	Device       string        `json:"device" db:"device"`
	TransferMode string        `json:"transfer_mode" db:"transfer_mode"`
	DeviceName   *string       `json:"device_name,omitempty" db:"device_name"`
	Result       JSONObject    `json:"result,omitempty" db:"result"`
	ErrorMessage *string       `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time     `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs   *int64        `json:"duration_ms,omitempty" db:"duration_ms"`
}

// NewSession starts a RUNNING session.
func NewSession(op OperationType, params JSONObject, mode string, now time.Time) *Session {
	return &Session{
		ID:           uuid.New(),
		Operation:    op,
		Parameters:   params,
		Status:       SessionStatusRunning,
		TransferMode: mode,
		StartedAt:    now,
	}
}

// IsCompleted checks if the session has finished either way.
func (s *Session) IsCompleted() bool {
	return s.Status == SessionStatusSuccess || s.Status == SessionStatusFailed
}

// Succeed marks the session successful.
func (s *Session) Succeed(result JSONObject, now time.Time) {
	s.Status = SessionStatusSuccess
	s.Result = result
	s.finish(now)
}

// Fail marks the session failed with err.
func (s *Session) Fail(err error, now time.Time) {
	msg := err.Error()
	s.Status = SessionStatusFailed
	s.ErrorMessage = &msg
	s.finish(now)
}

func (s *Session) finish(now time.Time) {
	s.CompletedAt = &now
	ms := now.Sub(s.StartedAt).Milliseconds()
	s.DurationMs = &ms
}
