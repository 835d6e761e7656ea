package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestSessionEvents(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		finish       func(*Session)
		wantType     EventType
		wantSeverity string
	}{
		{"started", func(*Session) {}, EventSessionStarted, "INFO"},
		{"completed", func(s *Session) { s.Succeed(JSONObject{"baud_rate": 9600}, start.Add(250*time.Millisecond)) }, EventSessionCompleted, "INFO"},
		{"failed", func(s *Session) { s.Fail(errors.New("reset: NACK"), start.Add(time.Second)) }, EventSessionFailed, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(OperationReset, JSONObject{}, "sync", start)
			tt.finish(s)

			event := NewSessionEvent(s, start)
			if event.EventType != tt.wantType {
				t.Errorf("event type = %s, want %s", event.EventType, tt.wantType)
			}
			if event.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", event.Severity, tt.wantSeverity)
			}
			if event.SessionID != s.ID {
				t.Error("event does not reference the session")
			}
			if s.IsCompleted() != (tt.wantType != EventSessionStarted) {
				t.Errorf("IsCompleted() = %v", s.IsCompleted())
			}
		})
	}
}

func TestSessionFailRecordsDuration(t *testing.T) {
	start := time.Now()
	s := NewSession(OperationSignature, nil, "async", start)
	s.Fail(errors.New("timeout"), start.Add(1500*time.Millisecond))

	if s.ErrorMessage == nil || *s.ErrorMessage != "timeout" {
		t.Errorf("error message = %v", s.ErrorMessage)
	}
	if s.DurationMs == nil || *s.DurationMs != 1500 {
		t.Errorf("duration = %v", s.DurationMs)
	}
}

func TestJSONObjectScan(t *testing.T) {
	var j JSONObject
	if err := j.Scan([]byte(`{"osc":"5"}`)); err != nil {
		t.Fatal(err)
	}
	if j["osc"] != "5" {
		t.Errorf("scanned = %v", j)
	}
	if err := j.Scan(`{"baud":9600}`); err != nil {
		t.Fatal(err)
	}
	if err := j.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}

	v, err := JSONObject{"a": 1}.Value()
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]int
	if err := json.Unmarshal(v.([]byte), &back); err != nil || back["a"] != 1 {
		t.Errorf("Value() = %s", v)
	}
}
