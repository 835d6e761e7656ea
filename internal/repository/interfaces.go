// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"v850-service/internal/model"
)

// ErrSessionNotFound is returned when no session has the requested ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository defines session data access operations
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	Update(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	List(ctx context.Context, filter *SessionFilter) ([]*model.Session, int, error)
}

// SessionFilter represents session listing filters
type SessionFilter struct {
	Operation *model.OperationType `json:"operation,omitempty"`
	Status    *model.SessionStatus `json:"status,omitempty"`
	Page      int                  `json:"page"`
	PerPage   int                  `json:"per_page"`
}

// Normalize clamps paging to sane bounds.
func (f *SessionFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
}

// Offset returns the number of rows before the current page.
func (f *SessionFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

func (f *SessionFilter) matches(s *model.Session) bool {
	if f.Operation != nil && s.Operation != *f.Operation {
		return false
	}
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	return true
}
