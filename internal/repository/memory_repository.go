// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"v850-service/internal/model"
)

// memorySessionRepository keeps sessions in process memory, oldest dropped
// first once the limit is reached.
type memorySessionRepository struct {
	mutex    sync.RWMutex
	sessions map[uuid.UUID]*model.Session
	order    []uuid.UUID
	limit    int
}

// NewMemorySessionRepository is used when the database is disabled. A
// non-positive limit keeps 1000 sessions.
func NewMemorySessionRepository(limit int) SessionRepository {
	if limit <= 0 {
		limit = 1000
	}
	return &memorySessionRepository{
		sessions: make(map[uuid.UUID]*model.Session),
		limit:    limit,
	}
}

func (r *memorySessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("failed to create session: duplicate id %s", session.ID)
	}
	r.sessions[session.ID] = clone(session)
	r.order = append(r.order, session.ID)

	for len(r.order) > r.limit {
		delete(r.sessions, r.order[0])
		r.order = r.order[1:]
	}
	return nil
}

func (r *memorySessionRepository) Update(ctx context.Context, session *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.sessions[session.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
	}
	r.sessions[session.ID] = clone(session)
	return nil
}

func (r *memorySessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return clone(session), nil
}

func (r *memorySessionRepository) List(ctx context.Context, filter *SessionFilter) ([]*model.Session, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if filter == nil {
		filter = &SessionFilter{}
	}
	filter.Normalize()

	r.mutex.RLock()
	matched := []*model.Session{}
	for i := len(r.order) - 1; i >= 0; i-- {
		if s := r.sessions[r.order[i]]; filter.matches(s) {
			matched = append(matched, clone(s))
		}
	}
	r.mutex.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []*model.Session{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func clone(s *model.Session) *model.Session {
	c := *s
	return &c
}
