// internal/repository/session_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"v850-service/internal/database"
	"v850-service/internal/model"
)

const sessionColumns = `id, operation, parameters, status, device, transfer_mode,
		device_name, result, error_message, started_at, completed_at, duration_ms`

// sessionRepository implements SessionRepository on PostgreSQL
type sessionRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSessionRepository creates a PostgreSQL backed repository
func NewSessionRepository(db *database.DB, logger *zap.Logger) SessionRepository {
	return &sessionRepository{
		db:     db,
		logger: logger.With(zap.String("repository", "session")),
	}
}

// Create inserts a new session
func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (
			id, operation, parameters, status, device, transfer_mode,
			device_name, result, error_message, started_at, completed_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.Operation, session.Parameters, session.Status,
		session.Device, session.TransferMode, session.DeviceName, session.Result,
		session.ErrorMessage, session.StartedAt, session.CompletedAt, session.DurationMs,
	)
	if err != nil {
		r.logger.Error("Failed to create session", zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Update stores the outcome of a session
func (r *sessionRepository) Update(ctx context.Context, session *model.Session) error {
	query := `
		UPDATE sessions SET
			status = $2, device = $3, device_name = $4, result = $5,
			error_message = $6, completed_at = $7, duration_ms = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		session.ID, session.Status, session.Device, session.DeviceName,
		session.Result, session.ErrorMessage, session.CompletedAt, session.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// List retrieves sessions newest first with filtering and pagination
func (r *sessionRepository) List(ctx context.Context, filter *SessionFilter) ([]*model.Session, int, error) {
	if filter == nil {
		filter = &SessionFilter{}
	}
	filter.Normalize()

	whereClause, args := buildWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM sessions " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM sessions %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
		sessionColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, filter.PerPage, filter.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*model.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			r.logger.Error("Failed to scan session row", zap.Error(err))
			continue
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, total, nil
}

// buildWhere returns the WHERE clause and its positional arguments.
func buildWhere(filter *SessionFilter) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if filter.Operation != nil {
		args = append(args, *filter.Operation)
		conditions = append(conditions, fmt.Sprintf("operation = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	session := &model.Session{}
	err := row.Scan(
		&session.ID, &session.Operation, &session.Parameters, &session.Status,
		&session.Device, &session.TransferMode, &session.DeviceName, &session.Result,
		&session.ErrorMessage, &session.StartedAt, &session.CompletedAt, &session.DurationMs,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}
