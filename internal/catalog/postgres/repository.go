package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tabletalk/tabletalk/internal/catalog"
)

const uniqueViolation = "23505"

var _ catalog.Repository = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

// EnsureSession creates the session when it does not exist yet and returns
// it either way.
func (r *Repository) EnsureSession(ctx context.Context, sessionID string) (catalog.Session, error) {
	if sessionID == "" {
		return catalog.Session{}, fmt.Errorf("session id is required")
	}
	query := `
INSERT INTO session (session_id)
VALUES ($1)
ON CONFLICT (session_id)
DO UPDATE SET session_id = session.session_id
RETURNING created_at`
	var createdAt time.Time
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&createdAt); err != nil {
		return catalog.Session{}, fmt.Errorf("ensure session: %w", err)
	}
	return catalog.Session{SessionID: sessionID, CreatedAt: createdAt}, nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (catalog.Session, error) {
	query := `
SELECT session_id, created_at
FROM session
WHERE session_id = $1`

	var session catalog.Session
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&session.SessionID, &session.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Session{}, catalog.ErrNotFound
		}
		return catalog.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// DeleteSession removes the session together with its files and charts.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM session
WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session rows affected: %w", err)
	}
	return affected > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
