package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

const sessionColumns = `id, session_token, user_id, user_role, device_info, login_time, last_activity, expires_at, is_active`

// PostgresRepository stores sessions in the user_sessions table.
type PostgresRepository struct {
	db *sql.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts s. A missing ID is filled with a new ULID.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	if s.ID == "" {
		s.ID = ulid.Make().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.Token, s.UserID, string(s.Role), s.DeviceDescriptor, s.CreatedAt, s.LastActivityAt, s.ExpiresAt, s.IsActive)
	return classify("create session", err)
}

// GetByToken returns the row for token in whatever state it is in, or domain.ErrNotFound.
// The caller decides what an inactive or expired row means.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	err := sqlscan.Get(ctx, r.db, &s, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE session_token = $1
	`, token)
	if err != nil {
		return nil, classify("get session", err)
	}
	return &s, nil
}

// Touch advances last_activity for an active session. The column never moves backwards,
// so concurrent touches converge on the most recent one.
func (r *PostgresRepository) Touch(ctx context.Context, token string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET last_activity = GREATEST(last_activity, $2)
		WHERE session_token = $1 AND is_active = true
	`, token, at)
	return affectedOne("touch session", res, err)
}

// Deactivate marks the session inactive and returns the updated row.
// Deactivating an inactive row succeeds and changes nothing.
func (r *PostgresRepository) Deactivate(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	err := sqlscan.Get(ctx, r.db, &s, `
		UPDATE user_sessions
		SET is_active = false
		WHERE session_token = $1
		RETURNING `+sessionColumns, token)
	if err != nil {
		return nil, classify("deactivate session", err)
	}
	return &s, nil
}

// ListActiveByUser returns the user's active sessions, most recently active first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	var list []*domain.Session
	err := sqlscan.Select(ctx, r.db, &list, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE user_id = $1 AND is_active = true
		ORDER BY last_activity DESC
	`, userID)
	if err != nil {
		return nil, classify("list sessions", err)
	}
	return list, nil
}

// DeactivateByUser marks every active session of userID inactive and returns how many changed.
func (r *PostgresRepository) DeactivateByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET is_active = false
		WHERE user_id = $1 AND is_active = true
	`, userID)
	return affected("deactivate user sessions", res, err)
}

// DeactivateExpired marks every active session with expires_at before now inactive.
func (r *PostgresRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET is_active = false
		WHERE is_active = true AND expires_at < $1
	`, now)
	return affected("deactivate expired sessions", res, err)
}

func affected(op string, res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

func affectedOne(op string, res sql.Result, err error) error {
	n, err := affected(op, res, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

// classify maps driver errors onto the session error taxonomy. Missing rows become
// ErrNotFound; constraint and data errors are returned as-is; everything else
// (connection loss, timeouts, cancelled contexts) is ErrStoreUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || sqlscan.NotFound(err) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isStatementError(pgErr.Code) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// isStatementError reports SQLSTATE classes caused by the statement itself rather than
// the backend's availability: data exceptions (22), integrity violations (23) and
// syntax or access rule violations (42).
func isStatementError(code string) bool {
	return strings.HasPrefix(code, "22") || strings.HasPrefix(code, "23") || strings.HasPrefix(code, "42")
}
