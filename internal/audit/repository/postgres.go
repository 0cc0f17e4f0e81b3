package repository

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit/domain"
)

// PostgresRepository stores audit events in session_audit_logs.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_audit_logs (id, user_id, user_role, action, token_hash, device_info, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.UserID, a.Role, a.Action, a.TokenHash, a.Device, a.Metadata, a.CreatedAt)
	return err
}

// ListByUser returns the newest audit logs for userID, at most limit.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []*domain.AuditLog
	err := sqlscan.Select(ctx, r.db, &list, `
		SELECT id, user_id, user_role, action, token_hash, device_info, metadata, created_at
		FROM session_audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return list, nil
}
