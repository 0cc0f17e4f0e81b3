package repository

import (
	"context"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit/domain"
)

// Repository defines persistence for session audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error)
}
