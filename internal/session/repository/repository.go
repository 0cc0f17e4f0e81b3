package repository

import (
	"context"
	"time"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// Repository defines durable persistence for sessions. It holds no business logic.
// Every method may fail with domain.ErrStoreUnavailable; lookups and single-row updates
// fail with domain.ErrNotFound when no row matches.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Deactivate(ctx context.Context, token string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	DeactivateByUser(ctx context.Context, userID string) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
