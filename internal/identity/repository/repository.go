package repository

import (
	"context"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/domain"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// Directory looks up accounts in the table for their role. Lookups return
// sessiondomain.ErrNotFound when no account matches.
type Directory interface {
	GetByID(ctx context.Context, role sessiondomain.Role, userID string) (*domain.Profile, error)
	GetByLogin(ctx context.Context, role sessiondomain.Role, login string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
}
