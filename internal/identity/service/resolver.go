package service

import (
	"context"
	"errors"
	"strings"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/domain"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/repository"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/security"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// ErrInvalidCredentials is returned for an unknown login or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Resolver reads identities from the directory. It satisfies the session manager's
// identity resolver and verifies passwords for the login flow.
type Resolver struct {
	dir    repository.Directory
	hasher *security.Hasher
}

// NewResolver returns a Resolver over dir.
func NewResolver(dir repository.Directory, hasher *security.Hasher) *Resolver {
	if hasher == nil {
		hasher = security.NewHasher(0)
	}
	return &Resolver{dir: dir, hasher: hasher}
}

// Resolve returns the current identity for userID in role's directory.
func (r *Resolver) Resolve(ctx context.Context, userID string, role sessiondomain.Role) (sessiondomain.Identity, error) {
	p, err := r.dir.GetByID(ctx, role, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUnknownRole) {
			return sessiondomain.Identity{}, sessiondomain.ErrNotFound
		}
		return sessiondomain.Identity{}, err
	}
	return p.Identity(), nil
}

// Authenticate checks password against the bcrypt hash stored for login. Unknown logins,
// accounts without a hash and mismatches all return ErrInvalidCredentials. Directory
// outages are returned as they are.
func (r *Resolver) Authenticate(ctx context.Context, role sessiondomain.Role, login, password string) (*domain.Profile, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" || !role.Valid() {
		return nil, ErrInvalidCredentials
	}
	p, err := r.dir.GetByLogin(ctx, role, login)
	if err != nil {
		if errors.Is(err, sessiondomain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if p.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := r.hasher.Compare(p.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}
