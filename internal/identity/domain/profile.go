package domain

import (
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// Profile is a directory record for one account. PasswordHash is a bcrypt hash and never
// leaves the identity packages.
type Profile struct {
	UserID         string             `db:"id"`
	Role           sessiondomain.Role `db:"-"`
	RoleIdentifier string             `db:"role_identifier"`
	Name           string             `db:"name"`
	Email          string             `db:"email"`
	Phone          string             `db:"phone"`
	Department     string             `db:"department"`
	PasswordHash   string             `db:"password_hash"`
	Details        map[string]string  `db:"-"`
}

// Identity returns the session identity for the profile, without the password hash.
func (p *Profile) Identity() sessiondomain.Identity {
	id := sessiondomain.Identity{
		UserID:         p.UserID,
		Role:           p.Role,
		Name:           p.Name,
		Email:          p.Email,
		Phone:          p.Phone,
		RoleIdentifier: p.RoleIdentifier,
		Department:     p.Department,
	}
	if len(p.Details) > 0 {
		id.DisplayFields = make(map[string]string, len(p.Details))
		for k, v := range p.Details {
			id.DisplayFields[k] = v
		}
	}
	return id
}
