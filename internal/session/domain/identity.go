package domain

import "strings"

// Role is the account kind of a principal. It selects the directory table the identity resolver consults.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
	RoleHOD     Role = "hod"
)

// ParseRole normalizes s into a Role. "department-head" and "department_head" are accepted for RoleHOD.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, true
	case "faculty":
		return RoleFaculty, true
	case "admin":
		return RoleAdmin, true
	case "hod", "department-head", "department_head":
		return RoleHOD, true
	default:
		return "", false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin, RoleHOD:
		return true
	}
	return false
}

// Identity is the authenticated principal attached to a session: who they are plus the
// profile fields dashboards display. It is serialized into the device-local cache.
type Identity struct {
	UserID         string            `json:"user_id"`
	Role           Role              `json:"role"`
	Name           string            `json:"name,omitempty"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	RoleIdentifier string            `json:"role_identifier,omitempty"`
	Department     string            `json:"department,omitempty"`
	DisplayFields  map[string]string `json:"display_fields,omitempty"`
}

// Equal reports whether two identities carry the same values.
func (i Identity) Equal(o Identity) bool {
	if i.UserID != o.UserID || i.Role != o.Role || i.Name != o.Name || i.Email != o.Email ||
		i.Phone != o.Phone || i.RoleIdentifier != o.RoleIdentifier || i.Department != o.Department {
		return false
	}
	if len(i.DisplayFields) != len(o.DisplayFields) {
		return false
	}
	for k, v := range i.DisplayFields {
		if ov, ok := o.DisplayFields[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
