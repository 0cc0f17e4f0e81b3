package domain

import "time"

// DefaultTTL is the fixed lifetime of a session. Activity never extends it.
const DefaultTTL = 30 * 24 * time.Hour

// Session represents one login on one device, as stored in the durable session table.
type Session struct {
	ID               string    `db:"id"`
	Token            string    `db:"session_token"`
	UserID           string    `db:"user_id"`
	Role             Role      `db:"user_role"`
	DeviceDescriptor string    `db:"device_info"`
	CreatedAt        time.Time `db:"login_time"`
	LastActivityAt   time.Time `db:"last_activity"`
	ExpiresAt        time.Time `db:"expires_at"`
	IsActive         bool      `db:"is_active"`
}

// Expired reports whether now is past the session's fixed expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
