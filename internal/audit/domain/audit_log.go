package domain

import "time"

// Session audit actions.
const (
	ActionLogin         = "login"
	ActionLoginDegraded = "login_degraded"
	ActionLogout        = "logout"
	ActionLogoutAll     = "logout_all"
	ActionExpired       = "expired"
	ActionReaped        = "reaped"
)

// AuditLog is one session audit event. TokenHash identifies the session without storing its token.
type AuditLog struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Role      string    `db:"user_role"`
	Action    string    `db:"action"`
	TokenHash string    `db:"token_hash"`
	Device    string    `db:"device_info"`
	Metadata  string    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}
