package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/rs/zerolog"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/domain"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// ErrUnknownRole is returned for a role with no directory table.
var ErrUnknownRole = errors.New("no directory for role")

// roleTable describes where one role's accounts live. details is a SQL expression that
// builds a JSON object of the role-specific display columns.
type roleTable struct {
	table    string
	idColumn string
	details  string
}

var roleTables = map[sessiondomain.Role]roleTable{
	sessiondomain.RoleStudent: {"students", "roll_number", "json_build_object('year', year, 'section', section)::text"},
	sessiondomain.RoleFaculty: {"faculty", "employee_id", "json_build_object('designation', designation)::text"},
	sessiondomain.RoleAdmin:   {"admins", "admin_id", "'{}'"},
	sessiondomain.RoleHOD:     {"department_heads", "hod_id", "'{}'"},
}

type profileRow struct {
	domain.Profile
	DetailsJSON string `db:"details"`
}

// PostgresDirectory reads the per-role directory tables.
type PostgresDirectory struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ Directory = (*PostgresDirectory)(nil)

// NewPostgresDirectory returns a directory backed by db. Rows whose details column
// cannot be decoded are logged to logger and returned without details.
func NewPostgresDirectory(db *sql.DB, logger zerolog.Logger) *PostgresDirectory {
	return &PostgresDirectory{db: db, logger: logger}
}

func (t roleTable) selectWhere(cond string) string {
	return fmt.Sprintf(`
		SELECT id, %s AS role_identifier, name, email, phone, department, password_hash, %s AS details
		FROM %s
		WHERE %s`, t.idColumn, t.details, t.table, cond)
}

// loginQuery matches the role identifier or the email. An identifier match wins when one
// account's identifier equals another account's email.
func (t roleTable) loginQuery() string {
	return t.selectWhere(t.idColumn+" = $1 OR lower(email) = lower($1)") +
		"\n\t\tORDER BY (" + t.idColumn + " = $1) DESC, id\n\t\tLIMIT 1"
}

// GetByID returns the account with id userID in role's table.
func (d *PostgresDirectory) GetByID(ctx context.Context, role sessiondomain.Role, userID string) (*domain.Profile, error) {
	t, ok := roleTables[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return d.get(ctx, role, t.selectWhere("id = $1"), userID)
}

// GetByLogin returns the account whose role identifier (roll number, employee id, ...) or
// email equals login, case-insensitively for email.
func (d *PostgresDirectory) GetByLogin(ctx context.Context, role sessiondomain.Role, login string) (*domain.Profile, error) {
	t, ok := roleTables[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return d.get(ctx, role, t.loginQuery(), login)
}

func (d *PostgresDirectory) get(ctx context.Context, role sessiondomain.Role, query string, arg string) (*domain.Profile, error) {
	var row profileRow
	if err := sqlscan.Get(ctx, d.db, &row, query, arg); err != nil {
		if sqlscan.NotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("directory: %w", sessiondomain.ErrNotFound)
		}
		return nil, fmt.Errorf("directory: %w: %w", sessiondomain.ErrStoreUnavailable, err)
	}
	p := row.Profile
	p.Role = role
	details, err := decodeDetails(row.DetailsJSON)
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", p.UserID).Str("role", string(role)).Msg("directory: ignoring malformed details")
	}
	p.Details = details
	return &p, nil
}

// Create inserts p into its role's table. Role-specific columns take their defaults.
func (d *PostgresDirectory) Create(ctx context.Context, p *domain.Profile) error {
	t, ok := roleTables[p.Role]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, p.Role)
	}
	_, err := d.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, %s, name, email, phone, department, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`, t.table, t.idColumn),
		p.UserID, p.RoleIdentifier, p.Name, p.Email, p.Phone, p.Department, p.PasswordHash)
	return err
}

// decodeDetails turns the details JSON object into display strings. Empty and null values
// are dropped and a nil map means there is nothing to show.
func decodeDetails(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	details := make(map[string]string, len(fields))
	for k, v := range fields {
		switch v := v.(type) {
		case nil:
		case string:
			if v != "" {
				details[k] = v
			}
		default:
			details[k] = fmt.Sprint(v)
		}
	}
	if len(details) == 0 {
		return nil, nil
	}
	return details, nil
}
