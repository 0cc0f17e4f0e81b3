// seed inserts sample directory accounts for local testing.
// Idempotent: accounts that already exist are left untouched.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/config"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/db"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/domain"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/repository"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/logging"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/security"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

var demoAccounts = []domain.Profile{
	{UserID: "stu-21ai001", Role: sessiondomain.RoleStudent, RoleIdentifier: "21AI001", Name: "Asha Reddy", Email: "asha.reddy@students.example.edu", Department: "AI&DS"},
	{UserID: "stu-21ai002", Role: sessiondomain.RoleStudent, RoleIdentifier: "21AI002", Name: "Kiran Kumar", Email: "kiran.kumar@students.example.edu", Department: "AI&DS"},
	{UserID: "fac-emp104", Role: sessiondomain.RoleFaculty, RoleIdentifier: "EMP104", Name: "Ravi Teja", Email: "ravi.teja@example.edu", Department: "AI&DS"},
	{UserID: "adm-001", Role: sessiondomain.RoleAdmin, RoleIdentifier: "ADM001", Name: "Portal Admin", Email: "admin@example.edu", Department: "AI&DS"},
	{UserID: "hod-aids", Role: sessiondomain.RoleHOD, RoleIdentifier: "HOD-AIDS", Name: "Dr. Lakshmi Rao", Email: "hod.aids@example.edu", Department: "AI&DS"},
}

func main() {
	password := flag.String("password", "", "Password for every demo account (random when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.Setup("seed", cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	pw := *password
	if pw == "" {
		pw = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(pw))
	if err != nil {
		logger.Fatal().Err(err).Msg("hash password")
	}

	dir := repository.NewPostgresDirectory(conn, logger)
	ctx := context.Background()
	created := 0
	for _, p := range demoAccounts {
		_, err := dir.GetByID(ctx, p.Role, p.UserID)
		if err == nil {
			logger.Info().Str("user_id", p.UserID).Msg("already present, skipping")
			continue
		}
		if !errors.Is(err, sessiondomain.ErrNotFound) {
			logger.Fatal().Err(err).Str("user_id", p.UserID).Msg("seed check")
		}
		p.PasswordHash = hash
		if err := dir.Create(ctx, &p); err != nil {
			logger.Fatal().Err(err).Str("user_id", p.UserID).Msg("create account")
		}
		created++
		fmt.Printf("%-8s %-10s %s\n", p.Role, p.RoleIdentifier, p.Name)
	}

	logger.Info().Int("created", created).Msg("seed completed")
	if created > 0 {
		fmt.Printf("Password for new accounts: %s\n", pw)
	}
}
