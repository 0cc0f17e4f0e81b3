// migrate applies the embedded session, directory and audit schema.
//
//	go run ./cmd/migrate                 # up
//	go run ./cmd/migrate -direction down
//	go run ./cmd/migrate -steps -1       # roll back one migration
//	go run ./cmd/migrate -force 2        # clear a dirty state at version 2
//	go run ./cmd/migrate -version
package main

import (
	"flag"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/config"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/db/migrate"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Apply n migrations (negative rolls back); overrides -direction")
	force := flag.Int("force", -1, "Force the recorded version and clear the dirty flag")
	showVersion := flag.Bool("version", false, "Print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup("migrate", cfg.LogLevel, "console")

	switch {
	case *showVersion:
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("migrate version")
		}
		fmt.Printf("version %d dirty=%v\n", v, dirty)
		return
	case *force >= 0:
		err = migrate.Force(cfg.DatabaseURL, *force)
	case *steps != 0:
		err = migrate.Steps(cfg.DatabaseURL, *steps)
	default:
		err = migrate.Run(cfg.DatabaseURL, *direction)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	v, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("migrate version")
	}
	log.Info().Uint("version", v).Bool("dirty", dirty).Msg("migrations applied")
}
