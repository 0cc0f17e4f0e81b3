// Package app wires the session subsystem from config for the binaries.
package app

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit"
	auditrepo "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit/repository"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/config"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/db"
	identityrepo "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/repository"
	identityservice "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/service"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/policy/engine"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/security"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/cache"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/device"
	sessionrepo "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/repository"
	sessionservice "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/service"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/telemetry"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/telemetry/otel"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/telemetry/producer"
)

// Options tunes New for one binary.
type Options struct {
	// Service names the binary in telemetry resources.
	Service string
	// StableKey refuses an ephemeral cache signing key when the config is for production.
	StableKey bool
	// Device overrides the environment fingerprint (tests, simulated devices).
	Device sessionservice.DeviceDescriber
}

// App holds the wired components. Close releases them.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *sql.DB
	Directory *identityrepo.PostgresDirectory
	Resolver  *identityservice.Resolver
	Hasher    *security.Hasher
	Policy    *engine.OPAEvaluator
	Manager   *sessionservice.Manager
	Auth      *identityservice.AuthService
	Providers *otel.Providers
	Metrics   *telemetry.SessionMetrics

	closers []func(context.Context) error
}

// New builds an App. The database is not required to be reachable: the manager then runs
// on the device cache until it comes back.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	built, err := a.build(ctx, cfg, logger, opts)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return built, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	providers, err := otel.NewProviders(ctx, otel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Service:     opts.Service,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	a.Providers = providers
	a.closers = append(a.closers, providers.Shutdown)

	a.Metrics, err = telemetry.NewSessionMetrics(providers.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Warn().Err(err).Msg("database unreachable at startup, sessions fall back to the device cache")
		conn, err = db.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
	}
	a.DB = conn
	a.closers = append(a.closers, func(context.Context) error { return conn.Close() })

	store, err := a.cacheStore(cfg)
	if err != nil {
		return nil, err
	}
	signer, err := a.cacheKey(cfg, opts)
	if err != nil {
		return nil, err
	}
	mirror := cache.NewMirror(store, security.NewCacheSealer(signer))

	a.Hasher = security.NewHasher(cfg.BcryptCost)
	a.Directory = identityrepo.NewPostgresDirectory(conn, logger)
	a.Resolver = identityservice.NewResolver(a.Directory, a.Hasher)

	policyText := ""
	if cfg.RevocationPolicy != "" {
		b, err := os.ReadFile(cfg.RevocationPolicy)
		if err != nil {
			return nil, fmt.Errorf("revocation policy: %w", err)
		}
		policyText = string(b)
	}
	a.Policy, err = engine.NewOPAEvaluator(ctx, policyText, logger)
	if err != nil {
		return nil, err
	}

	var emitters []telemetry.EventEmitter
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic); kp != nil {
		emitters = append(emitters, kp)
		a.closers = append(a.closers, func(context.Context) error { return kp.Close() })
	}
	if cfg.OTLPEndpoint != "" {
		emitters = append(emitters, otel.NewEventEmitter(providers.LoggerProvider))
	}
	var events telemetry.EventEmitter
	if len(emitters) > 0 {
		events = telemetry.Multi(emitters...)
	}

	describer := opts.Device
	if describer == nil {
		describer = device.NewFingerprinter(device.EnvironmentSignals)
	}

	a.Manager, err = sessionservice.NewManager(sessionservice.Options{
		Repo:     sessionrepo.NewPostgresRepository(conn),
		Mirror:   mirror,
		Resolver: a.Resolver,
		Device:   describer,
		Config: sessionservice.Config{
			TTL:            cfg.SessionTTL,
			StoreTimeout:   cfg.StoreTimeout,
			RevokeAttempts: cfg.RevokeAttempts,
		},
		Logger:  logger,
		Metrics: a.Metrics,
		Events:  events,
		Audit:   audit.NewLogger(auditrepo.NewPostgresRepository(conn), logger),
	})
	if err != nil {
		return nil, err
	}
	a.Auth = identityservice.NewAuthService(a.Resolver, a.Manager, a.Policy, logger)
	return a, nil
}

func (a *App) cacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.CacheMemory:
		return cache.NewMemoryStore(), nil
	case config.CacheRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return cache.NewRedisStore(client, cfg.DeviceID)
	default:
		return cache.NewFileStore(cfg.CacheDir, cfg.DeviceID)
	}
}

// cacheKey picks the key that seals cached identities: the configured one, else a key file
// next to a file cache, else an ephemeral key.
func (a *App) cacheKey(cfg *config.Config, opts Options) (crypto.Signer, error) {
	if cfg.CacheSigningKey != "" {
		signer, err := security.ParsePrivateKey(cfg.CacheSigningKey)
		if err != nil {
			return nil, fmt.Errorf("cache signing key: %w", err)
		}
		return signer, nil
	}
	if cfg.CacheBackend == config.CacheFile {
		return security.LoadOrCreateKeyFile(filepath.Join(cfg.CacheDir, filepath.Base(cfg.DeviceID)+".key"))
	}
	if opts.StableKey && cfg.Production() {
		return nil, errors.New("CACHE_SIGNING_KEY is required when APP_ENV=production")
	}
	signer, _, err := security.LoadSigningKey("")
	if err != nil {
		return nil, err
	}
	a.Logger.Warn().Msg("using an ephemeral cache signing key; cached identities do not survive a restart")
	return signer, nil
}

// Close waits for background session work, drains async events and releases resources in
// reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if a.Manager != nil {
		a.Manager.Wait()
	}
	drainCtx, cancel := context.WithTimeout(ctx, telemetry.ShutdownDrainDuration)
	_ = telemetry.Drain(drainCtx)
	cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
