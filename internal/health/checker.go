// Package health publishes serving status through the standard gRPC health service.
// The durable session store being unreachable is reported as NOT_SERVING so that operators
// can see when devices are validating sessions from their local caches.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultInterval = 15 * time.Second
	checkTimeout    = 3 * time.Second
)

// Pinger checks connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks the policy engine (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker probes dependencies and updates a grpc health server. A nil Pinger or
// PolicyChecker is skipped.
type Checker struct {
	db       Pinger
	policy   PolicyChecker
	services []string
	server   *health.Server
	interval time.Duration
	logger   zerolog.Logger
}

// NewChecker returns a Checker that reports the overall status ("") and each name in services.
func NewChecker(db Pinger, policy PolicyChecker, interval time.Duration, logger zerolog.Logger, services ...string) *Checker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Checker{
		db:       db,
		policy:   policy,
		services: append([]string{""}, services...),
		server:   health.NewServer(),
		interval: interval,
		logger:   logger.With().Str("component", "health").Logger(),
	}
}

// Server returns the health server to register with grpc.
func (c *Checker) Server() healthpb.HealthServer {
	return c.server
}

// Check probes every dependency once and returns the joined failures.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	var errs []error
	if c.db != nil {
		if err := c.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("policy: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Update runs Check and publishes the result. It returns the serving status it set.
func (c *Checker) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := c.Check(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		c.logger.Warn().Err(err).Msg("dependency check failed")
	}
	for _, svc := range c.services {
		c.server.SetServingStatus(svc, st)
	}
	return st
}

// Run updates the status immediately and then every interval until ctx is cancelled,
// at which point every service is marked NOT_SERVING.
func (c *Checker) Run(ctx context.Context) error {
	c.Update(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return nil
		case <-ticker.C:
			c.Update(ctx)
		}
	}
}
