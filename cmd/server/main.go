package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/app"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/config"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/health"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/logging"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/server"
	sessionservice "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.Setup("session-server", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Service: "session-server", StableKey: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("wire")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	checker := health.NewChecker(a.DB, a.Policy, 0, logger, server.ProfileServiceName)
	s := server.NewServer(server.Deps{Sessions: a.Manager, Health: checker, Logger: logger})
	reaper := sessionservice.NewReaper(a.Manager, cfg.ReapInterval, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("listen")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		return s.Serve(lis)
	})
	g.Go(func() error { return checker.Run(gctx) })
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gRPC server...")
		s.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("gRPC server stopped")
}
