package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/observability"
	"github.com/noah-isme/gema-antiplagiat/internal/server"
)

func main() {
	cfg, err := config.Load(config.ServiceGateway)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", config.ServiceGateway).Logger()

	shutdownTracing, err := observability.InitTracing(context.Background(), observability.TracingConfig{
		ServiceName: config.ServiceGateway,
		Environment: cfg.AppEnv,
		Endpoint:    cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		log.Fatalf("failed to initialise tracing: %v", err)
	}

	srv, err := server.NewGateway(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("listening")
		if err := srv.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(srv, shutdownTracing, logger)
}

func waitForShutdown(srv *server.Server, shutdownTracing func(context.Context) error, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
