// Package server assembles the fiber application and background machinery of each binary.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/database"
	"github.com/noah-isme/gema-antiplagiat/internal/middleware"
	"github.com/noah-isme/gema-antiplagiat/internal/utils"
)

// Server is one runnable service: its HTTP app plus the resources released on shutdown.
type Server struct {
	App    *fiber.App
	logger zerolog.Logger

	closers []func(context.Context) error
}

func newServer(cfg config.Config, service string, logger zerolog.Logger) *Server {
	bodyLimit := (cfg.MaxUploadMB + 1) * 1024 * 1024

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ServerHeader:          cfg.AppName,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				return utils.SendError(c, fiberErr.Code, fiberErr.Message, nil)
			}
			return utils.SendError(c, apperr.Status(err), apperr.PublicMessage(err), nil)
		},
	})

	middleware.Register(app, middleware.Config{
		Service:   service,
		Logger:    &logger,
		AccessLog: cfg.AppEnv == "development",
	})

	return &Server{App: app, logger: logger}
}

// onShutdown registers a release step; steps run in reverse registration order.
func (s *Server) onShutdown(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Listen serves on addr until the app is shut down.
func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

// Listener serves on an existing listener until the app is shut down.
func (s *Server) Listener(ln net.Listener) error {
	return s.App.Listener(ln)
}

// Shutdown stops accepting requests, then releases every registered resource.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.App.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openDatabase(s *Server, cfg config.Config, models ...interface{}) (*gorm.DB, error) {
	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}

	s.onShutdown(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return db, nil
}

func tracedHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}
