package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/handler"
	"github.com/noah-isme/gema-antiplagiat/internal/middleware"
	"github.com/noah-isme/gema-antiplagiat/internal/observability"
)

// FileStoringDependencies groups the handlers of the storing service.
type FileStoringDependencies struct {
	FileHandler *handler.FileHandler
}

// FileAnalysisDependencies groups the handlers of the analysis service.
type FileAnalysisDependencies struct {
	AnalysisHandler *handler.AnalysisHandler
}

// GatewayDependencies groups the handlers of the public gateway.
type GatewayDependencies struct {
	GatewayHandler *handler.GatewayHandler
}

// RegisterFileStoring wires the storing service routes.
func RegisterFileStoring(app *fiber.App, cfg config.Config, deps FileStoringDependencies) {
	root := registerCommon(app, cfg)
	if deps.FileHandler != nil {
		deps.FileHandler.Register(root)
	}
}

// RegisterFileAnalysis wires the analysis service routes.
func RegisterFileAnalysis(app *fiber.App, cfg config.Config, deps FileAnalysisDependencies) {
	root := registerCommon(app, cfg)
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.Register(root)
	}
}

// RegisterGateway wires the public API under /api/v1 with rate limiting on write routes.
func RegisterGateway(app *fiber.App, cfg config.Config, deps GatewayDependencies) {
	root := registerCommon(app, cfg)
	if deps.GatewayHandler == nil {
		return
	}

	api := root.Group("/api/v1")
	deps.GatewayHandler.Register(api, middleware.RateLimit("gateway_write", cfg.RateLimitMax, cfg.RateLimitWindow))
}

func registerCommon(app *fiber.App, cfg config.Config) fiber.Router {
	root := app.Group("", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	root.Get("/health", handler.HealthCheck(cfg))
	root.Get("/metrics", observability.MetricsHandler())
	return root
}
