package server

import (
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/client"
	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/handler"
	"github.com/noah-isme/gema-antiplagiat/internal/router"
	"github.com/noah-isme/gema-antiplagiat/internal/service"
)

// NewGateway builds the public gateway over both internal services.
func NewGateway(cfg config.Config, logger zerolog.Logger) (*Server, error) {
	srv := newServer(cfg, config.ServiceGateway, logger)

	storing := client.NewStoringClient(client.Config{BaseURL: cfg.FileStoringBaseURL, Timeout: cfg.UpstreamTimeout})
	analysis := client.NewAnalysisClient(client.Config{BaseURL: cfg.FileAnalysisBaseURL, Timeout: cfg.UpstreamTimeout})
	gateway := service.NewGatewayService(storing, analysis, logger)

	router.RegisterGateway(srv.App, cfg, router.GatewayDependencies{
		GatewayHandler: handler.NewGatewayHandler(gateway, cfg, logger),
	})

	return srv, nil
}
