package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the middleware registration pipeline.
type Config struct {
	Service string
	Logger  *zerolog.Logger
	// AccessLog enables the fiber access log line per request.
	AccessLog bool
}

// Register attaches the middlewares shared by the gateway and both services.
func Register(app *fiber.App, cfg Config) {
	requestLogger := zerolog.New(io.Discard)
	if cfg.Logger != nil {
		requestLogger = *cfg.Logger
	}

	app.Use(recover.New())
	app.Use(CorrelationID())
	app.Use(Observability(cfg.Service, requestLogger))
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "${time} ${locals:correlation_id} ${status} ${latency} ${method} ${path}\n",
			TimeFormat: time.RFC3339,
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Range, " + HeaderCorrelationID,
		AllowMethods:  "GET,POST,OPTIONS",
		ExposeHeaders: "Content-Range, Content-Disposition, Accept-Ranges, " + HeaderCorrelationID,
	}))
}
