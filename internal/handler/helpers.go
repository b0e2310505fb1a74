package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/middleware"
	"github.com/noah-isme/gema-antiplagiat/internal/utils"
)

// parseUintParam reads a positive numeric route parameter.
func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, apperr.New(apperr.ErrValidation, "%s must be a positive integer", key)
	}
	return uint(parsed), nil
}

// parseFormUint reads a positive numeric multipart field; a missing or malformed value is 0.
func parseFormUint(c *fiber.Ctx, key string) uint {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.FormValue(key)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(parsed)
}

func parseQueryUint(c *fiber.Ctx, key string) uint {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Query(key)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(parsed)
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// respondError renders err with its mapped status. Server-side failures are logged.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	status := apperr.Status(err)
	if status >= fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Int("status", status).Str("path", c.Path()).Msg("request failed")
	}
	return utils.SendError(c, status, apperr.PublicMessage(err), nil)
}

// respondErrorWithData is respondError for failures that still produced a payload.
func respondErrorWithData(c *fiber.Ctx, logger zerolog.Logger, err error, data interface{}) error {
	status := apperr.Status(err)
	if status >= fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Int("status", status).Str("path", c.Path()).Msg("request failed")
	}
	return utils.SendErrorWithData(c, status, apperr.PublicMessage(err), data)
}
