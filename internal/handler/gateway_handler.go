package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/client"
	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/service"
	"github.com/noah-isme/gema-antiplagiat/internal/utils"
)

// proxiedDownloadHeaders are copied from the storing service onto gateway downloads.
var proxiedDownloadHeaders = []string{
	fiber.HeaderContentType,
	fiber.HeaderContentRange,
	fiber.HeaderContentDisposition,
	fiber.HeaderAcceptRanges,
	fiber.HeaderLastModified,
	fiber.HeaderETag,
}

// GatewayHandler serves the public API and forwards it to the internal services.
type GatewayHandler struct {
	service service.GatewayService
	cfg     config.Config
	logger  zerolog.Logger
}

// NewGatewayHandler constructs a gateway handler.
func NewGatewayHandler(service service.GatewayService, cfg config.Config, logger zerolog.Logger) *GatewayHandler {
	return &GatewayHandler{
		service: service,
		cfg:     cfg,
		logger:  logger.With().Str("component", "gateway_handler").Logger(),
	}
}

// Register wires the public routes. writeLimiter guards the routes that create work.
func (h *GatewayHandler) Register(router fiber.Router, writeLimiter fiber.Handler) {
	if writeLimiter == nil {
		writeLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("/health", h.health)
	router.Post("/files", writeLimiter, h.upload)
	router.Get("/files/:workId/meta", h.meta)
	router.Get("/files/:workId/download", h.download)
	router.Get("/assignments/:assignmentId/files", h.listWorks)
	router.Post("/analyze/:workId", writeLimiter, h.startAnalysis)
	router.Get("/reports/:reportId", h.report)
	router.Get("/works/:workId/report", h.workReport)
	router.Get("/assignments/:assignmentId/reports", h.assignmentReports)
}

func (h *GatewayHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required", nil)
	}

	handle, err := file.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file could not be read", nil)
	}
	defer handle.Close()

	result, err := h.service.Upload(c.UserContext(), client.UploadFile{
		StudentID:    parseFormUint(c, "studentId"),
		AssignmentID: parseFormUint(c, "assignmentId"),
		FileName:     file.Filename,
		ContentType:  file.Header.Get(fiber.HeaderContentType),
		Content:      handle,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "work uploaded", result)
}

func (h *GatewayHandler) meta(c *fiber.Ctx) error {
	workID, err := parseUintParam(c, "workId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	work, err := h.service.GetWork(c.UserContext(), workID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "work retrieved", work)
}

func (h *GatewayHandler) download(c *fiber.Ctx) error {
	workID, err := parseUintParam(c, "workId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	resp, err := h.service.Download(c.UserContext(), workID, c.Get(fiber.HeaderRange))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	for _, header := range proxiedDownloadHeaders {
		if value := resp.Header.Get(header); value != "" {
			c.Set(header, value)
		}
	}
	c.Status(resp.StatusCode)

	if c.Method() == fiber.MethodHead {
		resp.Body.Close()
		return nil
	}
	// fasthttp closes the body once it has been written.
	return c.SendStream(resp.Body, int(resp.ContentLength))
}

func (h *GatewayHandler) listWorks(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	works, err := h.service.ListWorks(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "works retrieved", works)
}

func (h *GatewayHandler) startAnalysis(c *fiber.Ctx) error {
	workID, err := parseUintParam(c, "workId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	response, status, err := h.service.StartAnalysis(c.UserContext(), workID)
	if err != nil {
		if response.ReportID != 0 {
			return respondErrorWithData(c, h.logger, err, response)
		}
		return respondError(c, h.logger, err)
	}

	if status == fiber.StatusAccepted {
		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "analysis started", response)
	}
	return utils.SendSuccess(c, "work already analyzed", response)
}

func (h *GatewayHandler) report(c *fiber.Ctx) error {
	reportID, err := parseUintParam(c, "reportId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	report, err := h.service.GetReport(c.UserContext(), reportID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "report retrieved", report)
}

func (h *GatewayHandler) workReport(c *fiber.Ctx) error {
	workID, err := parseUintParam(c, "workId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	report, err := h.service.GetWorkReport(c.UserContext(), workID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "report retrieved", report)
}

func (h *GatewayHandler) assignmentReports(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	reports, err := h.service.ListAssignmentReports(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment reports retrieved", reports)
}

func (h *GatewayHandler) health(c *fiber.Ctx) error {
	services, healthy := h.service.Health(c.UserContext())

	payload := HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		Service:     h.cfg.AppName,
		Environment: h.cfg.AppEnv,
		Services:    services,
	}
	if !healthy {
		payload.Status = "degraded"
		return utils.SendErrorWithData(c, fiber.StatusServiceUnavailable, "downstream service unavailable", payload)
	}

	return utils.SendSuccess(c, "service healthy", payload)
}
