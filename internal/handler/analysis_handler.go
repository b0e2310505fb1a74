package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/dto"
	"github.com/noah-isme/gema-antiplagiat/internal/service"
	"github.com/noah-isme/gema-antiplagiat/internal/utils"
)

// AnalysisHandler exposes analysis starts and report queries of the analysis service.
type AnalysisHandler struct {
	analysis service.AnalysisService
	reports  service.ReportService
	logger   zerolog.Logger
}

// NewAnalysisHandler constructs an analysis handler.
func NewAnalysisHandler(analysis service.AnalysisService, reports service.ReportService, logger zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		reports:  reports,
		logger:   logger.With().Str("component", "analysis_handler").Logger(),
	}
}

// Register wires the analysis and report routes.
func (h *AnalysisHandler) Register(router fiber.Router) {
	router.Post("/analyze/:workId", h.start)
	router.Get("/reports/:reportId", h.report)
	router.Get("/works/:workId/report", h.workReport)
	router.Get("/assignments/:assignmentId/reports", h.assignmentReports)
}

func (h *AnalysisHandler) start(c *fiber.Ctx) error {
	workID, err := parseUintParam(c, "workId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	owner := dto.WorkOwner{
		StudentID:    parseQueryUint(c, "studentId"),
		AssignmentID: parseQueryUint(c, "assignmentId"),
	}
	response, err := h.analysis.StartAnalysisFor(c.UserContext(), workID, owner)
	if err != nil {
		if response.ReportID != 0 {
			return respondErrorWithData(c, h.logger, err, response)
		}
		return respondError(c, h.logger, err)
	}

	if response.Status == dto.AlreadyAnalyzed {
		return utils.SendSuccess(c, "work already analyzed", response)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "analysis started", response)
}

func (h *AnalysisHandler) report(c *fiber.Ctx) error {
	reportID, err := parseUintParam(c, "reportId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	report, err := h.reports.GetReport(c.UserContext(), reportID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "report retrieved", report)
}

func (h *AnalysisHandler) workReport(c *fiber.Ctx) error {
	workID, err := parseUintParam(c, "workId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	report, err := h.reports.GetWorkReport(c.UserContext(), workID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "report retrieved", report)
}

func (h *AnalysisHandler) assignmentReports(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	reports, err := h.reports.ListByAssignment(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment reports retrieved", reports)
}
