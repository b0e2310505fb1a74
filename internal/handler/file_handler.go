package handler

import (
	"mime"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/dto"
	"github.com/noah-isme/gema-antiplagiat/internal/service"
	"github.com/noah-isme/gema-antiplagiat/internal/utils"
)

// FileHandler serves the submission store of the storing service.
type FileHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewFileHandler constructs a file handler.
func NewFileHandler(service service.SubmissionService, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		service: service,
		logger:  logger.With().Str("component", "file_handler").Logger(),
	}
}

// Register wires the file routes.
func (h *FileHandler) Register(router fiber.Router) {
	router.Post("/files", h.upload)
	router.Get("/files/:workId/meta", h.meta)
	router.Get("/files/:workId/download", h.download)
	router.Get("/assignments/:assignmentId/files", h.listByAssignment)
}

func (h *FileHandler) upload(c *fiber.Ctx) error {
	payload := dto.SubmissionUploadRequest{
		StudentID:    parseFormUint(c, "studentId"),
		AssignmentID: parseFormUint(c, "assignmentId"),
	}

	// a missing file is reported by the service
	file, _ := c.FormFile("file")

	work, err := h.service.Create(c.UserContext(), payload, file)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "work stored", work)
}

func (h *FileHandler) meta(c *fiber.Ctx) error {
	workID, err := parseUintParam(c, "workId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	work, err := h.service.Get(c.UserContext(), workID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "work retrieved", work)
}

func (h *FileHandler) download(c *fiber.Ctx) error {
	workID, err := parseUintParam(c, "workId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	file, err := h.service.Open(c.UserContext(), workID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	defer file.Object.Content.Close()

	submission := file.Submission
	serve := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": submission.FileName}))
		if submission.ContentType != "" {
			w.Header().Set(fiber.HeaderContentType, submission.ContentType)
		}
		http.ServeContent(w, r, submission.FileName, file.Object.ModTime, file.Object.Content)
	}

	return adaptor.HTTPHandlerFunc(serve)(c)
}

func (h *FileHandler) listByAssignment(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	works, err := h.service.ListByAssignment(c.UserContext(), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "works retrieved", works)
}
