package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/dto"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
	"github.com/noah-isme/gema-antiplagiat/internal/observability"
	"github.com/noah-isme/gema-antiplagiat/internal/repository"
	"github.com/noah-isme/gema-antiplagiat/internal/storage"
)

var (
	// ErrFileRequired indicates the multipart request carried no file.
	ErrFileRequired = apperr.New(apperr.ErrValidation, "file is required")
	// ErrFileEmpty indicates the uploaded file has no content.
	ErrFileEmpty = apperr.New(apperr.ErrValidation, "file is empty")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = apperr.New(apperr.ErrValidation, "file exceeds maximum allowed size")
)

// StoredFile is an opened submission file with its metadata.
type StoredFile struct {
	Submission models.Submission
	Object     storage.Object
}

// SubmissionService stores works and serves them back.
type SubmissionService interface {
	Create(ctx context.Context, payload dto.SubmissionUploadRequest, file *multipart.FileHeader) (dto.WorkMeta, error)
	Get(ctx context.Context, id uint) (dto.WorkMeta, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.WorkMeta, error)
	Open(ctx context.Context, id uint) (StoredFile, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	storage     storage.FileStorage
	validator   *validator.Validate
	logger      zerolog.Logger
	maxSize     int64
	now         func() time.Time
	tracer      trace.Tracer
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(repo repository.SubmissionRepository, files storage.FileStorage, validate *validator.Validate, maxSizeMB int, logger zerolog.Logger) SubmissionService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &submissionService{
		submissions: repo,
		storage:     files,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		now:         time.Now,
		tracer:      otel.Tracer("github.com/noah-isme/gema-antiplagiat/internal/service/submission"),
	}
}

func (s *submissionService) Create(ctx context.Context, payload dto.SubmissionUploadRequest, file *multipart.FileHeader) (dto.WorkMeta, error) {
	ctx, span := s.tracer.Start(ctx, "submission.create")
	defer span.End()

	span.SetAttributes(
		attribute.Int("submission.student_id", int(payload.StudentID)),
		attribute.Int("submission.assignment_id", int(payload.AssignmentID)),
	)

	fail := func(outcome string, err error) (dto.WorkMeta, error) {
		observability.Uploads().WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return dto.WorkMeta{}, err
	}

	if err := s.validator.Struct(payload); err != nil {
		return fail("invalid", err)
	}
	if file == nil {
		return fail("invalid", ErrFileRequired)
	}
	if file.Size > s.maxSize {
		return fail("too_large", ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		return fail("invalid", apperr.Wrap(apperr.ErrValidation, fmt.Errorf("open upload: %w", err)))
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return fail("invalid", apperr.Wrap(apperr.ErrValidation, fmt.Errorf("read upload: %w", err)))
	}
	if int64(buf.Len()) > s.maxSize {
		return fail("too_large", ErrUploadTooLarge)
	}
	if buf.Len() == 0 {
		return fail("invalid", ErrFileEmpty)
	}

	content := buf.Bytes()
	checksum := sha256.Sum256(content)
	fileName := sanitizeFileName(file.Filename)

	submission := models.Submission{
		StudentID:    payload.StudentID,
		AssignmentID: payload.AssignmentID,
		SubmittedAt:  s.now().UTC().Truncate(time.Microsecond),
		FileName:     fileName,
		ContentType:  mimetype.Detect(content).String(),
		SizeBytes:    int64(len(content)),
		Checksum:     hex.EncodeToString(checksum[:]),
	}
	span.SetAttributes(
		attribute.String("submission.file_name", fileName),
		attribute.String("submission.content_type", submission.ContentType),
		attribute.Int64("submission.size_bytes", submission.SizeBytes),
	)

	var written string
	err = s.submissions.Create(ctx, &submission, func(created *models.Submission) error {
		location, err := s.storage.Save(ctx, fmt.Sprintf("%d-%s", created.ID, fileName), bytes.NewReader(content))
		if err != nil {
			return apperr.Wrap(apperr.ErrStorage, err)
		}
		written = location
		created.StorageLocation = location
		return nil
	})
	if err != nil {
		if written != "" {
			if delErr := s.storage.Delete(context.WithoutCancel(ctx), written); delErr != nil {
				s.logger.Error().Err(delErr).Str("location", written).Msg("failed to remove orphaned file")
			}
		}
		s.logger.Error().Err(err).Uint("student_id", payload.StudentID).Uint("assignment_id", payload.AssignmentID).Msg("failed to store submission")
		if errors.Is(err, apperr.ErrStorage) {
			return fail("storage_error", err)
		}
		return fail("storage_error", apperr.Wrap(apperr.ErrStorage, err))
	}

	observability.Uploads().WithLabelValues("stored").Inc()
	observability.UploadSize().Observe(float64(submission.SizeBytes))
	span.SetStatus(codes.Ok, "stored")

	s.logger.Info().
		Uint("work_id", submission.ID).
		Uint("student_id", submission.StudentID).
		Uint("assignment_id", submission.AssignmentID).
		Int64("size_bytes", submission.SizeBytes).
		Msg("submission stored")

	return dto.NewWorkMeta(submission), nil
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.WorkMeta, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return dto.WorkMeta{}, err
	}
	return dto.NewWorkMeta(submission), nil
}

func (s *submissionService) ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.WorkMeta, error) {
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return dto.NewWorkMetaSlice(submissions), nil
}

func (s *submissionService) Open(ctx context.Context, id uint) (StoredFile, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return StoredFile{}, err
	}

	object, err := s.storage.Open(ctx, submission.StorageLocation)
	if err != nil {
		if errors.Is(err, apperr.ErrGone) || errors.Is(err, apperr.ErrForbidden) {
			s.logger.Warn().Err(err).Uint("work_id", id).Msg("stored file unavailable")
			return StoredFile{}, err
		}
		return StoredFile{}, apperr.Wrap(apperr.ErrStorage, err)
	}

	return StoredFile{Submission: submission, Object: object}, nil
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := filepath.Ext(name)
	base := safeFileChars(strings.TrimSuffix(name, ext))
	if base == "" {
		base = "work"
	}
	ext = safeFileChars(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "bin"
	}
	return base + "." + ext
}

func safeFileChars(value string) string {
	value = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, strings.ToLower(value))
	return strings.Trim(value, "-")
}
