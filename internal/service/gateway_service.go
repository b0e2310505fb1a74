package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/client"
	"github.com/noah-isme/gema-antiplagiat/internal/dto"
)

// Health states reported by the gateway.
const (
	HealthUp   = "up"
	HealthDown = "down"
)

// StoringBackend is the part of the storing client used by the gateway.
type StoringBackend interface {
	Upload(ctx context.Context, file client.UploadFile) (dto.WorkMeta, error)
	GetWork(ctx context.Context, workID uint) (dto.WorkMeta, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.WorkMeta, error)
	Download(ctx context.Context, workID uint, rangeHeader string) (*http.Response, error)
	Health(ctx context.Context) error
}

// AnalysisBackend is the part of the analysis client used by the gateway.
type AnalysisBackend interface {
	StartAnalysis(ctx context.Context, workID uint, owner dto.WorkOwner) (dto.AnalyzeResponse, int, error)
	GetReport(ctx context.Context, reportID uint) (dto.ReportDetails, error)
	GetWorkReport(ctx context.Context, workID uint) (dto.ReportDetails, error)
	ListAssignmentReports(ctx context.Context, assignmentID uint) (dto.AssignmentReportsResponse, error)
	Health(ctx context.Context) error
}

// GatewayService composes the downstream calls behind the public routes.
type GatewayService interface {
	Upload(ctx context.Context, file client.UploadFile) (dto.UploadResponse, error)
	GetWork(ctx context.Context, workID uint) (dto.WorkMeta, error)
	ListWorks(ctx context.Context, assignmentID uint) ([]dto.WorkMeta, error)
	// Download returns the downstream response; the caller closes its body.
	Download(ctx context.Context, workID uint, rangeHeader string) (*http.Response, error)
	// StartAnalysis returns the analysis response with the downstream status. On failure
	// the response still carries the report id when one was created.
	StartAnalysis(ctx context.Context, workID uint) (dto.AnalyzeResponse, int, error)
	GetReport(ctx context.Context, reportID uint) (dto.ReportDetails, error)
	GetWorkReport(ctx context.Context, workID uint) (dto.ReportDetails, error)
	ListAssignmentReports(ctx context.Context, assignmentID uint) (dto.AssignmentReportsResponse, error)
	Health(ctx context.Context) ([]dto.ServiceHealth, bool)
}

type gatewayService struct {
	storing  StoringBackend
	analysis AnalysisBackend
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewGatewayService constructs the gateway orchestration.
func NewGatewayService(storing StoringBackend, analysis AnalysisBackend, logger zerolog.Logger) GatewayService {
	return &gatewayService{
		storing:  storing,
		analysis: analysis,
		logger:   logger.With().Str("component", "gateway_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/gema-antiplagiat/internal/service/gateway"),
	}
}

// Upload stores the work and immediately requests its analysis. An analysis failure is
// reported inside the response and never fails the upload.
func (s *gatewayService) Upload(ctx context.Context, file client.UploadFile) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.upload")
	defer span.End()

	meta, err := s.storing.Upload(ctx, file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return dto.UploadResponse{}, err
	}
	span.SetAttributes(attribute.Int("upload.work_id", int(meta.WorkID)))

	response := dto.UploadResponse{Submission: meta}

	analysis, _, err := s.startAnalysis(ctx, meta.WorkID, dto.WorkOwner{StudentID: meta.StudentID, AssignmentID: meta.AssignmentID})
	if err != nil {
		s.logger.Warn().Err(err).Uint("work_id", meta.WorkID).Msg("analysis request failed after upload")
		response.AnalysisError = apperr.PublicMessage(err)
		if analysis.ReportID != 0 {
			response.Analysis = &analysis
		}
		return response, nil
	}

	response.Analysis = &analysis
	span.SetStatus(codes.Ok, "uploaded")
	return response, nil
}

func (s *gatewayService) GetWork(ctx context.Context, workID uint) (dto.WorkMeta, error) {
	return s.storing.GetWork(ctx, workID)
}

func (s *gatewayService) ListWorks(ctx context.Context, assignmentID uint) ([]dto.WorkMeta, error) {
	return s.storing.ListByAssignment(ctx, assignmentID)
}

func (s *gatewayService) Download(ctx context.Context, workID uint, rangeHeader string) (*http.Response, error) {
	return s.storing.Download(ctx, workID, rangeHeader)
}

func (s *gatewayService) StartAnalysis(ctx context.Context, workID uint) (dto.AnalyzeResponse, int, error) {
	return s.startAnalysis(ctx, workID, dto.WorkOwner{})
}

func (s *gatewayService) startAnalysis(ctx context.Context, workID uint, owner dto.WorkOwner) (dto.AnalyzeResponse, int, error) {
	response, status, err := s.analysis.StartAnalysis(ctx, workID, owner)
	if err == nil {
		return response, status, nil
	}

	var statusErr *client.StatusError
	if errors.As(err, &statusErr) && len(statusErr.Data) > 0 {
		var partial dto.AnalyzeResponse
		if json.Unmarshal(statusErr.Data, &partial) == nil && partial.ReportID != 0 {
			return partial, status, err
		}
	}
	return dto.AnalyzeResponse{}, status, err
}

func (s *gatewayService) GetReport(ctx context.Context, reportID uint) (dto.ReportDetails, error) {
	return s.analysis.GetReport(ctx, reportID)
}

func (s *gatewayService) GetWorkReport(ctx context.Context, workID uint) (dto.ReportDetails, error) {
	return s.analysis.GetWorkReport(ctx, workID)
}

func (s *gatewayService) ListAssignmentReports(ctx context.Context, assignmentID uint) (dto.AssignmentReportsResponse, error) {
	return s.analysis.ListAssignmentReports(ctx, assignmentID)
}

// Health checks both services concurrently; the bool is true when all are up.
func (s *gatewayService) Health(ctx context.Context) ([]dto.ServiceHealth, bool) {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{client.ServiceFileStoring, s.storing.Health},
		{client.ServiceFileAnalysis, s.analysis.Health},
	}

	results := make([]dto.ServiceHealth, len(checks))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, check := range checks {
		group.Go(func() error {
			results[i] = dto.ServiceHealth{Name: check.name, Status: HealthUp}
			if err := check.ping(groupCtx); err != nil {
				results[i].Status = HealthDown
				results[i].Error = apperr.PublicMessage(err)
			}
			return nil
		})
	}
	_ = group.Wait()

	healthy := true
	for _, result := range results {
		if result.Status != HealthUp {
			healthy = false
		}
	}
	return results, healthy
}
