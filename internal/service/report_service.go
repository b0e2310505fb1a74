package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/dto"
	"github.com/noah-isme/gema-antiplagiat/internal/repository"
)

// ReportCacheInvalidator drops cached report listings after a report changes.
type ReportCacheInvalidator interface {
	Invalidate(ctx context.Context, assignmentID uint)
}

// ReportService answers report queries.
type ReportService interface {
	ReportCacheInvalidator
	GetReport(ctx context.Context, reportID uint) (dto.ReportDetails, error)
	GetWorkReport(ctx context.Context, workID uint) (dto.ReportDetails, error)
	ListByAssignment(ctx context.Context, assignmentID uint) (dto.AssignmentReportsResponse, error)
}

type reportService struct {
	reports  repository.ReportRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewReportService builds the report query service; cache may be nil.
func NewReportService(reports repository.ReportRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ReportService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &reportService{
		reports:  reports,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "report_service").Logger(),
	}
}

func assignmentReportsKey(assignmentID uint) string {
	return fmt.Sprintf("reports:assignment:%d", assignmentID)
}

func (s *reportService) GetReport(ctx context.Context, reportID uint) (dto.ReportDetails, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return dto.ReportDetails{}, err
	}
	return dto.NewReportDetails(report), nil
}

func (s *reportService) GetWorkReport(ctx context.Context, workID uint) (dto.ReportDetails, error) {
	report, err := s.reports.GetLatestByWorkID(ctx, workID)
	if err != nil {
		return dto.ReportDetails{}, err
	}
	return dto.NewReportDetails(report), nil
}

func (s *reportService) ListByAssignment(ctx context.Context, assignmentID uint) (dto.AssignmentReportsResponse, error) {
	cacheKey := assignmentReportsKey(assignmentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.AssignmentReportsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("assignment_id", assignmentID).Msg("assignment reports cache hit")
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read assignment reports cache")
		}
	}

	reports, err := s.reports.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return dto.AssignmentReportsResponse{}, err
	}
	if len(reports) == 0 {
		return dto.AssignmentReportsResponse{}, apperr.New(apperr.ErrNotFound, "no reports for assignment %d", assignmentID)
	}

	response := dto.NewAssignmentReportsResponse(assignmentID, reports)

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store assignment reports cache")
			}
		}
	}

	return response, nil
}

func (s *reportService) Invalidate(ctx context.Context, assignmentID uint) {
	if s.cache == nil || assignmentID == 0 {
		return
	}
	if err := s.cache.Del(ctx, assignmentReportsKey(assignmentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("failed to invalidate assignment reports cache")
	}
}
