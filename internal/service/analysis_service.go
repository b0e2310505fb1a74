package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/dto"
	"github.com/noah-isme/gema-antiplagiat/internal/middleware"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
	"github.com/noah-isme/gema-antiplagiat/internal/observability"
	"github.com/noah-isme/gema-antiplagiat/internal/queue"
	"github.com/noah-isme/gema-antiplagiat/internal/repository"
)

// WorkSource reads submissions from the storing service.
type WorkSource interface {
	GetWork(ctx context.Context, workID uint) (dto.WorkMeta, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]dto.WorkMeta, error)
	DownloadContent(ctx context.Context, workID uint, limit int64) ([]byte, error)
}

// WordCloudGenerator renders a word cloud and returns its URL.
type WordCloudGenerator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// AnalysisOptions tunes admission, retries and the word cloud fallback.
type AnalysisOptions struct {
	Burst                int
	AdmitTimeout         time.Duration
	MetadataRetries      int
	MetadataRetryInitial time.Duration
	ContentLimit         int64
	WordCloudFallbackURL string
	// StaleAfter is how long a report may stay pending or processing before a new start
	// treats it as abandoned.
	StaleAfter time.Duration
}

// AnalysisService starts analyses on the request path and runs them on the worker pool.
type AnalysisService interface {
	// StartAnalysis admits, records and enqueues the analysis of a work. When the report
	// was created but the run could not be scheduled, both the response and an error are
	// returned so the caller still learns the report id.
	StartAnalysis(ctx context.Context, workID uint) (dto.AnalyzeResponse, error)
	// StartAnalysisFor is StartAnalysis with the owner ids the caller already knows, kept on
	// the failure report when the storing service cannot be reached.
	StartAnalysisFor(ctx context.Context, workID uint, owner dto.WorkOwner) (dto.AnalyzeResponse, error)
	// RunAnalysis executes a queued job and moves its report to a terminal status.
	RunAnalysis(ctx context.Context, job queue.Job)
}

type analysisService struct {
	reports   repository.ReportRepository
	works     WorkSource
	checker   PlagiarismChecker
	wordCloud WordCloudGenerator
	queue     queue.Queue
	cache     ReportCacheInvalidator
	admission *semaphore.Weighted
	policy    *bluemonday.Policy
	opts      AnalysisOptions
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewAnalysisService wires the orchestrator. wordCloud and cache may be nil.
func NewAnalysisService(reports repository.ReportRepository, works WorkSource, checker PlagiarismChecker, wordCloud WordCloudGenerator, jobs queue.Queue, cache ReportCacheInvalidator, opts AnalysisOptions, logger zerolog.Logger) AnalysisService {
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.AdmitTimeout <= 0 {
		opts.AdmitTimeout = time.Second
	}
	if opts.MetadataRetries <= 0 {
		opts.MetadataRetries = 3
	}
	if opts.MetadataRetryInitial <= 0 {
		opts.MetadataRetryInitial = time.Second
	}
	if opts.ContentLimit <= 0 {
		opts.ContentLimit = 10 * 1024 * 1024
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 15 * time.Minute
	}

	return &analysisService{
		reports:   reports,
		works:     works,
		checker:   checker,
		wordCloud: wordCloud,
		queue:     jobs,
		cache:     cache,
		admission: semaphore.NewWeighted(int64(opts.Burst)),
		policy:    bluemonday.StrictPolicy(),
		opts:      opts,
		logger:    logger.With().Str("component", "analysis_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-antiplagiat/internal/service/analysis"),
	}
}

func (s *analysisService) StartAnalysis(ctx context.Context, workID uint) (dto.AnalyzeResponse, error) {
	return s.StartAnalysisFor(ctx, workID, dto.WorkOwner{})
}

func (s *analysisService) StartAnalysisFor(ctx context.Context, workID uint, owner dto.WorkOwner) (dto.AnalyzeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.start")
	defer span.End()
	span.SetAttributes(attribute.Int("analysis.work_id", int(workID)))

	if workID == 0 {
		return dto.AnalyzeResponse{}, apperr.New(apperr.ErrValidation, "work id must be positive")
	}

	if err := s.admit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission rejected")
		return dto.AnalyzeResponse{}, err
	}
	defer s.admission.Release(1)

	logger := s.logger.With().
		Uint("work_id", workID).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Logger()

	latest, err := s.reports.GetLatestByWorkID(ctx, workID)
	switch {
	case err == nil && latest.Status == models.ReportStatusDone:
		return dto.AnalyzeResponse{ReportID: latest.ID, WorkID: workID, Status: dto.AlreadyAnalyzed}, nil
	case err == nil && latest.Status.IsActive():
		if err := s.retireStale(ctx, latest, logger); err != nil {
			return dto.AnalyzeResponse{}, err
		}
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return dto.AnalyzeResponse{}, err
	}

	meta, err := s.fetchWork(ctx, workID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || apperr.IsValidation(err) || ctx.Err() != nil {
			return dto.AnalyzeResponse{}, err
		}

		logger.Error().Err(err).Msg("work metadata unavailable after retries")
		span.RecordError(err)
		span.SetStatus(codes.Error, "metadata unavailable")
		return s.recordStartFailure(ctx, workID, owner.StudentID, owner.AssignmentID, fmt.Sprintf("failed to fetch work metadata: %v", err), apperr.New(apperr.ErrUpstreamUnavailable, "work metadata unavailable: %v", err))
	}

	report, err := s.reports.Create(ctx, workID, meta.StudentID, meta.AssignmentID)
	if err != nil {
		return dto.AnalyzeResponse{}, err
	}
	s.invalidate(ctx, meta.AssignmentID)

	job := queue.Job{ReportID: report.ID, WorkID: workID, CorrelationID: middleware.CorrelationIDFromContext(ctx)}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		observability.AdmissionRejected().Inc()
		logger.Warn().Err(err).Uint("report_id", report.ID).Msg("failed to enqueue analysis")
		if _, trErr := s.reports.TransitionToError(ctx, report.ID, fmt.Sprintf("analysis could not be scheduled: %v", err)); trErr != nil {
			logger.Error().Err(trErr).Uint("report_id", report.ID).Msg("failed to record scheduling failure")
		}
		s.invalidate(ctx, meta.AssignmentID)
		observability.AnalysisRuns().WithLabelValues("error").Inc()
		return dto.AnalyzeResponse{ReportID: report.ID, WorkID: workID, Status: dto.AnalysisFailed}, apperr.Wrap(apperr.ErrOverload, err)
	}

	span.SetAttributes(attribute.Int("analysis.report_id", int(report.ID)))
	span.SetStatus(codes.Ok, "enqueued")
	logger.Info().Uint("report_id", report.ID).Msg("analysis started")

	return dto.AnalyzeResponse{ReportID: report.ID, WorkID: workID, Status: dto.AnalysisStarted}, nil
}

// retireStale moves an active report that made no progress within StaleAfter to error, so
// that a lost job does not block the work forever. A recent active report is a conflict.
func (s *analysisService) retireStale(ctx context.Context, active models.Report, logger zerolog.Logger) error {
	age := time.Since(active.CreatedAt)
	if age < s.opts.StaleAfter {
		return apperr.New(apperr.ErrConflict, "analysis of work %d is already %s", active.WorkID, active.Status)
	}

	details := fmt.Sprintf("analysis abandoned: still %s after %s", active.Status, age.Truncate(time.Second))
	report, err := s.reports.TransitionToError(ctx, active.ID, details)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return apperr.New(apperr.ErrConflict, "analysis of work %d completed concurrently", active.WorkID)
		}
		return err
	}

	s.invalidate(ctx, report.AssignmentID)
	s.observeCompletion(report)
	logger.Warn().Uint("report_id", active.ID).Dur("age", age).Msg("retired stale analysis")
	return nil
}

func (s *analysisService) admit(ctx context.Context) error {
	admitCtx, cancel := context.WithTimeout(ctx, s.opts.AdmitTimeout)
	defer cancel()

	if err := s.admission.Acquire(admitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		observability.AdmissionRejected().Inc()
		return apperr.New(apperr.ErrOverload, "too many concurrent analysis requests")
	}
	return nil
}

// fetchWork retries transient failures with exponential backoff; a missing work is final.
func (s *analysisService) fetchWork(ctx context.Context, workID uint) (dto.WorkMeta, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.MetadataRetryInitial

	return backoff.Retry(ctx, func() (dto.WorkMeta, error) {
		meta, err := s.works.GetWork(ctx, workID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) || apperr.IsValidation(err) {
				return dto.WorkMeta{}, backoff.Permanent(err)
			}
			return dto.WorkMeta{}, err
		}
		return meta, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(s.opts.MetadataRetries)))
}

func (s *analysisService) recordStartFailure(ctx context.Context, workID, studentID, assignmentID uint, details string, cause error) (dto.AnalyzeResponse, error) {
	report, err := s.reports.Create(ctx, workID, studentID, assignmentID)
	if err != nil {
		return dto.AnalyzeResponse{}, err
	}
	if _, err := s.reports.TransitionToError(ctx, report.ID, details); err != nil {
		return dto.AnalyzeResponse{}, err
	}
	if assignmentID != 0 {
		s.invalidate(ctx, assignmentID)
	}
	observability.AnalysisRuns().WithLabelValues("error").Inc()

	return dto.AnalyzeResponse{ReportID: report.ID, WorkID: workID, Status: dto.AnalysisFailed}, cause
}

func (s *analysisService) RunAnalysis(ctx context.Context, job queue.Job) {
	ctx = middleware.ContextWithCorrelation(ctx, job.CorrelationID)
	ctx, span := s.tracer.Start(ctx, "analysis.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("analysis.report_id", int(job.ReportID)),
		attribute.Int("analysis.work_id", int(job.WorkID)),
	)

	logger := s.logger.With().
		Uint("report_id", job.ReportID).
		Uint("work_id", job.WorkID).
		Str("correlation_id", job.CorrelationID).
		Logger()

	var assignmentID uint
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("analysis panicked")
			s.finishWithError(ctx, job, assignmentID, fmt.Sprintf("analysis failed: %v", r), logger)
		}
	}()

	if err := s.reports.MarkProcessing(ctx, job.ReportID); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			logger.Warn().Err(err).Msg("report already completed; skipping job")
			return
		}
		s.finishWithError(ctx, job, assignmentID, fmt.Sprintf("failed to start analysis: %v", err), logger)
		return
	}

	meta, err := s.fetchWork(ctx, job.WorkID)
	if err != nil {
		s.finishWithError(ctx, job, assignmentID, fmt.Sprintf("failed to fetch work metadata: %v", err), logger)
		return
	}
	assignmentID = meta.AssignmentID
	submission := meta.ToSubmission()

	var notes []string
	text := ""
	if submission.IsText() {
		content, err := s.works.DownloadContent(ctx, job.WorkID, s.opts.ContentLimit)
		if err != nil {
			logger.Warn().Err(err).Msg("work content unavailable; checking metadata only")
			notes = append(notes, "Content unavailable, metadata-only check.")
		} else {
			text = s.sanitize(content)
		}
	}

	priorMetas, err := s.works.ListByAssignment(ctx, meta.AssignmentID)
	if err != nil {
		s.finishWithError(ctx, job, assignmentID, fmt.Sprintf("failed to list prior submissions: %v", err), logger)
		return
	}
	priors := make([]models.Submission, 0, len(priorMetas))
	for _, prior := range priorMetas {
		priors = append(priors, prior.ToSubmission())
	}

	result, err := s.checker.Check(ctx, CheckInput{
		Submission: submission,
		Priors:     priors,
		Text:       text,
		PriorText:  s.priorText,
	})
	if err != nil {
		s.finishWithError(ctx, job, assignmentID, fmt.Sprintf("plagiarism check failed: %v", err), logger)
		return
	}

	var wordCloudURL *string
	if text != "" && s.wordCloud != nil {
		link, err := s.generateWordCloud(ctx, text)
		if err != nil {
			observability.WordCloudFailures().Inc()
			logger.Warn().Err(err).Msg("word cloud generation failed")
			notes = append(notes, fmt.Sprintf("Word cloud unavailable: %v.", err))
			if s.opts.WordCloudFallbackURL != "" {
				fallback := s.opts.WordCloudFallbackURL
				wordCloudURL = &fallback
			}
		} else {
			wordCloudURL = &link
		}
	}

	details := result.Details
	if len(notes) > 0 {
		details = strings.TrimSpace(details + " " + strings.Join(notes, " "))
	}

	report, err := s.reports.TransitionToDone(s.finalContext(ctx), job.ReportID, repository.ReportOutcome{
		IsPlagiarism: result.IsPlagiarism,
		Sources:      result.Sources,
		Details:      details,
		WordCloudURL: wordCloudURL,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		if errors.Is(err, apperr.ErrConflict) {
			logger.Warn().Err(err).Msg("report reached error before completion")
			return
		}
		logger.Error().Err(err).Msg("failed to complete report")
		s.finishWithError(ctx, job, assignmentID, fmt.Sprintf("failed to record analysis result: %v", err), logger)
		return
	}

	s.invalidate(ctx, assignmentID)
	s.observeCompletion(report)
	span.SetStatus(codes.Ok, "done")
	logger.Info().
		Bool("is_plagiarism", report.IsPlagiarism).
		Int("sources", len(report.PlagiarismSources)).
		Msg("analysis completed")
}

func (s *analysisService) finishWithError(ctx context.Context, job queue.Job, assignmentID uint, details string, logger zerolog.Logger) {
	report, err := s.reports.TransitionToError(s.finalContext(ctx), job.ReportID, details)
	if err != nil {
		logger.Error().Err(err).Str("details", details).Msg("failed to record analysis error")
		return
	}

	if assignmentID == 0 {
		assignmentID = report.AssignmentID
	}
	s.invalidate(ctx, assignmentID)
	s.observeCompletion(report)
	logger.Warn().Str("details", details).Msg("analysis failed")
}

// finalContext keeps terminal writes alive when shutdown cancels the worker context.
func (s *analysisService) finalContext(ctx context.Context) context.Context {
	if ctx.Err() == nil {
		return ctx
	}
	return context.WithoutCancel(ctx)
}

func (s *analysisService) observeCompletion(report models.Report) {
	observability.AnalysisRuns().WithLabelValues(string(report.Status)).Inc()
	if report.AnalysisDuration != nil {
		observability.AnalysisDuration().Observe(*report.AnalysisDuration)
	}
}

func (s *analysisService) generateWordCloud(ctx context.Context, text string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.wordcloud")
	defer span.End()

	link, err := s.wordCloud.Generate(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "wordcloud failed")
		return "", err
	}
	return link, nil
}

func (s *analysisService) priorText(ctx context.Context, prior models.Submission) (string, error) {
	if !prior.IsText() {
		return "", fmt.Errorf("work %d is not text", prior.ID)
	}
	content, err := s.works.DownloadContent(ctx, prior.ID, s.opts.ContentLimit)
	if err != nil {
		return "", err
	}
	return s.sanitize(content), nil
}

func (s *analysisService) sanitize(content []byte) string {
	return strings.TrimSpace(string(s.policy.SanitizeBytes(content)))
}

func (s *analysisService) invalidate(ctx context.Context, assignmentID uint) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, assignmentID)
	}
}
