package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/dto"
	"github.com/noah-isme/gema-antiplagiat/internal/middleware"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
	"github.com/noah-isme/gema-antiplagiat/internal/queue"
	"github.com/noah-isme/gema-antiplagiat/internal/repository"
)

var analysisBase = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

func workMeta(id, studentID, assignmentID uint, offset time.Duration) dto.WorkMeta {
	return dto.WorkMeta{
		WorkID:       id,
		StudentID:    studentID,
		AssignmentID: assignmentID,
		SubmittedAt:  analysisBase.Add(offset),
		FileName:     "essay.txt",
		ContentType:  textContentType,
		SizeBytes:    64,
	}
}

type analysisFixture struct {
	svc     AnalysisService
	reports repository.ReportRepository
	works   *workSourceStub
	queue   *captureQueue
}

func newAnalysisFixture(t *testing.T, works *workSourceStub, checker PlagiarismChecker, wordCloud WordCloudGenerator, opts AnalysisOptions) analysisFixture {
	t.Helper()
	return newAnalysisFixtureWithReports(t, nil, works, checker, wordCloud, opts)
}

// newAnalysisFixtureWithReports lets wrap decorate the report store the service writes to.
func newAnalysisFixtureWithReports(t *testing.T, wrap func(repository.ReportRepository) repository.ReportRepository, works *workSourceStub, checker PlagiarismChecker, wordCloud WordCloudGenerator, opts AnalysisOptions) analysisFixture {
	t.Helper()

	if checker == nil {
		checker = NewPlagiarismChecker(config.PlagiarismConfig{})
	}
	if opts.MetadataRetryInitial == 0 {
		opts.MetadataRetryInitial = time.Millisecond
	}

	reports := repository.NewReportRepository(setupServiceDB(t))
	store := reports
	if wrap != nil {
		store = wrap(reports)
	}
	jobs := &captureQueue{}
	svc := NewAnalysisService(store, works, checker, wordCloud, jobs, nil, opts, testLogger())

	return analysisFixture{svc: svc, reports: reports, works: works, queue: jobs}
}

// analyze starts and synchronously runs the analysis of workID.
func (f analysisFixture) analyze(t *testing.T, workID uint) models.Report {
	t.Helper()

	started, err := f.svc.StartAnalysis(context.Background(), workID)
	require.NoError(t, err)
	require.Equal(t, dto.AnalysisStarted, started.Status)

	f.svc.RunAnalysis(context.Background(), f.queue.last(t))

	report, err := f.reports.GetByID(context.Background(), started.ReportID)
	require.NoError(t, err)
	return report
}

func TestStartAnalysisCreatesPendingReportAndEnqueues(t *testing.T) {
	f := newAnalysisFixture(t, newWorkSourceStub(workMeta(1, 10, 1, 0)), nil, nil, AnalysisOptions{})
	ctx := middleware.ContextWithCorrelation(context.Background(), "corr-1")

	started, err := f.svc.StartAnalysis(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, dto.AnalysisStarted, started.Status)
	require.Equal(t, uint(1), started.WorkID)
	require.NotZero(t, started.ReportID)

	job := f.queue.last(t)
	require.Equal(t, queue.Job{ReportID: started.ReportID, WorkID: 1, CorrelationID: "corr-1"}, job)

	report, err := f.reports.GetByID(context.Background(), started.ReportID)
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusPending, report.Status)
	require.Equal(t, uint(10), report.StudentID)
	require.Equal(t, uint(1), report.AssignmentID)

	_, err = f.svc.StartAnalysis(ctx, 1)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestStartAnalysisReturnsExistingDoneReport(t *testing.T) {
	f := newAnalysisFixture(t, newWorkSourceStub(workMeta(1, 10, 1, 0)), nil, nil, AnalysisOptions{})

	report := f.analyze(t, 1)
	require.Equal(t, models.ReportStatusDone, report.Status)

	again, err := f.svc.StartAnalysis(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, dto.AlreadyAnalyzed, again.Status)
	require.Equal(t, report.ID, again.ReportID)
}

func TestStartAnalysisRejectsInvalidAndUnknownWork(t *testing.T) {
	f := newAnalysisFixture(t, newWorkSourceStub(), nil, nil, AnalysisOptions{})

	_, err := f.svc.StartAnalysis(context.Background(), 0)
	require.True(t, apperr.IsValidation(err))

	_, err = f.svc.StartAnalysis(context.Background(), 42)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.Equal(t, 1, f.works.calls())

	_, err = f.reports.GetLatestByWorkID(context.Background(), 42)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStartAnalysisRecordsErrorWhenMetadataUnavailable(t *testing.T) {
	works := newWorkSourceStub(workMeta(1, 10, 1, 0))
	works.getErr = apperr.New(apperr.ErrUpstreamUnavailable, "connection refused")
	f := newAnalysisFixture(t, works, nil, nil, AnalysisOptions{MetadataRetries: 3})

	response, err := f.svc.StartAnalysis(context.Background(), 1)
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	require.Equal(t, dto.AnalysisFailed, response.Status)
	require.NotZero(t, response.ReportID)
	require.Equal(t, 3, works.calls())
	require.Empty(t, f.queue.jobs)

	report, err := f.reports.GetByID(context.Background(), response.ReportID)
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusError, report.Status)
	require.Contains(t, report.Details, "failed to fetch work metadata")
	require.True(t, report.HasConsistentCompletion())
}

func TestStartAnalysisKeepsKnownOwnerOnFailureReport(t *testing.T) {
	works := newWorkSourceStub(workMeta(1, 10, 4, 0))
	works.getErr = apperr.New(apperr.ErrUpstreamUnavailable, "connection refused")
	f := newAnalysisFixture(t, works, nil, nil, AnalysisOptions{MetadataRetries: 1})

	response, err := f.svc.StartAnalysisFor(context.Background(), 1, dto.WorkOwner{StudentID: 10, AssignmentID: 4})
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	require.Equal(t, dto.AnalysisFailed, response.Status)

	listed, err := f.reports.ListByAssignment(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, response.ReportID, listed[0].ID)
	require.Equal(t, uint(10), listed[0].StudentID)
	require.Equal(t, models.ReportStatusError, listed[0].Status)
}

func TestStartAnalysisRecordsErrorWhenQueueFull(t *testing.T) {
	f := newAnalysisFixture(t, newWorkSourceStub(workMeta(1, 10, 1, 0)), nil, nil, AnalysisOptions{})
	f.queue.err = queue.ErrQueueFull

	response, err := f.svc.StartAnalysis(context.Background(), 1)
	require.ErrorIs(t, err, apperr.ErrOverload)
	require.Equal(t, dto.AnalysisFailed, response.Status)

	report, err := f.reports.GetByID(context.Background(), response.ReportID)
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusError, report.Status)

	// the failed report no longer blocks a retry
	f.queue.err = nil
	retry, err := f.svc.StartAnalysis(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, dto.AnalysisStarted, retry.Status)
}

func TestStartAnalysisRejectsBurstAboveCapacity(t *testing.T) {
	var metas []dto.WorkMeta
	for i := uint(1); i <= 11; i++ {
		metas = append(metas, workMeta(i, 100+i, 1, time.Duration(i)*time.Minute))
	}
	works := newWorkSourceStub(metas...)
	works.block = make(chan struct{})
	f := newAnalysisFixture(t, works, nil, nil, AnalysisOptions{Burst: 10, AdmitTimeout: 50 * time.Millisecond})

	errs := make(chan error, 11)
	var wg sync.WaitGroup
	for i := uint(1); i <= 11; i++ {
		wg.Add(1)
		go func(workID uint) {
			defer wg.Done()
			_, err := f.svc.StartAnalysis(context.Background(), workID)
			errs <- err
		}(i)
	}

	select {
	case err := <-errs:
		require.ErrorIs(t, err, apperr.ErrOverload)
		require.Equal(t, 429, apperr.Status(err))
	case <-time.After(5 * time.Second):
		t.Fatal("no request was rejected")
	}

	close(works.block)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, f.queue.jobs, 10)
}

func TestRunAnalysisFlagsLaterSubmissionOnly(t *testing.T) {
	works := newWorkSourceStub(workMeta(1, 10, 1, 0), workMeta(2, 20, 1, time.Minute))
	works.contents[1] = "Consensus protocols tolerate crashed replicas"
	works.contents[2] = "<p>Consensus protocols tolerate crashed replicas</p>"
	f := newAnalysisFixture(t, works, nil, wordCloudStub{url: "https://quickchart.io/wordcloud?text=x"}, AnalysisOptions{})

	first := f.analyze(t, 1)
	require.Equal(t, models.ReportStatusDone, first.Status)
	require.False(t, first.IsPlagiarism)
	require.Empty(t, first.PlagiarismSources)
	require.Equal(t, DetailsNoPriorSubmissions, first.Details)

	second := f.analyze(t, 2)
	require.Equal(t, models.ReportStatusDone, second.Status)
	require.True(t, second.IsPlagiarism)
	require.Len(t, second.PlagiarismSources, 1)
	require.Equal(t, uint(1), second.PlagiarismSources[0].SourceWorkID)
	require.Equal(t, ReasonHighTextualSimilarity, second.PlagiarismSources[0].Reason)
	require.Equal(t, 100.0, second.PlagiarismSources[0].SimilarityPercentage)
	require.NotNil(t, second.WordCloudURL)
	require.Equal(t, "https://quickchart.io/wordcloud?text=x", *second.WordCloudURL)

	require.True(t, second.HasConsistentCompletion())
	require.False(t, second.CompletedAt.Before(second.CreatedAt))
	require.InDelta(t, second.CompletedAt.Sub(second.CreatedAt).Seconds(), *second.AnalysisDuration, 1e-6)
}

func TestRunAnalysisCompletesWhenWordCloudFails(t *testing.T) {
	works := newWorkSourceStub(workMeta(1, 10, 1, 0))
	works.contents[1] = "some meaningful words here"
	f := newAnalysisFixture(t, works, nil, wordCloudStub{err: errors.New("provider unreachable")}, AnalysisOptions{})

	report := f.analyze(t, 1)
	require.Equal(t, models.ReportStatusDone, report.Status)
	require.Nil(t, report.WordCloudURL)
	require.Contains(t, report.Details, "Word cloud unavailable")
}

func TestRunAnalysisUsesWordCloudFallback(t *testing.T) {
	works := newWorkSourceStub(workMeta(1, 10, 1, 0))
	works.contents[1] = "some meaningful words here"
	f := newAnalysisFixture(t, works, nil, wordCloudStub{err: errors.New("timeout")}, AnalysisOptions{WordCloudFallbackURL: "https://example.org/cloud.png"})

	report := f.analyze(t, 1)
	require.Equal(t, models.ReportStatusDone, report.Status)
	require.NotNil(t, report.WordCloudURL)
	require.Equal(t, "https://example.org/cloud.png", *report.WordCloudURL)
}

func TestRunAnalysisFallsBackToMetadataWhenContentMissing(t *testing.T) {
	works := newWorkSourceStub(workMeta(1, 10, 1, 0), workMeta(2, 20, 1, time.Minute))
	works.downloadErr = apperr.New(apperr.ErrGone, "file removed")
	f := newAnalysisFixture(t, works, nil, wordCloudStub{url: "https://example.org/x.png"}, AnalysisOptions{})

	report := f.analyze(t, 2)
	require.Equal(t, models.ReportStatusDone, report.Status)
	require.True(t, report.IsPlagiarism)
	require.Equal(t, ReasonEarlierSubmission, report.PlagiarismSources[0].Reason)
	require.Contains(t, report.Details, "Content unavailable, metadata-only check.")
	require.Nil(t, report.WordCloudURL)
}

func TestRunAnalysisRecordsCheckerFailure(t *testing.T) {
	failing := checkerFunc(func(context.Context, CheckInput) (CheckResult, error) {
		return CheckResult{}, errors.New("tokenizer exploded")
	})
	f := newAnalysisFixture(t, newWorkSourceStub(workMeta(1, 10, 1, 0)), failing, nil, AnalysisOptions{})

	report := f.analyze(t, 1)
	require.Equal(t, models.ReportStatusError, report.Status)
	require.Contains(t, report.Details, "tokenizer exploded")
	require.False(t, report.IsPlagiarism)
	require.True(t, report.HasConsistentCompletion())
}

func TestRunAnalysisRecoversFromPanic(t *testing.T) {
	panicking := checkerFunc(func(context.Context, CheckInput) (CheckResult, error) {
		panic("boom")
	})
	f := newAnalysisFixture(t, newWorkSourceStub(workMeta(1, 10, 1, 0)), panicking, nil, AnalysisOptions{})

	report := f.analyze(t, 1)
	require.Equal(t, models.ReportStatusError, report.Status)
	require.Contains(t, report.Details, "boom")
}

func TestRunAnalysisRecordsListFailure(t *testing.T) {
	works := newWorkSourceStub(workMeta(1, 10, 1, 0))
	works.listErr = apperr.New(apperr.ErrUpstreamUnavailable, "storing down")
	f := newAnalysisFixture(t, works, nil, nil, AnalysisOptions{})

	report := f.analyze(t, 1)
	require.Equal(t, models.ReportStatusError, report.Status)
	require.Contains(t, report.Details, "failed to list prior submissions")
}

func TestRunAnalysisSkipsCompletedReport(t *testing.T) {
	f := newAnalysisFixture(t, newWorkSourceStub(workMeta(1, 10, 1, 0)), nil, nil, AnalysisOptions{})

	report := f.analyze(t, 1)
	calls := f.works.calls()

	f.svc.RunAnalysis(context.Background(), queue.Job{ReportID: report.ID, WorkID: 1})
	require.Equal(t, calls, f.works.calls())

	again, err := f.reports.GetByID(context.Background(), report.ID)
	require.NoError(t, err)
	require.Equal(t, report.CompletedAt.UTC(), again.CompletedAt.UTC())
}

type failingDoneReports struct {
	repository.ReportRepository
	err error
}

func (r failingDoneReports) TransitionToDone(context.Context, uint, repository.ReportOutcome) (models.Report, error) {
	return models.Report{}, r.err
}

func TestRunAnalysisRecordsErrorWhenResultWriteFails(t *testing.T) {
	wrap := func(reports repository.ReportRepository) repository.ReportRepository {
		return failingDoneReports{ReportRepository: reports, err: errors.New("database is locked")}
	}
	f := newAnalysisFixtureWithReports(t, wrap, newWorkSourceStub(workMeta(1, 10, 1, 0)), nil, nil, AnalysisOptions{})

	report := f.analyze(t, 1)
	require.Equal(t, models.ReportStatusError, report.Status)
	require.Contains(t, report.Details, "failed to record analysis result")
	require.Contains(t, report.Details, "database is locked")
	require.NotNil(t, report.CompletedAt)
	require.True(t, report.HasConsistentCompletion())

	again, err := f.svc.StartAnalysis(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, dto.AnalysisStarted, again.Status)
	require.NotEqual(t, report.ID, again.ReportID)
}

func TestStartAnalysisRetiresStaleActiveReport(t *testing.T) {
	f := newAnalysisFixture(t, newWorkSourceStub(workMeta(1, 10, 1, 0)), nil, nil, AnalysisOptions{StaleAfter: 200 * time.Millisecond})

	stranded, err := f.reports.Create(context.Background(), 1, 10, 1)
	require.NoError(t, err)

	_, err = f.svc.StartAnalysis(context.Background(), 1)
	require.ErrorIs(t, err, apperr.ErrConflict)

	time.Sleep(300 * time.Millisecond)

	started, err := f.svc.StartAnalysis(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, dto.AnalysisStarted, started.Status)
	require.NotEqual(t, stranded.ID, started.ReportID)

	retired, err := f.reports.GetByID(context.Background(), stranded.ID)
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusError, retired.Status)
	require.Contains(t, retired.Details, "analysis abandoned")
	require.True(t, retired.HasConsistentCompletion())
}
