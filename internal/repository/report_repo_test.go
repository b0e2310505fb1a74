package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
)

func newTestReportRepository(t *testing.T, clock *time.Time) *reportRepository {
	t.Helper()
	repo := NewReportRepository(setupTestDB(t)).(*reportRepository)
	if clock != nil {
		repo.now = func() time.Time { return *clock }
	}
	return repo
}

func TestReportRepositoryCreateStartsPending(t *testing.T) {
	repo := newTestReportRepository(t, nil)

	report, err := repo.Create(context.Background(), 5, 10, 1)
	require.NoError(t, err)
	require.NotZero(t, report.ID)
	require.Equal(t, models.ReportStatusPending, report.Status)
	require.Nil(t, report.CompletedAt)
	require.True(t, report.HasConsistentCompletion())
}

func TestReportRepositoryCreateConflictsWhileActive(t *testing.T) {
	repo := newTestReportRepository(t, nil)
	ctx := context.Background()

	first, err := repo.Create(ctx, 5, 10, 1)
	require.NoError(t, err)

	_, err = repo.Create(ctx, 5, 10, 1)
	require.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, repo.MarkProcessing(ctx, first.ID))
	_, err = repo.Create(ctx, 5, 10, 1)
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = repo.TransitionToError(ctx, first.ID, "upstream down")
	require.NoError(t, err)

	retry, err := repo.Create(ctx, 5, 10, 1)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, retry.ID)

	latest, err := repo.GetLatestByWorkID(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, retry.ID, latest.ID)
}

func TestReportRepositoryTransitionToDoneComputesDuration(t *testing.T) {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newTestReportRepository(t, &clock)
	ctx := context.Background()

	report, err := repo.Create(ctx, 5, 20, 1)
	require.NoError(t, err)
	require.NoError(t, repo.MarkProcessing(ctx, report.ID))

	clock = clock.Add(2500 * time.Millisecond)
	url := "https://quickchart.io/wordcloud?text=x"
	sources := []models.PlagiarismSource{{SourceWorkID: 1, SourceStudentID: 10, Reason: "earlier submission to the same assignment", SimilarityPercentage: 100}}
	done, err := repo.TransitionToDone(ctx, report.ID, ReportOutcome{IsPlagiarism: true, Sources: sources, Details: "1 prior", WordCloudURL: &url})
	require.NoError(t, err)

	require.Equal(t, models.ReportStatusDone, done.Status)
	require.True(t, done.HasConsistentCompletion())
	require.NotNil(t, done.AnalysisDuration)
	require.InDelta(t, 2.5, *done.AnalysisDuration, 1e-9)
	require.Equal(t, done.CompletedAt.Sub(done.CreatedAt).Seconds(), *done.AnalysisDuration)
	require.Len(t, done.PlagiarismSources, 1)
	require.Equal(t, uint(1), done.PlagiarismSources[0].SourceWorkID)
	require.Equal(t, url, *done.WordCloudURL)
}

func TestReportRepositoryTerminalStatesAreFinal(t *testing.T) {
	repo := newTestReportRepository(t, nil)
	ctx := context.Background()

	report, err := repo.Create(ctx, 5, 20, 1)
	require.NoError(t, err)

	done, err := repo.TransitionToDone(ctx, report.ID, ReportOutcome{Details: "no prior submissions."})
	require.NoError(t, err)

	again, err := repo.TransitionToDone(ctx, report.ID, ReportOutcome{IsPlagiarism: true, Details: "overwrite"})
	require.NoError(t, err)
	require.Equal(t, done.CompletedAt, again.CompletedAt)
	require.Equal(t, "no prior submissions.", again.Details)
	require.False(t, again.IsPlagiarism)

	_, err = repo.TransitionToError(ctx, report.ID, "late failure")
	require.ErrorIs(t, err, apperr.ErrConflict)

	err = repo.MarkProcessing(ctx, report.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestReportRepositoryTransitionMissingReport(t *testing.T) {
	repo := newTestReportRepository(t, nil)

	_, err := repo.TransitionToDone(context.Background(), 99, ReportOutcome{})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.TransitionToError(context.Background(), 99, "x")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReportRepositoryNegativeVerdictDropsSources(t *testing.T) {
	repo := newTestReportRepository(t, nil)
	ctx := context.Background()

	report, err := repo.Create(ctx, 5, 20, 1)
	require.NoError(t, err)

	done, err := repo.TransitionToDone(ctx, report.ID, ReportOutcome{
		IsPlagiarism: false,
		Sources:      []models.PlagiarismSource{{SourceWorkID: 1}},
	})
	require.NoError(t, err)
	require.Empty(t, done.PlagiarismSources)
}

func TestReportRepositoryConcurrentCompletionWritesOnce(t *testing.T) {
	repo := newTestReportRepository(t, nil)
	ctx := context.Background()

	report, err := repo.Create(ctx, 5, 20, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]models.Report, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = repo.TransitionToDone(ctx, report.ID, ReportOutcome{Details: "done"})
		}(i)
	}
	wg.Wait()

	stored, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	for i, result := range results {
		if errs[i] != nil {
			require.ErrorIs(t, errs[i], apperr.ErrConflict)
			continue
		}
		require.Equal(t, stored.CompletedAt, result.CompletedAt)
	}
}

func TestReportRepositoryListByAssignmentNewestFirst(t *testing.T) {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newTestReportRepository(t, &clock)
	ctx := context.Background()

	older, err := repo.Create(ctx, 1, 10, 4)
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	newer, err := repo.Create(ctx, 2, 20, 4)
	require.NoError(t, err)
	_, err = repo.Create(ctx, 3, 30, 5)
	require.NoError(t, err)

	reports, err := repo.ListByAssignment(ctx, 4)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.Equal(t, newer.ID, reports[0].ID)
	require.Equal(t, older.ID, reports[1].ID)
}
