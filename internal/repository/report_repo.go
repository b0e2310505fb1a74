package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-antiplagiat/internal/apperr"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
)

// ReportOutcome carries the verdict written by a successful analysis.
type ReportOutcome struct {
	IsPlagiarism bool
	Sources      []models.PlagiarismSource
	Details      string
	WordCloudURL *string
}

// ReportRepository owns report rows and enforces their lifecycle.
type ReportRepository interface {
	Create(ctx context.Context, workID, studentID, assignmentID uint) (models.Report, error)
	GetByID(ctx context.Context, id uint) (models.Report, error)
	GetLatestByWorkID(ctx context.Context, workID uint) (models.Report, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Report, error)
	MarkProcessing(ctx context.Context, id uint) error
	TransitionToDone(ctx context.Context, id uint, outcome ReportOutcome) (models.Report, error)
	TransitionToError(ctx context.Context, id uint, details string) (models.Report, error)
}

type reportRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewReportRepository instantiates a GORM-backed report store.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db, now: time.Now}
}

// timestamps are kept at microsecond precision so that durations survive a postgres round trip.
func (r *reportRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *reportRepository) Create(ctx context.Context, workID, studentID, assignmentID uint) (models.Report, error) {
	report := models.Report{
		WorkID:       workID,
		StudentID:    studentID,
		AssignmentID: assignmentID,
		Status:       models.ReportStatusPending,
		CreatedAt:    r.timestamp(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Report{}).
			Where("work_id = ? AND status IN ?", workID, models.ActiveReportStatuses).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return apperr.New(apperr.ErrConflict, "analysis of work %d is already in progress", workID)
		}

		return tx.Create(&report).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.Report{}, apperr.New(apperr.ErrConflict, "analysis of work %d is already in progress", workID)
	}
	if err != nil {
		return models.Report{}, err
	}

	return report, nil
}

func (r *reportRepository) GetByID(ctx context.Context, id uint) (models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Report{}, apperr.New(apperr.ErrNotFound, "report %d", id)
		}
		return models.Report{}, err
	}

	return report, nil
}

func (r *reportRepository) GetLatestByWorkID(ctx context.Context, workID uint) (models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).
		Where("work_id = ?", workID).
		Order("created_at DESC").
		Order("id DESC").
		First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Report{}, apperr.New(apperr.ErrNotFound, "no report for work %d", workID)
		}
		return models.Report{}, err
	}

	return report, nil
}

func (r *reportRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Report, error) {
	var reports []models.Report
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&reports).Error; err != nil {
		return nil, err
	}

	return reports, nil
}

func (r *reportRepository) MarkProcessing(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status = ?", id, models.ReportStatusPending).
		Update("status", models.ReportStatusProcessing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == models.ReportStatusProcessing {
		return nil
	}

	return apperr.New(apperr.ErrConflict, "report %d is already %s", id, current.Status)
}

func (r *reportRepository) TransitionToDone(ctx context.Context, id uint, outcome ReportOutcome) (models.Report, error) {
	sources := outcome.Sources
	if !outcome.IsPlagiarism {
		sources = nil
	}

	return r.complete(ctx, id, models.ReportStatusDone, map[string]interface{}{
		"is_plagiarism":      outcome.IsPlagiarism,
		"plagiarism_sources": models.NewPlagiarismSources(sources),
		"details":            outcome.Details,
		"word_cloud_url":     outcome.WordCloudURL,
	})
}

func (r *reportRepository) TransitionToError(ctx context.Context, id uint, details string) (models.Report, error) {
	return r.complete(ctx, id, models.ReportStatusError, map[string]interface{}{
		"is_plagiarism":      false,
		"plagiarism_sources": models.NewPlagiarismSources(nil),
		"details":            details,
	})
}

// complete moves an active report to a terminal status exactly once. The update is guarded
// by the active statuses so a concurrent writer can never overwrite a terminal row.
func (r *reportRepository) complete(ctx context.Context, id uint, status models.ReportStatus, fields map[string]interface{}) (models.Report, error) {
	var result models.Report
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Report
		if err := tx.First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.ErrNotFound, "report %d", id)
			}
			return err
		}

		if current.Status.IsTerminal() {
			if current.Status != status {
				return apperr.New(apperr.ErrConflict, "report %d is already %s", id, current.Status)
			}
			result = current
			return nil
		}

		completedAt := r.timestamp()
		duration := completedAt.Sub(current.CreatedAt).Seconds()

		updates := make(map[string]interface{}, len(fields)+3)
		for key, value := range fields {
			updates[key] = value
		}
		updates["status"] = status
		updates["completed_at"] = completedAt
		updates["analysis_duration"] = duration

		res := tx.Model(&models.Report{}).
			Where("id = ? AND status IN ?", id, models.ActiveReportStatuses).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.ErrConflict, "report %d was completed concurrently", id)
		}

		return tx.First(&result, id).Error
	})
	if err != nil {
		return models.Report{}, err
	}

	return result, nil
}
