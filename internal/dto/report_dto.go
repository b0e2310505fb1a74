package dto

import (
	"time"

	"github.com/noah-isme/gema-antiplagiat/internal/models"
)

// Analysis start outcomes returned to clients.
const (
	AnalysisStarted = "analysis_started"
	AlreadyAnalyzed = "already_analyzed"
	AnalysisFailed  = "analysis_failed"
)

// AnalyzeResponse is returned by the analysis start endpoint.
type AnalyzeResponse struct {
	ReportID uint   `json:"reportId"`
	WorkID   uint   `json:"workId"`
	Status   string `json:"status"`
}

// WorkOwner is what a caller already knows about a work's owner. It is only used for the
// report recorded when the work metadata cannot be fetched.
type WorkOwner struct {
	StudentID    uint
	AssignmentID uint
}

// ReportSummary carries the fields listed in assignment overviews.
type ReportSummary struct {
	ReportID     uint                `json:"reportId"`
	WorkID       uint                `json:"workId"`
	StudentID    uint                `json:"studentId"`
	AssignmentID uint                `json:"assignmentId"`
	Status       models.ReportStatus `json:"status"`
	IsPlagiarism bool                `json:"isPlagiarism"`
	CreatedAt    time.Time           `json:"createdAt"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
}

// ReportDetails is the full report; it embeds the summary fields.
type ReportDetails struct {
	ReportSummary
	PlagiarismSources []models.PlagiarismSource `json:"plagiarismSources,omitempty"`
	Details           string                    `json:"details"`
	WordCloudURL      *string                   `json:"wordCloudUrl"`
	AnalysisDuration  *float64                  `json:"analysisDuration,omitempty"`
}

// AssignmentReportsResponse aggregates the reports of one assignment.
type AssignmentReportsResponse struct {
	AssignmentID    uint            `json:"assignmentId"`
	TotalCount      int             `json:"totalCount"`
	PlagiarismCount int             `json:"plagiarismCount"`
	Reports         []ReportSummary `json:"reports"`
}

// NewReportSummary converts a Report model into its summary DTO.
func NewReportSummary(model models.Report) ReportSummary {
	return ReportSummary{
		ReportID:     model.ID,
		WorkID:       model.WorkID,
		StudentID:    model.StudentID,
		AssignmentID: model.AssignmentID,
		Status:       model.Status,
		IsPlagiarism: model.IsPlagiarism,
		CreatedAt:    model.CreatedAt.UTC(),
		CompletedAt:  utcPointer(model.CompletedAt),
	}
}

// NewReportDetails converts a Report model into its detailed DTO.
func NewReportDetails(model models.Report) ReportDetails {
	details := ReportDetails{
		ReportSummary:    NewReportSummary(model),
		Details:          model.Details,
		WordCloudURL:     model.WordCloudURL,
		AnalysisDuration: model.AnalysisDuration,
	}
	if model.IsPlagiarism && len(model.PlagiarismSources) > 0 {
		details.PlagiarismSources = append([]models.PlagiarismSource(nil), model.PlagiarismSources...)
	}

	return details
}

// NewAssignmentReportsResponse summarises the reports of an assignment.
func NewAssignmentReportsResponse(assignmentID uint, reports []models.Report) AssignmentReportsResponse {
	response := AssignmentReportsResponse{
		AssignmentID: assignmentID,
		TotalCount:   len(reports),
		Reports:      make([]ReportSummary, 0, len(reports)),
	}
	for _, report := range reports {
		if report.Status == models.ReportStatusDone && report.IsPlagiarism {
			response.PlagiarismCount++
		}
		response.Reports = append(response.Reports, NewReportSummary(report))
	}

	return response
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
