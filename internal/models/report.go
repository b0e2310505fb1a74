package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReportStatus enumerates the analysis lifecycle.
type ReportStatus string

const (
	// ReportStatusPending is set at creation, before a worker picks the job.
	ReportStatusPending ReportStatus = "pending"
	// ReportStatusProcessing is set once a worker starts the analysis.
	ReportStatusProcessing ReportStatus = "processing"
	// ReportStatusDone is terminal; the verdict fields are meaningful.
	ReportStatusDone ReportStatus = "done"
	// ReportStatusError is terminal; details carries the failure.
	ReportStatusError ReportStatus = "error"
)

// ActiveReportStatuses are the statuses that block a new analysis of the same work.
var ActiveReportStatuses = []ReportStatus{ReportStatusPending, ReportStatusProcessing}

// IsTerminal reports whether no further writes are accepted.
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusDone || s == ReportStatusError
}

// IsActive reports whether the analysis is still running or queued.
func (s ReportStatus) IsActive() bool {
	return s == ReportStatusPending || s == ReportStatusProcessing
}

// PlagiarismSource is one prior submission that contributed to a positive verdict.
type PlagiarismSource struct {
	SourceWorkID         uint      `json:"sourceWorkId"`
	SourceStudentID      uint      `json:"sourceStudentId"`
	SourceSubmittedAt    time.Time `json:"sourceSubmittedAt"`
	Reason               string    `json:"reason"`
	SimilarityPercentage float64   `json:"similarityPercentage"`
}

// Report records one plagiarism analysis run over a submission.
type Report struct {
	ID                uint                                  `gorm:"primaryKey" json:"id"`
	WorkID            uint                                  `gorm:"not null;index;uniqueIndex:idx_reports_active_work,where:status <> 'done' AND status <> 'error'" json:"work_id"`
	StudentID         uint                                  `gorm:"not null" json:"student_id"`
	AssignmentID      uint                                  `gorm:"not null;index" json:"assignment_id"`
	Status            ReportStatus                          `gorm:"size:16;not null;index" json:"status"`
	IsPlagiarism      bool                                  `gorm:"not null;default:false" json:"is_plagiarism"`
	PlagiarismSources datatypes.JSONSlice[PlagiarismSource] `json:"plagiarism_sources"`
	Details           string                                `gorm:"type:text" json:"details"`
	WordCloudURL      *string                               `gorm:"size:4096" json:"word_cloud_url"`
	CreatedAt         time.Time                             `gorm:"not null" json:"created_at"`
	CompletedAt       *time.Time                            `json:"completed_at"`
	AnalysisDuration  *float64                              `json:"analysis_duration"`
}

// HasConsistentCompletion checks that completedAt is set exactly on terminal statuses.
func (r Report) HasConsistentCompletion() bool {
	if r.Status.IsTerminal() {
		return r.CompletedAt != nil && r.AnalysisDuration != nil
	}
	return r.CompletedAt == nil && r.AnalysisDuration == nil
}

// NewPlagiarismSources converts sources into the JSON column type, never storing null.
func NewPlagiarismSources(sources []PlagiarismSource) datatypes.JSONSlice[PlagiarismSource] {
	if sources == nil {
		return datatypes.JSONSlice[PlagiarismSource]{}
	}
	return datatypes.JSONSlice[PlagiarismSource](sources)
}
