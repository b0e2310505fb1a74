package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/gema-antiplagiat/internal/models"
)

// SubmissionUploadRequest describes the multipart fields accompanying an uploaded work.
type SubmissionUploadRequest struct {
	StudentID    uint `form:"studentId" validate:"required,gt=0"`
	AssignmentID uint `form:"assignmentId" validate:"required,gt=0"`
}

// WorkMeta is the public view of a stored submission.
type WorkMeta struct {
	WorkID       uint      `json:"workId"`
	StudentID    uint      `json:"studentId"`
	AssignmentID uint      `json:"assignmentId"`
	SubmittedAt  time.Time `json:"submittedAt"`
	FilePath     string    `json:"filePath"`
	FileName     string    `json:"fileName"`
	ContentType  string    `json:"contentType"`
	SizeBytes    int64     `json:"sizeBytes"`
	Checksum     string    `json:"checksum"`
}

// DownloadPath is the service-relative route serving the file of a work.
func DownloadPath(workID uint) string {
	return fmt.Sprintf("/files/%d/download", workID)
}

// NewWorkMeta converts a Submission model into its public representation.
func NewWorkMeta(model models.Submission) WorkMeta {
	return WorkMeta{
		WorkID:       model.ID,
		StudentID:    model.StudentID,
		AssignmentID: model.AssignmentID,
		SubmittedAt:  model.SubmittedAt.UTC(),
		FilePath:     DownloadPath(model.ID),
		FileName:     model.FileName,
		ContentType:  model.ContentType,
		SizeBytes:    model.SizeBytes,
		Checksum:     model.Checksum,
	}
}

// NewWorkMetaSlice converts submission models into DTOs.
func NewWorkMetaSlice(submissions []models.Submission) []WorkMeta {
	responses := make([]WorkMeta, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewWorkMeta(submission))
	}

	return responses
}

// ToSubmission rebuilds the fields of a Submission that matter to analysis.
func (w WorkMeta) ToSubmission() models.Submission {
	return models.Submission{
		ID:           w.WorkID,
		StudentID:    w.StudentID,
		AssignmentID: w.AssignmentID,
		SubmittedAt:  w.SubmittedAt,
		FileName:     w.FileName,
		ContentType:  w.ContentType,
		SizeBytes:    w.SizeBytes,
		Checksum:     w.Checksum,
	}
}
