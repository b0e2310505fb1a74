package models

import (
	"strings"
	"time"
)

// Submission is one student's uploaded work for one assignment. Rows are write-once.
type Submission struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	StudentID       uint      `gorm:"not null;index" json:"student_id"`
	AssignmentID    uint      `gorm:"not null;index:idx_submissions_assignment_time,priority:1" json:"assignment_id"`
	SubmittedAt     time.Time `gorm:"not null;index:idx_submissions_assignment_time,priority:2" json:"submitted_at"`
	FileName        string    `gorm:"size:255;not null" json:"file_name"`
	ContentType     string    `gorm:"size:128" json:"content_type"`
	SizeBytes       int64     `json:"size_bytes"`
	Checksum        string    `gorm:"size:64" json:"checksum"`
	StorageLocation string    `gorm:"size:1024" json:"storage_location"`
}

// IsText reports whether the stored file can be read as plain text for analysis.
func (s Submission) IsText() bool {
	return strings.HasPrefix(s.ContentType, "text/")
}
