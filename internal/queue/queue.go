// Package queue hands analysis jobs from the request path to background workers.
package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned when the queue cannot take another job.
	ErrQueueFull = errors.New("analysis queue is full")
	// ErrQueueClosed is returned after Stop.
	ErrQueueClosed = errors.New("analysis queue is closed")
)

// Job identifies one pending analysis.
type Job struct {
	ReportID      uint   `json:"reportId"`
	WorkID        uint   `json:"workId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Handler processes one job. The context is cancelled when shutdown runs out of time.
type Handler func(ctx context.Context, job Job)

// Queue is implemented by the in-memory pool and the NATS handoff.
type Queue interface {
	Start(handler Handler) error
	Enqueue(ctx context.Context, job Job) error
	Stop(ctx context.Context) error
}
