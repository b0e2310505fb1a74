package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSQueue publishes jobs on a subject; every replica joins one queue group and feeds
// the messages it receives into its local worker pool.
type NATSQueue struct {
	conn    *nats.Conn
	subject string
	group   string
	local   *MemoryQueue
	logger  zerolog.Logger

	sub *nats.Subscription
}

// NewNATSQueue wires a NATS subject to a local pool.
func NewNATSQueue(conn *nats.Conn, subject, group string, local *MemoryQueue, logger zerolog.Logger) *NATSQueue {
	if group == "" {
		group = "antiplagiat-analysis"
	}
	return &NATSQueue{
		conn:    conn,
		subject: subject,
		group:   group,
		local:   local,
		logger:  logger.With().Str("component", "analysis_nats_queue").Logger(),
	}
}

func (q *NATSQueue) Start(handler Handler) error {
	if err := q.local.Start(handler); err != nil {
		return err
	}

	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		job, err := DecodeJob(msg.Data)
		if err != nil {
			q.logger.Warn().Err(err).Msg("invalid analysis job payload")
			return
		}
		if err := q.local.Push(context.Background(), job); err != nil {
			q.logger.Error().Err(err).Uint("report_id", job.ReportID).Msg("failed to hand job to workers")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", q.subject, err)
	}
	q.sub = sub

	return nil
}

func (q *NATSQueue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := EncodeJob(job)
	if err != nil {
		return err
	}
	if err := q.conn.Publish(q.subject, payload); err != nil {
		return fmt.Errorf("publish analysis job: %w", err)
	}
	return nil
}

func (q *NATSQueue) Stop(ctx context.Context) error {
	if q.sub != nil {
		if err := q.sub.Drain(); err != nil {
			q.logger.Warn().Err(err).Msg("failed to drain analysis subscription")
		}
	}
	return q.local.Stop(ctx)
}

// EncodeJob serialises a job for the wire.
func EncodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

// DecodeJob parses a job and rejects payloads without ids.
func DecodeJob(payload []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, err
	}
	if job.ReportID == 0 || job.WorkID == 0 {
		return Job{}, fmt.Errorf("job is missing report or work id")
	}
	return job, nil
}
