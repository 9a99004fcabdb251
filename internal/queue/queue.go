// Copyright 2025 James Ross
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Dequeue when no job became available before the
// BRPopLPush timeout elapsed.
var ErrEmpty = errors.New("queue: empty")

// StatusUpdate is the transient, queue-side mirror of a job's status. It is
// written on every dispatch-relevant transition so the live status channel
// can read current state without a Postgres round trip.
// The durable record of truth is still the Job Record Store (C1); this is a
// cache, not a second source of truth.
type StatusUpdate struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Queue is the Job Queue interface (C2): at-least-once delivery over Redis
// lists, with a claimed-item holding area so a crashed worker's in-flight
// jobs are recoverable.
type Queue interface {
	// Enqueue pushes job onto the list for priority and records a pending
	// status update.
	Enqueue(ctx context.Context, priority string, job Job) error

	// Dequeue claims the next job from one of priorities (checked in order),
	// atomically moving it into processingList, and sets a heartbeat key
	// with ttl. Returns ErrEmpty if nothing was available within timeout.
	Dequeue(ctx context.Context, priorities []string, processingList string, heartbeatKey string, timeout, ttl time.Duration) (Job, string, error)

	// Ack removes job from processingList and clears its heartbeat key,
	// used once a job reaches a terminal status.
	Ack(ctx context.Context, processingList, heartbeatKey string, job Job) error

	// Requeue pushes job back onto sourceQueue and removes it from
	// processingList and clears heartbeatKey, used on retry.
	Requeue(ctx context.Context, sourceQueue, processingList, heartbeatKey string, job Job) error

	// SetStatus records the current transient status for a job. The first
	// write for a job_id stamps CreatedAt; later writes for the same job_id
	// carry the original CreatedAt forward regardless of what update sets.
	SetStatus(ctx context.Context, update StatusUpdate) error
	// GetStatus returns the transient status for a job, or ErrEmpty if unset.
	GetStatus(ctx context.Context, jobID string) (StatusUpdate, error)

	// QueueLength returns the length of the named priority list.
	QueueLength(ctx context.Context, queueName string) (int64, error)

	// IncrAttempt increments and returns the reaper recovery-attempt counter
	// for jobID.
	IncrAttempt(ctx context.Context, jobID string) (int64, error)
	// ClearAttempt removes the recovery-attempt counter for jobID.
	ClearAttempt(ctx context.Context, jobID string) error
}
