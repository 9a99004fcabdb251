// Copyright 2025 James Ross
// Package ingest implements the Ingest Contract (C9): the narrow surface the
// out-of-scope upload-completion handler calls once an object finishes
// landing in the object store, to register a durable job row and enqueue
// the corresponding deduplication work.
package ingest

import (
	"context"
	"fmt"

	"github.com/filevault/dedup-backend/internal/obs"
	"github.com/filevault/dedup-backend/internal/queue"
	"github.com/filevault/dedup-backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Contract is C9: insert the file row, mint a job id, persist the durable
// job record, and enqueue the transient payload, in that order.
type Contract struct {
	store    store.Store
	queue    queue.Queue
	log      *zap.Logger
	priority string
}

func New(s store.Store, q queue.Queue, priority string, log *zap.Logger) *Contract {
	return &Contract{store: s, queue: q, log: log, priority: priority}
}

// Submit runs the four-step ingest sequence of spec §4.9. A failure creating
// the file row or the durable job row is returned to the caller, wrapped.
// A failure enqueuing the payload is logged and also returned, together with
// the file and job ids: both rows already exist, so the (out of scope) HTTP
// handler can still report the upload a success. The job never starts until
// an operator notices it stuck in "pending" and replays it by hand.
func (c *Contract) Submit(ctx context.Context, fileName, objectKey string) (fileID int64, jobID string, err error) {
	fileID, err = c.store.CreateFile(ctx, fileName, objectKey)
	if err != nil {
		return 0, "", fmt.Errorf("ingest: create file: %w", err)
	}

	jobID = uuid.NewString()
	if err := c.store.CreateJob(ctx, jobID, fileID, fileName, objectKey); err != nil {
		c.log.Error("ingest: durable job row not created, file is orphaned",
			zap.Int64("file_id", fileID), zap.Error(err))
		return fileID, "", fmt.Errorf("ingest: create job: %w", err)
	}

	payload := queue.NewJob(jobID, fileID, fileName, objectKey, c.priority)
	if err := c.queue.Enqueue(ctx, c.priority, payload); err != nil {
		c.log.Error("ingest: enqueue failed, job row stuck pending until replayed",
			zap.String("job_id", jobID), zap.Int64("file_id", fileID), zap.Error(err))
		return fileID, jobID, fmt.Errorf("ingest: enqueue: %w", err)
	}

	obs.JobsIngested.Inc()
	return fileID, jobID, nil
}
