// Copyright 2025 James Ross
package store

import "context"

// Store is the durable Job/File/Cluster record interface (C1). It is the
// system of record for job lifecycle state; the queue (C2) only carries
// transient dispatch state.
type Store interface {
	// CreateFile inserts a new file row and returns its assigned FileID.
	CreateFile(ctx context.Context, fileName, objectKey string) (int64, error)
	// GetFile returns the file row, or ErrNotFound.
	GetFile(ctx context.Context, fileID int64) (File, error)
	// FindFileByDigest looks up any existing file sharing contentDigest,
	// excluding excludeFileID itself. Returns ErrNotFound if none exist.
	FindFileByDigest(ctx context.Context, contentDigest string, excludeFileID int64) (File, error)
	// SetFileDigest persists the computed content digest for a file.
	SetFileDigest(ctx context.Context, fileID int64, contentDigest string) error
	// AssignCluster sets the file's cluster_id.
	AssignCluster(ctx context.Context, fileID int64, clusterID int64) error

	// CreateCluster inserts a new cluster and returns its ClusterID.
	CreateCluster(ctx context.Context, intraSimilarityScore float64) (int64, error)

	// CreateJob inserts a new job row in JobPending status.
	CreateJob(ctx context.Context, jobID string, fileID int64, fileName, objectKey string) error
	// GetJob returns the job row, or ErrNotFound.
	GetJob(ctx context.Context, jobID string) (Job, error)
	// SetJobStatus transitions a job's status, optionally recording an error
	// message (cleared when nil). The store sets the completion time itself
	// when status is terminal (completed or failed).
	SetJobStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string) error
	// ListJobs returns jobs matching q, most recently created first.
	ListJobs(ctx context.Context, q ListJobsQuery) ([]Job, error)
	// DeleteJob removes a job row. Deleting a job does not touch the file or
	// cluster it produced.
	DeleteJob(ctx context.Context, jobID string) error
	// ListStuckProcessing returns jobs in JobProcessing status whose
	// updated_at is older than olderThan seconds ago, used by the reaper.
	ListStuckProcessing(ctx context.Context, olderThanSeconds int64) ([]Job, error)
}
