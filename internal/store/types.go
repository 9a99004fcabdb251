// Copyright 2025 James Ross
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Store lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// File is a row in the files table: the durable record of an ingested object
// and, once assigned, the cluster it belongs to.
type File struct {
	FileID        int64
	FileName      string
	ObjectKey     string
	ContentDigest string
	ClusterID     *int64
	CreatedAt     time.Time
}

// Cluster groups files whose embeddings were found similar above the
// configured threshold.
type Cluster struct {
	ClusterID            int64
	IntraSimilarityScore float64
	CreatedAt            time.Time
}

// Job is a durable record of one run of the deduplication pipeline over a
// single file.
type Job struct {
	JobID        string
	FileID       int64
	FileName     string
	ObjectKey    string
	Status       JobStatus
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// ListJobsQuery filters and paginates List calls. The store caps Limit at
// 100 and replaces a non-positive Limit with 50, matching the admin API's
// own clamp so a caller that skips validation still gets sane behavior.
type ListJobsQuery struct {
	Status *JobStatus
	Limit  int
	Offset int
}
