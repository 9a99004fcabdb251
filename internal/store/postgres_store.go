// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore is the Store implementation backed by database/sql + lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateFile(ctx context.Context, fileName, objectKey string) (int64, error) {
	var fileID int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO files (file_name, object_key) VALUES ($1, $2) RETURNING file_id`,
		fileName, objectKey,
	).Scan(&fileID)
	return fileID, err
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID int64) (File, error) {
	var f File
	err := s.db.QueryRowContext(ctx,
		`SELECT file_id, file_name, object_key, content_digest, cluster_id, created_at
		 FROM files WHERE file_id = $1`, fileID,
	).Scan(&f.FileID, &f.FileName, &f.ObjectKey, &f.ContentDigest, &f.ClusterID, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return File{}, ErrNotFound
	}
	return f, err
}

func (s *PostgresStore) FindFileByDigest(ctx context.Context, contentDigest string, excludeFileID int64) (File, error) {
	var f File
	err := s.db.QueryRowContext(ctx,
		`SELECT file_id, file_name, object_key, content_digest, cluster_id, created_at
		 FROM files WHERE content_digest = $1 AND file_id != $2
		 ORDER BY created_at ASC LIMIT 1`, contentDigest, excludeFileID,
	).Scan(&f.FileID, &f.FileName, &f.ObjectKey, &f.ContentDigest, &f.ClusterID, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return File{}, ErrNotFound
	}
	return f, err
}

func (s *PostgresStore) SetFileDigest(ctx context.Context, fileID int64, contentDigest string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET content_digest = $1 WHERE file_id = $2`, contentDigest, fileID)
	return err
}

func (s *PostgresStore) AssignCluster(ctx context.Context, fileID int64, clusterID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET cluster_id = $1 WHERE file_id = $2`, clusterID, fileID)
	return err
}

func (s *PostgresStore) CreateCluster(ctx context.Context, intraSimilarityScore float64) (int64, error) {
	var clusterID int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO clusters (intra_similarity_score) VALUES ($1) RETURNING cluster_id`,
		intraSimilarityScore,
	).Scan(&clusterID)
	return clusterID, err
}

func (s *PostgresStore) CreateJob(ctx context.Context, jobID string, fileID int64, fileName, objectKey string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (job_id, file_id, file_name, object_key, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		jobID, fileID, fileName, objectKey, JobPending)
	return err
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (Job, error) {
	var j Job
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, file_id, file_name, object_key, status, error_message,
		        created_at, updated_at, completed_at
		 FROM jobs WHERE job_id = $1`, jobID,
	).Scan(&j.JobID, &j.FileID, &j.FileName, &j.ObjectKey, &j.Status, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (s *PostgresStore) SetJobStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if status == JobCompleted || status == JobFailed {
		completedAt = &now
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, updated_at = $3, completed_at = $4
		 WHERE job_id = $5`,
		status, errMsg, now, completedAt, jobID)
	return err
}

func (s *PostgresStore) ListJobs(ctx context.Context, q ListJobsQuery) ([]Job, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var rows *sql.Rows
	var err error
	if q.Status != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT job_id, file_id, file_name, object_key, status, error_message,
			        created_at, updated_at, completed_at
			 FROM jobs WHERE status = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			*q.Status, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT job_id, file_id, file_name, object_key, status, error_message,
			        created_at, updated_at, completed_at
			 FROM jobs
			 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.JobID, &j.FileID, &j.FileName, &j.ObjectKey, &j.Status, &j.ErrorMessage,
			&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) DeleteJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListStuckProcessing(ctx context.Context, olderThanSeconds int64) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, file_id, file_name, object_key, status, error_message,
		        created_at, updated_at, completed_at
		 FROM jobs
		 WHERE status = $1 AND updated_at < now() - ($2 || ' seconds')::interval
		 ORDER BY updated_at ASC`,
		JobProcessing, olderThanSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.JobID, &j.FileID, &j.FileName, &j.ObjectKey, &j.Status, &j.ErrorMessage,
			&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
