// Copyright 2025 James Ross
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/filevault/dedup-backend/internal/obs"
	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "dedup:job_status:"
const attemptKeyPrefix = "dedup:reaper:attempts:"

// RedisQueue is the Queue implementation, following the teacher worker's
// BRPopLPush-into-processing-list pattern so a crashed worker's claimed jobs
// remain visible for recovery.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Enqueue(ctx context.Context, priority string, job Job) error {
	ctx, span := obs.StartEnqueueSpan(ctx, obs.JobAttrs{ID: job.ID, FileID: job.FileID, Priority: priority})
	defer span.End()

	payload, err := job.Marshal()
	if err != nil {
		obs.RecordError(ctx, err)
		return err
	}
	queueName := fmt.Sprintf("dedup:jobs:%s", priority)
	if err := q.rdb.LPush(ctx, queueName, payload).Err(); err != nil {
		obs.RecordError(ctx, err)
		return err
	}
	if err := q.SetStatus(ctx, StatusUpdate{JobID: job.ID, Status: "pending", UpdatedAt: time.Now().UTC()}); err != nil {
		obs.RecordError(ctx, err)
		return err
	}
	obs.SetSpanSuccess(ctx)
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, priorities []string, processingList, heartbeatKey string, timeout, ttl time.Duration) (Job, string, error) {
	for _, queueName := range priorities {
		v, err := q.rdb.BRPopLPush(ctx, queueName, processingList, timeout).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return Job{}, "", err
		}
		job, err := UnmarshalJob(v)
		if err != nil {
			// Poison payload: drop it from the processing list rather than
			// loop on it forever.
			_ = q.rdb.LRem(ctx, processingList, 1, v).Err()
			return Job{}, "", err
		}
		if err := q.rdb.Set(ctx, heartbeatKey, v, ttl).Err(); err != nil {
			return Job{}, "", err
		}
		return job, queueName, nil
	}
	return Job{}, "", ErrEmpty
}

func (q *RedisQueue) Ack(ctx context.Context, processingList, heartbeatKey string, job Job) error {
	payload, err := job.Marshal()
	if err != nil {
		return err
	}
	if err := q.rdb.LRem(ctx, processingList, 1, payload).Err(); err != nil {
		return err
	}
	return q.rdb.Del(ctx, heartbeatKey).Err()
}

func (q *RedisQueue) Requeue(ctx context.Context, sourceQueue, processingList, heartbeatKey string, job Job) error {
	oldPayload, err := job.Marshal()
	if err != nil {
		return err
	}
	job.Retries++
	newPayload, err := job.Marshal()
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, sourceQueue, newPayload).Err(); err != nil {
		return err
	}
	if err := q.rdb.LRem(ctx, processingList, 1, oldPayload).Err(); err != nil {
		return err
	}
	return q.rdb.Del(ctx, heartbeatKey).Err()
}

func (q *RedisQueue) SetStatus(ctx context.Context, update StatusUpdate) error {
	if prior, err := q.GetStatus(ctx, update.JobID); err == nil {
		update.CreatedAt = prior.CreatedAt
	} else if update.CreatedAt.IsZero() {
		update.CreatedAt = update.UpdatedAt
	}
	b, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, statusKeyPrefix+update.JobID, b, 0).Err()
}

func (q *RedisQueue) GetStatus(ctx context.Context, jobID string) (StatusUpdate, error) {
	v, err := q.rdb.Get(ctx, statusKeyPrefix+jobID).Result()
	if err == redis.Nil {
		return StatusUpdate{}, ErrEmpty
	}
	if err != nil {
		return StatusUpdate{}, err
	}
	var update StatusUpdate
	if err := json.Unmarshal([]byte(v), &update); err != nil {
		return StatusUpdate{}, err
	}
	return update, nil
}

func (q *RedisQueue) QueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.rdb.LLen(ctx, queueName).Result()
}

func (q *RedisQueue) IncrAttempt(ctx context.Context, jobID string) (int64, error) {
	return q.rdb.Incr(ctx, attemptKeyPrefix+jobID).Result()
}

func (q *RedisQueue) ClearAttempt(ctx context.Context, jobID string) error {
	return q.rdb.Del(ctx, attemptKeyPrefix+jobID).Err()
}
