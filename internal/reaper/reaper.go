// Copyright 2025 James Ross
package reaper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/filevault/dedup-backend/internal/config"
	"github.com/filevault/dedup-backend/internal/obs"
	"github.com/filevault/dedup-backend/internal/queue"
	"github.com/filevault/dedup-backend/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Reaper is the stuck-job sweeper: it scans every worker's processing list
// for one whose heartbeat key has expired, meaning the worker that claimed
// it crashed or was killed mid-job, and requeues the abandoned payload so
// another worker picks it up. A requeued job's durable status stays
// processing; it only moves to failed once it has exhausted
// Worker.MaxRecoveryAttempts.
type Reaper struct {
	cfg   *config.Config
	rdb   *redis.Client
	q     queue.Queue
	store store.Store
	log   *zap.Logger
}

func New(cfg *config.Config, rdb *redis.Client, q queue.Queue, s store.Store, log *zap.Logger) *Reaper {
	return &Reaper{cfg: cfg, rdb: rdb, q: q, store: s, log: log}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce(ctx)
			r.scanStuckStore(ctx)
		}
	}
}

// scanStuckStore catches jobs whose durable row is still processing long
// after any Redis-side bookkeeping for them would plausibly exist, e.g. a
// heartbeat key or processing-list entry lost to a Redis restart or flush.
// Unlike scanOnce, there is no payload left to requeue, so a stuck row is
// always marked failed rather than retried.
func (r *Reaper) scanStuckStore(ctx context.Context) {
	threshold := int64(r.cfg.Worker.StuckProcessingAfter.Seconds())
	if threshold <= 0 {
		return
	}
	stuck, err := r.store.ListStuckProcessing(ctx, threshold)
	if err != nil {
		r.log.Warn("reaper stuck-store scan error", obs.Err(err))
		return
	}
	for _, job := range stuck {
		errMsg := "stuck in processing with no recoverable queue entry"
		if err := r.store.SetJobStatus(ctx, job.JobID, store.JobFailed, &errMsg); err != nil {
			r.log.Error("reaper failed to fail stuck job", obs.String("id", job.JobID), obs.Err(err))
			continue
		}
		_ = r.q.ClearAttempt(ctx, job.JobID)
		obs.ReaperFailed.Inc()
		r.log.Error("marked stuck job failed", obs.String("id", job.JobID))
	}
}

func (r *Reaper) defaultPriority() string {
	if len(r.cfg.Worker.Priorities) == 0 {
		return ""
	}
	return r.cfg.Worker.Priorities[len(r.cfg.Worker.Priorities)-1]
}

func (r *Reaper) scanOnce(ctx context.Context) {
	pattern := strings.Replace(r.cfg.Worker.ProcessingListPattern, "%s", "*", 1)
	var cursor uint64
	for {
		keys, cur, err := r.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			r.log.Warn("reaper scan error", obs.Err(err))
			return
		}
		cursor = cur
		for _, plist := range keys {
			workerID, ok := extractWorkerID(r.cfg.Worker.ProcessingListPattern, plist)
			if !ok {
				continue
			}
			hbKey := fmt.Sprintf(r.cfg.Worker.HeartbeatKeyPattern, workerID)
			exists, _ := r.rdb.Exists(ctx, hbKey).Result()
			if exists == 1 {
				continue
			}
			r.requeueAbandoned(ctx, plist)
		}
		if cursor == 0 {
			break
		}
	}
}

func (r *Reaper) requeueAbandoned(ctx context.Context, processingList string) {
	for {
		payload, err := r.rdb.RPop(ctx, processingList).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			r.log.Warn("reaper rpop error", obs.Err(err))
			return
		}
		job, err := queue.UnmarshalJob(payload)
		if err != nil {
			obs.ReaperFailed.Inc()
			continue
		}

		attempts, err := r.q.IncrAttempt(ctx, job.ID)
		if err != nil {
			r.log.Warn("reaper attempt counter error", obs.String("id", job.ID), obs.Err(err))
		}
		if int(attempts) > r.cfg.Worker.MaxRecoveryAttempts {
			r.log.Error("job exceeded max recovery attempts, giving up", obs.String("id", job.ID))
			errMsg := "exceeded max recovery attempts after worker crash"
			if err := r.store.SetJobStatus(ctx, job.ID, store.JobFailed, &errMsg); err != nil {
				r.log.Error("reaper failed to mark job failed", obs.String("id", job.ID), obs.Err(err))
			}
			_ = r.q.ClearAttempt(ctx, job.ID)
			obs.ReaperFailed.Inc()
			continue
		}

		dest := r.cfg.Worker.Queues[job.Priority]
		if dest == "" {
			dest = r.cfg.Worker.Queues[r.defaultPriority()]
		}
		if err := r.rdb.LPush(ctx, dest, payload).Err(); err != nil {
			r.log.Error("reaper requeue failed", obs.Err(err))
			obs.ReaperFailed.Inc()
			continue
		}
		// Durable status is left at processing: pending never follows
		// processing for the same job_id, and the job was already processing
		// when its worker crashed, so requeuing it is not a status
		// transition, just a new delivery attempt.
		obs.ReaperRecovered.Inc()
		r.log.Warn("requeued abandoned job", obs.String("id", job.ID), obs.String("to", dest))
	}
}

// extractWorkerID pulls the %s capture out of a processing-list key built
// from pattern, e.g. pattern "dedup:worker:%s:processing" applied to key
// "dedup:worker:host-123-0:processing" yields "host-123-0".
func extractWorkerID(pattern, key string) (string, bool) {
	idx := strings.Index(pattern, "%s")
	if idx < 0 {
		return "", false
	}
	prefix := pattern[:idx]
	suffix := pattern[idx+2:]
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	return key[len(prefix) : len(key)-len(suffix)], true
}
