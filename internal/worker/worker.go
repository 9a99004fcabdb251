// Copyright 2025 James Ross
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/filevault/dedup-backend/internal/breaker"
	"github.com/filevault/dedup-backend/internal/config"
	"github.com/filevault/dedup-backend/internal/engine"
	"github.com/filevault/dedup-backend/internal/livestatus"
	"github.com/filevault/dedup-backend/internal/obs"
	"github.com/filevault/dedup-backend/internal/queue"
	"github.com/filevault/dedup-backend/internal/store"
	"go.uber.org/zap"
)

// Worker is the Worker Loop (C7): cfg.Worker.Count goroutines draining the
// priority queues via Dequeue, handing each job to the Deduplication Engine,
// and driving the job's status through the store, queue, and live status
// channel.
type Worker struct {
	cfg    *config.Config
	q      queue.Queue
	s      store.Store
	eng    *engine.Engine
	live   *livestatus.Manager
	log    *zap.Logger
	cb     *breaker.CircuitBreaker
	baseID string
}

func New(cfg *config.Config, q queue.Queue, s store.Store, eng *engine.Engine, live *livestatus.Manager, log *zap.Logger) *Worker {
	cb := breaker.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples)
	host, _ := os.Hostname()
	pid := os.Getpid()
	now := time.Now().UnixNano()
	randSfx := fmt.Sprintf("%04x", now&0xffff)
	base := fmt.Sprintf("%s-%d-%d-%s", host, pid, now, randSfx)
	return &Worker{cfg: cfg, q: q, s: s, eng: eng, live: live, log: log, cb: cb, baseID: base}
}

func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Worker.Count; i++ {
		wg.Add(1)
		id := fmt.Sprintf("%s-%d", w.baseID, i)
		go func(workerID string) {
			defer wg.Done()
			obs.WorkerActive.Inc()
			defer obs.WorkerActive.Dec()
			w.runOne(ctx, workerID)
		}(id)
	}

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				switch w.cb.State() {
				case breaker.Closed:
					obs.CircuitBreakerState.WithLabelValues("engine").Set(0)
				case breaker.HalfOpen:
					obs.CircuitBreakerState.WithLabelValues("engine").Set(1)
				case breaker.Open:
					obs.CircuitBreakerState.WithLabelValues("engine").Set(2)
				}
			}
		}
	}()

	wg.Wait()
	return nil
}

func (w *Worker) queues() []string {
	names := make([]string, 0, len(w.cfg.Worker.Priorities))
	for _, p := range w.cfg.Worker.Priorities {
		names = append(names, w.cfg.Worker.Queues[p])
	}
	return names
}

func (w *Worker) runOne(ctx context.Context, workerID string) {
	procList := fmt.Sprintf(w.cfg.Worker.ProcessingListPattern, workerID)
	hbKey := fmt.Sprintf(w.cfg.Worker.HeartbeatKeyPattern, workerID)
	priorities := w.queues()

	for ctx.Err() == nil {
		if w.cb.State() == breaker.Open {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.Worker.BreakerPause):
			}
			continue
		}

		spanCtx, span := obs.StartDequeueSpan(ctx, priorities)
		job, srcQueue, err := w.q.Dequeue(spanCtx, priorities, procList, hbKey, w.cfg.Worker.BRPopLPushTimeout, w.cfg.Worker.HeartbeatTTL)
		if err != nil {
			obs.RecordError(spanCtx, err)
		} else {
			obs.SetSpanSuccess(spanCtx)
		}
		span.End()
		if err == queue.ErrEmpty {
			time.Sleep(w.cfg.Worker.DequeueEmptySleep)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("dequeue error", obs.Err(err))
			time.Sleep(w.cfg.Worker.DequeueErrorSleep)
			continue
		}

		obs.JobsConsumed.Inc()
		start := time.Now()
		ok := w.processJob(ctx, workerID, srcQueue, procList, hbKey, job)
		obs.JobProcessingDuration.Observe(time.Since(start).Seconds())

		prev := w.cb.State()
		w.cb.Record(ok)
		if curr := w.cb.State(); prev != curr && curr == breaker.Open {
			obs.CircuitBreakerTrips.WithLabelValues("engine").Inc()
		}
	}
}

func (w *Worker) processJob(ctx context.Context, workerID, srcQueue, procList, hbKey string, job queue.Job) bool {
	_ = w.s.SetJobStatus(ctx, job.ID, store.JobProcessing, nil)
	_ = w.q.SetStatus(ctx, queue.StatusUpdate{JobID: job.ID, Status: string(store.JobProcessing), UpdatedAt: time.Now().UTC()})
	w.live.Broadcast(job.ID, livestatus.Event{Type: livestatus.EventJobProcessing, JobID: job.ID})

	spanCtx, span := obs.ContextWithJobSpan(ctx, jobAttrs(job))
	res, err := w.eng.Process(spanCtx, job.FileID, job.FileName, job.ObjectKey)
	if err != nil {
		obs.RecordError(spanCtx, err)
		span.End()
		return w.handleFailure(ctx, workerID, srcQueue, procList, hbKey, job, err)
	}
	obs.SetSpanSuccess(spanCtx)
	span.End()

	if err := w.q.Ack(ctx, procList, hbKey, job); err != nil {
		w.log.Error("ack failed", obs.Err(err))
	}
	_ = w.q.ClearAttempt(ctx, job.ID)
	if err := w.s.SetJobStatus(ctx, job.ID, store.JobCompleted, nil); err != nil {
		w.log.Error("set job completed failed", obs.Err(err))
	}
	clustered := "false"
	if res.ClusterID != nil {
		clustered = "true"
	}
	obs.JobsCompleted.WithLabelValues(clustered).Inc()
	_ = w.q.SetStatus(ctx, queue.StatusUpdate{JobID: job.ID, Status: string(store.JobCompleted), UpdatedAt: time.Now().UTC()})
	w.live.Broadcast(job.ID, livestatus.Event{Type: livestatus.EventJobCompleted, JobID: job.ID, ClusterID: res.ClusterID})
	w.log.Info("job completed", obs.String("id", job.ID), obs.String("worker_id", workerID))
	return true
}

func (w *Worker) handleFailure(ctx context.Context, workerID, srcQueue, procList, hbKey string, job queue.Job, cause error) bool {
	obs.JobsFailed.Inc()

	if job.Retries < w.cfg.Worker.MaxRetries {
		bo := backoff(job.Retries+1, w.cfg.Worker.Backoff.Base, w.cfg.Worker.Backoff.Max)
		select {
		case <-ctx.Done():
		case <-time.After(bo):
		}

		if err := w.q.Requeue(ctx, srcQueue, procList, hbKey, job); err != nil {
			w.log.Error("requeue failed", obs.Err(err))
		}
		// Durable status stays at processing: pending never follows processing
		// for the same job_id, so a retry is invisible to the status graph
		// until it reaches a terminal outcome.
		obs.JobsRetried.Inc()
		w.log.Warn("job retried", obs.String("id", job.ID), obs.Int("retries", job.Retries+1), obs.Err(cause))
		return false
	}

	errMsg := cause.Error()
	if err := w.q.Ack(ctx, procList, hbKey, job); err != nil {
		w.log.Error("ack on failure failed", obs.Err(err))
	}
	_ = w.q.ClearAttempt(ctx, job.ID)
	_ = w.s.SetJobStatus(ctx, job.ID, store.JobFailed, &errMsg)
	_ = w.q.SetStatus(ctx, queue.StatusUpdate{JobID: job.ID, Status: string(store.JobFailed), Error: errMsg, UpdatedAt: time.Now().UTC()})
	w.live.Broadcast(job.ID, livestatus.Event{Type: livestatus.EventJobFailed, JobID: job.ID, Error: errMsg})
	w.log.Error("job failed permanently", obs.String("id", job.ID), obs.Err(cause))
	return false
}

func backoff(retries int, base, max time.Duration) time.Duration {
	d := time.Duration(1<<uint(retries-1)) * base
	if d > max || d < 0 {
		return max
	}
	return d
}

func jobAttrs(job queue.Job) obs.JobAttrs {
	return obs.JobAttrs{
		ID:           job.ID,
		FileID:       job.FileID,
		FileName:     job.FileName,
		ObjectKey:    job.ObjectKey,
		Priority:     job.Priority,
		Retries:      job.Retries,
		CreationTime: job.CreationTime,
	}
}
