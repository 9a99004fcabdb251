// Copyright 2025 James Ross
package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/filevault/dedup-backend/internal/config"
	"github.com/filevault/dedup-backend/internal/embedding"
	"github.com/filevault/dedup-backend/internal/engine"
	"github.com/filevault/dedup-backend/internal/livestatus"
	"github.com/filevault/dedup-backend/internal/objectstore"
	"github.com/filevault/dedup-backend/internal/queue"
	"github.com/filevault/dedup-backend/internal/store"
	"github.com/filevault/dedup-backend/internal/vectorindex"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupWorkerTest(t *testing.T) (*Worker, *config.Config, *redis.Client, *store.FakeStore, *objectstore.FakeStore, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	cfg, _ := config.Load("nonexistent.yaml")
	cfg.Redis.Addr = mr.Addr()
	cfg.Worker.Backoff.Base = 1 * time.Millisecond
	cfg.Worker.Backoff.Max = 2 * time.Millisecond
	cfg.Worker.MaxRetries = 1

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewRedisQueue(rdb)
	s := store.NewFakeStore()
	objs := objectstore.NewFakeStore()
	eng := &engine.Engine{
		Store:               s,
		Objects:             objs,
		Embeddings:          embedding.NewFakeProvider(8),
		VectorIndex:         vectorindex.NewFakeClient(),
		TextSource:          "content",
		SearchK:             5,
		SimilarityThreshold: 0.9,
	}
	log := zap.NewNop()
	live := livestatus.NewManager(cfg.LiveStatus, log, q)
	w := New(cfg, q, s, eng, live, log)
	cleanup := func() { mr.Close() }
	return w, cfg, rdb, s, objs, cleanup
}

func TestProcessJobSuccess(t *testing.T) {
	w, cfg, _, s, objs, cleanup := setupWorkerTest(t)
	defer cleanup()
	ctx := context.Background()

	fileID, err := s.CreateFile(ctx, "ok.txt", "obj/ok.txt")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	objs.Objects["obj/ok.txt"] = []byte("hello world")
	jobID := "job-ok"
	if err := s.CreateJob(ctx, jobID, fileID, "ok.txt", "obj/ok.txt"); err != nil {
		t.Fatalf("create job: %v", err)
	}

	workerID := "w1"
	procList := fmt.Sprintf(cfg.Worker.ProcessingListPattern, workerID)
	hbKey := fmt.Sprintf(cfg.Worker.HeartbeatKeyPattern, workerID)
	job := queue.NewJob(jobID, fileID, "ok.txt", "obj/ok.txt", "low")

	ok := w.processJob(ctx, workerID, cfg.Worker.Queues["low"], procList, hbKey, job)
	if !ok {
		t.Fatalf("expected success")
	}

	got, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != store.JobCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestProcessJobRetryThenFail(t *testing.T) {
	w, cfg, rdb, s, _, cleanup := setupWorkerTest(t)
	defer cleanup()
	ctx := context.Background()

	// object key is never populated in the fake object store, so GetObject
	// fails every attempt and the job exhausts its retries deterministically.
	fileID, err := s.CreateFile(ctx, "missing.txt", "obj/missing.txt")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	jobID := "job-missing"
	if err := s.CreateJob(ctx, jobID, fileID, "missing.txt", "obj/missing.txt"); err != nil {
		t.Fatalf("create job: %v", err)
	}

	workerID := "w1"
	procList := fmt.Sprintf(cfg.Worker.ProcessingListPattern, workerID)
	hbKey := fmt.Sprintf(cfg.Worker.HeartbeatKeyPattern, workerID)
	job := queue.NewJob(jobID, fileID, "missing.txt", "obj/missing.txt", "low")

	ok := w.processJob(ctx, workerID, cfg.Worker.Queues["low"], procList, hbKey, job)
	if ok {
		t.Fatalf("expected failure")
	}
	if n, _ := rdb.LLen(ctx, cfg.Worker.Queues["low"]).Result(); n != 1 {
		t.Fatalf("expected requeued 1, got %d", n)
	}

	requeued, err := rdb.LPop(ctx, cfg.Worker.Queues["low"]).Result()
	if err != nil {
		t.Fatalf("lpop: %v", err)
	}
	_ = rdb.LPush(ctx, procList, requeued).Err()
	requeuedJob, err := queue.UnmarshalJob(requeued)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	ok2 := w.processJob(ctx, workerID, cfg.Worker.Queues["low"], procList, hbKey, requeuedJob)
	if ok2 {
		t.Fatalf("expected permanent failure")
	}
	got, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != store.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}
