// Copyright 2025 James Ross
package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/filevault/dedup-backend/internal/breaker"
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

// Repeated failures should trip the engine-call breaker; while it is Open the
// worker must stop draining the queue until the cooldown elapses.
func TestWorkerBreakerTripsAndPausesConsumption(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	cfg, _ := config.Load("nonexistent.yaml")
	cfg.Redis.Addr = mr.Addr()
	cfg.Worker.Count = 1
	cfg.Worker.Backoff.Base = 1 * time.Millisecond
	cfg.Worker.Backoff.Max = 2 * time.Millisecond
	cfg.Worker.BRPopLPushTimeout = 5 * time.Millisecond
	cfg.Worker.MaxRetries = 0
	cfg.Worker.BreakerPause = 50 * time.Millisecond
	cfg.CircuitBreaker.Window = 20 * time.Millisecond
	cfg.CircuitBreaker.CooldownPeriod = 150 * time.Millisecond
	cfg.CircuitBreaker.FailureThreshold = 0.5
	cfg.CircuitBreaker.MinSamples = 1

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

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

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		fileID, err := s.CreateFile(ctx, "fail.txt", "obj/missing")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		jobID := fmt.Sprintf("job-fail-%d", i)
		if err := s.CreateJob(ctx, jobID, fileID, "fail.txt", "obj/missing"); err != nil {
			t.Fatalf("create job: %v", err)
		}
		j := queue.NewJob(jobID, fileID, "fail.txt", "obj/missing", "low")
		payload, _ := j.Marshal()
		if err := rdb.LPush(ctx, cfg.Worker.Queues["low"], payload).Err(); err != nil {
			t.Fatalf("lpush: %v", err)
		}
	}

	log := zap.NewNop()
	q := queue.NewRedisQueue(rdb)
	live := livestatus.NewManager(cfg.LiveStatus, log, q)
	w := New(cfg, q, s, eng, live, log)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = w.Run(runCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	opened := false
	for time.Now().Before(deadline) {
		if w.cb.State() == breaker.Open {
			opened = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !opened {
		cancel()
		<-done
		t.Fatalf("breaker did not open under failures")
	}

	n1, _ := rdb.LLen(context.Background(), cfg.Worker.Queues["low"]).Result()
	time.Sleep(80 * time.Millisecond) // less than cooldown
	n2, _ := rdb.LLen(context.Background(), cfg.Worker.Queues["low"]).Result()
	if n2 < n1 {
		cancel()
		<-done
		t.Fatalf("queue drained during breaker open: before=%d after=%d", n1, n2)
	}

	cancel()
	<-done
}
