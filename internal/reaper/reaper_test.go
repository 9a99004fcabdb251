// Copyright 2025 James Ross
package reaper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/filevault/dedup-backend/internal/config"
	"github.com/filevault/dedup-backend/internal/queue"
	"github.com/filevault/dedup-backend/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReaperRequeuesWithoutHeartbeat(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg, err := config.Load("nonexistent.yaml")
	require.NoError(t, err)
	cfg.Redis.Addr = mr.Addr()
	log := zap.NewNop()
	s := store.NewFakeStore()
	q := queue.NewRedisQueue(rdb)
	rep := New(cfg, rdb, q, s, log)

	ctx := context.Background()
	workerID := "w1"
	plist := fmt.Sprintf(cfg.Worker.ProcessingListPattern, workerID)
	hbKey := fmt.Sprintf(cfg.Worker.HeartbeatKeyPattern, workerID)

	// Simulate a dead worker: no heartbeat key for it.
	fileID, err := s.CreateFile(ctx, "file.txt", "obj/file.txt")
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, "id1", fileID, "file.txt", "obj/file.txt"))
	require.NoError(t, s.SetJobStatus(ctx, "id1", store.JobProcessing, nil))

	job := queue.NewJob("id1", fileID, "file.txt", "obj/file.txt", "low")
	payload, err := job.Marshal()
	require.NoError(t, err)
	require.NoError(t, rdb.LPush(ctx, plist, payload).Err())

	rep.scanOnce(ctx)

	n, err := rdb.LLen(ctx, cfg.Worker.Queues["low"]).Result()
	require.NoError(t, err)
	if n != 1 {
		t.Fatalf("expected 1 job requeued to low priority, got %d", n)
	}
	if mr.Exists(hbKey) {
		t.Fatalf("heartbeat key should not exist for a dead worker")
	}

	remaining, err := rdb.LLen(ctx, plist).Result()
	require.NoError(t, err)
	if remaining != 0 {
		t.Fatalf("expected processing list drained, got %d remaining", remaining)
	}

	got, err := s.GetJob(ctx, "id1")
	require.NoError(t, err)
	require.Equal(t, store.JobProcessing, got.Status)
}

func TestReaperFailsJobAfterMaxRecoveryAttempts(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg, err := config.Load("nonexistent.yaml")
	require.NoError(t, err)
	cfg.Redis.Addr = mr.Addr()
	cfg.Worker.MaxRecoveryAttempts = 1
	s := store.NewFakeStore()
	q := queue.NewRedisQueue(rdb)
	rep := New(cfg, rdb, q, s, zap.NewNop())

	ctx := context.Background()
	workerID := "w1"
	plist := fmt.Sprintf(cfg.Worker.ProcessingListPattern, workerID)

	fileID, err := s.CreateFile(ctx, "doomed.txt", "obj/doomed.txt")
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, "id-doomed", fileID, "doomed.txt", "obj/doomed.txt"))
	require.NoError(t, s.SetJobStatus(ctx, "id-doomed", store.JobProcessing, nil))

	job := queue.NewJob("id-doomed", fileID, "doomed.txt", "obj/doomed.txt", "low")
	payload, err := job.Marshal()
	require.NoError(t, err)

	// First sweep requeues it; a second sweep of the re-added payload trips
	// the max-attempts guard and marks it failed instead.
	require.NoError(t, rdb.LPush(ctx, plist, payload).Err())
	rep.scanOnce(ctx)
	require.NoError(t, rdb.LPush(ctx, plist, payload).Err())
	rep.scanOnce(ctx)

	got, err := s.GetJob(ctx, "id-doomed")
	require.NoError(t, err)
	require.Equal(t, store.JobFailed, got.Status)
}

func TestReaperFailsStuckStoreRowsWithNoQueueEntry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg, err := config.Load("nonexistent.yaml")
	require.NoError(t, err)
	cfg.Redis.Addr = mr.Addr()
	cfg.Worker.StuckProcessingAfter = 1 * time.Second
	s := store.NewFakeStore()
	rep := New(cfg, rdb, queue.NewRedisQueue(rdb), s, zap.NewNop())

	ctx := context.Background()
	fileID, err := s.CreateFile(ctx, "orphan.txt", "obj/orphan.txt")
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, "id-orphan", fileID, "orphan.txt", "obj/orphan.txt"))
	require.NoError(t, s.SetJobStatus(ctx, "id-orphan", store.JobProcessing, nil))

	// No matching Redis processing-list entry exists at all, simulating a
	// worker whose bookkeeping in Redis was lost even though the durable
	// row still says processing.
	time.Sleep(1100 * time.Millisecond)
	rep.scanStuckStore(ctx)

	got, err := s.GetJob(ctx, "id-orphan")
	require.NoError(t, err)
	require.Equal(t, store.JobFailed, got.Status)
}

func TestReaperSkipsHealthyWorker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg, err := config.Load("nonexistent.yaml")
	require.NoError(t, err)
	cfg.Redis.Addr = mr.Addr()
	rep := New(cfg, rdb, queue.NewRedisQueue(rdb), store.NewFakeStore(), zap.NewNop())

	ctx := context.Background()
	workerID := "w2"
	plist := fmt.Sprintf(cfg.Worker.ProcessingListPattern, workerID)
	hbKey := fmt.Sprintf(cfg.Worker.HeartbeatKeyPattern, workerID)

	job := queue.NewJob("id2", 11, "file2.txt", "obj/file2.txt", "high")
	payload, err := job.Marshal()
	require.NoError(t, err)
	require.NoError(t, rdb.LPush(ctx, plist, payload).Err())
	require.NoError(t, rdb.Set(ctx, hbKey, "1", cfg.Worker.HeartbeatTTL).Err())

	rep.scanOnce(ctx)

	remaining, err := rdb.LLen(ctx, plist).Result()
	require.NoError(t, err)
	if remaining != 1 {
		t.Fatalf("expected job left in place for a healthy worker, got %d remaining", remaining)
	}
}
