// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filevault/dedup-backend/internal/breaker"
	"github.com/filevault/dedup-backend/internal/config"
	"github.com/filevault/dedup-backend/internal/embedding"
	"github.com/filevault/dedup-backend/internal/engine"
	"github.com/filevault/dedup-backend/internal/ingest"
	"github.com/filevault/dedup-backend/internal/livestatus"
	"github.com/filevault/dedup-backend/internal/objectstore"
	"github.com/filevault/dedup-backend/internal/obs"
	"github.com/filevault/dedup-backend/internal/pgclient"
	"github.com/filevault/dedup-backend/internal/queue"
	"github.com/filevault/dedup-backend/internal/reaper"
	"github.com/filevault/dedup-backend/internal/redisclient"
	"github.com/filevault/dedup-backend/internal/store"
	"github.com/filevault/dedup-backend/internal/vectorindex"
	"github.com/filevault/dedup-backend/internal/worker"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var role string
	var configPath string
	var ingestFileName string
	var ingestObjectKey string
	var showVersion bool

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&role, "role", "all", "Role to run: worker|livestatus|all|ingest")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&ingestFileName, "file-name", "", "role=ingest: file name to submit")
	fs.StringVar(&ingestObjectKey, "object-key", "", "role=ingest: object store key to submit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rdb := redisclient.New(cfg)
	defer rdb.Close()

	db, err := pgclient.New(cfg)
	if err != nil {
		logger.Fatal("failed to connect to postgres", obs.Err(err))
	}
	defer db.Close()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Fatal("failed to init tracing", obs.Err(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.TracerShutdown(shutdownCtx, tp); err != nil {
			logger.Warn("tracer shutdown error", obs.Err(err))
		}
	}()

	q := queue.NewRedisQueue(rdb)
	s := store.NewPostgresStore(db)
	vecIndex := vectorindex.NewPostgresClient(db, cfg.VectorIndex.FileTable, cfg.VectorIndex.ImageTable)

	objStore, err := objectstore.NewS3Store(&cfg.ObjectStore)
	if err != nil {
		logger.Fatal("failed to init object store client", obs.Err(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	if role == "ingest" {
		if ingestFileName == "" || ingestObjectKey == "" {
			logger.Fatal("role=ingest requires -file-name and -object-key")
		}
		contract := ingest.New(s, q, cfg.Worker.Priorities[0], logger)
		fileID, jobID, err := contract.Submit(ctx, ingestFileName, ingestObjectKey)
		if err != nil {
			logger.Fatal("ingest submit failed", obs.Err(err))
		}
		fmt.Printf("file_id=%d job_id=%s\n", fileID, jobID)
		return
	}

	embedProvider, err := embedding.NewGenAIProvider(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal("failed to init embedding provider", obs.Err(err))
	}

	httpSrv := obs.StartHTTPServer(cfg, func(c context.Context) error {
		_, err := rdb.Ping(c).Result()
		return err
	})
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()
	obs.StartQueueLengthUpdater(ctx, cfg, rdb, logger)

	live := livestatus.NewManager(cfg.LiveStatus, logger, q)

	eng := &engine.Engine{
		Store:               s,
		Objects:             objStore,
		Embeddings:          embedProvider,
		VectorIndex:         vecIndex,
		Breaker:             breaker.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples),
		TextSource:          cfg.Embedding.TextSource,
		SearchK:             cfg.VectorIndex.K,
		SimilarityThreshold: cfg.VectorIndex.SimilarityThreshold,
	}

	switch role {
	case "worker":
		wrk := worker.New(cfg, q, s, eng, live, logger)
		rep := reaper.New(cfg, rdb, q, s, logger)
		go rep.Run(ctx)
		if err := wrk.Run(ctx); err != nil {
			logger.Fatal("worker error", obs.Err(err))
		}
	case "livestatus":
		runLiveStatus(ctx, cfg, live, logger)
	case "all":
		wrk := worker.New(cfg, q, s, eng, live, logger)
		rep := reaper.New(cfg, rdb, q, s, logger)
		go rep.Run(ctx)
		go runLiveStatus(ctx, cfg, live, logger)
		if err := wrk.Run(ctx); err != nil {
			logger.Fatal("worker error", obs.Err(err))
		}
	default:
		logger.Fatal("unknown role", obs.String("role", role))
	}
}

func runLiveStatus(ctx context.Context, cfg *config.Config, live *livestatus.Manager, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/ws", live)
	srv := &http.Server{Addr: cfg.LiveStatus.ListenAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting live status server", obs.String("addr", cfg.LiveStatus.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("live status server error", obs.Err(err))
	}
}
