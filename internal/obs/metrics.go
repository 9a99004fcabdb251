// Copyright 2025 James Ross
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_ingested_total",
		Help: "Total number of jobs submitted through the ingest contract",
	})
	JobsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_consumed_total",
		Help: "Total number of jobs consumed by workers",
	})
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_completed_total",
		Help: "Total number of jobs completed, labeled by whether a cluster was assigned",
	}, []string{"clustered"})
	JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_failed_total",
		Help: "Total number of failed jobs",
	})
	JobsRetried = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_retried_total",
		Help: "Total number of job retries",
	})
	JobProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "job_processing_duration_seconds",
		Help:    "Histogram of end-to-end deduplication pipeline durations",
		Buckets: prometheus.DefBuckets,
	})
	EmbeddingCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "embedding_call_duration_seconds",
		Help:    "Histogram of embedding provider call durations",
		Buckets: prometheus.DefBuckets,
	})
	VectorIndexCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vector_index_call_duration_seconds",
		Help:    "Histogram of vector index call durations",
		Buckets: prometheus.DefBuckets,
	})
	QueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_length",
		Help: "Current length of Redis job queues",
	}, []string{"queue"})
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	}, []string{"breaker"})
	CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Count of times a circuit breaker transitioned to Open",
	}, []string{"breaker"})
	ReaperRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reaper_recovered_total",
		Help: "Total number of jobs recovered by the reaper from stuck processing state",
	})
	ReaperFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reaper_failed_total",
		Help: "Total number of jobs the reaper gave up on after exhausting recovery attempts",
	})
	WorkerActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_active",
		Help: "Number of active worker goroutines",
	})
	LiveStatusSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_status_sessions",
		Help: "Number of open live status websocket sessions",
	})
)

func init() {
	prometheus.MustRegister(
		JobsIngested, JobsConsumed, JobsCompleted, JobsFailed, JobsRetried,
		JobProcessingDuration, EmbeddingCallDuration, VectorIndexCallDuration,
		QueueLength, CircuitBreakerState, CircuitBreakerTrips,
		ReaperRecovered, ReaperFailed, WorkerActive, LiveStatusSessions,
	)
}
