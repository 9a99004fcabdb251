// Copyright 2025 James Ross
package obs

import (
	"context"
	"os"

	"github.com/filevault/dedup-backend/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// MaybeInitTracing initializes a global tracer provider when tracing is
// enabled and an OTLP endpoint is configured. It returns a nil provider and
// nil error when tracing is off, so callers can unconditionally defer
// TracerShutdown.
func MaybeInitTracing(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Observability.Tracing.Enabled || cfg.Observability.Tracing.Endpoint == "" {
		return nil, nil
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.Observability.Tracing.Endpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("dedup-backend"),
		semconv.HostNameKey.String(hostname),
		attribute.String("environment", cfg.Observability.Tracing.Environment),
	)

	var sampler sdktrace.Sampler
	switch cfg.Observability.Tracing.SamplingStrategy {
	case "always":
		sampler = sdktrace.AlwaysSample()
	case "never":
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.Observability.Tracing.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// JobAttrs carries the job fields worth attaching to a span. It exists so
// this package does not need to import internal/queue to know a job's shape.
type JobAttrs struct {
	ID           string
	FileID       int64
	FileName     string
	ObjectKey    string
	Priority     string
	Retries      int
	CreationTime string
}

// StartEnqueueSpan creates a span around a Queue.Enqueue call.
func StartEnqueueSpan(ctx context.Context, job JobAttrs) (context.Context, trace.Span) {
	tracer := otel.Tracer("queue")
	return tracer.Start(ctx, "queue.enqueue",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.priority", job.Priority),
			attribute.Int64("job.file_id", job.FileID),
			attribute.String("queue.operation", "enqueue"),
		),
	)
}

// StartDequeueSpan creates a span around a Queue.Dequeue call.
func StartDequeueSpan(ctx context.Context, priorities []string) (context.Context, trace.Span) {
	tracer := otel.Tracer("worker")
	return tracer.Start(ctx, "queue.dequeue",
		trace.WithAttributes(
			attribute.StringSlice("queue.priorities", priorities),
			attribute.String("queue.operation", "dequeue"),
		),
	)
}

// ContextWithJobSpan starts the span that wraps one run of the
// deduplication pipeline for job.
func ContextWithJobSpan(ctx context.Context, job JobAttrs) (context.Context, trace.Span) {
	tracer := otel.Tracer("engine")
	return tracer.Start(ctx, "engine.process",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.file_name", job.FileName),
			attribute.String("job.object_key", job.ObjectKey),
			attribute.String("job.priority", job.Priority),
			attribute.Int("job.retries", job.Retries),
			attribute.String("job.creation_time", job.CreationTime),
		),
	)
}

// RecordError records an error on the span carried by ctx, if any.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks the span carried by ctx as successful.
func SetSpanSuccess(ctx context.Context) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(codes.Ok, "success")
	}
}

// TracerShutdown flushes and shuts down tp. Safe to call with a nil
// provider, which happens whenever tracing is disabled.
func TracerShutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
