// Package observability provides tracing, metrics, audit and logging for layermap.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the layermap tracer.
	TracerName = "github.com/efebarandurmaz/layermap"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "layermap")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "layermap",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(), // Use TLS in production
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown gracefully shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// SpanKind constants for layermap operations.
const (
	SpanKindScan   = "scan"
	SpanKindWalk   = "walk"
	SpanKindPlan   = "plan"
	SpanKindReport = "report"
	SpanKindGraph  = "graph_store"
)

// StartScanSpan starts the root span of a scan.
func StartScanSpan(ctx context.Context, root string, workers int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "scan",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("layermap.span.kind", SpanKindScan),
			attribute.String("scan.root", root),
			attribute.Int("scan.workers", workers),
		),
	)
	return ctx, span
}

// RecordScanResult records scan totals on a span.
func RecordScanResult(span trace.Span, scanned, skipped, references, dropped int, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("scan.files_scanned", scanned),
		attribute.Int("scan.files_skipped", skipped),
		attribute.Int("scan.references", references),
		attribute.Int("scan.references_dropped", dropped),
		attribute.Int64("scan.duration_ms", duration.Milliseconds()),
	)
}

// StartWalkSpan starts a span for file discovery.
func StartWalkSpan(ctx context.Context, root string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "scan.walk",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("layermap.span.kind", SpanKindWalk),
			attribute.String("walk.root", root),
		),
	)
	return ctx, span
}

// RecordWalkResult records how many files discovery produced.
func RecordWalkResult(span trace.Span, fileCount int) {
	span.SetAttributes(attribute.Int("walk.file_count", fileCount))
}

// StartPlanSpan starts a span for migration planning.
func StartPlanSpan(ctx context.Context, categoryCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "plan.build",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("layermap.span.kind", SpanKindPlan),
			attribute.Int("plan.category_count", categoryCount),
		),
	)
	return ctx, span
}

// RecordPlanResult records the plan size and cycle count.
func RecordPlanResult(span trace.Span, steps, cycles int) {
	span.SetAttributes(
		attribute.Int("plan.steps", steps),
		attribute.Int("plan.cycles", cycles),
	)
}

// StartReportSpan starts a span for writing the report document.
func StartReportSpan(ctx context.Context, outputPath string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "report.write",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("layermap.span.kind", SpanKindReport),
			attribute.String("report.output_path", outputPath),
		),
	)
	return ctx, span
}

// StartGraphStoreSpan starts a span for persisting the graph to a graph database.
func StartGraphStoreSpan(ctx context.Context, project string, edgeCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "graph.store",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("layermap.span.kind", SpanKindGraph),
			attribute.String("graph.project", project),
			attribute.Int("graph.edge_count", edgeCount),
		),
	)
	return ctx, span
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
