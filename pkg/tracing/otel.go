// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig configures the OTLP/HTTP exporter.
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer sets up the global TracerProvider over an OTLP/HTTP exporter.
// Callers should defer tp.Shutdown(ctx) to flush pending spans.
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartExecutionSpan opens a span covering one execution's lifetime, from
// submit to terminal event.
func StartExecutionSpan(ctx context.Context, executionID string, catalogID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("noetl")
	ctx, span := tracer.Start(ctx, "execution.run",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("catalog.id", catalogID),
		),
	)
	return ctx, span
}

// StartStepSpan opens a span covering one step attempt's dispatch.
func StartStepSpan(ctx context.Context, step string, nodeType string) (context.Context, trace.Span) {
	tracer := otel.Tracer("noetl")
	ctx, span := tracer.Start(ctx, "step.execute",
		trace.WithAttributes(
			attribute.String("step.id", step),
			attribute.String("step.node_type", nodeType),
		),
	)
	return ctx, span
}

// StartToolSpan opens a span covering one worker-side tool invocation.
func StartToolSpan(ctx context.Context, toolName string, dedupeKey string) (context.Context, trace.Span) {
	tracer := otel.Tracer("noetl")
	ctx, span := tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.dedupe_key", dedupeKey),
		),
	)
	return ctx, span
}
