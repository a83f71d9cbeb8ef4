// Package observability provides logging, redaction, request id and
// OpenTelemetry tracing helpers shared by the dispatch engine and the server.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span we emit.
const TracerName = "chatrelay"

// TracingConfig configures the OTLP/HTTP trace exporter.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string // host:port of the OTLP/HTTP collector
	ServiceName string
	SampleRate  float64
	Insecure    bool
}

// DefaultTracingConfig returns tracing disabled with collector defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Endpoint:    "localhost:4318",
		ServiceName: "chatrelay",
		SampleRate:  1.0,
		Insecure:    true,
	}
}

// TracerProvider owns the SDK provider, if one was started.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs a global tracer provider exporting over OTLP/HTTP.
// When disabled it returns the global (no-op by default) tracer.
func InitTracing(ctx context.Context, cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

// Tracer returns the tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Shutdown flushes and stops the SDK provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// AttemptSpanAttributes describe one provider call.
type AttemptSpanAttributes struct {
	Provider  string
	Model     string
	Dialect   string
	Attempt   int
	KeyIndex  int
	RequestID string
}

// StartAttemptSpan starts a client span for a single provider call.
func StartAttemptSpan(ctx context.Context, tracer trace.Tracer, attrs AttemptSpanAttributes) (context.Context, trace.Span) {
	return tracer.Start(ctx, "provider.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.system", attrs.Provider),
			attribute.String("gen_ai.request.model", attrs.Model),
			attribute.String("chatrelay.dialect", attrs.Dialect),
			attribute.Int("chatrelay.attempt", attrs.Attempt),
			attribute.Int("chatrelay.key_index", attrs.KeyIndex),
			attribute.String("chatrelay.request_id", attrs.RequestID),
		),
	)
}

// RecordUsage records token usage on span.
func RecordUsage(span trace.Span, tokens int) {
	span.SetAttributes(attribute.Int("gen_ai.usage.total_tokens", tokens))
}

// RecordError marks span failed with the error class.
func RecordError(span trace.Span, err error, class string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, class)
	span.SetAttributes(attribute.String("chatrelay.error_class", class))
}
