// Package telemetry provides OpenTelemetry-based tracing and RED
// (Rate, Errors, Duration) metrics for the discovery engine's
// collector, gating, resolver, and verification stages.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the discovery engine's telemetry provider.
type Config struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	SampleRate   float64
	Enabled      bool
	Insecure     bool
}

// DefaultConfig returns sensible defaults for local/dev use: telemetry
// enabled against an insecure local collector, sampling everything.
func DefaultConfig() Config {
	return Config{
		ServiceName:  "sourcing-engine",
		Environment:  "development",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		Enabled:      true,
		Insecure:     true,
	}
}

// Provider holds the tracer and the RED metric instruments every
// pipeline stage reports through.
type Provider struct {
	cfg            Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	log            *slog.Logger

	stageCounter   metric.Int64Counter
	errorCounter   metric.Int64Counter
	durationHist   metric.Float64Histogram
	activeStages   metric.Int64UpDownCounter
}

// New builds a Provider. When cfg.Enabled is false it returns a
// Provider whose methods are no-ops, so call sites never need an
// "if telemetry enabled" branch of their own.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Provider{cfg: cfg, log: log.With("component", "telemetry")}

	if !cfg.Enabled {
		p.log.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.tracer = otel.Tracer("sourcingengine")
	p.meter = otel.Meter("sourcingengine")

	if err := p.initREDMetrics(); err != nil {
		return nil, fmt.Errorf("telemetry: init RED metrics: %w", err)
	}

	p.log.InfoContext(ctx, "telemetry initialized", "endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.SampleRate)
	return p, nil
}

func (p *Provider) initREDMetrics() error {
	var err error
	p.stageCounter, err = p.meter.Int64Counter("sourcingengine.stage.total",
		metric.WithDescription("Total pipeline stage invocations"), metric.WithUnit("{invocation}"))
	if err != nil {
		return err
	}
	p.errorCounter, err = p.meter.Int64Counter("sourcingengine.stage.errors",
		metric.WithDescription("Total pipeline stage errors"), metric.WithUnit("{error}"))
	if err != nil {
		return err
	}
	p.durationHist, err = p.meter.Float64Histogram("sourcingengine.stage.duration",
		metric.WithDescription("Pipeline stage duration"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0))
	if err != nil {
		return err
	}
	p.activeStages, err = p.meter.Int64UpDownCounter("sourcingengine.stage.active",
		metric.WithDescription("Currently running pipeline stages"), metric.WithUnit("{stage}"))
	return err
}

// Shutdown flushes and closes the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		p.log.ErrorContext(ctx, "telemetry shutdown failed", "error", err)
		return err
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.log.ErrorContext(ctx, "telemetry metric shutdown failed", "error", err)
			return err
		}
	}
	return nil
}

// TrackStage starts a span named name and the matching RED metrics,
// returning a context carrying the span and a completion func callers
// defer with the stage's terminal error (nil on success).
func (p *Provider) TrackStage(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if p.cfg.Enabled && p.tracer != nil {
		start := time.Now()
		ctx, span := p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
		if p.activeStages != nil {
			p.activeStages.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		if p.stageCounter != nil {
			p.stageCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		return ctx, func(err error) {
			if p.activeStages != nil {
				p.activeStages.Add(ctx, -1, metric.WithAttributes(attrs...))
			}
			if p.durationHist != nil {
				p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
			}
			if err != nil {
				span.RecordError(err)
				if p.errorCounter != nil {
					p.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
				}
			}
			span.End()
		}
	}
	return ctx, func(error) {}
}
