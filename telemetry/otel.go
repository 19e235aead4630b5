// Package telemetry provides the production core.Telemetry implementation:
// OTel spans exported over OTLP/gRPC, and a Prometheus registry for the
// metrics surface. Components keep depending on the core interfaces only.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// Provider implements core.Telemetry with an OTel tracer and Prometheus
// metrics. Construct it once at startup; callers that run without telemetry
// use core.NoOpTelemetry instead.
type Provider struct {
	tracer  trace.Tracer
	tp      *sdktrace.TracerProvider
	metrics *Metrics
	logger  core.Logger
}

// New connects the OTLP exporter and registers the tracer provider
// globally. The metrics registry may be shared with the HTTP layer.
func New(ctx context.Context, cfg core.TelemetryConfig, metrics *Metrics, logger core.Logger) (*Provider, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "travel-planner"
	}
	res := sdkresource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("Telemetry initialized", map[string]interface{}{
		"operation": "telemetry_init",
		"endpoint":  cfg.Endpoint,
		"service":   serviceName,
	})

	return &Provider{
		tracer:  tp.Tracer(serviceName),
		tp:      tp,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// StartSpan starts an OTel span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric forwards to the Prometheus registry.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	p.metrics.Record(name, value, labels)
}

// Metrics exposes the shared registry.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
