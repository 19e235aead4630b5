package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObservePlan("done", 1200*time.Millisecond)
	m.ObservePlan("error", 50*time.Millisecond)
	m.ObserveRepairRounds(2)
	m.ObserveHTTP("/plan", 200, 80*time.Millisecond)
	m.Record(MetricProviderError, 1, map[string]string{"provider": "amap"})
	m.Record(MetricCacheHit, 3, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics/prometheus", nil)
	m.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`planner_plans_total{status="done"} 1`,
		`planner_plans_total{status="error"} 1`,
		`planner_provider_errors_total{provider="amap"} 1`,
		`planner_pool_cache_hits_total 3`,
		`planner_http_requests_total{code="200",path="/plan"} 1`,
		"planner_plan_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetricsRecordUnknownNameIsDropped(t *testing.T) {
	m := NewMetrics()
	// Must not panic or register anything new.
	m.Record("made_up_metric", 1, map[string]string{"x": "y"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	body, _ := io.ReadAll(rec.Body)
	if strings.Contains(string(body), "made_up_metric") {
		t.Error("unknown metric name leaked into the registry")
	}
}

func TestSpanAttributesAndErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	p := &Provider{tracer: tp.Tracer("test"), tp: tp, metrics: NewMetrics()}

	ctx, span := p.StartSpan(context.Background(), "pipeline.Plan")
	if ctx == nil {
		t.Fatal("nil context from StartSpan")
	}
	span.SetAttribute("request_id", "r1")
	span.SetAttribute("rounds", 2)
	span.SetAttribute("score", 0.5)
	span.SetAttribute("strict", true)
	span.RecordError(errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	got := spans[0]
	if got.Name() != "pipeline.Plan" {
		t.Errorf("span name = %q", got.Name())
	}
	if len(got.Attributes()) != 4 {
		t.Errorf("attributes = %d, want 4", len(got.Attributes()))
	}
	if len(got.Events()) == 0 {
		t.Error("recorded error missing from span events")
	}
}

func TestRecordMetricRoutesToRegistry(t *testing.T) {
	m := NewMetrics()
	tp := sdktrace.NewTracerProvider()
	p := &Provider{tracer: tp.Tracer("test"), tp: tp, metrics: m}

	p.RecordMetric(MetricPlansTotal, 1, map[string]string{"status": "done"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `planner_plans_total{status="done"} 1`) {
		t.Error("RecordMetric did not reach the Prometheus registry")
	}
}
