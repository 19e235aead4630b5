package providers

import (
	"context"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/resilience"
)

// Breaker-guarded provider decorators. HTTP clients already retry
// internally; the breaker sits outside and fails fast once a provider keeps
// failing after retries. Curated and fixture providers are never wrapped.

type guardedPoi struct {
	inner   PoiProvider
	breaker *resilience.Breaker
}

// GuardPoi wraps a POI provider with a circuit breaker.
func GuardPoi(inner PoiProvider, breaker *resilience.Breaker) PoiProvider {
	return &guardedPoi{inner: inner, breaker: breaker}
}

func (g *guardedPoi) Name() string { return g.inner.Name() }

func (g *guardedPoi) SearchPOIs(ctx context.Context, city string, themes []string, limit int) ([]core.POI, error) {
	var out []core.POI
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.SearchPOIs(ctx, city, themes, limit)
		return err
	})
	return out, err
}

func (g *guardedPoi) SetTelemetry(telemetry core.Telemetry) {
	propagateTelemetry(g.inner, telemetry)
}

type guardedRoute struct {
	inner   RouteProvider
	breaker *resilience.Breaker
}

// GuardRoute wraps a route provider with a circuit breaker.
func GuardRoute(inner RouteProvider, breaker *resilience.Breaker) RouteProvider {
	return &guardedRoute{inner: inner, breaker: breaker}
}

func (g *guardedRoute) Name() string { return g.inner.Name() }

func (g *guardedRoute) Route(ctx context.Context, from, to core.POI, mode core.TransportMode) (float64, float64, error) {
	var minutes, confidence float64
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		minutes, confidence, err = g.inner.Route(ctx, from, to, mode)
		return err
	})
	return minutes, confidence, err
}

func (g *guardedRoute) SetTelemetry(telemetry core.Telemetry) {
	propagateTelemetry(g.inner, telemetry)
}

type guardedLLM struct {
	inner   LLMProvider
	breaker *resilience.Breaker
}

// GuardLLM wraps an LLM provider with a circuit breaker.
func GuardLLM(inner LLMProvider, breaker *resilience.Breaker) LLMProvider {
	return &guardedLLM{inner: inner, breaker: breaker}
}

func (g *guardedLLM) Name() string { return g.inner.Name() }

func (g *guardedLLM) Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	var out string
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Generate(ctx, prompt, opts)
		return err
	})
	return out, err
}

func (g *guardedLLM) SetTelemetry(telemetry core.Telemetry) {
	propagateTelemetry(g.inner, telemetry)
}

func propagateTelemetry(p interface{}, telemetry core.Telemetry) {
	type telemetryAware interface{ SetTelemetry(core.Telemetry) }
	if aware, ok := p.(telemetryAware); ok {
		aware.SetTelemetry(telemetry)
	}
}
