// Package providers contains the external data sources the planner draws on:
// POI search, route resolution, and LLM generation. Each concern has a real
// client and a deterministic fixture, selected by configuration.
package providers

import (
	"context"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// PoiProvider searches candidate POIs for a city.
type PoiProvider interface {
	// SearchPOIs returns up to limit candidates for the city, optionally
	// narrowed by themes. Results carry provenance-tagged facts.
	SearchPOIs(ctx context.Context, city string, themes []string, limit int) ([]core.POI, error)

	// Name identifies the provider for the run fingerprint.
	Name() string
}

// RouteProvider resolves point-to-point travel time.
type RouteProvider interface {
	// Route returns travel minutes between two POIs for the mode, plus a
	// confidence in [0,1]: live routing reports near 1.0, estimates less.
	Route(ctx context.Context, from, to core.POI, mode core.TransportMode) (minutes, confidence float64, err error)

	Name() string
}

// GenerateOptions tunes a single LLM call.
type GenerateOptions struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
}

// LLMProvider generates text completions. The planner uses it for intake
// parsing and POI-pool supplementation, always with strict JSON prompts.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, options *GenerateOptions) (string, error)

	Name() string
}
