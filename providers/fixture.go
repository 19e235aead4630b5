package providers

import (
	"context"
	"math"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// FixtureRouteProvider estimates travel time from straight-line distance
// inflated by a road factor. It is deterministic and offline; its results
// carry the fixture routing confidence.
type FixtureRouteProvider struct{}

// fixtureRoadFactor matches the scheduler's haversine inflation.
const fixtureRoadFactor = 1.4

// Name identifies the provider for the run fingerprint.
func (FixtureRouteProvider) Name() string { return "fixture" }

// Route returns the haversine-based estimate for the mode.
func (FixtureRouteProvider) Route(ctx context.Context, from, to core.POI, mode core.TransportMode) (float64, float64, error) {
	distKm := haversineKm(from.Lat, from.Lon, to.Lat, to.Lon) * fixtureRoadFactor
	minutes := distKm / mode.SpeedKmh() * 60
	return math.Max(core.MinLegTravelMinutes, minutes), core.FixtureRoutingConfidence, nil
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// FixtureLLMProvider returns canned responses keyed by substring match on the
// prompt. Tests and offline runs use it in place of a live model.
type FixtureLLMProvider struct {
	// Responses maps a prompt substring to the canned reply; the first match
	// in insertion order wins.
	Responses map[string]string
	// Default is returned when nothing matches. Empty Default means the
	// provider reports itself unavailable, exercising fallback paths.
	Default string

	Calls []string
}

// Name identifies the provider for the run fingerprint.
func (p *FixtureLLMProvider) Name() string { return "fixture" }

// Generate returns the first canned response whose key appears in the prompt.
func (p *FixtureLLMProvider) Generate(ctx context.Context, prompt string, options *GenerateOptions) (string, error) {
	p.Calls = append(p.Calls, prompt)
	for key, resp := range p.Responses {
		if key != "" && strings.Contains(strings.ToLower(prompt), strings.ToLower(key)) {
			return resp, nil
		}
	}
	if p.Default != "" {
		return p.Default, nil
	}
	return "", &core.PlanError{
		Op:      "fixture.generate",
		Code:    core.CodeProviderUnavailable,
		Message: "no fixture response configured for prompt",
		Err:     core.ErrProviderUnavailable,
	}
}
