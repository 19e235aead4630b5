package providers

import (
	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/resilience"
)

// Set bundles the providers selected for a deployment.
type Set struct {
	Poi   PoiProvider
	Map   PoiProvider // nil when no map key is configured
	Route RouteProvider
	LLM   LLMProvider

	// Breakers guard the network providers, keyed by provider name.
	Breakers map[string]*resilience.Breaker
}

// RouteSource names the active route provider for the fingerprint.
func (s *Set) RouteSource() string {
	if s.Route != nil {
		return s.Route.Name()
	}
	return "fixture"
}

// LLMSource names the active LLM provider, or "none".
func (s *Set) LLMSource() string {
	if s.LLM != nil {
		return s.LLM.Name()
	}
	return "none"
}

// NewSet wires providers from configuration:
//
//   - POIs always include the curated dataset; a map key adds the live map
//     search alongside it.
//   - Routing follows ROUTING_PROVIDER: "real" requires a map key, "fixture"
//     forces estimates, "auto" uses the map when a key exists.
//   - The LLM is present only when a key is configured.
func NewSet(cfg *core.Config, logger core.Logger) (*Set, error) {
	curated, err := NewCuratedProvider(cfg.Providers.DatasetPath, logger)
	if err != nil {
		return nil, err
	}

	set := &Set{Poi: curated, Breakers: map[string]*resilience.Breaker{}}

	var mapClient *MapClient
	var mapBreaker *resilience.Breaker
	if cfg.Providers.MapAPIKey != "" {
		mapClient = NewMapClient(cfg.Providers.MapAPIKey, cfg.Providers.MapBaseURL, logger)
		mapBreaker = resilience.NewBreaker(mapClient.Name(), resilience.DefaultBreakerConfig(), logger)
		set.Breakers[mapClient.Name()] = mapBreaker
		set.Map = GuardPoi(mapClient, mapBreaker)
	}

	switch cfg.Providers.RoutingProvider {
	case "real":
		if mapClient == nil {
			return nil, &core.PlanError{
				Op:      "providers.NewSet",
				Code:    core.CodeInputInvalid,
				Message: "ROUTING_PROVIDER=real requires MAP_API_KEY",
				Err:     core.ErrInputInvalid,
			}
		}
		set.Route = GuardRoute(mapClient, mapBreaker)
	case "fixture":
		set.Route = FixtureRouteProvider{}
	default: // auto
		if mapClient != nil {
			set.Route = GuardRoute(mapClient, mapBreaker)
		} else {
			set.Route = FixtureRouteProvider{}
		}
	}

	if cfg.Providers.LLMAPIKey != "" {
		llm := NewLLMClient(cfg.Providers.LLMAPIKey, cfg.Providers.LLMBaseURL, cfg.Providers.LLMModel, logger)
		breaker := resilience.NewBreaker(llm.Name(), resilience.DefaultBreakerConfig(), logger)
		set.Breakers[llm.Name()] = breaker
		set.LLM = GuardLLM(llm, breaker)
	}

	logger.Info("Providers wired", map[string]interface{}{
		"operation": "providers_wired",
		"poi":       set.Poi.Name(),
		"map":       set.Map != nil,
		"route":     set.RouteSource(),
		"llm":       set.LLMSource(),
	})
	return set, nil
}

// SetTelemetry propagates the telemetry provider to every client that
// supports it.
func (s *Set) SetTelemetry(telemetry core.Telemetry) {
	type telemetryAware interface{ SetTelemetry(core.Telemetry) }
	for _, p := range []interface{}{s.Poi, s.Map, s.Route, s.LLM} {
		if aware, ok := p.(telemetryAware); ok {
			aware.SetTelemetry(telemetry)
		}
	}
}

// Cities lists the cities covered by the curated dataset.
func (s *Set) Cities() []string {
	if curated, ok := s.Poi.(*CuratedProvider); ok {
		return curated.Cities()
	}
	return nil
}

// Snapshot reports which providers served requests, for the run fingerprint.
func (s *Set) Snapshot(usedMap bool) (poi, route, llm string) {
	poi = s.Poi.Name()
	if usedMap && s.Map != nil {
		poi = s.Map.Name()
	}
	return poi, s.RouteSource(), s.LLMSource()
}
