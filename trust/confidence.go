package trust

import (
	"math"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// Weights for the confidence formula.
const (
	weightVerifiedRatio = 0.6
	weightFallbackFree  = 0.3
	weightRouting       = 0.1
)

// Stats summarizes fact provenance over an itinerary's scheduled POIs.
type Stats struct {
	VerifiedFactRatio float64 `json:"verified_fact_ratio"`
	FallbackRate      float64 `json:"fallback_rate"`
	FactCount         int     `json:"fact_count"`
}

// Collect walks every scheduled (non-backup) POI's fact sources and computes
// the verified ratio and fallback rate. Verified and curated facts both count
// toward the verified ratio; curated datasets are trusted, just not realtime.
func Collect(it *core.Itinerary) Stats {
	var total, trusted, fallback int
	seen := make(map[string]bool, len(it.POIs))
	for _, day := range it.Days {
		for _, item := range day.Items {
			if item.IsBackup || seen[item.POIRef] {
				continue
			}
			seen[item.POIRef] = true
			poi, ok := it.POI(item.POIRef)
			if !ok {
				continue
			}
			for _, prov := range poi.FactSources {
				total++
				switch prov {
				case core.ProvenanceVerified, core.ProvenanceCurated:
					trusted++
				case core.ProvenanceFallback, core.ProvenanceUnknown:
					fallback++
				}
			}
		}
	}
	if total == 0 {
		return Stats{}
	}
	return Stats{
		VerifiedFactRatio: float64(trusted) / float64(total),
		FallbackRate:      float64(fallback) / float64(total),
		FactCount:         total,
	}
}

// Score computes the itinerary confidence in [0, 1] from provenance stats and
// routing confidence.
func Score(stats Stats, routingConfidence float64) float64 {
	score := weightVerifiedRatio*stats.VerifiedFactRatio +
		weightFallbackFree*(1-stats.FallbackRate) +
		weightRouting*routingConfidence
	return math.Max(0, math.Min(1, score))
}

// Level maps a confidence score to a degrade level. Realtime routing is a
// precondition for L0: a plan built entirely on estimates is at best L1 no
// matter how good its facts are.
func Level(score float64, realtimeRouting bool) core.DegradeLevel {
	switch {
	case score >= 0.85 && realtimeRouting:
		return core.DegradeL0
	case score >= 0.7:
		return core.DegradeL1
	case score >= 0.5:
		return core.DegradeL2
	default:
		return core.DegradeL3
	}
}

// Apply stamps the itinerary with its confidence score and degrade level.
func Apply(it *core.Itinerary, realtimeRouting bool) {
	stats := Collect(it)
	it.ConfidenceScore = round2(Score(stats, it.RoutingConfidence))
	it.DegradeLevel = Level(it.ConfidenceScore, realtimeRouting)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
