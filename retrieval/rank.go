package retrieval

import (
	"sort"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// ScorePOI computes the ranking score of one candidate for the request.
// Theme affinity dominates; cost pressure is a mild tie-breaker scaled by the
// traveler's daily budget.
func ScorePOI(poi core.POI, constraints core.TripConstraints, profile core.UserProfile) float64 {
	score := 0.0
	for _, want := range profile.Themes {
		for _, have := range poi.Themes {
			if strings.EqualFold(want, have) {
				score += core.RankThemeWeight
				break
			}
		}
	}
	if poi.Indoor {
		score += core.RankIndoorWeight
	}
	score += core.RankPopWeight * poi.Popularity
	if constraints.DailyBudget > 0 {
		score -= core.RankCostWeight * (ticketOrCost(poi) / constraints.DailyBudget)
	}
	return score
}

func ticketOrCost(poi core.POI) float64 {
	if poi.TicketPrice > 0 {
		return poi.TicketPrice
	}
	if poi.Cost > 0 {
		return poi.Cost
	}
	return 0
}

// Rank orders candidates by descending score. Pinned POIs sort first so pool
// truncation can never drop a must-visit; remaining ties break on name for
// deterministic output.
func Rank(pool []core.POI, constraints core.TripConstraints, profile core.UserProfile) []core.POI {
	out := make([]core.POI, len(pool))
	copy(out, pool)
	scores := make(map[string]float64, len(out))
	for _, poi := range out {
		scores[poi.ID] = ScorePOI(poi, constraints, profile)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if scores[a.ID] != scores[b.ID] {
			return scores[a.ID] > scores[b.ID]
		}
		return a.Name < b.Name
	})
	return out
}

// PoolSize returns the target candidate count: days times the pace multiplier
// with 50% headroom, never below two per day.
func PoolSize(constraints core.TripConstraints) int {
	size := constraints.Days * constraints.Pace.Multiplier()
	size += (size + 1) / 2
	if min := constraints.Days * core.MinPoolPerDay; size < min {
		size = min
	}
	return size
}
