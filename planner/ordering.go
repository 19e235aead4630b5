package planner

import (
	"github.com/djc-jpg/travel-planning-agent/core"
)

// routeDistanceKm sums leg distances walking the route from a start point.
func routeDistanceKm(pois []core.POI, startLat, startLon float64) float64 {
	curLat, curLon := startLat, startLon
	total := 0.0
	for _, poi := range pois {
		total += HaversineKm(curLat, curLon, poi.Lat, poi.Lon)
		curLat, curLon = poi.Lat, poi.Lon
	}
	return total
}

// NearestNeighborOrder greedily orders POIs starting from (startLat, startLon).
// Ties break on the input order, which is already rank order.
func NearestNeighborOrder(pois []core.POI, startLat, startLon float64) []core.POI {
	if len(pois) <= 1 {
		out := make([]core.POI, len(pois))
		copy(out, pois)
		return out
	}
	remaining := make([]core.POI, len(pois))
	copy(remaining, pois)
	ordered := make([]core.POI, 0, len(pois))
	curLat, curLon := startLat, startLon
	for len(remaining) > 0 {
		bestIdx := 0
		bestDist := HaversineKm(curLat, curLon, remaining[0].Lat, remaining[0].Lon)
		for i := 1; i < len(remaining); i++ {
			d := HaversineKm(curLat, curLon, remaining[i].Lat, remaining[i].Lon)
			if d < bestDist {
				bestIdx = i
				bestDist = d
			}
		}
		next := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		ordered = append(ordered, next)
		curLat, curLon = next.Lat, next.Lon
	}
	return ordered
}

// TwoOptOrder applies a bounded 2-opt pass over the route to shake out
// crossings the greedy order leaves behind.
func TwoOptOrder(pois []core.POI, startLat, startLon float64, maxPasses int) []core.POI {
	if len(pois) < 4 {
		out := make([]core.POI, len(pois))
		copy(out, pois)
		return out
	}
	best := make([]core.POI, len(pois))
	copy(best, pois)
	bestDist := routeDistanceKm(best, startLat, startLon)

	improved := true
	for pass := 0; improved && pass < maxPasses; pass++ {
		improved = false
		for left := 1; left < len(best)-2 && !improved; left++ {
			for right := left + 1; right < len(best)-1; right++ {
				candidate := swapSegment(best, left, right)
				d := routeDistanceKm(candidate, startLat, startLon)
				if d+1e-6 < bestDist {
					best = candidate
					bestDist = d
					improved = true
					break
				}
			}
		}
	}
	return best
}

func swapSegment(route []core.POI, left, right int) []core.POI {
	out := make([]core.POI, 0, len(route))
	out = append(out, route[:left]...)
	for i := right; i >= left; i-- {
		out = append(out, route[i])
	}
	out = append(out, route[right+1:]...)
	return out
}

// OrderDay produces the visiting order for a day. The route starts at the
// first pinned POI when one exists, otherwise at the cluster's outermost
// northwest point, and is improved with a bounded 2-opt pass.
func OrderDay(dayPool []core.POI) []core.POI {
	if len(dayPool) == 0 {
		return nil
	}

	start := dayPool[0]
	havePinned := false
	for _, poi := range dayPool {
		if poi.Pinned {
			start = poi
			havePinned = true
			break
		}
	}
	if !havePinned {
		// Outermost northwest: maximize latitude, minimize longitude.
		for _, poi := range dayPool[1:] {
			if poi.Lat-poi.Lon > start.Lat-start.Lon {
				start = poi
			}
		}
	}

	rest := make([]core.POI, 0, len(dayPool)-1)
	for _, poi := range dayPool {
		if poi.ID != start.ID {
			rest = append(rest, poi)
		}
	}

	ordered := append([]core.POI{start}, NearestNeighborOrder(rest, start.Lat, start.Lon)...)
	return TwoOptOrder(ordered, start.Lat, start.Lon, 6)
}
