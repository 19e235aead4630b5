// Package planner builds day-by-day itineraries from a ranked candidate pool.
//
// The scheduler runs four phases: geographic day partitioning, intra-day
// ordering, time-boxing, and budget accounting. All computation here is pure;
// real route providers are injected as functions so the phases stay testable.
package planner

import (
	"math"

	"github.com/djc-jpg/travel-planning-agent/core"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := toRadians(lat2 - lat1)
	dlon := toRadians(lon2 - lon1)
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// EstimateTravelMinutes converts a distance into travel minutes for the mode.
func EstimateTravelMinutes(distanceKm float64, mode core.TransportMode) float64 {
	return distanceKm / mode.SpeedKmh() * 60
}

// TravelMinutesBetween estimates travel between two POIs without a route
// provider.
func TravelMinutesBetween(a, b core.POI, mode core.TransportMode) float64 {
	return EstimateTravelMinutes(HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon), mode)
}
