package planner

import (
	"math"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// BudgetOptions carries the knobs for cost accounting.
type BudgetOptions struct {
	FoodMinPerPersonPerDay float64
	TravelersCount         int
}

// ApplyBudget recomputes per-day and total costs for the itinerary in place:
// tickets plus a local-transport estimate from travel minutes plus a food
// minimum. It also fills BudgetBreakdown and MinimumFeasibleBudget.
func ApplyBudget(it *core.Itinerary, constraints core.TripConstraints, opts BudgetOptions) {
	if opts.FoodMinPerPersonPerDay <= 0 {
		opts.FoodMinPerPersonPerDay = core.DefaultFoodMinPerPersonPerDay
	}
	if opts.TravelersCount <= 0 {
		opts.TravelersCount = 1
	}

	costPerMin := constraints.TransportMode.CostPerMinute()

	tickets := 0.0
	transport := 0.0
	for i := range it.Days {
		day := &it.Days[i]
		dayTickets := 0.0
		dayTravel := 0.0
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			if poi, ok := it.POI(item.POIRef); ok {
				dayTickets += ticketCost(poi)
			}
			dayTravel += item.TravelMinutes
		}
		day.TotalTravelMinutes = round1(dayTravel)
		day.EstimatedCost = round2(dayTickets + dayTravel*costPerMin)
		tickets += dayTickets
		transport += dayTravel * costPerMin
	}

	foodMin := float64(constraints.Days) * float64(opts.TravelersCount) * opts.FoodMinPerPersonPerDay

	it.BudgetBreakdown = core.BudgetBreakdown{
		Tickets:        round2(tickets),
		LocalTransport: round2(transport),
		FoodMin:        round2(foodMin),
	}
	it.TotalCost = round2(tickets + transport + foodMin)

	// The floor assumes the cheapest transport actually compatible with the
	// chosen mode: walking costs nothing, everything else needs at least the
	// transit estimate.
	minTransport := transport
	if constraints.TransportMode != core.TransportWalking {
		minTransport = math.Min(transport, totalTravelMinutes(it)*core.TransportPublicTransit.CostPerMinute())
	}
	it.MinimumFeasibleBudget = round2(requiredTickets(it) + foodMin + minTransport)
}

// ticketCost prefers the explicit ticket price and falls back to the generic
// cost attribute.
func ticketCost(poi core.POI) float64 {
	if poi.TicketPrice > 0 {
		return poi.TicketPrice
	}
	return math.Max(0, poi.Cost)
}

// requiredTickets sums tickets of pinned POIs plus the cheapest scheduled
// remainder, the floor a traveler cannot plan away.
func requiredTickets(it *core.Itinerary) float64 {
	total := 0.0
	for _, day := range it.Days {
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			poi, ok := it.POI(item.POIRef)
			if !ok {
				continue
			}
			if poi.Pinned || poi.ReservationRequired {
				total += ticketCost(poi)
			}
		}
	}
	return total
}

func totalTravelMinutes(it *core.Itinerary) float64 {
	total := 0.0
	for _, day := range it.Days {
		total += day.TotalTravelMinutes
	}
	return total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
