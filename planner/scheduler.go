package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// Scheduler turns a ranked candidate pool into a day-by-day itinerary.
// It performs no validation; the validator runs on its output.
type Scheduler struct {
	calendar Calendar
	budget   BudgetOptions
	route    RouteFunc
	// routeSource names the routing provider for the fingerprint
	// ("real", "fixture").
	routeSource string

	logger    core.Logger
	telemetry core.Telemetry
}

// NewScheduler creates a scheduler. route may be nil, in which case all
// travel times come from the haversine estimator.
func NewScheduler(calendar Calendar, budget BudgetOptions, route RouteFunc, routeSource string) *Scheduler {
	if routeSource == "" {
		routeSource = "fixture"
	}
	return &Scheduler{
		calendar:    calendar,
		budget:      budget,
		route:       route,
		routeSource: routeSource,
		logger:      &core.NoOpLogger{},
		telemetry:   &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger provider.
func (s *Scheduler) SetLogger(logger core.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetTelemetry sets the telemetry provider.
func (s *Scheduler) SetTelemetry(telemetry core.Telemetry) {
	if telemetry != nil {
		s.telemetry = telemetry
	}
}

// Build constructs the itinerary: cluster the pool, partition clusters over
// days, order and time-box each day, then account costs. Issues found while
// scheduling (closed must-visits) are returned alongside.
func (s *Scheduler) Build(ctx context.Context, pool []core.POI, constraints core.TripConstraints, profile core.UserProfile) (*core.Itinerary, []core.Issue) {
	ctx, span := s.telemetry.StartSpan(ctx, "scheduler.Build")
	defer span.End()
	span.SetAttribute("pool_size", len(pool))
	span.SetAttribute("days", constraints.Days)

	dates := TripDates(constraints)
	peak := s.calendar.AnyPeakDate(dates) || constraints.HolidayHint != ""

	clusters := BuildClusters(pool, constraints.TransportMode)
	lookup := ClusterLookup(clusters)
	dayPools := PartitionDays(clusters, constraints.Days)

	it := &core.Itinerary{
		City:          constraints.City,
		POIs:          make(map[string]core.POI, len(pool)),
		RoutingSource: s.routeSource,
	}
	for _, poi := range pool {
		it.POIs[poi.ID] = poi
	}

	var issues []core.Issue
	_, paceMax := constraints.Pace.PerDayRange()
	routingConfidence := 1.0

	for i := 0; i < constraints.Days; i++ {
		var dayPool []core.POI
		if i < len(dayPools) {
			dayPool = dayPools[i]
		}
		mains, spare := splitByCapacity(dayPool, paceMax)

		ordered := OrderDay(mains)
		res := TimeboxDay(ctx, ordered, DayOptions{
			Date:          dateAt(dates, i),
			Mode:          constraints.TransportMode,
			Peak:          peak,
			Route:         s.route,
			ClusterLookup: lookup,
			Calendar:      s.calendar,
			Spare:         spare,
		})
		if res.RoutingConfidence < routingConfidence {
			routingConfidence = res.RoutingConfidence
		}

		day := core.ItineraryDay{
			DayNumber:   i + 1,
			Date:        dateAt(dates, i),
			Items:       res.Items,
			Backups:     res.Backups,
			MealWindows: res.MealWindows,
		}
		day.ClusterSwitches = CountClusterSwitches(day.Items, lookup)
		ensureBackup(&day, spare, res.UsedSpareIDs, lookup)
		day.DaySummary = summarizeDay(day, it)
		it.Days = append(it.Days, day)

		s.logger.Debug("Day scheduled", map[string]interface{}{
			"operation": "schedule_day",
			"day":       day.DayNumber,
			"items":     len(day.Items),
			"backups":   len(day.Backups),
		})
	}

	// Must-visit POIs closed for the whole trip stay scheduled but are
	// flagged for the traveler.
	for _, poi := range pool {
		if poi.Pinned && ClosedAllDays(poi, dates) {
			issues = append(issues, core.Issue{
				Code:     core.IssueMustVisitClosed,
				Severity: core.SeverityHigh,
				POIRef:   poi.ID,
				Evidence: fmt.Sprintf("%s is closed on every trip day (%s)", poi.Name, poi.ClosedRules),
			})
			it.Assumptions = append(it.Assumptions,
				fmt.Sprintf("%s appears closed for the selected dates; confirm before visiting", poi.Name))
		}
	}

	if peak {
		it.Assumptions = append(it.Assumptions,
			"peak season: security buffers inflated 1.5x, expect queues")
	}

	it.RoutingConfidence = routingConfidence
	ApplyBudget(it, constraints, s.budget)

	return it, issues
}

// splitByCapacity keeps at most maxMains POIs for the main schedule, always
// retaining pinned POIs, and returns the rest as spares.
func splitByCapacity(dayPool []core.POI, maxMains int) (mains, spare []core.POI) {
	if maxMains <= 0 || len(dayPool) <= maxMains {
		return dayPool, nil
	}
	pinned := make([]core.POI, 0, len(dayPool))
	rest := make([]core.POI, 0, len(dayPool))
	for _, poi := range dayPool {
		if poi.Pinned {
			pinned = append(pinned, poi)
		} else {
			rest = append(rest, poi)
		}
	}
	mains = pinned
	for _, poi := range rest {
		if len(mains) < maxMains {
			mains = append(mains, poi)
		} else {
			spare = append(spare, poi)
		}
	}
	return mains, spare
}

// ensureBackup guarantees at least one backup per day, preferring spares in
// a cluster the day already visits.
func ensureBackup(day *core.ItineraryDay, spare []core.POI, usedSpareIDs []string, lookup map[string]string) {
	if len(day.Backups) > 0 {
		return
	}
	used := make(map[string]bool, len(usedSpareIDs))
	for _, id := range usedSpareIDs {
		used[id] = true
	}
	dayClusters := make(map[string]bool)
	for _, item := range day.Items {
		if cid := lookup[item.POIRef]; cid != "" {
			dayClusters[cid] = true
		}
	}

	candidates := make([]core.POI, 0, len(spare))
	for _, poi := range spare {
		if !used[poi.ID] {
			candidates = append(candidates, poi)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return dayClusters[lookup[candidates[i].ID]] && !dayClusters[lookup[candidates[j].ID]]
	})
	if len(candidates) > 0 {
		day.Backups = append(day.Backups, backupItem(candidates[0], "alternate option"))
	}
}

func summarizeDay(day core.ItineraryDay, it *core.Itinerary) string {
	names := make([]string, 0, len(day.Items))
	for _, item := range day.Items {
		if poi, ok := it.POI(item.POIRef); ok {
			names = append(names, poi.Name)
		}
	}
	if len(names) == 0 {
		return "free day"
	}
	return fmt.Sprintf("day %d: %s", day.DayNumber, joinNames(names))
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += " -> "
		}
		out += n
	}
	return out
}

func dateAt(dates []string, i int) string {
	if i < len(dates) {
		return dates[i]
	}
	return ""
}
