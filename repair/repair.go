// Package repair turns validation issues into bounded, local plan changes.
// Each round applies one strategy from a fixed ladder and hands back a
// mutated candidate pool (or upgraded constraints) for the scheduler to
// rebuild from; the pipeline re-validates and decides whether progress was
// made.
package repair

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/planner"
	"github.com/djc-jpg/travel-planning-agent/trust"
)

// Round is the outcome of one repair attempt.
type Round struct {
	// Action describes what was changed, for logging and assumptions.
	Action string
	// Pool is the candidate pool to rebuild from.
	Pool []core.POI
	// Constraints may carry an upgraded transport mode.
	Constraints core.TripConstraints
	// Accepted means no strategy applied: the plan ships as-is with an
	// elevated degrade level.
	Accepted bool
}

// Repairer selects and applies repair strategies.
type Repairer struct {
	logger    core.Logger
	telemetry core.Telemetry
}

// New creates a repairer.
func New() *Repairer {
	return &Repairer{logger: &core.NoOpLogger{}, telemetry: &core.NoOpTelemetry{}}
}

// SetLogger sets the logger provider.
func (r *Repairer) SetLogger(logger core.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetTelemetry sets the telemetry provider.
func (r *Repairer) SetTelemetry(telemetry core.Telemetry) {
	if telemetry != nil {
		r.telemetry = telemetry
	}
}

// Repair picks one strategy for the worst outstanding issue. The ladder:
//
//  1. fill missing facts with conservative heuristics
//  2. substitute a distant stop with a nearer same-theme candidate
//  3. drop the lowest-value non-pinned stop (most expensive first for
//     budget issues, so cost falls monotonically)
//  4. upgrade the transport mode one step
//
// When nothing applies the plan is accepted with an elevated degrade level.
func (r *Repairer) Repair(ctx context.Context, it *core.Itinerary, issues []core.Issue, pool []core.POI, constraints core.TripConstraints) *Round {
	_, span := r.telemetry.StartSpan(ctx, "repair.Repair")
	defer span.End()
	span.SetAttribute("issues", len(issues))

	worst := worstIssue(issues)
	if worst == nil {
		return &Round{Action: "noop", Pool: pool, Constraints: constraints, Accepted: true}
	}
	span.SetAttribute("worst_code", worst.Code)

	var round *Round
	switch worst.Code {
	case core.IssueMissingFacts:
		round = fillFacts(pool, constraints)
	case core.IssueOverBudget, core.IssueBudgetUnrealistic:
		round = dropMostExpensive(pool, constraints)
	case core.IssueOverTime, core.IssueTooMuchTravel, core.IssueTravelTimeInvalid, core.IssueRouteBacktracking:
		round = substituteNearer(it, pool, constraints, *worst)
		if round == nil {
			round = dropLowestRanked(it, pool, constraints, worst.DayNumber)
		}
		if round == nil {
			round = upgradeTransport(pool, constraints)
		}
	case core.IssueMustVisitClosed:
		// Pinned stops never get dropped, but a same-theme substitute is
		// still better than a plan built around a closed door.
		round = substituteNearer(it, pool, constraints, *worst)
	case core.IssuePaceMismatch:
		round = dropLowestRanked(it, pool, constraints, worst.DayNumber)
	default:
		// DUPLICATE_POI_DAY and MISSING_BACKUP are either rebuilt away or
		// informational.
	}

	if round == nil {
		round = &Round{Action: "accept_with_degrade", Pool: pool, Constraints: constraints, Accepted: true}
	}

	r.logger.Info("Repair strategy selected", map[string]interface{}{
		"operation": "repair_round",
		"issue":     worst.Code,
		"action":    round.Action,
	})
	return round
}

// worstIssue returns the highest-severity issue; the validator pre-sorts, so
// the first entry wins when present.
func worstIssue(issues []core.Issue) *core.Issue {
	if len(issues) == 0 {
		return nil
	}
	worst := issues[0]
	for _, issue := range issues[1:] {
		if issue.Severity.Weight() > worst.Severity.Weight() {
			worst = issue
		}
	}
	return &worst
}

// fillFacts patches missing required attributes with conservative defaults
// and marks them fallback-tier, which the confidence score will punish.
func fillFacts(pool []core.POI, constraints core.TripConstraints) *Round {
	out := make([]core.POI, len(pool))
	copy(out, pool)
	patched := 0
	for i := range out {
		if len(trust.MissingRequiredFacts(out[i])) == 0 {
			continue
		}
		poi := out[i]
		sources := make(map[string]core.Provenance, len(poi.FactSources))
		for k, v := range poi.FactSources {
			sources[k] = v
		}
		poi.FactSources = sources
		if poi.OpenHours == "" {
			poi.OpenHours = "09:00-18:00"
			poi.FactSources["open_hours"] = core.ProvenanceFallback
		}
		if poi.TypicalDuration <= 0 {
			poi.TypicalDuration = 1.5
			poi.FactSources["typical_duration"] = core.ProvenanceFallback
		}
		out[i] = poi
		patched++
	}
	if patched == 0 {
		return nil
	}
	return &Round{
		Action:      fmt.Sprintf("filled missing facts on %d POIs with conservative defaults", patched),
		Pool:        out,
		Constraints: constraints,
	}
}

// dropMostExpensive removes the priciest non-pinned candidate so total cost
// strictly decreases round over round.
func dropMostExpensive(pool []core.POI, constraints core.TripConstraints) *Round {
	candidates := lo.Filter(pool, func(poi core.POI, _ int) bool { return !poi.Pinned && poiCost(poi) > 0 })
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return poiCost(candidates[i]) > poiCost(candidates[j]) })
	victim := candidates[0]

	return &Round{
		Action:      fmt.Sprintf("dropped %s (%.0f) to cut cost", victim.Name, poiCost(victim)),
		Pool:        removeFromPool(pool, victim.ID),
		Constraints: constraints,
	}
}

// substituteNearer swaps the scheduled stop named by the issue (or the one
// with the longest inbound leg) for an unscheduled same-theme candidate at
// most 60% of the distance from the previous stop.
func substituteNearer(it *core.Itinerary, pool []core.POI, constraints core.TripConstraints, issue core.Issue) *Round {
	day := dayByNumber(it, issue.DayNumber)
	if day == nil {
		return nil
	}

	prev, target := worstLeg(it, day, issue.POIRef)
	if target == nil || prev == nil {
		return nil
	}
	// A closed must-visit may be swapped despite its pin; nothing else
	// touches pinned stops.
	if target.Pinned && issue.Code != core.IssueMustVisitClosed {
		return nil
	}

	scheduled := scheduledIDs(it)
	baseline := planner.HaversineKm(prev.Lat, prev.Lon, target.Lat, target.Lon)
	var best *core.POI
	bestDist := baseline * 0.6
	for i := range pool {
		cand := &pool[i]
		if scheduled[cand.ID] || cand.ID == target.ID || !sharesTheme(*cand, *target) {
			continue
		}
		d := planner.HaversineKm(prev.Lat, prev.Lon, cand.Lat, cand.Lon)
		if d < bestDist {
			best = cand
			bestDist = d
		}
	}
	if best == nil {
		return nil
	}

	return &Round{
		Action:      fmt.Sprintf("substituted %s with nearer %s", target.Name, best.Name),
		Pool:        swapInPool(pool, target.ID, *best),
		Constraints: constraints,
	}
}

// dropLowestRanked removes the least popular non-pinned stop of the offending
// day (any day when dayNumber is 0) from the pool.
func dropLowestRanked(it *core.Itinerary, pool []core.POI, constraints core.TripConstraints, dayNumber int) *Round {
	var victim *core.POI
	for _, day := range it.Days {
		if dayNumber != 0 && day.DayNumber != dayNumber {
			continue
		}
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			poi, ok := it.POI(item.POIRef)
			if !ok || poi.Pinned {
				continue
			}
			if victim == nil || poi.Popularity < victim.Popularity {
				p := poi
				victim = &p
			}
		}
	}
	if victim == nil {
		return nil
	}
	return &Round{
		Action:      fmt.Sprintf("dropped lowest-ranked stop %s", victim.Name),
		Pool:        removeFromPool(pool, victim.ID),
		Constraints: constraints,
	}
}

// upgradeTransport steps the mode up once. Walking trips become transit
// trips before anything drastic happens to the itinerary itself.
func upgradeTransport(pool []core.POI, constraints core.TripConstraints) *Round {
	faster, ok := constraints.TransportMode.Faster()
	if !ok {
		return nil
	}
	upgraded := constraints
	upgraded.TransportMode = faster
	return &Round{
		Action:      fmt.Sprintf("upgraded transport %s -> %s", constraints.TransportMode, faster),
		Pool:        pool,
		Constraints: upgraded,
	}
}

func poiCost(poi core.POI) float64 {
	if poi.TicketPrice > 0 {
		return poi.TicketPrice
	}
	if poi.Cost > 0 {
		return poi.Cost
	}
	return 0
}

func dayByNumber(it *core.Itinerary, n int) *core.ItineraryDay {
	for i := range it.Days {
		if it.Days[i].DayNumber == n {
			return &it.Days[i]
		}
	}
	if n == 0 && len(it.Days) > 0 {
		return &it.Days[0]
	}
	return nil
}

// worstLeg finds the stop to replace: the one the issue names, or the stop
// with the longest inbound travel leg, plus its predecessor.
func worstLeg(it *core.Itinerary, day *core.ItineraryDay, poiRef string) (prev, target *core.POI) {
	var items []core.ScheduleItem
	for _, item := range day.Items {
		if !item.IsBackup {
			items = append(items, item)
		}
	}
	if len(items) < 2 {
		return nil, nil
	}

	pick := -1
	if poiRef != "" {
		for i, item := range items {
			if item.POIRef == poiRef {
				pick = i
			}
		}
	}
	if pick < 0 {
		worst := 0.0
		for i := 1; i < len(items); i++ {
			if items[i].TravelMinutes > worst {
				worst = items[i].TravelMinutes
				pick = i
			}
		}
	}
	if pick < 0 {
		return nil, nil
	}

	// The day's first stop anchors on its successor instead.
	anchor := pick - 1
	if anchor < 0 {
		anchor = 1
	}

	prevPoi, ok1 := it.POI(items[anchor].POIRef)
	targetPoi, ok2 := it.POI(items[pick].POIRef)
	if !ok1 || !ok2 {
		return nil, nil
	}
	return &prevPoi, &targetPoi
}

func scheduledIDs(it *core.Itinerary) map[string]bool {
	out := map[string]bool{}
	for _, day := range it.Days {
		for _, item := range day.Items {
			if !item.IsBackup {
				out[item.POIRef] = true
			}
		}
	}
	return out
}

func sharesTheme(a, b core.POI) bool {
	for _, ta := range a.Themes {
		for _, tb := range b.Themes {
			if ta == tb {
				return true
			}
		}
	}
	return false
}

func removeFromPool(pool []core.POI, id string) []core.POI {
	return lo.Filter(pool, func(poi core.POI, _ int) bool { return poi.ID != id })
}

func swapInPool(pool []core.POI, oldID string, replacement core.POI) []core.POI {
	out := make([]core.POI, 0, len(pool))
	for _, poi := range pool {
		if poi.ID == oldID {
			continue
		}
		out = append(out, poi)
	}
	// Move the replacement to the front so ranking keeps it in the pool.
	filtered := removeFromPool(out, replacement.ID)
	return append([]core.POI{replacement}, filtered...)
}
