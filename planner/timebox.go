package planner

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// RouteFunc resolves travel between two POIs. Implementations may call a real
// route provider; the returned confidence is 1.0 for verified routes and
// lower for estimates. A nil RouteFunc falls back to the haversine estimate.
type RouteFunc func(ctx context.Context, from, to core.POI, mode core.TransportMode) (minutes, confidence float64, err error)

// roadFactor inflates straight-line distance to approximate street routing.
const roadFactor = 1.4

// DayOptions parameterizes time-boxing for one day.
type DayOptions struct {
	Date          string
	Mode          core.TransportMode
	Peak          bool
	Route         RouteFunc
	ClusterLookup map[string]string
	Calendar      Calendar
	// Spare candidates used to substitute POIs that are closed on Date.
	Spare []core.POI
}

// DayResult is the outcome of time-boxing one day.
type DayResult struct {
	Items             []core.ScheduleItem
	Backups           []core.ScheduleItem
	MealWindows       []string
	RoutingConfidence float64 // minimum over the day's legs, 1.0 when empty
	Substituted       map[string]string
	// UsedSpareIDs are spare POIs consumed by closed-day substitution.
	UsedSpareIDs []string
}

// TimeboxDay walks the ordered POIs from DayStartHour, accumulating travel,
// buffers, and meal windows. POIs that cannot fit before DayEndHour are
// demoted to backups. POIs closed on the date are substituted with the
// next-best same-theme spare within 2 km; unsubstitutable ones are dropped
// to backups (pinned POIs stay, the scheduler raises the issue).
func TimeboxDay(ctx context.Context, ordered []core.POI, opts DayOptions) DayResult {
	res := DayResult{
		RoutingConfidence: 1.0,
		Substituted:       make(map[string]string),
	}

	hour := core.DayStartHour
	lunchDone := false
	dinnerDone := false
	var prev *core.POI

	spare := make([]core.POI, len(opts.Spare))
	copy(spare, opts.Spare)

	for _, poi := range ordered {
		if opts.Date != "" && ClosedOn(poi, opts.Date) {
			if poi.Pinned {
				// Must-visit stays on the schedule; the scheduler records
				// MUST_VISIT_CLOSED against it.
			} else if sub, ok := takeSubstitute(spare, poi); ok {
				res.Substituted[poi.ID] = sub.ID
				res.UsedSpareIDs = append(res.UsedSpareIDs, sub.ID)
				spare = removePOI(spare, sub.ID)
				poi = sub
			} else {
				res.Backups = append(res.Backups, backupItem(poi, "closed on "+opts.Date))
				continue
			}
		}

		travel, confidence := legTravel(ctx, prev, poi, opts)
		if confidence < res.RoutingConfidence {
			res.RoutingConfidence = confidence
		}

		buffer := bufferMinutes(poi, opts.Peak)
		startHour := hour + (travel+buffer)/60

		startHour = adjustForOpenHours(poi, startHour)
		if startHour < 0 {
			res.Backups = append(res.Backups, backupItem(poi, "outside open hours"))
			continue
		}

		if !lunchDone && startHour >= core.LunchWindowStartHour {
			startHour, lunchDone = applyMealWindow(&res, poi, startHour,
				core.LunchWindowStartHour, core.LunchWindowEndHour)
		}
		if !dinnerDone && startHour >= core.DinnerWindowStartHour {
			startHour, dinnerDone = applyMealWindow(&res, poi, startHour,
				core.DinnerWindowStartHour, core.DinnerWindowEndHour)
		}

		endHour := startHour + visitDurationHours(poi)
		if endHour > core.DayEndHour {
			res.Backups = append(res.Backups, backupItem(poi, "past end of day"))
			continue
		}

		res.Items = append(res.Items, core.ScheduleItem{
			POIRef:        poi.ID,
			TimeSlot:      core.SlotForHour(startHour),
			StartTime:     formatHour(startHour),
			EndTime:       formatHour(endHour),
			TravelMinutes: round1(travel),
			BufferMinutes: round1(buffer),
			Notes:         itemNotes(poi, opts.ClusterLookup, buffer),
		})
		hour = endHour
		p := poi
		prev = &p
	}

	return res
}

// legTravel computes travel minutes from prev to next. The first leg of the
// day has no travel. Legs between distinct POIs are floored at one minute so
// downstream feasibility checks see a realistic number.
func legTravel(ctx context.Context, prev *core.POI, next core.POI, opts DayOptions) (float64, float64) {
	if prev == nil {
		return 0, 1.0
	}
	if opts.Route != nil {
		minutes, confidence, err := opts.Route(ctx, *prev, next, opts.Mode)
		if err == nil {
			return math.Max(core.MinLegTravelMinutes, minutes), confidence
		}
	}
	distKm := HaversineKm(prev.Lat, prev.Lon, next.Lat, next.Lon) * roadFactor
	minutes := EstimateTravelMinutes(distKm, opts.Mode)
	penalty := crossClusterPenalty(*prev, next, opts.ClusterLookup)
	return math.Max(core.MinLegTravelMinutes, minutes+penalty), core.FixtureRoutingConfidence
}

func crossClusterPenalty(prev, next core.POI, lookup map[string]string) float64 {
	if lookup == nil {
		return 0
	}
	a, b := lookup[prev.ID], lookup[next.ID]
	if a == "" || b == "" || a == b {
		return 0
	}
	return core.CrossClusterPenaltyMin
}

// bufferMinutes applies the security buffer: 30m on peak days, 15m for
// reservation-required POIs, otherwise none; peak trips inflate by 1.5x with
// a 45m cap.
func bufferMinutes(poi core.POI, peak bool) float64 {
	base := 0.0
	if peak {
		base = core.BufferPeakDayMinutes
	} else if poi.ReservationRequired {
		base = core.BufferReservationMinutes
	}
	if peak {
		base *= core.PeakBufferMultiplier
	}
	return math.Min(core.BufferCapMinutes, base)
}

// adjustForOpenHours shifts the start to opening time when arriving early and
// returns -1 when the POI is effectively closed by arrival.
func adjustForOpenHours(poi core.POI, startHour float64) float64 {
	openStart, openEnd, ok := parseOpenHours(poi.OpenHours)
	if !ok {
		return startHour
	}
	if startHour < openStart {
		startHour = openStart
	}
	if startHour >= openEnd-0.2 {
		return -1
	}
	return startHour
}

// applyMealWindow inserts a meal break unless the upcoming POI itself is
// meal-themed and falls inside the window.
func applyMealWindow(res *DayResult, next core.POI, startHour, windowStart, windowEnd float64) (float64, bool) {
	if isMealThemed(next) && startHour <= windowEnd {
		res.MealWindows = append(res.MealWindows,
			fmt.Sprintf("%s-%s", formatHour(startHour), formatHour(startHour+core.MealDurationMinutes/60)))
		return startHour, true
	}
	mealStart := math.Max(windowStart, math.Min(startHour, windowEnd-core.MealDurationMinutes/60))
	mealEnd := mealStart + core.MealDurationMinutes/60
	res.MealWindows = append(res.MealWindows,
		fmt.Sprintf("%s-%s", formatHour(mealStart), formatHour(mealEnd)))
	if startHour < mealEnd {
		startHour = mealEnd
	}
	return startHour, true
}

var mealThemes = []string{"food", "restaurant", "market", "snack", "dining", "cuisine"}

func isMealThemed(poi core.POI) bool {
	text := strings.ToLower(poi.Name)
	for _, t := range poi.Themes {
		text += " " + strings.ToLower(t)
	}
	for _, kw := range mealThemes {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func itemNotes(poi core.POI, lookup map[string]string, buffer float64) string {
	details := []string{}
	if cid := lookup[poi.ID]; cid != "" {
		details = append(details, "cluster="+cid)
	}
	if buffer > 0 {
		details = append(details, fmt.Sprintf("buffer=%dm", int(buffer)))
	}
	if poi.ReservationRequired {
		details = append(details, "reservation_required")
	}
	if poi.ClosedRules != "" {
		details = append(details, "closed_rules="+poi.ClosedRules)
	}
	return strings.Join(details, " | ")
}

func backupItem(poi core.POI, reason string) core.ScheduleItem {
	return core.ScheduleItem{
		POIRef:   poi.ID,
		TimeSlot: core.SlotAfternoon,
		Notes:    "backup: " + reason,
		IsBackup: true,
	}
}

// takeSubstitute finds the first spare sharing a theme with the POI and lying
// within 2 km of it.
func takeSubstitute(spare []core.POI, closed core.POI) (core.POI, bool) {
	for _, cand := range spare {
		if !sharesTheme(cand, closed) {
			continue
		}
		if HaversineKm(cand.Lat, cand.Lon, closed.Lat, closed.Lon) <= 2.0 {
			return cand, true
		}
	}
	return core.POI{}, false
}

func sharesTheme(a, b core.POI) bool {
	for _, ta := range a.Themes {
		for _, tb := range b.Themes {
			if strings.EqualFold(ta, tb) {
				return true
			}
		}
	}
	return false
}

func removePOI(pool []core.POI, id string) []core.POI {
	out := pool[:0]
	for _, poi := range pool {
		if poi.ID != id {
			out = append(out, poi)
		}
	}
	return out
}

// parseOpenHours parses "09:00-17:00" into fractional hours.
func parseOpenHours(s string) (start, end float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false
	}
	segment := strings.Fields(s)[0]
	parts := strings.SplitN(segment, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, ok1 := parseHour(parts[0])
	end, ok2 := parseHour(parts[1])
	if !ok1 || !ok2 || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func parseHour(s string) (float64, bool) {
	var hh, mm int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &hh, &mm); err != nil {
		return 0, false
	}
	if hh < 0 || hh > 24 || mm < 0 || mm > 59 {
		return 0, false
	}
	return float64(hh) + float64(mm)/60, true
}

func formatHour(value float64) string {
	hh := int(value)
	mm := int(math.Round((value - float64(hh)) * 60))
	if mm == 60 {
		hh++
		mm = 0
	}
	return fmt.Sprintf("%02d:%02d", hh, mm)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
