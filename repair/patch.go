package repair

import (
	"context"
	"fmt"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/planner"
)

// PatchContext carries what re-time-boxing a single day needs.
type PatchContext struct {
	Calendar    planner.Calendar
	Budget      planner.BudgetOptions
	Route       planner.RouteFunc
	Constraints core.TripConstraints
	// Pool supplies POIs not yet in the itinerary arena for add/replace.
	Pool []core.POI
}

// ApplyPatch applies one chat-driven edit to a copy of the itinerary. Only
// the touched day is re-time-boxed; the result still goes through validation
// before it reaches the caller.
func ApplyPatch(ctx context.Context, it *core.Itinerary, patch *core.EditPatch, pc PatchContext) (*core.Itinerary, error) {
	op := patch.Op()
	if op == "" {
		return nil, &core.PlanError{
			Op:      "repair.ApplyPatch",
			Code:    core.CodeInputInvalid,
			Message: "edit patch carries no operation",
			Err:     core.ErrInputInvalid,
		}
	}

	out := cloneItinerary(it)

	var dayNumber int
	var err error
	switch op {
	case "replace_stop":
		dayNumber = patch.ReplaceStop.DayNumber
		err = applyReplace(out, patch.ReplaceStop, pc)
	case "add_stop":
		dayNumber = patch.AddStop.DayNumber
		err = applyAdd(out, patch.AddStop, pc)
	case "remove_stop":
		dayNumber = patch.RemoveStop.DayNumber
		err = applyRemove(out, patch.RemoveStop)
	case "adjust_time":
		dayNumber = patch.AdjustTime.DayNumber
		err = applyAdjustTime(out, patch.AdjustTime)
	case "lunch_break":
		dayNumber = patch.LunchBreak.DayNumber
		// Re-time-boxing below re-inserts the meal windows.
		if dayByNumber(out, dayNumber) == nil {
			err = unknownDay(dayNumber)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := retimeboxDay(ctx, out, dayNumber, pc); err != nil {
		return nil, err
	}
	planner.ApplyBudget(out, pc.Constraints, pc.Budget)
	return out, nil
}

func applyReplace(it *core.Itinerary, op *core.ReplaceStopOp, pc PatchContext) error {
	day := dayByNumber(it, op.DayNumber)
	if day == nil {
		return unknownDay(op.DayNumber)
	}
	idx := findItem(it, day, op.OldPOI)
	if idx < 0 {
		return unknownStop(op.OldPOI, op.DayNumber)
	}
	replacement, ok := resolvePOI(it, pc.Pool, op.NewPOI)
	if !ok {
		return &core.PlanError{
			Op:      "repair.ApplyPatch",
			Code:    core.CodeInputInvalid,
			Message: fmt.Sprintf("replacement POI %q not found in the candidate pool", op.NewPOI),
			Err:     core.ErrInputInvalid,
		}
	}
	it.POIs[replacement.ID] = replacement
	day.Items[idx].POIRef = replacement.ID
	return nil
}

func applyAdd(it *core.Itinerary, op *core.AddStopOp, pc PatchContext) error {
	day := dayByNumber(it, op.DayNumber)
	if day == nil {
		return unknownDay(op.DayNumber)
	}
	poi, ok := resolvePOI(it, pc.Pool, op.POI)
	if !ok {
		return &core.PlanError{
			Op:      "repair.ApplyPatch",
			Code:    core.CodeInputInvalid,
			Message: fmt.Sprintf("POI %q not found in the candidate pool", op.POI),
			Err:     core.ErrInputInvalid,
		}
	}
	for _, d := range it.Days {
		for _, item := range d.Items {
			if item.POIRef == poi.ID && !item.IsBackup {
				return &core.PlanError{
					Op:      "repair.ApplyPatch",
					Code:    core.CodeInputInvalid,
					Message: fmt.Sprintf("%s is already scheduled on day %d", poi.Name, d.DayNumber),
					Err:     core.ErrInputInvalid,
				}
			}
		}
	}
	it.POIs[poi.ID] = poi
	day.Items = append(day.Items, core.ScheduleItem{POIRef: poi.ID})
	return nil
}

func applyRemove(it *core.Itinerary, op *core.RemoveStopOp) error {
	day := dayByNumber(it, op.DayNumber)
	if day == nil {
		return unknownDay(op.DayNumber)
	}
	idx := findItem(it, day, op.POI)
	if idx < 0 {
		return unknownStop(op.POI, op.DayNumber)
	}
	day.Items = append(day.Items[:idx], day.Items[idx+1:]...)
	return nil
}

// applyAdjustTime moves the stop to the front or back of the day so the
// re-time-boxing pass lands it near the requested slot.
func applyAdjustTime(it *core.Itinerary, op *core.AdjustTimeOp) error {
	day := dayByNumber(it, op.DayNumber)
	if day == nil {
		return unknownDay(op.DayNumber)
	}
	idx := findItem(it, day, op.POI)
	if idx < 0 {
		return unknownStop(op.POI, op.DayNumber)
	}
	item := day.Items[idx]
	rest := append(append([]core.ScheduleItem{}, day.Items[:idx]...), day.Items[idx+1:]...)
	if strings.Compare(op.StartTime, "13:00") < 0 {
		day.Items = append([]core.ScheduleItem{item}, rest...)
	} else {
		day.Items = append(rest, item)
	}
	return nil
}

// retimeboxDay rebuilds one day's timeline from its current stop order.
func retimeboxDay(ctx context.Context, it *core.Itinerary, dayNumber int, pc PatchContext) error {
	day := dayByNumber(it, dayNumber)
	if day == nil {
		return unknownDay(dayNumber)
	}

	ordered := make([]core.POI, 0, len(day.Items))
	for _, item := range day.Items {
		if item.IsBackup {
			continue
		}
		poi, ok := it.POI(item.POIRef)
		if !ok {
			return &core.PlanError{
				Op:      "repair.ApplyPatch",
				Code:    core.CodeInvariantViolated,
				Message: "schedule references a POI absent from the arena",
				Err:     core.ErrInvariantViolated,
			}
		}
		ordered = append(ordered, poi)
	}

	arena := make([]core.POI, 0, len(it.POIs))
	for _, poi := range it.POIs {
		arena = append(arena, poi)
	}
	lookup := planner.ClusterLookup(planner.BuildClusters(arena, pc.Constraints.TransportMode))

	res := planner.TimeboxDay(ctx, ordered, planner.DayOptions{
		Date:          day.Date,
		Mode:          pc.Constraints.TransportMode,
		Peak:          pc.Calendar.IsPeakDate(day.Date) || pc.Constraints.HolidayHint != "",
		Route:         pc.Route,
		ClusterLookup: lookup,
		Calendar:      pc.Calendar,
	})

	existingBackups := day.Backups
	day.Items = res.Items
	day.Backups = append(res.Backups, existingBackups...)
	day.MealWindows = res.MealWindows
	day.ClusterSwitches = planner.CountClusterSwitches(day.Items, lookup)
	return nil
}

// findItem locates a non-backup stop by POI id or (case-insensitive) name.
func findItem(it *core.Itinerary, day *core.ItineraryDay, ref string) int {
	for i, item := range day.Items {
		if item.IsBackup {
			continue
		}
		if item.POIRef == ref {
			return i
		}
		if poi, ok := it.POI(item.POIRef); ok && strings.EqualFold(poi.Name, ref) {
			return i
		}
	}
	return -1
}

// resolvePOI finds a POI by id or name in the arena, then the pool.
func resolvePOI(it *core.Itinerary, pool []core.POI, ref string) (core.POI, bool) {
	if poi, ok := it.POIs[ref]; ok {
		return poi, true
	}
	for _, poi := range it.POIs {
		if strings.EqualFold(poi.Name, ref) {
			return poi, true
		}
	}
	for _, poi := range pool {
		if poi.ID == ref || strings.EqualFold(poi.Name, ref) {
			return poi, true
		}
	}
	return core.POI{}, false
}

func cloneItinerary(it *core.Itinerary) *core.Itinerary {
	out := *it
	out.POIs = make(map[string]core.POI, len(it.POIs))
	for k, v := range it.POIs {
		out.POIs[k] = v
	}
	out.Days = make([]core.ItineraryDay, len(it.Days))
	for i, day := range it.Days {
		d := day
		d.Items = append([]core.ScheduleItem{}, day.Items...)
		d.Backups = append([]core.ScheduleItem{}, day.Backups...)
		d.MealWindows = append([]string{}, day.MealWindows...)
		out.Days[i] = d
	}
	out.Issues = append([]core.Issue{}, it.Issues...)
	out.Assumptions = append([]string{}, it.Assumptions...)
	return &out
}

func unknownDay(n int) error {
	return &core.PlanError{
		Op:      "repair.ApplyPatch",
		Code:    core.CodeInputInvalid,
		Message: fmt.Sprintf("itinerary has no day %d", n),
		Err:     core.ErrInputInvalid,
	}
}

func unknownStop(ref string, day int) error {
	return &core.PlanError{
		Op:      "repair.ApplyPatch",
		Code:    core.CodeInputInvalid,
		Message: fmt.Sprintf("stop %q not found on day %d", ref, day),
		Err:     core.ErrInputInvalid,
	}
}
