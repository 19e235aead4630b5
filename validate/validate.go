// Package validate runs the feasibility checks over a built itinerary. The
// validator is pure and total: it inspects, never mutates, and always runs
// every check so a single pass reports everything the repair stage can work
// on.
package validate

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/trust"
)

// Validator checks one itinerary against the trip constraints.
type Validator struct {
	logger core.Logger
}

// New creates a validator.
func New() *Validator {
	return &Validator{logger: &core.NoOpLogger{}}
}

// SetLogger sets the logger provider.
func (v *Validator) SetLogger(logger core.Logger) {
	if logger != nil {
		v.logger = logger
	}
}

// Check runs every check and returns the full issue list, ordered by severity
// (high first), then day number. An empty result means the plan is feasible.
func (v *Validator) Check(it *core.Itinerary, constraints core.TripConstraints) []core.Issue {
	var issues []core.Issue

	for i := range it.Days {
		day := &it.Days[i]
		issues = append(issues, checkDayTime(day)...)
		issues = append(issues, checkTravelShare(day)...)
		issues = append(issues, checkPace(day, constraints.Pace)...)
		issues = append(issues, checkLegTimes(day)...)
		issues = append(issues, checkBacktracking(day, it)...)
		issues = append(issues, checkMissingBackup(day)...)
	}
	issues = append(issues, checkDuplicates(it)...)
	issues = append(issues, checkMissingFacts(it)...)
	issues = append(issues, checkBudget(it, constraints)...)

	issues = sortIssues(issues)

	counts := lo.CountValuesBy(issues, func(issue core.Issue) core.Severity { return issue.Severity })
	v.logger.Info("Validation completed", map[string]interface{}{
		"operation": "validate",
		"issues":    len(issues),
		"high":      counts[core.SeverityHigh],
		"medium":    counts[core.SeverityMedium],
		"low":       counts[core.SeverityLow],
	})
	return issues
}

// SeverityScore is the weighted sum the repair loop uses to measure progress.
func SeverityScore(issues []core.Issue) int {
	return lo.SumBy(issues, func(issue core.Issue) int { return issue.Severity.Weight() })
}

// HasBlocking reports whether any high-severity issue remains.
func HasBlocking(issues []core.Issue) bool {
	return lo.SomeBy(issues, func(issue core.Issue) bool { return issue.Severity == core.SeverityHigh })
}

// NeedsRepair reports whether any issue at medium severity or above remains.
// Low-severity findings ship as-is and never enter the repair loop.
func NeedsRepair(issues []core.Issue) bool {
	return lo.SomeBy(issues, func(issue core.Issue) bool {
		return issue.Severity.Weight() >= core.SeverityMedium.Weight()
	})
}

func sortIssues(issues []core.Issue) []core.Issue {
	groups := lo.GroupBy(issues, func(issue core.Issue) core.Severity { return issue.Severity })
	out := make([]core.Issue, 0, len(issues))
	for _, sev := range []core.Severity{core.SeverityHigh, core.SeverityMedium, core.SeverityLow} {
		out = append(out, groups[sev]...)
	}
	return out
}

// checkDayTime flags days whose activity plus travel exceeds the daily budget
// or whose wall-clock span exceeds the hard cap.
func checkDayTime(day *core.ItineraryDay) []core.Issue {
	activity := 0.0
	travel := 0.0
	for _, item := range day.Items {
		if item.IsBackup {
			continue
		}
		activity += itemMinutes(item)
		travel += item.TravelMinutes + item.BufferMinutes
	}
	var issues []core.Issue
	if activity+travel > core.DailyActivityBudgetMinutes {
		issues = append(issues, core.Issue{
			Code:      core.IssueOverTime,
			Severity:  core.SeverityHigh,
			DayNumber: day.DayNumber,
			Evidence:  fmt.Sprintf("%.0f activity + %.0f travel minutes exceeds the %d-minute day budget", activity, travel, core.DailyActivityBudgetMinutes),
		})
	}
	if span := daySpanHours(day); span > core.MaxDayWallClockHours {
		issues = append(issues, core.Issue{
			Code:      core.IssueOverTime,
			Severity:  core.SeverityHigh,
			DayNumber: day.DayNumber,
			Evidence:  fmt.Sprintf("day spans %.1f hours, cap is %.0f", span, core.MaxDayWallClockHours),
		})
	}
	return issues
}

// checkTravelShare flags days where travel dominates the schedule.
func checkTravelShare(day *core.ItineraryDay) []core.Issue {
	activity := 0.0
	travel := 0.0
	for _, item := range day.Items {
		if item.IsBackup {
			continue
		}
		activity += itemMinutes(item)
		travel += item.TravelMinutes
	}
	total := activity + travel
	if total == 0 || len(day.Items) < 2 {
		return nil
	}
	share := travel / total
	if share <= core.MaxTravelShare {
		return nil
	}
	return []core.Issue{{
		Code:      core.IssueTooMuchTravel,
		Severity:  core.SeverityHigh,
		DayNumber: day.DayNumber,
		Evidence:  fmt.Sprintf("travel is %.0f%% of the day, cap is %.0f%%", share*100, core.MaxTravelShare*100),
	}}
}

// checkBudget compares total cost against the traveler's budget, both ways:
// overrun and a budget too small to be plannable.
func checkBudget(it *core.Itinerary, constraints core.TripConstraints) []core.Issue {
	if constraints.DailyBudget <= 0 {
		return nil
	}
	total := constraints.DailyBudget * float64(constraints.Days)
	var issues []core.Issue
	if it.TotalCost > total*core.BudgetOverrunFactor {
		issues = append(issues, core.Issue{
			Code:     core.IssueOverBudget,
			Severity: core.SeverityHigh,
			Evidence: fmt.Sprintf("estimated cost %.0f exceeds budget %.0f by more than %.0f%%", it.TotalCost, total, (core.BudgetOverrunFactor-1)*100),
		})
	}
	if total < it.MinimumFeasibleBudget*core.BudgetUnrealFactor {
		issues = append(issues, core.Issue{
			Code:     core.IssueBudgetUnrealistic,
			Severity: core.SeverityMedium,
			Evidence: fmt.Sprintf("budget %.0f is below the feasible floor %.0f", total, it.MinimumFeasibleBudget),
		})
	}
	return issues
}

// checkPace flags days outside the pace band. Empty days only count when the
// trip has POIs to give them.
func checkPace(day *core.ItineraryDay, pace core.Pace) []core.Issue {
	min, max := pace.PerDayRange()
	n := lo.CountBy(day.Items, func(item core.ScheduleItem) bool { return !item.IsBackup })
	if n >= min && n <= max {
		return nil
	}
	if n == 0 {
		return nil // an empty day reads as a rest day, not a pace violation
	}
	return []core.Issue{{
		Code:      core.IssuePaceMismatch,
		Severity:  core.SeverityMedium,
		DayNumber: day.DayNumber,
		Evidence:  fmt.Sprintf("%d stops scheduled, %s pace wants %d-%d", n, pace, min, max),
	}}
}

// checkLegTimes flags impossible travel legs.
func checkLegTimes(day *core.ItineraryDay) []core.Issue {
	var issues []core.Issue
	for i, item := range day.Items {
		if item.IsBackup {
			continue
		}
		if i > 0 && item.TravelMinutes < core.MinLegTravelMinutes {
			issues = append(issues, core.Issue{
				Code:      core.IssueTravelTimeInvalid,
				Severity:  core.SeverityHigh,
				DayNumber: day.DayNumber,
				POIRef:    item.POIRef,
				Evidence:  fmt.Sprintf("leg travel %.1f minutes is below the %.0f-minute floor", item.TravelMinutes, core.MinLegTravelMinutes),
			})
		}
		if item.TravelMinutes > core.MaxLegTravelMinutes {
			issues = append(issues, core.Issue{
				Code:      core.IssueTravelTimeInvalid,
				Severity:  core.SeverityHigh,
				DayNumber: day.DayNumber,
				POIRef:    item.POIRef,
				Evidence:  fmt.Sprintf("leg travel %.0f minutes exceeds the %.0f-minute cap", item.TravelMinutes, core.MaxLegTravelMinutes),
			})
		}
	}
	return issues
}

// checkMissingFacts flags scheduled POIs lacking required attributes.
func checkMissingFacts(it *core.Itinerary) []core.Issue {
	var issues []core.Issue
	seen := map[string]bool{}
	for _, day := range it.Days {
		for _, item := range day.Items {
			if item.IsBackup || seen[item.POIRef] {
				continue
			}
			seen[item.POIRef] = true
			poi, ok := it.POI(item.POIRef)
			if !ok {
				issues = append(issues, core.Issue{
					Code:      core.IssueMissingFacts,
					Severity:  core.SeverityHigh,
					DayNumber: day.DayNumber,
					POIRef:    item.POIRef,
					Evidence:  "schedule references a POI absent from the itinerary arena",
				})
				continue
			}
			if missing := trust.MissingRequiredFacts(poi); len(missing) > 0 {
				issues = append(issues, core.Issue{
					Code:      core.IssueMissingFacts,
					Severity:  core.SeverityHigh,
					DayNumber: day.DayNumber,
					POIRef:    item.POIRef,
					Evidence:  fmt.Sprintf("%s lacks %v", poi.Name, missing),
				})
			}
		}
	}
	return issues
}

// checkBacktracking flags days that ping-pong between geographic clusters
// instead of finishing one neighborhood before moving on. The cap scales
// with trip length: max(2, days/2) switches per day.
func checkBacktracking(day *core.ItineraryDay, it *core.Itinerary) []core.Issue {
	limit := 2
	if half := len(it.Days) / 2; half > limit {
		limit = half
	}
	if day.ClusterSwitches <= limit {
		return nil
	}
	return []core.Issue{{
		Code:      core.IssueRouteBacktracking,
		Severity:  core.SeverityMedium,
		DayNumber: day.DayNumber,
		Evidence:  fmt.Sprintf("%d cluster switches in one day, cap is %d", day.ClusterSwitches, limit),
	}}
}

// checkDuplicates flags a POI scheduled more than once anywhere in the trip.
func checkDuplicates(it *core.Itinerary) []core.Issue {
	var issues []core.Issue
	seen := map[string]int{} // poi id -> day number of first appearance
	for _, day := range it.Days {
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			if firstDay, dup := seen[item.POIRef]; dup {
				issues = append(issues, core.Issue{
					Code:      core.IssueDuplicatePOIDay,
					Severity:  core.SeverityHigh,
					DayNumber: day.DayNumber,
					POIRef:    item.POIRef,
					Evidence:  fmt.Sprintf("POI already scheduled on day %d", firstDay),
				})
				continue
			}
			seen[item.POIRef] = day.DayNumber
		}
	}
	return issues
}

// checkMissingBackup flags planned days without a fallback option.
func checkMissingBackup(day *core.ItineraryDay) []core.Issue {
	hasItems := lo.SomeBy(day.Items, func(item core.ScheduleItem) bool { return !item.IsBackup })
	if !hasItems || len(day.Backups) > 0 {
		return nil
	}
	return []core.Issue{{
		Code:      core.IssueMissingBackup,
		Severity:  core.SeverityLow,
		DayNumber: day.DayNumber,
		Evidence:  "no backup POI for weather or closure surprises",
	}}
}

// itemMinutes derives the visit duration from the formatted times.
func itemMinutes(item core.ScheduleItem) float64 {
	start, ok1 := parseClock(item.StartTime)
	end, ok2 := parseClock(item.EndTime)
	if !ok1 || !ok2 || end < start {
		return 0
	}
	return (end - start) * 60
}

func daySpanHours(day *core.ItineraryDay) float64 {
	var first, last float64
	found := false
	for _, item := range day.Items {
		if item.IsBackup {
			continue
		}
		start, ok1 := parseClock(item.StartTime)
		end, ok2 := parseClock(item.EndTime)
		if !ok1 || !ok2 {
			continue
		}
		if !found {
			first = start
			found = true
		}
		if end > last {
			last = end
		}
	}
	if !found {
		return 0
	}
	return last - first
}

func parseClock(s string) (float64, bool) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, false
	}
	return float64(hh) + float64(mm)/60, true
}
