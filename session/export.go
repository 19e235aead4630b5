package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// ExportMarkdown renders a finished plan as a shareable markdown document.
// Clarifying and error results render a short notice instead of a timeline.
func ExportMarkdown(result *core.PlanResult) string {
	var b strings.Builder

	if result == nil || result.Itinerary == nil {
		b.WriteString("# Travel Plan\n\n")
		if result != nil && len(result.NextQuestions) > 0 {
			b.WriteString("The plan is waiting on answers:\n\n")
			for _, q := range result.NextQuestions {
				fmt.Fprintf(&b, "- %s\n", q)
			}
		} else {
			b.WriteString("No itinerary is available for this request.\n")
		}
		return b.String()
	}

	it := result.Itinerary
	fmt.Fprintf(&b, "# %s — %d-Day Itinerary\n\n", it.City, len(it.Days))
	fmt.Fprintf(&b, "Confidence %.2f · degrade %s · estimated cost ¥%.0f\n",
		it.ConfidenceScore, it.DegradeLevel, it.TotalCost)
	if it.BudgetWarning != "" {
		fmt.Fprintf(&b, "\n> **Budget**: %s\n", it.BudgetWarning)
	}
	b.WriteString("\n")

	for _, day := range it.Days {
		if day.Date != "" {
			fmt.Fprintf(&b, "## Day %d (%s)\n\n", day.DayNumber, day.Date)
		} else {
			fmt.Fprintf(&b, "## Day %d\n\n", day.DayNumber)
		}
		if len(day.Items) == 0 {
			b.WriteString("Rest day.\n\n")
			continue
		}
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			name := stopName(it, item)
			line := fmt.Sprintf("- **%s–%s** %s", item.StartTime, item.EndTime, name)
			if item.TravelMinutes > 0 {
				line += fmt.Sprintf(" _(travel %.0f min)_", item.TravelMinutes)
			}
			if item.Notes != "" {
				line += " — " + item.Notes
			}
			b.WriteString(line + "\n")
		}
		if len(day.MealWindows) > 0 {
			fmt.Fprintf(&b, "\nMeals: %s\n", strings.Join(day.MealWindows, ", "))
		}
		if len(day.Backups) > 0 {
			names := make([]string, 0, len(day.Backups))
			for _, backup := range day.Backups {
				names = append(names, stopName(it, backup))
			}
			fmt.Fprintf(&b, "\nBackups: %s\n", strings.Join(names, ", "))
		}
		fmt.Fprintf(&b, "\nDay cost ¥%.0f · travel %.0f min\n\n",
			day.EstimatedCost, day.TotalTravelMinutes)
	}

	b.WriteString("## Budget\n\n")
	bd := it.BudgetBreakdown
	fmt.Fprintf(&b, "| Tickets | Local transport | Food (min) | Total |\n")
	fmt.Fprintf(&b, "|---|---|---|---|\n")
	fmt.Fprintf(&b, "| ¥%.0f | ¥%.0f | ¥%.0f | ¥%.0f |\n\n",
		bd.Tickets, bd.LocalTransport, bd.FoodMin, it.TotalCost)

	if len(it.Assumptions) > 0 {
		b.WriteString("## Assumptions\n\n")
		for _, a := range it.Assumptions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}

	if len(it.Issues) > 0 {
		b.WriteString("## Open issues\n\n")
		issues := append([]core.Issue{}, it.Issues...)
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].Severity.Weight() > issues[j].Severity.Weight()
		})
		for _, issue := range issues {
			fmt.Fprintf(&b, "- `%s` (%s)", issue.Code, issue.Severity)
			if issue.Evidence != "" {
				fmt.Fprintf(&b, ": %s", issue.Evidence)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\nrun %s · providers %s/%s/%s · trace %s\n",
		result.Fingerprint.RunMode,
		result.Fingerprint.PoiProvider, result.Fingerprint.RouteProvider, result.Fingerprint.LLMProvider,
		result.TraceID)
	return b.String()
}

func stopName(it *core.Itinerary, item core.ScheduleItem) string {
	if poi, ok := it.POI(item.POIRef); ok {
		return poi.Name
	}
	return item.POIRef
}
