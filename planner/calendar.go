package planner

import (
	"strings"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
)

const dateLayout = "2006-01-02"

// TripDates expands the constraint window into one date per trip day.
// When no start date is given, dates are empty strings and calendar rules
// that need a concrete date are skipped.
func TripDates(constraints core.TripConstraints) []string {
	dates := make([]string, constraints.Days)
	start, err := time.Parse(dateLayout, constraints.DateStart)
	if err != nil {
		return dates
	}
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i).Format(dateLayout)
	}
	return dates
}

// Calendar answers peak-season and closed-day questions for the trip window.
type Calendar struct {
	// PeakAnchor is the configured festival anchor date; the peak window is
	// PeakAnchor +/- PeakWindowDays.
	PeakAnchor time.Time
}

// NewCalendar parses the configured anchor date. A zero Calendar (bad or
// missing anchor) reports no peak days.
func NewCalendar(anchorDate string) Calendar {
	anchor, err := time.Parse(dateLayout, anchorDate)
	if err != nil {
		return Calendar{}
	}
	return Calendar{PeakAnchor: anchor}
}

// IsPeakDate reports whether the date falls within the peak window.
func (c Calendar) IsPeakDate(date string) bool {
	if c.PeakAnchor.IsZero() || date == "" {
		return false
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return false
	}
	diff := d.Sub(c.PeakAnchor).Hours() / 24
	if diff < 0 {
		diff = -diff
	}
	return diff <= core.PeakWindowDays
}

// AnyPeakDate reports whether any of the trip dates is a peak day.
func (c Calendar) AnyPeakDate(dates []string) bool {
	for _, d := range dates {
		if c.IsPeakDate(d) {
			return true
		}
	}
	return false
}

// ClosedOn evaluates a POI's closed_rules predicate against a date.
// Supported rule forms, comma separated: weekday names ("monday"), exact
// dates ("2026-02-17"), and "always".
func ClosedOn(poi core.POI, date string) bool {
	rules := strings.TrimSpace(strings.ToLower(poi.ClosedRules))
	if rules == "" || date == "" {
		return false
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return false
	}
	weekday := strings.ToLower(d.Weekday().String())
	for _, rule := range strings.Split(rules, ",") {
		rule = strings.TrimSpace(rule)
		switch {
		case rule == "always":
			return true
		case rule == weekday:
			return true
		case rule == date:
			return true
		}
	}
	return false
}

// ClosedAllDays reports whether the POI is closed on every trip date.
// Days without a concrete date count as open.
func ClosedAllDays(poi core.POI, dates []string) bool {
	any := false
	for _, d := range dates {
		if d == "" {
			return false
		}
		any = true
		if !ClosedOn(poi, d) {
			return false
		}
	}
	return any
}
