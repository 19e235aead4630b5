// Package trust tags facts by provenance, fuses POIs arriving from multiple
// sources, and turns per-attribute provenance into a confidence score and
// degrade level for the finished itinerary.
package trust

import (
	"github.com/djc-jpg/travel-planning-agent/core"
)

// FactAttrs is the set of POI attributes tracked for provenance.
var FactAttrs = []string{
	"name", "location", "typical_duration", "cost",
	"ticket_price", "reservation_required", "open_hours", "closed_rules",
}

// RequiredFactAttrs must be present on every scheduled POI; their absence is
// a MISSING_FACTS validation issue.
var RequiredFactAttrs = []string{"open_hours", "typical_duration"}

// Tag stamps every tracked attribute of the POI with the given provenance,
// keeping any existing higher-ranked tag. Verified facts are never
// downgraded.
func Tag(poi core.POI, source core.Provenance) core.POI {
	out := poi
	out.FactSources = make(map[string]core.Provenance, len(FactAttrs))
	for k, v := range poi.FactSources {
		out.FactSources[k] = v
	}
	for _, attr := range FactAttrs {
		if existing, ok := out.FactSources[attr]; ok && existing.Rank() >= source.Rank() {
			continue
		}
		out.FactSources[attr] = source
	}
	return out
}

// Merge fuses two records of the same POI. For each attribute, the value from
// the higher-ranked source wins; ties keep the existing value. Themes are
// unioned. The function is total and deterministic: it never errors and the
// result depends only on its inputs.
func Merge(existing, incoming core.POI) core.POI {
	out := existing
	if out.FactSources == nil {
		out.FactSources = map[string]core.Provenance{}
	} else {
		copied := make(map[string]core.Provenance, len(out.FactSources))
		for k, v := range out.FactSources {
			copied[k] = v
		}
		out.FactSources = copied
	}

	rank := func(poi core.POI, attr string) int {
		return poi.FactSources[attr].Rank()
	}

	if rank(incoming, "location") > rank(existing, "location") {
		out.Lat, out.Lon = incoming.Lat, incoming.Lon
		out.FactSources["location"] = incoming.FactSources["location"]
	}
	if rank(incoming, "typical_duration") > rank(existing, "typical_duration") && incoming.TypicalDuration > 0 {
		out.TypicalDuration = incoming.TypicalDuration
		out.FactSources["typical_duration"] = incoming.FactSources["typical_duration"]
	}
	if rank(incoming, "cost") > rank(existing, "cost") {
		out.Cost = incoming.Cost
		out.FactSources["cost"] = incoming.FactSources["cost"]
	}
	if rank(incoming, "ticket_price") > rank(existing, "ticket_price") {
		out.TicketPrice = incoming.TicketPrice
		out.FactSources["ticket_price"] = incoming.FactSources["ticket_price"]
	}
	if rank(incoming, "reservation_required") > rank(existing, "reservation_required") {
		out.ReservationRequired = incoming.ReservationRequired
		out.FactSources["reservation_required"] = incoming.FactSources["reservation_required"]
	}
	if rank(incoming, "open_hours") > rank(existing, "open_hours") && incoming.OpenHours != "" {
		out.OpenHours = incoming.OpenHours
		out.FactSources["open_hours"] = incoming.FactSources["open_hours"]
	}
	if rank(incoming, "closed_rules") > rank(existing, "closed_rules") && incoming.ClosedRules != "" {
		out.ClosedRules = incoming.ClosedRules
		out.FactSources["closed_rules"] = incoming.FactSources["closed_rules"]
	}
	if out.Description == "" {
		out.Description = incoming.Description
	}
	if incoming.Popularity > out.Popularity {
		out.Popularity = incoming.Popularity
	}
	out.Pinned = out.Pinned || incoming.Pinned
	out.Themes = unionThemes(existing.Themes, incoming.Themes)
	return out
}

func unionThemes(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range a {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range b {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// MissingRequiredFacts lists required attributes absent from the POI.
func MissingRequiredFacts(poi core.POI) []string {
	var missing []string
	for _, attr := range RequiredFactAttrs {
		switch attr {
		case "open_hours":
			if poi.OpenHours == "" {
				missing = append(missing, attr)
			}
		case "typical_duration":
			if poi.TypicalDuration <= 0 {
				missing = append(missing, attr)
			}
		}
	}
	return missing
}
