package intake

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// Regex safety net. It never errors: whatever it cannot read it leaves unset
// for the clarify step.
var (
	daysPattern   = regexp.MustCompile(`(?i)\b(\d{1,2})[ -]?(?:days?|晚|天)\b`)
	datePattern   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	budgetPattern = regexp.MustCompile(`(?i)(?:budget|spend|¥|￥|\$|rmb|cny)\s*(?:of|is|:)?\s*(\d{2,6})`)
	mustPattern   = regexp.MustCompile(`(?i)(?:must[ -]?(?:see|visit)|definitely (?:see|visit)|want to (?:see|visit))\s+(?:the\s+)?([A-Z][\w' ]{2,40})`)
)

var paceKeywords = map[string]core.Pace{
	"relaxed":   core.PaceRelaxed,
	"relaxing":  core.PaceRelaxed,
	"easy":      core.PaceRelaxed,
	"slow":      core.PaceRelaxed,
	"laid back": core.PaceRelaxed,
	"moderate":  core.PaceModerate,
	"intensive": core.PaceIntensive,
	"packed":    core.PaceIntensive,
	"busy":      core.PaceIntensive,
}

var transportKeywords = map[string]core.TransportMode{
	"walk":           core.TransportWalking,
	"walking":        core.TransportWalking,
	"on foot":        core.TransportWalking,
	"metro":          core.TransportPublicTransit,
	"subway":         core.TransportPublicTransit,
	"public transit": core.TransportPublicTransit,
	"bus":            core.TransportPublicTransit,
	"taxi":           core.TransportTaxi,
	"didi":           core.TransportTaxi,
	"drive":          core.TransportDriving,
	"driving":        core.TransportDriving,
	"rental car":     core.TransportDriving,
}

var travelersKeywords = map[string]core.TravelersType{
	"solo":     core.TravelersSolo,
	"alone":    core.TravelersSolo,
	"myself":   core.TravelersSolo,
	"couple":   core.TravelersCouple,
	"wife":     core.TravelersCouple,
	"husband":  core.TravelersCouple,
	"partner":  core.TravelersCouple,
	"family":   core.TravelersFamily,
	"kids":     core.TravelersFamily,
	"children": core.TravelersFamily,
	"friends":  core.TravelersFriends,
	"parents":  core.TravelersElderly,
	"elderly":  core.TravelersElderly,
}

var themeKeywords = []string{
	"history", "culture", "food", "nature", "art", "museum",
	"shopping", "nightlife", "architecture", "hiking", "wildlife",
	"religion", "park", "family",
}

var holidayKeywords = []string{
	"spring festival", "chinese new year", "golden week",
	"national day", "holiday",
}

// heuristicParse extracts whatever the regexes and keyword tables can find
// in the message, recording the matched text as field evidence.
func heuristicParse(text string, knownCities []string, fields *extracted) {
	lower := strings.ToLower(text)

	if fields.City == "" {
		for _, city := range knownCities {
			if strings.Contains(lower, strings.ToLower(city)) {
				fields.City = city
				fields.Evidence["city"] = city
				break
			}
		}
	}

	if fields.Days == 0 {
		if m := daysPattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 30 {
				fields.Days = n
				fields.Evidence["days"] = m[0]
			}
		}
	}

	if fields.DateStart == "" {
		if dates := datePattern.FindAllString(text, 2); len(dates) > 0 {
			fields.DateStart = dates[0]
			fields.Evidence["date_start"] = dates[0]
			if len(dates) > 1 {
				fields.DateEnd = dates[1]
			}
		}
	}

	if fields.DailyBudget == 0 {
		if m := budgetPattern.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				fields.DailyBudget = v
				fields.Evidence["daily_budget"] = m[0]
			}
		}
	}

	if fields.Pace == "" {
		for _, kw := range sortedKeys(paceKeywords) {
			if containsWord(lower, kw) {
				fields.Pace = paceKeywords[kw]
				fields.Evidence["pace"] = kw
				break
			}
		}
	}

	if fields.TransportMode == "" {
		for _, kw := range sortedKeys(transportKeywords) {
			if containsWord(lower, kw) {
				fields.TransportMode = transportKeywords[kw]
				fields.Evidence["transport_mode"] = kw
				break
			}
		}
	}

	if fields.TravelersType == "" {
		for _, kw := range sortedKeys(travelersKeywords) {
			if containsWord(lower, kw) {
				fields.TravelersType = travelersKeywords[kw]
				fields.Evidence["travelers_type"] = kw
				break
			}
		}
	}

	if len(fields.Themes) == 0 {
		for _, theme := range themeKeywords {
			if containsWord(lower, theme) {
				fields.Themes = append(fields.Themes, theme)
			}
		}
	}

	if len(fields.MustVisit) == 0 {
		for _, m := range mustPattern.FindAllStringSubmatch(text, 5) {
			fields.MustVisit = append(fields.MustVisit, strings.TrimSpace(m[1]))
		}
		if len(fields.MustVisit) > 0 {
			fields.Evidence["must_visit"] = strings.Join(fields.MustVisit, ", ")
		}
	}

	if fields.HolidayHint == "" {
		for _, kw := range holidayKeywords {
			if containsWord(lower, kw) {
				fields.HolidayHint = kw
				fields.Evidence["holiday_hint"] = kw
				break
			}
		}
	}
}

// sortedKeys fixes the keyword walk order so equal messages always resolve
// keyword ties the same way.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// containsWord reports whether kw occurs on word boundaries, so "bus" never
// matches inside "busy".
func containsWord(text, kw string) bool {
	for idx := 0; ; {
		i := strings.Index(text[idx:], kw)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(text[i-1])
		after := i+len(kw) == len(text) || !isWordByte(text[i+len(kw)])
		if before && after {
			return true
		}
		idx = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
