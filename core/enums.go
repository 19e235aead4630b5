package core

// TransportMode is the traveler's primary way of moving between POIs.
type TransportMode string

const (
	TransportWalking       TransportMode = "walking"
	TransportPublicTransit TransportMode = "public_transit"
	TransportTaxi          TransportMode = "taxi"
	TransportDriving       TransportMode = "driving"
)

// Valid reports whether the mode is one of the known values.
func (m TransportMode) Valid() bool {
	switch m {
	case TransportWalking, TransportPublicTransit, TransportTaxi, TransportDriving:
		return true
	}
	return false
}

// SpeedKmh is the effective door-to-door speed used for travel estimates.
func (m TransportMode) SpeedKmh() float64 {
	switch m {
	case TransportWalking:
		return 4
	case TransportPublicTransit:
		return 18
	case TransportTaxi:
		return 30
	case TransportDriving:
		return 40
	default:
		return 18
	}
}

// ClusterRadiusKm is the geographic clustering radius for the mode: slower
// modes keep each day's stops closer together.
func (m TransportMode) ClusterRadiusKm() float64 {
	switch m {
	case TransportWalking:
		return 3.0
	case TransportPublicTransit, TransportTaxi:
		return 5.0
	case TransportDriving:
		return 10.0
	default:
		return 5.0
	}
}

// CostPerMinute estimates local-transport spend per travel minute.
func (m TransportMode) CostPerMinute() float64 {
	switch m {
	case TransportWalking:
		return 0
	case TransportPublicTransit:
		return 0.2
	case TransportTaxi:
		return 1.2
	case TransportDriving:
		return 0.8
	default:
		return 0.2
	}
}

// Faster returns the next faster mode, used when repair upgrades transport
// to cut travel time. Driving has nowhere to go.
func (m TransportMode) Faster() (TransportMode, bool) {
	switch m {
	case TransportWalking:
		return TransportPublicTransit, true
	case TransportPublicTransit:
		return TransportTaxi, true
	case TransportTaxi:
		return TransportDriving, true
	default:
		return m, false
	}
}

// Pace is how densely the traveler wants each day packed.
type Pace string

const (
	PaceRelaxed   Pace = "relaxed"
	PaceModerate  Pace = "moderate"
	PaceIntensive Pace = "intensive"
)

// Valid reports whether the pace is one of the known values.
func (p Pace) Valid() bool {
	switch p {
	case PaceRelaxed, PaceModerate, PaceIntensive:
		return true
	}
	return false
}

// Multiplier sizes the candidate pool per trip day.
func (p Pace) Multiplier() int {
	switch p {
	case PaceRelaxed:
		return 2
	case PaceIntensive:
		return 4
	default:
		return 3
	}
}

// PerDayRange is the acceptable number of main stops per day.
func (p Pace) PerDayRange() (min, max int) {
	switch p {
	case PaceRelaxed:
		return 1, 3
	case PaceIntensive:
		return 5, 8
	default:
		return 3, 5
	}
}

// TravelersType describes who is traveling, for pacing and ranking hints.
type TravelersType string

const (
	TravelersSolo    TravelersType = "solo"
	TravelersCouple  TravelersType = "couple"
	TravelersFamily  TravelersType = "family"
	TravelersFriends TravelersType = "friends"
	TravelersElderly TravelersType = "elderly"
)

// Count is the assumed number of travelers for budget accounting.
func (t TravelersType) Count() int {
	switch t {
	case TravelersCouple, TravelersElderly:
		return 2
	case TravelersFamily:
		return 3
	case TravelersFriends:
		return 4
	default:
		return 1
	}
}

// TimeSlot is the coarse position of a visit within the day.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"
	SlotLunch     TimeSlot = "lunch"
	SlotAfternoon TimeSlot = "afternoon"
	SlotDinner    TimeSlot = "dinner"
	SlotEvening   TimeSlot = "evening"
)

// SlotForHour maps a fractional hour to its slot.
func SlotForHour(hour float64) TimeSlot {
	switch {
	case hour < LunchWindowStartHour:
		return SlotMorning
	case hour < LunchWindowEndHour:
		return SlotLunch
	case hour < DinnerWindowStartHour:
		return SlotAfternoon
	case hour < DinnerWindowEndHour:
		return SlotDinner
	default:
		return SlotEvening
	}
}

// Severity ranks validator findings.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Weight orders severities for the progress invariant: repair must strictly
// decrease the severity-weighted issue sum (or the total cost) every round.
func (s Severity) Weight() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// DegradeLevel tags how far the itinerary is from a fully verified,
// realtime-sourced result.
type DegradeLevel string

const (
	DegradeL0 DegradeLevel = "L0"
	DegradeL1 DegradeLevel = "L1"
	DegradeL2 DegradeLevel = "L2"
	DegradeL3 DegradeLevel = "L3"
)

// Elevate steps the level one notch toward L3, used when a plan ships with
// accepted unresolved issues.
func (d DegradeLevel) Elevate() DegradeLevel {
	switch d {
	case DegradeL0:
		return DegradeL1
	case DegradeL1:
		return DegradeL2
	default:
		return DegradeL3
	}
}

// RunMode records whether realtime providers served the request.
type RunMode string

const (
	RunModeRealtime RunMode = "REALTIME"
	RunModeDegraded RunMode = "DEGRADED"
)

// Provenance tags where a POI attribute value came from.
type Provenance string

const (
	ProvenanceVerified  Provenance = "verified"
	ProvenanceCurated   Provenance = "curated"
	ProvenanceHeuristic Provenance = "heuristic"
	ProvenanceFallback  Provenance = "fallback"
	ProvenanceUnknown   Provenance = "unknown"
)

// Rank orders provenance tiers; higher is more trustworthy. Verified beats
// curated beats everything derived.
func (p Provenance) Rank() int {
	switch p {
	case ProvenanceVerified:
		return 4
	case ProvenanceCurated:
		return 3
	case ProvenanceHeuristic:
		return 2
	case ProvenanceFallback:
		return 1
	default:
		return 0
	}
}
