package core

import "time"

// Planning pipeline bounds.
const (
	// MaxRepairRounds bounds the Validate -> Repair fixpoint loop.
	MaxRepairRounds = 3

	// DefaultRequestDeadline is the wall-clock budget for one plan request.
	DefaultRequestDeadline = 60 * time.Second

	// MapCallTimeout applies to each map-provider call.
	MapCallTimeout = 5 * time.Second

	// LLMCallTimeout applies to each LLM-provider call.
	LLMCallTimeout = 30 * time.Second
)

// Scheduler day shape.
const (
	DayStartHour = 9.0  // 09:00
	DayEndHour   = 21.0 // 21:00

	// DailyActivityBudgetMinutes caps activity + travel per day (8h).
	DailyActivityBudgetMinutes = 8 * 60

	LunchWindowStartHour  = 11.5
	LunchWindowEndHour    = 13.5
	DinnerWindowStartHour = 17.5
	DinnerWindowEndHour   = 19.5
	MealDurationMinutes   = 60.0
)

// Buffer minutes added on top of a POI visit.
const (
	BufferPeakDayMinutes     = 30.0
	BufferReservationMinutes = 15.0
	BufferCapMinutes         = 45.0
	PeakBufferMultiplier     = 1.5
)

// Candidate pool sizing and ranking weights.
const (
	PoolOverprovisionFactor = 1.5
	MinPoolPerDay           = 2

	RankThemeWeight  = 3.0
	RankIndoorWeight = 1.0
	RankPopWeight    = 1.0
	RankCostWeight   = 0.5
)

// Validation thresholds.
const (
	MaxDayWallClockHours   = 12.0
	MaxTravelShare         = 0.35
	BudgetOverrunFactor    = 1.05
	BudgetUnrealFactor     = 0.85
	MinLegTravelMinutes    = 1.0
	MaxLegTravelMinutes    = 180.0
	CrossClusterPenaltyMin = 12.0
)

// Budget accounting defaults (overridable from configuration).
const (
	DefaultFoodMinPerPersonPerDay = 80.0

	// FixtureRoutingConfidence applies when travel times come from the
	// haversine estimator instead of a real route provider.
	FixtureRoutingConfidence = 0.5
	RealRoutingConfidence    = 0.95
)

// Cache defaults shared by the POI-query and route caches.
const (
	CacheCapacity = 10000
	CacheTTL      = time.Hour
)

// PeakWindowDays is the half-width of the peak-season window around the
// configured festival anchor date.
const PeakWindowDays = 7

// EngineVersion tags plan results and diagnostics.
const EngineVersion = "1.2.0"
