package core

// TripConstraints are the hard requirements extracted by Intake.
// Immutable once the pipeline moves past Intake.
type TripConstraints struct {
	City          string        `json:"city"`
	Days          int           `json:"days"`
	DateStart     string        `json:"date_start,omitempty"` // 2006-01-02
	DateEnd       string        `json:"date_end,omitempty"`
	DailyBudget   float64       `json:"daily_budget,omitempty"`
	TransportMode TransportMode `json:"transport_mode"`
	Pace          Pace          `json:"pace"`
	MustVisit     []string      `json:"must_visit,omitempty"`
	Avoid         []string      `json:"avoid,omitempty"`
	HolidayHint   string        `json:"holiday_hint,omitempty"`
}

// UserProfile carries soft preferences that shape ranking and pacing.
type UserProfile struct {
	TravelersType TravelersType `json:"travelers_type"`
	Themes        []string      `json:"themes,omitempty"`
	Dietary       []string      `json:"dietary,omitempty"`
	MobilityLimits []string     `json:"mobility_limits,omitempty"`
}

// POI is a visitable place. Immutable after creation; shared read-only.
type POI struct {
	ID                  string                `json:"id"`
	Name                string                `json:"name"`
	City                string                `json:"city"`
	Lat                 float64               `json:"lat"`
	Lon                 float64               `json:"lon"`
	Themes              []string              `json:"themes,omitempty"`
	TypicalDuration     float64               `json:"typical_duration"` // hours
	Cost                float64               `json:"cost"`
	Indoor              bool                  `json:"indoor"`
	TicketPrice         float64               `json:"ticket_price"`
	ReservationRequired bool                  `json:"reservation_required"`
	ClosedRules         string                `json:"closed_rules,omitempty"` // e.g. "monday", "2026-02-17"
	OpenHours           string                `json:"open_hours,omitempty"`   // "09:00-17:00"
	Description         string                `json:"description,omitempty"`
	Popularity          float64               `json:"popularity,omitempty"` // 0..1
	FactSources         map[string]Provenance `json:"fact_sources,omitempty"`
	Pinned              bool                  `json:"pinned,omitempty"`
}

// ScheduleItem is one visit within a day. It references the POI by id; the
// POI values live in the itinerary arena.
type ScheduleItem struct {
	POIRef        string   `json:"poi_ref"`
	TimeSlot      TimeSlot `json:"time_slot"`
	StartTime     string   `json:"start_time"` // "HH:MM"
	EndTime       string   `json:"end_time"`
	TravelMinutes float64  `json:"travel_minutes"` // from previous item
	BufferMinutes float64  `json:"buffer_minutes,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	IsBackup      bool     `json:"is_backup,omitempty"`
}

// ItineraryDay is one planned day: the main timeline plus backups.
//
// Invariants: Items sorted by StartTime; consecutive items satisfy
// end_time[i] + travel_minutes[i+1] <= start_time[i+1]; no POI repeats.
type ItineraryDay struct {
	DayNumber          int            `json:"day_number"`
	Date               string         `json:"date,omitempty"` // 2006-01-02
	Items              []ScheduleItem `json:"items"`
	Backups            []ScheduleItem `json:"backups,omitempty"`
	DaySummary         string         `json:"day_summary,omitempty"`
	EstimatedCost      float64        `json:"estimated_cost"`
	TotalTravelMinutes float64        `json:"total_travel_minutes"`
	MealWindows        []string       `json:"meal_windows,omitempty"`
	ClusterSwitches    int            `json:"cluster_switches,omitempty"`
}

// BudgetBreakdown itemizes the cost estimate.
type BudgetBreakdown struct {
	Tickets        float64 `json:"tickets"`
	LocalTransport float64 `json:"local_transport"`
	FoodMin        float64 `json:"food_min"`
}

// Itinerary is the full plan returned to the caller.
type Itinerary struct {
	City                  string          `json:"city"`
	Days                  []ItineraryDay  `json:"days"`
	POIs                  map[string]POI  `json:"pois"` // arena: id -> POI
	TotalCost             float64         `json:"total_cost"`
	Assumptions           []string        `json:"assumptions,omitempty"`
	BudgetBreakdown       BudgetBreakdown `json:"budget_breakdown"`
	MinimumFeasibleBudget float64         `json:"minimum_feasible_budget"`
	ConfidenceScore       float64         `json:"confidence_score"`
	RoutingConfidence     float64         `json:"routing_confidence"`
	RoutingSource         string          `json:"routing_source,omitempty"`
	DegradeLevel          DegradeLevel    `json:"degrade_level"`
	Issues                []Issue         `json:"issues,omitempty"`
	BudgetWarning         string          `json:"budget_warning,omitempty"`
}

// POI resolves a schedule item reference against the arena.
func (it *Itinerary) POI(ref string) (POI, bool) {
	p, ok := it.POIs[ref]
	return p, ok
}

// Issue is one validator finding.
type Issue struct {
	Code      string   `json:"code"`
	Severity  Severity `json:"severity"`
	DayNumber int      `json:"day_number,omitempty"`
	POIRef    string   `json:"poi_ref,omitempty"`
	Evidence  string   `json:"evidence,omitempty"`
}

// Issue codes emitted by the validator and scheduler.
const (
	IssueOverTime          = "OVER_TIME"
	IssueTooMuchTravel     = "TOO_MUCH_TRAVEL"
	IssueOverBudget        = "OVER_BUDGET"
	IssueBudgetUnrealistic = "BUDGET_UNREALISTIC"
	IssuePaceMismatch      = "PACE_MISMATCH"
	IssueTravelTimeInvalid = "TRAVEL_TIME_INVALID"
	IssueMissingFacts      = "MISSING_FACTS"
	IssueRouteBacktracking = "ROUTE_BACKTRACKING"
	IssueDuplicatePOIDay   = "DUPLICATE_POI_DAY"
	IssueMissingBackup     = "MISSING_BACKUP"
	IssueMustVisitClosed   = "MUST_VISIT_CLOSED"
)

// RunFingerprint records which providers served a request.
type RunFingerprint struct {
	RunMode            RunMode `json:"run_mode"`
	PoiProvider        string  `json:"poi_provider"`
	RouteProvider      string  `json:"route_provider"`
	LLMProvider        string  `json:"llm_provider"`
	StrictExternalData bool    `json:"strict_external_data"`
	EnvSource          string  `json:"env_source"`
	TraceID            string  `json:"trace_id"`
}

// PlanStatus is the terminal status of one plan request.
type PlanStatus string

const (
	StatusDone       PlanStatus = "done"
	StatusClarifying PlanStatus = "clarifying"
	StatusError      PlanStatus = "error"
)

// PlanResult is what the orchestrator returns for one request.
type PlanResult struct {
	Status          PlanStatus        `json:"status"`
	Message         string            `json:"message,omitempty"`
	Itinerary       *Itinerary        `json:"itinerary,omitempty"`
	NextQuestions   []string          `json:"next_questions,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	RequestID       string            `json:"request_id,omitempty"`
	TraceID         string            `json:"trace_id,omitempty"`
	DegradeLevel    DegradeLevel      `json:"degrade_level,omitempty"`
	ConfidenceScore float64           `json:"confidence_score,omitempty"`
	Issues          []Issue           `json:"issues,omitempty"`
	FieldEvidence   map[string]string `json:"field_evidence,omitempty"`
	Fingerprint     RunFingerprint    `json:"run_fingerprint"`
	SessionSeq      int64             `json:"session_seq,omitempty"`

	// Constraints and Profile echo what intake understood, so the session
	// layer can carry them into follow-up requests.
	Constraints *TripConstraints `json:"constraints,omitempty"`
	Profile     *UserProfile     `json:"profile,omitempty"`
}

// EditPatch is a restricted chat-driven local edit to a prior itinerary.
// Exactly one operation field should be set.
type EditPatch struct {
	ReplaceStop *ReplaceStopOp `json:"replace_stop,omitempty"`
	AddStop     *AddStopOp     `json:"add_stop,omitempty"`
	RemoveStop  *RemoveStopOp  `json:"remove_stop,omitempty"`
	AdjustTime  *AdjustTimeOp  `json:"adjust_time,omitempty"`
	LunchBreak  *LunchBreakOp  `json:"lunch_break,omitempty"`
}

type ReplaceStopOp struct {
	DayNumber int    `json:"day_number"`
	OldPOI    string `json:"old_poi"`
	NewPOI    string `json:"new_poi"`
}

type AddStopOp struct {
	DayNumber int    `json:"day_number"`
	POI       string `json:"poi"`
}

type RemoveStopOp struct {
	DayNumber int    `json:"day_number"`
	POI       string `json:"poi"`
}

type AdjustTimeOp struct {
	DayNumber int    `json:"day_number"`
	POI       string `json:"poi"`
	StartTime string `json:"start_time"` // "HH:MM"
}

type LunchBreakOp struct {
	DayNumber int    `json:"day_number"`
	StartTime string `json:"start_time,omitempty"`
}

// Op returns the name of the operation carried by the patch, or "".
func (p *EditPatch) Op() string {
	switch {
	case p == nil:
		return ""
	case p.ReplaceStop != nil:
		return "replace_stop"
	case p.AddStop != nil:
		return "add_stop"
	case p.RemoveStop != nil:
		return "remove_stop"
	case p.AdjustTime != nil:
		return "adjust_time"
	case p.LunchBreak != nil:
		return "lunch_break"
	default:
		return ""
	}
}
