package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/providers"
	"github.com/djc-jpg/travel-planning-agent/telemetry"
)

func testConfig() *core.Config {
	cfg := &core.Config{EnvSource: ".env.test"}
	cfg.Providers.RoutingProvider = "fixture"
	cfg.Planning.MaxRepairRounds = core.MaxRepairRounds
	cfg.Planning.RequestDeadline = 10 * time.Second
	cfg.Planning.FoodMinPerPersonPerDay = core.DefaultFoodMinPerPersonPerDay
	cfg.Planning.SpringFestivalDate = "2026-02-17"
	return cfg
}

func newTestPipeline(t *testing.T, cfg *core.Config) *Pipeline {
	t.Helper()
	curated, err := providers.NewCuratedProvider("", &core.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewCuratedProvider() error = %v", err)
	}
	set := &providers.Set{Poi: curated, Route: providers.FixtureRouteProvider{}}
	return New(cfg, set, curated.Cities())
}

func TestPlanFullRequest(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	res, err := p.Plan(context.Background(), Request{
		SessionID: "s1",
		Message:   "3 days in Beijing, moderate pace, we love history and food, budget ¥600 per day",
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if res.Status != core.StatusDone {
		t.Fatalf("Status = %q, want done (message: %s)", res.Status, res.Message)
	}

	it := res.Itinerary
	if it == nil {
		t.Fatal("no itinerary on done result")
	}
	if len(it.Days) != 3 {
		t.Errorf("days = %d, want 3", len(it.Days))
	}
	if it.ConfidenceScore <= 0 || it.ConfidenceScore > 1 {
		t.Errorf("ConfidenceScore = %v, want (0, 1]", it.ConfidenceScore)
	}
	if it.DegradeLevel == "" {
		t.Error("DegradeLevel unset")
	}
	if res.Fingerprint.RunMode != core.RunModeDegraded {
		t.Errorf("RunMode = %q, want DEGRADED with fixture routing", res.Fingerprint.RunMode)
	}
	if res.RequestID == "" || res.TraceID == "" {
		t.Error("request or trace id missing")
	}
}

func TestPlanNoDuplicatePOIsAcrossDays(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	res, err := p.Plan(context.Background(), Request{
		Message: "4 days in Shanghai, intensive pace",
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	seen := map[string]int{}
	for _, day := range res.Itinerary.Days {
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			if prev, dup := seen[item.POIRef]; dup {
				t.Errorf("POI %s scheduled on day %d and day %d", item.POIRef, prev, day.DayNumber)
			}
			seen[item.POIRef] = day.DayNumber
		}
	}
}

func TestPlanTimelineOrdered(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	res, err := p.Plan(context.Background(), Request{Message: "2 days in Chengdu"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	for _, day := range res.Itinerary.Days {
		last := ""
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			if item.StartTime <= last {
				t.Errorf("day %d: item %s starts %s, not after previous end %s",
					day.DayNumber, item.POIRef, item.StartTime, last)
			}
			if item.EndTime < item.StartTime {
				t.Errorf("day %d: item %s ends before it starts", day.DayNumber, item.POIRef)
			}
			last = item.EndTime
		}
	}
}

func TestPlanEveryItemResolvesInArena(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	res, err := p.Plan(context.Background(), Request{Message: "3 days in Beijing"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	it := res.Itinerary
	for _, day := range it.Days {
		for _, item := range append(day.Items, day.Backups...) {
			if _, ok := it.POI(item.POIRef); !ok {
				t.Errorf("item %s not resolvable in the POI arena", item.POIRef)
			}
		}
	}
}

func TestPlanClarifiesOnMissingFields(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	res, err := p.Plan(context.Background(), Request{Message: "I want a nice relaxing trip"})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if res.Status != core.StatusClarifying {
		t.Fatalf("Status = %q, want clarifying", res.Status)
	}
	if len(res.NextQuestions) == 0 || len(res.NextQuestions) > 3 {
		t.Errorf("questions = %d, want 1..3", len(res.NextQuestions))
	}
	if res.Itinerary != nil {
		t.Error("clarifying result carries an itinerary")
	}
}

func TestPlanMustVisitIsPinnedAndScheduled(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	res, err := p.Plan(context.Background(), Request{
		Message: "2 days in Chengdu, must see the Chengdu Panda Base",
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	found := false
	for _, day := range res.Itinerary.Days {
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			if poi, ok := res.Itinerary.POI(item.POIRef); ok && poi.ID == "cd-panda-base" {
				found = true
			}
		}
	}
	if !found {
		t.Error("must-visit panda base not scheduled")
	}
}

func TestPlanDeadlineExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.Planning.RequestDeadline = time.Nanosecond
	p := newTestPipeline(t, cfg)

	res, err := p.Plan(context.Background(), Request{Message: "3 days in Beijing"})
	if err == nil {
		t.Fatal("Plan() error = nil, want deadline exceeded")
	}
	if res.ErrorCode != core.CodeDeadlineExceeded {
		t.Errorf("ErrorCode = %q, want %q", res.ErrorCode, core.CodeDeadlineExceeded)
	}
}

func TestPlanEditPatchShortCircuit(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	first, err := p.Plan(context.Background(), Request{
		SessionID: "s1",
		Message:   "2 days in Beijing, moderate pace",
	})
	if err != nil {
		t.Fatalf("initial Plan() error = %v", err)
	}

	var victim string
	for _, item := range first.Itinerary.Days[0].Items {
		if !item.IsBackup {
			victim = item.POIRef
			break
		}
	}
	if victim == "" {
		t.Fatal("no scheduled stop to remove")
	}

	prior := core.TripConstraints{City: "Beijing", Days: 2, TransportMode: core.TransportPublicTransit, Pace: core.PaceModerate}
	res, err := p.Plan(context.Background(), Request{
		SessionID:      "s1",
		Patch:          &core.EditPatch{RemoveStop: &core.RemoveStopOp{DayNumber: 1, POI: victim}},
		PriorItinerary: first.Itinerary,
		Prior:          &prior,
	})
	if err != nil {
		t.Fatalf("patch Plan() error = %v", err)
	}
	if res.Status != core.StatusDone {
		t.Fatalf("Status = %q, want done", res.Status)
	}
	for _, item := range res.Itinerary.Days[0].Items {
		if item.POIRef == victim && !item.IsBackup {
			t.Errorf("removed stop %s still scheduled", victim)
		}
	}
}

func TestPlanPatchWithoutPriorFails(t *testing.T) {
	p := newTestPipeline(t, testConfig())

	_, err := p.Plan(context.Background(), Request{
		Patch: &core.EditPatch{LunchBreak: &core.LunchBreakOp{DayNumber: 1}},
	})
	if !errors.Is(err, core.ErrPlanNotFound) {
		t.Errorf("error = %v, want ErrPlanNotFound", err)
	}
}

// trustedItinerary has fully curated facts, so its trust level starts at L1
// and the finalize branches are distinguishable.
func trustedItinerary() *core.Itinerary {
	return &core.Itinerary{
		City:              "Beijing",
		RoutingConfidence: 0.5,
		POIs: map[string]core.POI{
			"a": {
				ID: "a", Name: "a", OpenHours: "09:00-18:00", TypicalDuration: 1,
				FactSources: map[string]core.Provenance{
					"open_hours":       core.ProvenanceCurated,
					"typical_duration": core.ProvenanceCurated,
				},
			},
		},
		Days: []core.ItineraryDay{{
			DayNumber: 1,
			Items:     []core.ScheduleItem{{POIRef: "a", StartTime: "09:00", EndTime: "10:00"}},
		}},
	}
}

func TestFinalizeExhaustionForcesL3(t *testing.T) {
	p := newTestPipeline(t, testConfig())
	it := trustedItinerary()

	p.finalize(it, core.TripConstraints{}, false, true, nil)

	if it.DegradeLevel != core.DegradeL3 {
		t.Errorf("DegradeLevel = %q, want L3 when repair rounds run out", it.DegradeLevel)
	}
	if len(it.Assumptions) == 0 {
		t.Error("no assumption recorded for the exhausted loop")
	}
}

func TestFinalizeAcceptedElevatesOneLevel(t *testing.T) {
	p := newTestPipeline(t, testConfig())
	it := trustedItinerary()

	p.finalize(it, core.TripConstraints{}, true, false, nil)

	if it.DegradeLevel != core.DegradeL2 {
		t.Errorf("DegradeLevel = %q, want one-step elevation from L1 to L2", it.DegradeLevel)
	}
}

// recordingTelemetry captures metric names for assertions.
type recordingTelemetry struct {
	core.NoOpTelemetry
	metrics []string
}

func (r *recordingTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	r.metrics = append(r.metrics, name)
}

func TestPlanRecordsRepairRounds(t *testing.T) {
	p := newTestPipeline(t, testConfig())
	rec := &recordingTelemetry{}
	p.SetTelemetry(rec)

	if _, err := p.Plan(context.Background(), Request{Message: "3 days in Beijing, moderate pace"}); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	found := false
	for _, name := range rec.metrics {
		if name == telemetry.MetricRepairRounds {
			found = true
		}
	}
	if !found {
		t.Errorf("metrics recorded = %v, want %s among them", rec.metrics, telemetry.MetricRepairRounds)
	}
}

func TestPlanRepairLoopBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Planning.MaxRepairRounds = 1
	p := newTestPipeline(t, cfg)

	// An impossible budget guarantees issues survive every round; the loop
	// must still terminate and ship a degraded plan.
	res, err := p.Plan(context.Background(), Request{
		Message: "3 days in Shanghai, budget ¥30 per day",
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if res.Status != core.StatusDone {
		t.Fatalf("Status = %q, want done even with unresolved issues", res.Status)
	}
	if res.Itinerary.BudgetWarning == "" {
		t.Error("no budget warning on an unrealistic budget")
	}
	if res.DegradeLevel == core.DegradeL0 {
		t.Error("degrade level L0 despite accepted issues")
	}
}
