package planner

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// A compact downtown grid: coordinates roughly 1km apart around a center.
func poi(id string, lat, lon float64, opts ...func(*core.POI)) core.POI {
	p := core.POI{
		ID: id, Name: id, City: "Beijing",
		Lat: lat, Lon: lon,
		Themes:          []string{"history"},
		TypicalDuration: 1.5,
		TicketPrice:     40,
		OpenHours:       "08:00-18:00",
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func pinned(p *core.POI) { p.Pinned = true }

func free(p *core.POI) { p.TicketPrice = 0 }

func closed(rule string) func(*core.POI) {
	return func(p *core.POI) { p.ClosedRules = rule }
}

func TestHaversineKm(t *testing.T) {
	// Tiananmen Square to the Forbidden City, just under 1 km.
	got := HaversineKm(39.9042, 116.3976, 39.9163, 116.3972)
	if got < 1.0 || got > 1.7 {
		t.Errorf("HaversineKm() = %.2f, want ~1.3", got)
	}
	if d := HaversineKm(39.9, 116.4, 39.9, 116.4); d != 0 {
		t.Errorf("zero distance = %v, want 0", d)
	}
}

func TestEstimateTravelMinutes(t *testing.T) {
	// 6 km on foot at 4 km/h is 90 minutes.
	if got := EstimateTravelMinutes(6, core.TransportWalking); math.Abs(got-90) > 0.01 {
		t.Errorf("walking 6km = %.1f min, want 90", got)
	}
	if got := EstimateTravelMinutes(6, core.TransportPublicTransit); got >= 90 {
		t.Errorf("transit should beat walking, got %.1f min", got)
	}
}

func TestBuildClustersSeparatesDistricts(t *testing.T) {
	pool := []core.POI{
		poi("west-1", 39.90, 116.30),
		poi("west-2", 39.91, 116.31),
		poi("east-1", 39.90, 116.50), // ~17 km east of the west pair
		poi("east-2", 39.91, 116.51),
	}
	clusters := BuildClusters(pool, core.TransportPublicTransit)
	if len(clusters) != 2 {
		t.Fatalf("clusters = %d, want 2", len(clusters))
	}
	for _, cl := range clusters {
		if len(cl.Members) != 2 {
			t.Errorf("cluster %s has %d members, want 2", cl.ID, len(cl.Members))
		}
	}

	lookup := ClusterLookup(clusters)
	if lookup["west-1"] != lookup["west-2"] {
		t.Error("west POIs split across clusters")
	}
	if lookup["west-1"] == lookup["east-1"] {
		t.Error("east and west POIs share a cluster")
	}
}

func TestPartitionDaysBalancesLoad(t *testing.T) {
	pool := []core.POI{
		poi("a", 39.90, 116.30), poi("b", 39.905, 116.305),
		poi("c", 39.90, 116.50), poi("d", 39.905, 116.505),
	}
	clusters := BuildClusters(pool, core.TransportPublicTransit)
	days := PartitionDays(clusters, 2)
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2", len(days))
	}
	if len(days[0]) == 0 || len(days[1]) == 0 {
		t.Errorf("unbalanced partition: %d / %d POIs", len(days[0]), len(days[1]))
	}
	if got := PartitionDays(clusters, 0); got != nil {
		t.Error("zero days should partition to nil")
	}
}

func TestOrderDayStartsAtPinned(t *testing.T) {
	pool := []core.POI{
		poi("far", 39.95, 116.45),
		poi("anchor", 39.90, 116.40, pinned),
		poi("near", 39.905, 116.405),
	}
	ordered := OrderDay(pool)
	if len(ordered) != 3 {
		t.Fatalf("ordered = %d POIs, want 3", len(ordered))
	}
	if ordered[0].ID != "anchor" {
		t.Errorf("first stop = %s, want pinned anchor", ordered[0].ID)
	}
	if ordered[1].ID != "near" {
		t.Errorf("second stop = %s, want nearest neighbor", ordered[1].ID)
	}
}

func TestTwoOptOrderNeverWorsensRoute(t *testing.T) {
	pool := []core.POI{
		poi("a", 39.90, 116.40), poi("b", 39.95, 116.45),
		poi("c", 39.91, 116.41), poi("d", 39.96, 116.46),
		poi("e", 39.92, 116.42),
	}
	greedy := NearestNeighborOrder(pool, pool[0].Lat, pool[0].Lon)
	improved := TwoOptOrder(greedy, pool[0].Lat, pool[0].Lon, 6)

	before := routeDistanceKm(greedy, pool[0].Lat, pool[0].Lon)
	after := routeDistanceKm(improved, pool[0].Lat, pool[0].Lon)
	if after > before+1e-6 {
		t.Errorf("2-opt worsened the route: %.3f -> %.3f km", before, after)
	}
	if len(improved) != len(greedy) {
		t.Errorf("2-opt changed the stop count: %d -> %d", len(greedy), len(improved))
	}
}

func TestTripDates(t *testing.T) {
	dates := TripDates(core.TripConstraints{Days: 3, DateStart: "2026-02-16"})
	want := []string{"2026-02-16", "2026-02-17", "2026-02-18"}
	for i, d := range want {
		if dates[i] != d {
			t.Errorf("dates[%d] = %q, want %q", i, dates[i], d)
		}
	}

	empty := TripDates(core.TripConstraints{Days: 2})
	if empty[0] != "" || empty[1] != "" {
		t.Error("missing start date should yield empty dates")
	}
}

func TestCalendarPeakWindow(t *testing.T) {
	cal := NewCalendar("2026-02-17")
	tests := []struct {
		date string
		want bool
	}{
		{"2026-02-17", true},
		{"2026-02-10", true},  // window edge
		{"2026-02-24", true},  // window edge
		{"2026-02-09", false}, // one day outside
		{"2026-03-15", false},
	}
	for _, tt := range tests {
		if got := cal.IsPeakDate(tt.date); got != tt.want {
			t.Errorf("IsPeakDate(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
	if NewCalendar("not-a-date").IsPeakDate("2026-02-17") {
		t.Error("bad anchor should report no peak days")
	}
}

func TestClosedOn(t *testing.T) {
	monday := "2026-02-16" // a Monday
	tuesday := "2026-02-17"
	tests := []struct {
		rule string
		date string
		want bool
	}{
		{"monday", monday, true},
		{"monday", tuesday, false},
		{"2026-02-17", tuesday, true},
		{"always", monday, true},
		{"monday, 2026-02-17", tuesday, true},
		{"", monday, false},
	}
	for _, tt := range tests {
		p := poi("x", 39.9, 116.4, closed(tt.rule))
		if got := ClosedOn(p, tt.date); got != tt.want {
			t.Errorf("ClosedOn(rule=%q, %s) = %v, want %v", tt.rule, tt.date, got, tt.want)
		}
	}
}

func TestClosedAllDays(t *testing.T) {
	p := poi("x", 39.9, 116.4, closed("always"))
	if !ClosedAllDays(p, []string{"2026-02-16", "2026-02-17"}) {
		t.Error("always-closed POI should be closed on all days")
	}
	if ClosedAllDays(p, []string{"2026-02-16", ""}) {
		t.Error("days without dates must count as open")
	}
	weekday := poi("y", 39.9, 116.4, closed("monday"))
	if ClosedAllDays(weekday, []string{"2026-02-16", "2026-02-17"}) {
		t.Error("POI open on Tuesday is not closed all days")
	}
}

func TestTimeboxDayOrdersTimeline(t *testing.T) {
	ordered := []core.POI{
		poi("a", 39.90, 116.40),
		poi("b", 39.905, 116.405),
		poi("c", 39.91, 116.41),
	}
	res := TimeboxDay(context.Background(), ordered, DayOptions{
		Mode: core.TransportPublicTransit,
	})
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3 (backups: %d)", len(res.Items), len(res.Backups))
	}
	last := ""
	for _, item := range res.Items {
		if item.StartTime <= last {
			t.Errorf("item %s starts %s, not after %s", item.POIRef, item.StartTime, last)
		}
		if item.EndTime <= item.StartTime {
			t.Errorf("item %s ends %s before start %s", item.POIRef, item.EndTime, item.StartTime)
		}
		last = item.EndTime
	}
	if res.Items[0].TravelMinutes != 0 {
		t.Errorf("first leg travel = %v, want 0", res.Items[0].TravelMinutes)
	}
	if res.Items[1].TravelMinutes < core.MinLegTravelMinutes {
		t.Errorf("second leg travel = %v, below floor", res.Items[1].TravelMinutes)
	}
	if len(res.MealWindows) == 0 {
		t.Error("a full day should include a meal window")
	}
	if res.RoutingConfidence != core.FixtureRoutingConfidence {
		t.Errorf("RoutingConfidence = %v, want fixture %v", res.RoutingConfidence, core.FixtureRoutingConfidence)
	}
}

func TestTimeboxDayUsesRouteProvider(t *testing.T) {
	calls := 0
	route := func(ctx context.Context, from, to core.POI, mode core.TransportMode) (float64, float64, error) {
		calls++
		return 15, core.RealRoutingConfidence, nil
	}
	ordered := []core.POI{poi("a", 39.90, 116.40), poi("b", 39.92, 116.42)}
	res := TimeboxDay(context.Background(), ordered, DayOptions{
		Mode:  core.TransportTaxi,
		Route: route,
	})
	if calls != 1 {
		t.Errorf("route provider called %d times, want 1 (first leg has no travel)", calls)
	}
	if res.RoutingConfidence != core.RealRoutingConfidence {
		t.Errorf("RoutingConfidence = %v, want %v", res.RoutingConfidence, core.RealRoutingConfidence)
	}
	if got := res.Items[1].TravelMinutes; got != 15 {
		t.Errorf("second leg travel = %v, want provider's 15", got)
	}
}

func TestTimeboxDaySubstitutesClosedPOI(t *testing.T) {
	ordered := []core.POI{
		poi("open", 39.90, 116.40),
		poi("shut", 39.905, 116.405, closed("monday")),
	}
	spare := []core.POI{poi("nearby-alt", 39.906, 116.406)} // same theme, <2km
	res := TimeboxDay(context.Background(), ordered, DayOptions{
		Date:  "2026-02-16", // Monday
		Mode:  core.TransportPublicTransit,
		Spare: spare,
	})
	if res.Substituted["shut"] != "nearby-alt" {
		t.Fatalf("Substituted = %v, want shut -> nearby-alt", res.Substituted)
	}
	for _, item := range res.Items {
		if item.POIRef == "shut" {
			t.Error("closed POI still on the main timeline")
		}
	}
}

func TestTimeboxDayDemotesClosedWithoutSubstitute(t *testing.T) {
	ordered := []core.POI{
		poi("open", 39.90, 116.40),
		poi("shut", 39.905, 116.405, closed("always")),
	}
	res := TimeboxDay(context.Background(), ordered, DayOptions{
		Date: "2026-02-16",
		Mode: core.TransportPublicTransit,
	})
	found := false
	for _, b := range res.Backups {
		if b.POIRef == "shut" && b.IsBackup && strings.Contains(b.Notes, "closed") {
			found = true
		}
	}
	if !found {
		t.Errorf("closed POI not demoted to backup, backups = %+v", res.Backups)
	}
}

func TestBufferMinutes(t *testing.T) {
	plain := poi("p", 39.9, 116.4)
	reserved := poi("r", 39.9, 116.4)
	reserved.ReservationRequired = true

	if got := bufferMinutes(plain, false); got != 0 {
		t.Errorf("off-peak plain buffer = %v, want 0", got)
	}
	if got := bufferMinutes(reserved, false); got != core.BufferReservationMinutes {
		t.Errorf("reservation buffer = %v, want %v", got, core.BufferReservationMinutes)
	}
	// Peak: 30 * 1.5 = 45, capped at 45.
	if got := bufferMinutes(plain, true); got != core.BufferCapMinutes {
		t.Errorf("peak buffer = %v, want cap %v", got, core.BufferCapMinutes)
	}
}

func TestApplyBudget(t *testing.T) {
	it := &core.Itinerary{
		City: "Beijing",
		POIs: map[string]core.POI{
			"a": poi("a", 39.90, 116.40),
			"b": poi("b", 39.91, 116.41),
		},
		Days: []core.ItineraryDay{{
			DayNumber: 1,
			Items: []core.ScheduleItem{
				{POIRef: "a", StartTime: "09:00", EndTime: "10:30"},
				{POIRef: "b", StartTime: "11:00", EndTime: "12:30", TravelMinutes: 20},
			},
		}},
	}
	constraints := core.TripConstraints{
		Days:          1,
		TransportMode: core.TransportPublicTransit,
	}
	ApplyBudget(it, constraints, BudgetOptions{FoodMinPerPersonPerDay: 80, TravelersCount: 2})

	if it.BudgetBreakdown.Tickets != 80 {
		t.Errorf("Tickets = %v, want 80 (two x 40)", it.BudgetBreakdown.Tickets)
	}
	wantTransport := 20 * core.TransportPublicTransit.CostPerMinute()
	if math.Abs(it.BudgetBreakdown.LocalTransport-wantTransport) > 0.01 {
		t.Errorf("LocalTransport = %v, want %v", it.BudgetBreakdown.LocalTransport, wantTransport)
	}
	if it.BudgetBreakdown.FoodMin != 160 {
		t.Errorf("FoodMin = %v, want 160 (1 day x 2 travelers x 80)", it.BudgetBreakdown.FoodMin)
	}
	wantTotal := 80 + wantTransport + 160
	if math.Abs(it.TotalCost-wantTotal) > 0.01 {
		t.Errorf("TotalCost = %v, want %v", it.TotalCost, wantTotal)
	}
	if it.MinimumFeasibleBudget > it.TotalCost {
		t.Errorf("MinimumFeasibleBudget %v exceeds TotalCost %v", it.MinimumFeasibleBudget, it.TotalCost)
	}
	if it.Days[0].TotalTravelMinutes != 20 {
		t.Errorf("day travel = %v, want 20", it.Days[0].TotalTravelMinutes)
	}
}

func TestSchedulerBuild(t *testing.T) {
	pool := []core.POI{
		poi("a", 39.90, 116.40),
		poi("b", 39.905, 116.405),
		poi("c", 39.91, 116.41),
		poi("d", 39.95, 116.45),
		poi("e", 39.955, 116.455),
		poi("f", 39.96, 116.46, free),
	}
	s := NewScheduler(NewCalendar("2026-02-17"), BudgetOptions{FoodMinPerPersonPerDay: 80}, nil, "")
	constraints := core.TripConstraints{
		City:          "Beijing",
		Days:          2,
		TransportMode: core.TransportPublicTransit,
		Pace:          core.PaceModerate,
	}

	it, issues := s.Build(context.Background(), pool, constraints, core.UserProfile{})
	if len(it.Days) != 2 {
		t.Fatalf("days = %d, want 2", len(it.Days))
	}
	if len(it.POIs) != len(pool) {
		t.Errorf("arena holds %d POIs, want %d", len(it.POIs), len(pool))
	}
	if it.TotalCost <= 0 {
		t.Error("TotalCost not computed")
	}
	if it.RoutingSource != "fixture" {
		t.Errorf("RoutingSource = %q, want fixture", it.RoutingSource)
	}

	seen := map[string]bool{}
	for _, day := range it.Days {
		for _, item := range day.Items {
			if item.IsBackup {
				continue
			}
			if seen[item.POIRef] {
				t.Errorf("POI %s scheduled twice", item.POIRef)
			}
			seen[item.POIRef] = true
			if _, ok := it.POI(item.POIRef); !ok {
				t.Errorf("item %s not in the arena", item.POIRef)
			}
		}
	}
	if len(issues) != 0 {
		t.Errorf("unexpected issues: %+v", issues)
	}
}

func TestSchedulerFlagsClosedMustVisit(t *testing.T) {
	pool := []core.POI{
		poi("keep", 39.90, 116.40),
		poi("landmark", 39.905, 116.405, pinned, closed("always")),
	}
	s := NewScheduler(Calendar{}, BudgetOptions{}, nil, "fixture")
	constraints := core.TripConstraints{
		City: "Beijing", Days: 1,
		DateStart:     "2026-02-16",
		TransportMode: core.TransportPublicTransit,
		Pace:          core.PaceRelaxed,
	}

	it, issues := s.Build(context.Background(), pool, constraints, core.UserProfile{})

	var flagged bool
	for _, issue := range issues {
		if issue.Code == core.IssueMustVisitClosed && issue.POIRef == "landmark" {
			if issue.Severity != core.SeverityHigh {
				t.Errorf("severity = %s, want high", issue.Severity)
			}
			flagged = true
		}
	}
	if !flagged {
		t.Fatalf("closed must-visit not flagged, issues = %+v", issues)
	}

	scheduled := false
	for _, item := range it.Days[0].Items {
		if item.POIRef == "landmark" && !item.IsBackup {
			scheduled = true
		}
	}
	if !scheduled {
		t.Error("pinned POI must stay on the schedule despite closure")
	}
	if len(it.Assumptions) == 0 {
		t.Error("closure should be recorded as an assumption")
	}
}
