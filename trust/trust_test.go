package trust

import (
	"testing"

	"github.com/djc-jpg/travel-planning-agent/core"
)

func TestTagNeverDowngradesVerified(t *testing.T) {
	poi := core.POI{
		ID:   "poi-1",
		Name: "Museum",
		FactSources: map[string]core.Provenance{
			"open_hours": core.ProvenanceVerified,
		},
	}

	tagged := Tag(poi, core.ProvenanceHeuristic)

	if got := tagged.FactSources["open_hours"]; got != core.ProvenanceVerified {
		t.Errorf("open_hours provenance = %q, want %q", got, core.ProvenanceVerified)
	}
	if got := tagged.FactSources["cost"]; got != core.ProvenanceHeuristic {
		t.Errorf("cost provenance = %q, want %q", got, core.ProvenanceHeuristic)
	}
}

func TestMergeHigherRankWins(t *testing.T) {
	existing := Tag(core.POI{
		ID:              "poi-1",
		Name:            "Temple",
		TypicalDuration: 2,
		Cost:            40,
		Themes:          []string{"history"},
	}, core.ProvenanceFallback)
	incoming := Tag(core.POI{
		ID:              "poi-1",
		Name:            "Temple",
		TypicalDuration: 1.5,
		Cost:            60,
		OpenHours:       "08:00-17:00",
		Themes:          []string{"culture"},
	}, core.ProvenanceVerified)

	merged := Merge(existing, incoming)

	if merged.Cost != 60 {
		t.Errorf("Cost = %v, want 60 (verified beats fallback)", merged.Cost)
	}
	if merged.OpenHours != "08:00-17:00" {
		t.Errorf("OpenHours = %q, want filled from incoming", merged.OpenHours)
	}
	if got := merged.FactSources["cost"]; got != core.ProvenanceVerified {
		t.Errorf("cost provenance = %q, want verified", got)
	}
	if len(merged.Themes) != 2 {
		t.Errorf("Themes = %v, want union of both", merged.Themes)
	}
}

func TestMergeTieKeepsExisting(t *testing.T) {
	existing := Tag(core.POI{ID: "poi-1", Cost: 40}, core.ProvenanceCurated)
	incoming := Tag(core.POI{ID: "poi-1", Cost: 99}, core.ProvenanceCurated)

	merged := Merge(existing, incoming)

	if merged.Cost != 40 {
		t.Errorf("Cost = %v, want existing value 40 on provenance tie", merged.Cost)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := Tag(core.POI{ID: "poi-1", Cost: 40}, core.ProvenanceFallback)
	incoming := Tag(core.POI{ID: "poi-1", Cost: 60}, core.ProvenanceVerified)

	before := existing.FactSources["cost"]
	_ = Merge(existing, incoming)

	if existing.FactSources["cost"] != before {
		t.Error("Merge mutated the existing POI's fact sources")
	}
}

func TestScoreFormula(t *testing.T) {
	tests := []struct {
		name    string
		stats   Stats
		routing float64
		want    float64
	}{
		{"all verified realtime", Stats{VerifiedFactRatio: 1, FallbackRate: 0}, 1.0, 1.0},
		{"all fallback", Stats{VerifiedFactRatio: 0, FallbackRate: 1}, 0.5, 0.05},
		{"mixed", Stats{VerifiedFactRatio: 0.5, FallbackRate: 0.2}, 0.5, 0.59},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.stats, tt.routing)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelThresholds(t *testing.T) {
	tests := []struct {
		score    float64
		realtime bool
		want     core.DegradeLevel
	}{
		{0.9, true, core.DegradeL0},
		{0.9, false, core.DegradeL1},
		{0.75, true, core.DegradeL1},
		{0.6, true, core.DegradeL2},
		{0.3, true, core.DegradeL3},
	}
	for _, tt := range tests {
		if got := Level(tt.score, tt.realtime); got != tt.want {
			t.Errorf("Level(%v, %v) = %v, want %v", tt.score, tt.realtime, got, tt.want)
		}
	}
}

func TestCollectSkipsBackups(t *testing.T) {
	main := Tag(core.POI{ID: "a", OpenHours: "09:00-17:00", TypicalDuration: 1}, core.ProvenanceVerified)
	backup := Tag(core.POI{ID: "b", OpenHours: "09:00-17:00", TypicalDuration: 1}, core.ProvenanceFallback)
	it := &core.Itinerary{
		POIs: map[string]core.POI{"a": main, "b": backup},
		Days: []core.ItineraryDay{{
			Items:   []core.ScheduleItem{{POIRef: "a"}},
			Backups: []core.ScheduleItem{{POIRef: "b", IsBackup: true}},
		}},
	}

	stats := Collect(it)

	if stats.FallbackRate != 0 {
		t.Errorf("FallbackRate = %v, want 0: backups must not count", stats.FallbackRate)
	}
	if stats.VerifiedFactRatio != 1 {
		t.Errorf("VerifiedFactRatio = %v, want 1", stats.VerifiedFactRatio)
	}
}

func TestFingerprintRunMode(t *testing.T) {
	tests := []struct {
		name string
		snap ProviderSnapshot
		want core.RunMode
	}{
		{"real providers", ProviderSnapshot{PoiProvider: "amap", RouteProvider: "real", LLMProvider: "llm"}, core.RunModeRealtime},
		{"fixture route", ProviderSnapshot{PoiProvider: "amap", RouteProvider: "fixture", LLMProvider: "llm"}, core.RunModeDegraded},
		{"curated pois", ProviderSnapshot{PoiProvider: "curated", RouteProvider: "real", LLMProvider: "llm"}, core.RunModeDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := Fingerprint(tt.snap, false, "env", "trace-1")
			if fp.RunMode != tt.want {
				t.Errorf("RunMode = %v, want %v", fp.RunMode, tt.want)
			}
		})
	}
}

func TestMissingRequiredFacts(t *testing.T) {
	poi := core.POI{ID: "a", OpenHours: ""}
	missing := MissingRequiredFacts(poi)
	if len(missing) != 2 {
		t.Fatalf("missing = %v, want [open_hours typical_duration]", missing)
	}
}
