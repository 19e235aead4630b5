package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/djc-jpg/travel-planning-agent/core"
)

func TestCuratedProviderKnownCity(t *testing.T) {
	p, err := NewCuratedProvider("", &core.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewCuratedProvider() error = %v", err)
	}

	pois, err := p.SearchPOIs(context.Background(), "Beijing", nil, 0)
	if err != nil {
		t.Fatalf("SearchPOIs() error = %v", err)
	}
	if len(pois) < 10 {
		t.Errorf("Beijing dataset has %d POIs, want at least 10", len(pois))
	}
	for _, poi := range pois {
		if len(poi.FactSources) == 0 {
			t.Errorf("POI %s has no fact sources", poi.ID)
		}
	}
}

func TestCuratedProviderVerifiedOverrides(t *testing.T) {
	p, err := NewCuratedProvider("", &core.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewCuratedProvider() error = %v", err)
	}

	pois, _ := p.SearchPOIs(context.Background(), "Chengdu", nil, 0)
	var panda *core.POI
	for i := range pois {
		if pois[i].ID == "cd-panda-base" {
			panda = &pois[i]
		}
	}
	if panda == nil {
		t.Fatal("panda base missing from Chengdu dataset")
	}
	if got := panda.FactSources["open_hours"]; got != core.ProvenanceVerified {
		t.Errorf("open_hours provenance = %q, want verified", got)
	}
	if got := panda.FactSources["closed_rules"]; got != core.ProvenanceCurated {
		t.Errorf("closed_rules provenance = %q, want curated", got)
	}
}

func TestCuratedProviderThemePriority(t *testing.T) {
	p, err := NewCuratedProvider("", &core.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewCuratedProvider() error = %v", err)
	}

	pois, _ := p.SearchPOIs(context.Background(), "beijing", []string{"food"}, 3)
	if len(pois) != 3 {
		t.Fatalf("got %d POIs, want limit 3", len(pois))
	}
	if !hasTheme(pois[0], "food") {
		t.Errorf("first result %s lacks the requested theme", pois[0].ID)
	}
}

func TestCuratedProviderLoadsYAMLDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pois.yaml")
	dataset := `- id: wh-tower
  name: Yellow Crane Tower
  city: Wuhan
  lat: 30.545
  lon: 114.302
  themes: [history]
  typical_duration: 1.5
  ticket_price: 70
  open_hours: "08:30-17:00"
  verified: [open_hours]
`
	if err := os.WriteFile(path, []byte(dataset), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	p, err := NewCuratedProvider(path, &core.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewCuratedProvider() error = %v", err)
	}

	pois, err := p.SearchPOIs(context.Background(), "Wuhan", nil, 0)
	if err != nil {
		t.Fatalf("SearchPOIs() error = %v", err)
	}
	if len(pois) != 1 || pois[0].ID != "wh-tower" {
		t.Fatalf("pois = %v, want the one YAML entry", pois)
	}
	if got := pois[0].FactSources["open_hours"]; got != core.ProvenanceVerified {
		t.Errorf("open_hours provenance = %q, want verified", got)
	}
	if pois[0].TypicalDuration != 1.5 {
		t.Errorf("TypicalDuration = %v, want 1.5", pois[0].TypicalDuration)
	}
}

func TestCuratedProviderUnknownCity(t *testing.T) {
	p, err := NewCuratedProvider("", &core.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewCuratedProvider() error = %v", err)
	}

	pois, err := p.SearchPOIs(context.Background(), "Atlantis", nil, 0)
	if err != nil {
		t.Errorf("unknown city should not error, got %v", err)
	}
	if len(pois) != 0 {
		t.Errorf("unknown city returned %d POIs, want 0", len(pois))
	}
}

func hasTheme(poi core.POI, theme string) bool {
	for _, t := range poi.Themes {
		if t == theme {
			return true
		}
	}
	return false
}

func TestFixtureRouteProvider(t *testing.T) {
	from := core.POI{ID: "a", Lat: 39.9163, Lon: 116.3972}
	to := core.POI{ID: "b", Lat: 39.8822, Lon: 116.4066}

	minutes, confidence, err := FixtureRouteProvider{}.Route(context.Background(), from, to, core.TransportPublicTransit)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if minutes < 1 {
		t.Errorf("minutes = %v, want >= 1", minutes)
	}
	if confidence != core.FixtureRoutingConfidence {
		t.Errorf("confidence = %v, want %v", confidence, core.FixtureRoutingConfidence)
	}
}

func TestFixtureRouteProviderSamePoint(t *testing.T) {
	poi := core.POI{ID: "a", Lat: 39.9, Lon: 116.4}
	minutes, _, err := FixtureRouteProvider{}.Route(context.Background(), poi, poi, core.TransportWalking)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if minutes < core.MinLegTravelMinutes {
		t.Errorf("minutes = %v, want floor at %v", minutes, core.MinLegTravelMinutes)
	}
}

func TestLLMClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"city\":\"Beijing\"}"}}],"usage":{"total_tokens":42}}`))
	}))
	defer server.Close()

	client := NewLLMClient("test-key", server.URL, "test-model", &core.NoOpLogger{})
	got, err := client.Generate(context.Background(), "parse this", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != `{"city":"Beijing"}` {
		t.Errorf("Generate() = %q", got)
	}
}

func TestLLMClientMissingKey(t *testing.T) {
	client := NewLLMClient("", "", "", &core.NoOpLogger{})
	_, err := client.Generate(context.Background(), "anything", nil)
	if !errors.Is(err, core.ErrProviderUnavailable) {
		t.Errorf("error = %v, want ErrProviderUnavailable", err)
	}
}

func TestLLMClientRetriesServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewLLMClient("k", server.URL, "m", &core.NoOpLogger{})
	got, err := client.Generate(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "ok" || attempts != 2 {
		t.Errorf("got %q after %d attempts, want recovery on retry", got, attempts)
	}
}

func TestMapClientSearchPOIs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","pois":[
			{"id":"B01","name":"Test Temple","type":"Scenic;Temple","location":"116.3972,39.9163","biz_ext":{"cost":"25","opentime_today":"08:00-17:00"}},
			{"id":"B02","name":"Broken","type":"","location":"not-a-location"}
		]}`))
	}))
	defer server.Close()

	client := NewMapClient("key", server.URL, &core.NoOpLogger{})
	pois, err := client.SearchPOIs(context.Background(), "Beijing", nil, 10)
	if err != nil {
		t.Fatalf("SearchPOIs() error = %v", err)
	}
	if len(pois) != 1 {
		t.Fatalf("got %d POIs, want 1 (malformed entry skipped)", len(pois))
	}
	poi := pois[0]
	if poi.Lat != 39.9163 || poi.Lon != 116.3972 {
		t.Errorf("location = (%v, %v), want parsed from lon,lat", poi.Lat, poi.Lon)
	}
	if poi.TicketPrice != 25 {
		t.Errorf("TicketPrice = %v, want 25", poi.TicketPrice)
	}
	if got := poi.FactSources["location"]; got != core.ProvenanceVerified {
		t.Errorf("location provenance = %q, want verified", got)
	}
	if got := poi.FactSources["typical_duration"]; got != core.ProvenanceHeuristic {
		t.Errorf("typical_duration provenance = %q, want heuristic", got)
	}
}

func TestMapClientRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","route":{"paths":[{"duration":"1800"}]}}`))
	}))
	defer server.Close()

	client := NewMapClient("key", server.URL, &core.NoOpLogger{})
	minutes, confidence, err := client.Route(context.Background(),
		core.POI{Lat: 39.9, Lon: 116.4}, core.POI{Lat: 39.8, Lon: 116.5}, core.TransportDriving)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if minutes != 30 {
		t.Errorf("minutes = %v, want 30", minutes)
	}
	if confidence != core.RealRoutingConfidence {
		t.Errorf("confidence = %v, want %v", confidence, core.RealRoutingConfidence)
	}
}

func TestMapClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","info":"INVALID_USER_KEY"}`))
	}))
	defer server.Close()

	client := NewMapClient("bad", server.URL, &core.NoOpLogger{})
	_, err := client.SearchPOIs(context.Background(), "Beijing", nil, 10)
	if !errors.Is(err, core.ErrProviderResponse) {
		t.Errorf("error = %v, want ErrProviderResponse", err)
	}
}

func TestNewSetRoutingSelection(t *testing.T) {
	tests := []struct {
		name      string
		routing   string
		mapKey    string
		wantRoute string
		wantErr   bool
	}{
		{"auto without key", "auto", "", "fixture", false},
		{"auto with key", "auto", "k", "amap", false},
		{"fixture with key", "fixture", "k", "fixture", false},
		{"real without key", "real", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &core.Config{}
			cfg.Providers.RoutingProvider = tt.routing
			cfg.Providers.MapAPIKey = tt.mapKey

			set, err := NewSet(cfg, &core.NoOpLogger{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewSet() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSet() error = %v", err)
			}
			if got := set.RouteSource(); got != tt.wantRoute {
				t.Errorf("RouteSource() = %q, want %q", got, tt.wantRoute)
			}
		})
	}
}

func TestFixtureLLMProvider(t *testing.T) {
	p := &FixtureLLMProvider{
		Responses: map[string]string{"extract": `{"city":"Chengdu"}`},
	}

	got, err := p.Generate(context.Background(), "Extract trip fields from text", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != `{"city":"Chengdu"}` {
		t.Errorf("Generate() = %q", got)
	}

	_, err = p.Generate(context.Background(), "unmatched prompt", nil)
	if !errors.Is(err, core.ErrProviderUnavailable) {
		t.Errorf("unmatched prompt error = %v, want ErrProviderUnavailable", err)
	}
}
