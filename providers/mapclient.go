package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/trust"
)

// MapClient talks to an AMap-compatible web service for POI search and
// point-to-point routing. Facts it returns are tagged verified; attributes
// the service does not report (typical duration) fall back to heuristic.
type MapClient struct {
	*BaseClient
	apiKey  string
	baseURL string

	telemetry core.Telemetry
}

// NewMapClient creates a map client. baseURL defaults to the AMap REST API.
func NewMapClient(apiKey, baseURL string, logger core.Logger) *MapClient {
	if baseURL == "" {
		baseURL = "https://restapi.amap.com"
	}
	return &MapClient{
		BaseClient: NewBaseClient(core.MapCallTimeout, logger),
		apiKey:     apiKey,
		baseURL:    baseURL,
		telemetry:  &core.NoOpTelemetry{},
	}
}

// SetTelemetry sets the telemetry provider.
func (c *MapClient) SetTelemetry(telemetry core.Telemetry) {
	if telemetry != nil {
		c.telemetry = telemetry
	}
}

// Name identifies the provider for the run fingerprint.
func (c *MapClient) Name() string { return "amap" }

type mapSearchResponse struct {
	Status string `json:"status"`
	Info   string `json:"info"`
	Pois   []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Type     string `json:"type"`
		Location string `json:"location"` // "lon,lat"
		Address  string `json:"address"`
		BizExt   struct {
			Cost     string `json:"cost"`
			OpenTime string `json:"opentime_today"`
		} `json:"biz_ext"`
	} `json:"pois"`
}

// SearchPOIs queries the place-text API. Results carry verified location and
// name facts; cost and open hours are verified when the service reports them.
func (c *MapClient) SearchPOIs(ctx context.Context, city string, themes []string, limit int) ([]core.POI, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "map.search_pois")
	defer span.End()
	span.SetAttribute("city", city)

	if c.apiKey == "" {
		return nil, &core.PlanError{
			Op:      "map.search_pois",
			Code:    core.CodeProviderUnavailable,
			Message: "map API key not configured",
			Err:     core.ErrProviderUnavailable,
		}
	}

	keywords := "attraction"
	if len(themes) > 0 {
		keywords = strings.Join(themes, "|")
	}
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("city", city)
	params.Set("keywords", keywords)
	params.Set("offset", strconv.Itoa(limit))
	params.Set("extensions", "all")

	body, err := c.get(ctx, "/v3/place/text", params, "map")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var parsed mapSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Status != "1" {
		perr := &core.PlanError{
			Op:      "map.search_pois",
			Code:    core.CodeProviderUnavailable,
			Message: "place search returned malformed or error response: " + parsed.Info,
			Err:     core.ErrProviderResponse,
		}
		span.RecordError(perr)
		return nil, perr
	}

	pois := make([]core.POI, 0, len(parsed.Pois))
	for _, raw := range parsed.Pois {
		lat, lon, ok := parseLocation(raw.Location)
		if !ok {
			continue
		}
		poi := core.POI{
			ID:          "amap:" + raw.ID,
			Name:        raw.Name,
			City:        city,
			Lat:         lat,
			Lon:         lon,
			Themes:      themesFromType(raw.Type),
			Description: raw.Address,
			OpenHours:   normalizeOpenTime(raw.BizExt.OpenTime),
		}
		if cost, err := strconv.ParseFloat(raw.BizExt.Cost, 64); err == nil {
			poi.TicketPrice = cost
			poi.Cost = cost
		}
		poi = trust.Tag(poi, core.ProvenanceVerified)
		// The service never reports visit durations.
		poi.FactSources["typical_duration"] = core.ProvenanceHeuristic
		pois = append(pois, poi)
	}

	c.Logger.Info("Map POI search completed", map[string]interface{}{
		"operation": "map_poi_search",
		"city":      city,
		"results":   len(pois),
	})
	span.SetAttribute("results", len(pois))
	return pois, nil
}

type mapRouteResponse struct {
	Status string `json:"status"`
	Route  struct {
		Paths []struct {
			Duration string `json:"duration"` // seconds
		} `json:"paths"`
		Transits []struct {
			Duration string `json:"duration"`
		} `json:"transits"`
	} `json:"route"`
}

// Route queries the direction API for the mode and returns minutes with the
// live-routing confidence.
func (c *MapClient) Route(ctx context.Context, from, to core.POI, mode core.TransportMode) (float64, float64, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "map.route")
	defer span.End()

	if c.apiKey == "" {
		return 0, 0, &core.PlanError{
			Op:      "map.route",
			Code:    core.CodeProviderUnavailable,
			Message: "map API key not configured",
			Err:     core.ErrProviderUnavailable,
		}
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("origin", fmt.Sprintf("%.6f,%.6f", from.Lon, from.Lat))
	params.Set("destination", fmt.Sprintf("%.6f,%.6f", to.Lon, to.Lat))

	body, err := c.get(ctx, routePath(mode), params, "map")
	if err != nil {
		span.RecordError(err)
		return 0, 0, err
	}

	var parsed mapRouteResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Status != "1" {
		perr := &core.PlanError{
			Op:      "map.route",
			Code:    core.CodeProviderUnavailable,
			Message: "direction query returned malformed or error response",
			Err:     core.ErrProviderResponse,
		}
		span.RecordError(perr)
		return 0, 0, perr
	}

	seconds := ""
	if len(parsed.Route.Paths) > 0 {
		seconds = parsed.Route.Paths[0].Duration
	} else if len(parsed.Route.Transits) > 0 {
		seconds = parsed.Route.Transits[0].Duration
	}
	dur, err := strconv.ParseFloat(seconds, 64)
	if err != nil || dur <= 0 {
		return 0, 0, &core.PlanError{
			Op:      "map.route",
			Code:    core.CodeProviderUnavailable,
			Message: "direction query returned no usable duration",
			Err:     core.ErrProviderResponse,
		}
	}

	return dur / 60, core.RealRoutingConfidence, nil
}

func (c *MapClient) get(ctx context.Context, path string, params url.Values, provider string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.ExecuteWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.HandleError(resp.StatusCode, body, provider)
	}
	return body, nil
}

func routePath(mode core.TransportMode) string {
	switch mode {
	case core.TransportWalking:
		return "/v3/direction/walking"
	case core.TransportPublicTransit:
		return "/v3/direction/transit/integrated"
	default:
		return "/v3/direction/driving"
	}
}

// parseLocation splits the service's "lon,lat" format.
func parseLocation(s string) (lat, lon float64, ok bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// themesFromType maps the service's semicolon-separated category path to
// planner themes.
func themesFromType(t string) []string {
	var themes []string
	for _, part := range strings.Split(t, ";") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part != "" {
			themes = append(themes, part)
		}
	}
	if len(themes) > 2 {
		themes = themes[:2]
	}
	return themes
}

// normalizeOpenTime coerces "09:00-18:00" style values and drops anything the
// time-boxer cannot parse.
func normalizeOpenTime(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "-") {
		return s
	}
	return ""
}
