package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/providers"
	"github.com/djc-jpg/travel-planning-agent/trust"
)

const poolPromptTemplate = `List up to %d real, well-known points of interest in %s for a traveler%s.
Respond with ONLY a JSON array, no prose. Each element:
{"name": string, "lat": number, "lon": number, "themes": [string], "typical_duration_hours": number, "ticket_price": number, "open_hours": "HH:MM-HH:MM", "indoor": boolean}
Use real coordinates. Omit places you are not sure exist.`

type llmPoi struct {
	Name            string   `json:"name"`
	Lat             float64  `json:"lat"`
	Lon             float64  `json:"lon"`
	Themes          []string `json:"themes"`
	TypicalDuration float64  `json:"typical_duration_hours"`
	TicketPrice     float64  `json:"ticket_price"`
	OpenHours       string   `json:"open_hours"`
	Indoor          bool     `json:"indoor"`
}

// llmPool asks the model for POI candidates. Every fact it returns is
// heuristic-tier: plausible, unverified. Entries without usable coordinates
// are dropped.
func llmPool(ctx context.Context, llm providers.LLMProvider, city string, themes []string, limit int) ([]core.POI, error) {
	themeHint := ""
	if len(themes) > 0 {
		themeHint = " interested in " + strings.Join(themes, ", ")
	}
	prompt := fmt.Sprintf(poolPromptTemplate, limit, city, themeHint)

	raw, err := llm.Generate(ctx, prompt, &providers.GenerateOptions{
		Temperature: 0.2,
		SystemPrompt: "You are a travel data assistant. You respond with strict JSON only.",
	})
	if err != nil {
		return nil, err
	}

	var parsed []llmPoi
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, &core.PlanError{
			Op:      "retrieval.llmPool",
			Code:    core.CodeProviderUnavailable,
			Message: "LLM returned unparseable POI list",
			Err:     core.ErrProviderResponse,
		}
	}

	pois := make([]core.POI, 0, len(parsed))
	for i, raw := range parsed {
		if raw.Name == "" || (raw.Lat == 0 && raw.Lon == 0) {
			continue
		}
		poi := core.POI{
			ID:              fmt.Sprintf("llm:%s:%d", normalizeName(raw.Name), i),
			Name:            raw.Name,
			City:            city,
			Lat:             raw.Lat,
			Lon:             raw.Lon,
			Themes:          raw.Themes,
			TypicalDuration: raw.TypicalDuration,
			TicketPrice:     raw.TicketPrice,
			Cost:            raw.TicketPrice,
			OpenHours:       raw.OpenHours,
			Indoor:          raw.Indoor,
		}
		pois = append(pois, trust.Tag(poi, core.ProvenanceHeuristic))
	}
	return pois, nil
}

// extractJSON strips markdown code fences and surrounding prose, returning
// the first JSON array or object in the text.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	for _, open := range []byte{'[', '{'} {
		start := strings.IndexByte(s, open)
		if start < 0 {
			continue
		}
		var closer byte = ']'
		if open == '{' {
			closer = '}'
		}
		if end := strings.LastIndexByte(s, closer); end > start {
			return s[start : end+1]
		}
	}
	return s
}
