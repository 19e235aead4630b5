package providers

import (
	"context"
	"embed"
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/trust"
)

//go:embed data/pois.json
var curatedFS embed.FS

// CuratedProvider serves POIs from the bundled city dataset. It needs no
// network and always answers; its facts are curated-tier unless the dataset
// entry marks them verified.
type CuratedProvider struct {
	logger core.Logger
	byCity map[string][]core.POI
}

type curatedEntry struct {
	core.POI
	// Verified lists attributes confirmed against official sources.
	Verified []string `json:"verified,omitempty"`
}

// NewCuratedProvider loads the dataset. When path is empty the embedded
// dataset is used; otherwise the file at path replaces it.
func NewCuratedProvider(path string, logger core.Logger) (*CuratedProvider, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	var raw []byte
	var err error
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = curatedFS.ReadFile("data/pois.json")
	}
	if err != nil {
		return nil, &core.PlanError{
			Op:      "curated.load",
			Code:    core.CodeProviderUnavailable,
			Message: "cannot read curated dataset",
			Err:     err,
		}
	}

	// External datasets may be YAML; it is decoded through the JSON tags by
	// round-tripping, so both formats share one entry shape.
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, &core.PlanError{
				Op:      "curated.load",
				Code:    core.CodeProviderUnavailable,
				Message: "curated dataset is not valid YAML",
				Err:     err,
			}
		}
		if raw, err = json.Marshal(doc); err != nil {
			return nil, &core.PlanError{
				Op:      "curated.load",
				Code:    core.CodeProviderUnavailable,
				Message: "curated dataset could not be converted",
				Err:     err,
			}
		}
	}

	var entries []curatedEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &core.PlanError{
			Op:      "curated.load",
			Code:    core.CodeProviderUnavailable,
			Message: "curated dataset is not valid JSON",
			Err:     err,
		}
	}

	p := &CuratedProvider{
		logger: logger,
		byCity: make(map[string][]core.POI),
	}
	for _, entry := range entries {
		poi := trust.Tag(entry.POI, core.ProvenanceCurated)
		for _, attr := range entry.Verified {
			poi.FactSources[attr] = core.ProvenanceVerified
		}
		key := normalizeCity(entry.City)
		p.byCity[key] = append(p.byCity[key], poi)
	}

	logger.Info("Curated dataset loaded", map[string]interface{}{
		"operation": "curated_load",
		"cities":    len(p.byCity),
		"pois":      len(entries),
	})
	return p, nil
}

// Name identifies the provider for the run fingerprint.
func (p *CuratedProvider) Name() string { return "curated" }

// Cities returns the cities the dataset covers.
func (p *CuratedProvider) Cities() []string {
	out := make([]string, 0, len(p.byCity))
	for city := range p.byCity {
		out = append(out, city)
	}
	return out
}

// SearchPOIs returns the city's dataset entries, theme-matching ones first.
// An unknown city returns an empty slice, not an error; the retrieval layer
// decides whether to fall back.
func (p *CuratedProvider) SearchPOIs(ctx context.Context, city string, themes []string, limit int) ([]core.POI, error) {
	entries := p.byCity[normalizeCity(city)]
	if len(entries) == 0 {
		return nil, nil
	}

	matched := make([]core.POI, 0, len(entries))
	rest := make([]core.POI, 0, len(entries))
	for _, poi := range entries {
		if matchesThemes(poi, themes) {
			matched = append(matched, poi)
		} else {
			rest = append(rest, poi)
		}
	}
	out := append(matched, rest...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesThemes(poi core.POI, themes []string) bool {
	if len(themes) == 0 {
		return false
	}
	for _, want := range themes {
		for _, have := range poi.Themes {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
