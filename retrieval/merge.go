package retrieval

import (
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/trust"
)

// normalizeName collapses a POI name for dedup: lowercase, letters and digits
// only. "The Bund" and "the bund " describe the same place.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MergePools fuses candidate lists from multiple sources. POIs with the same
// normalized name merge attribute-by-attribute, higher provenance winning;
// first appearance fixes the output position so fusion stays deterministic.
func MergePools(pools ...[]core.POI) []core.POI {
	index := make(map[string]int)
	var out []core.POI
	for _, pool := range pools {
		for _, poi := range pool {
			key := normalizeName(poi.Name)
			if key == "" {
				continue
			}
			if at, seen := index[key]; seen {
				out[at] = trust.Merge(out[at], poi)
				continue
			}
			index[key] = len(out)
			out = append(out, poi)
		}
	}
	return out
}

// ApplyMustVisit pins pool entries matching the must-visit names. Names with
// no pool match are returned so the retriever can try to resolve them through
// other providers.
func ApplyMustVisit(pool []core.POI, mustVisit []string) (out []core.POI, unresolved []string) {
	out = make([]core.POI, len(pool))
	copy(out, pool)
	for _, name := range mustVisit {
		want := normalizeName(name)
		found := false
		for i := range out {
			if strings.Contains(normalizeName(out[i].Name), want) {
				out[i].Pinned = true
				found = true
			}
		}
		if !found {
			unresolved = append(unresolved, name)
		}
	}
	return out, unresolved
}

// ApplyAvoid removes pool entries matching avoided names or themes, except
// pinned ones: an explicit must-visit outranks an avoid preference.
func ApplyAvoid(pool []core.POI, avoid []string) []core.POI {
	if len(avoid) == 0 {
		return pool
	}
	return lo.Filter(pool, func(poi core.POI, _ int) bool {
		if poi.Pinned {
			return true
		}
		for _, a := range avoid {
			want := normalizeName(a)
			if want == "" {
				continue
			}
			if strings.Contains(normalizeName(poi.Name), want) {
				return false
			}
			for _, theme := range poi.Themes {
				if normalizeName(theme) == want {
					return false
				}
			}
		}
		return true
	})
}
