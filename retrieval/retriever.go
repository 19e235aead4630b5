package retrieval

import (
	"context"
	"sync"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/providers"
)

// Result is the assembled candidate pool plus which sources contributed, for
// the run fingerprint and degrade accounting.
type Result struct {
	Pool          []core.POI
	UsedMap       bool
	UsedLLM       bool
	UnresolvedMust []string
	FromCache     bool
}

// Retriever assembles ranked candidate pools. Sources are queried in
// parallel and joined; per-source failures degrade the pool unless strict
// external data mode is on, in which case they fail the request.
type Retriever struct {
	set    *providers.Set
	cache  *PoolCache
	strict bool

	logger    core.Logger
	telemetry core.Telemetry
}

// NewRetriever creates a retriever over the provider set.
func NewRetriever(set *providers.Set, cache *PoolCache, strict bool) *Retriever {
	if cache == nil {
		cache = NewPoolCache(0, 0)
	}
	return &Retriever{
		set:       set,
		cache:     cache,
		strict:    strict,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger provider.
func (r *Retriever) SetLogger(logger core.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetTelemetry sets the telemetry provider.
func (r *Retriever) SetTelemetry(telemetry core.Telemetry) {
	if telemetry != nil {
		r.telemetry = telemetry
	}
}

// CacheStats exposes pool-cache statistics for diagnostics.
func (r *Retriever) CacheStats() CacheStats {
	return r.cache.Stats()
}

// Pool builds the candidate pool for the request: fan out to the configured
// sources, fuse by provenance, pin must-visits, drop avoids, rank, truncate.
func (r *Retriever) Pool(ctx context.Context, constraints core.TripConstraints, profile core.UserProfile) (*Result, error) {
	ctx, span := r.telemetry.StartSpan(ctx, "retrieval.Pool")
	defer span.End()
	span.SetAttribute("city", constraints.City)

	key, keyErr := Key(constraints, profile)
	if keyErr == nil {
		if entry, hit := r.cache.Get(key); hit {
			r.logger.Debug("Candidate pool served from cache", map[string]interface{}{
				"operation": "pool_cache_hit",
				"city":      constraints.City,
				"pool_size": len(entry.Pool),
			})
			res := r.finish(entry.Pool, constraints, profile)
			res.UsedMap = entry.UsedMap
			res.UsedLLM = entry.UsedLLM
			res.FromCache = true
			return res, nil
		}
	}

	target := PoolSize(constraints)

	type sourceResult struct {
		name string
		pois []core.POI
		err  error
	}
	results := make(chan sourceResult, 3)
	var wg sync.WaitGroup

	fetch := func(name string, fn func() ([]core.POI, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pois, err := fn()
			results <- sourceResult{name: name, pois: pois, err: err}
		}()
	}

	fetch("curated", func() ([]core.POI, error) {
		return r.set.Poi.SearchPOIs(ctx, constraints.City, profile.Themes, 0)
	})
	if r.set.Map != nil {
		fetch("map", func() ([]core.POI, error) {
			return r.set.Map.SearchPOIs(ctx, constraints.City, profile.Themes, target)
		})
	}
	if r.set.LLM != nil {
		fetch("llm", func() ([]core.POI, error) {
			return llmPool(ctx, r.set.LLM, constraints.City, profile.Themes, target)
		})
	}

	wg.Wait()
	close(results)

	var curated, mapped, generated []core.POI
	var res Result
	for sr := range results {
		if sr.err != nil {
			// Strict mode is about external data quality: a dead curated or
			// map source fails the request, a failed LLM supplement only
			// shrinks the pool.
			if r.strict && sr.name != "llm" {
				span.RecordError(sr.err)
				return nil, &core.PlanError{
					Op:      "retrieval.Pool",
					Code:    core.CodeProviderUnavailable,
					Message: "strict external data mode: source " + sr.name + " failed",
					Err:     sr.err,
				}
			}
			r.logger.Warn("Pool source failed, degrading", map[string]interface{}{
				"operation": "pool_source_degraded",
				"source":    sr.name,
				"error":     sr.err.Error(),
			})
			continue
		}
		switch sr.name {
		case "curated":
			curated = sr.pois
		case "map":
			mapped = sr.pois
			res.UsedMap = len(sr.pois) > 0
		case "llm":
			generated = sr.pois
			res.UsedLLM = len(sr.pois) > 0
		}
	}

	// Curated first: its facts are trustworthy and its positions anchor the
	// fused order. Map results refine them, LLM results only fill gaps.
	pool := MergePools(curated, mapped, generated)
	if len(pool) == 0 {
		return nil, &core.PlanError{
			Op:      "retrieval.Pool",
			Code:    core.CodeProviderUnavailable,
			Message: "no POI source produced candidates for " + constraints.City,
			Err:     core.ErrProviderUnavailable,
		}
	}

	if keyErr == nil {
		r.cache.Set(key, Entry{Pool: pool, UsedMap: res.UsedMap, UsedLLM: res.UsedLLM})
	}

	out := r.finish(pool, constraints, profile)
	out.UsedMap = res.UsedMap
	out.UsedLLM = res.UsedLLM

	r.logger.Info("Candidate pool assembled", map[string]interface{}{
		"operation":  "pool_assembled",
		"city":       constraints.City,
		"pool_size":  len(out.Pool),
		"target":     target,
		"used_map":   out.UsedMap,
		"used_llm":   out.UsedLLM,
		"unresolved": len(out.UnresolvedMust),
	})
	span.SetAttribute("pool_size", len(out.Pool))
	return out, nil
}

// finish applies the request-specific stages that must not be cached: pinning,
// avoid filtering, ranking, truncation.
func (r *Retriever) finish(pool []core.POI, constraints core.TripConstraints, profile core.UserProfile) *Result {
	pool, unresolved := ApplyMustVisit(pool, constraints.MustVisit)
	pool = ApplyAvoid(pool, constraints.Avoid)
	pool = Rank(pool, constraints, profile)

	if target := PoolSize(constraints); len(pool) > target {
		pool = pool[:target]
	}

	return &Result{Pool: pool, UnresolvedMust: unresolved}
}
