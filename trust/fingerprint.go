package trust

import (
	"github.com/djc-jpg/travel-planning-agent/core"
)

// ProviderSnapshot names the providers that actually served a request.
type ProviderSnapshot struct {
	PoiProvider   string
	RouteProvider string
	LLMProvider   string
}

// realtime providers; everything else counts as degraded for the run mode.
var realtimeProviders = map[string]bool{
	"real":  true,
	"amap":  true,
	"llm":   true,
	"map":   true,
	"live":  true,
	"redis": true,
}

// Fingerprint builds the run fingerprint for a served request. The run mode
// is REALTIME only when both the POI and route providers are live services;
// any fixture or curated fallback marks the run DEGRADED.
func Fingerprint(snap ProviderSnapshot, strict bool, envSource, traceID string) core.RunFingerprint {
	mode := core.RunModeDegraded
	if realtimeProviders[snap.PoiProvider] && realtimeProviders[snap.RouteProvider] {
		mode = core.RunModeRealtime
	}
	return core.RunFingerprint{
		RunMode:            mode,
		PoiProvider:        snap.PoiProvider,
		RouteProvider:      snap.RouteProvider,
		LLMProvider:        snap.LLMProvider,
		StrictExternalData: strict,
		EnvSource:          envSource,
		TraceID:            traceID,
	}
}
