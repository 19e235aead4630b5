package httpapi

import (
	"net/http"
	"strconv"
	"strings"
)

// cors answers preflight requests and stamps CORS headers on allowed
// origins. A no-op when CORS is disabled.
func (s *Server) cors(next http.Handler) http.Handler {
	cfg := s.cfg.CORS
	if !cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); originAllowed(origin, cfg.AllowedOrigins) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if len(cfg.AllowedMethods) > 0 {
				h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
			}
			if len(cfg.AllowedHeaders) > 0 {
				h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
			}
			if cfg.MaxAgeSeconds > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAgeSeconds))
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed matches an origin against the allow list: "*", exact values,
// "*.example.com" subdomain wildcards, and "http://localhost:*" port
// wildcards. Same-origin requests carry no Origin header and need no CORS.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, pattern := range allowed {
		switch {
		case pattern == "*", pattern == origin:
			return true
		case strings.Contains(pattern, "*."):
			idx := strings.Index(pattern, "*.")
			prefix, suffix := pattern[:idx], pattern[idx+2:]
			if !strings.HasPrefix(origin, prefix) || !strings.HasSuffix(origin, suffix) {
				continue
			}
			// The wildcard must cover at least one full subdomain label.
			middle := strings.TrimSuffix(origin[len(prefix):], suffix)
			if middle != "" && strings.HasSuffix(middle, ".") {
				return true
			}
		case strings.HasSuffix(pattern, ":*"):
			base := strings.TrimSuffix(pattern, ":*")
			if strings.HasPrefix(origin, base+":") {
				return true
			}
		}
	}
	return false
}
