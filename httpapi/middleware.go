package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/telemetry"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, traceID string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	body.TraceID = traceID
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps taxonomy codes onto HTTP statuses.
func statusFor(err error) (int, string) {
	code := core.TaxonomyCode(err)
	switch {
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrPlanNotFound):
		return http.StatusNotFound, code
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden, code
	}
	switch code {
	case core.CodeInputInvalid:
		return http.StatusUnprocessableEntity, code
	case core.CodeRateLimited:
		return http.StatusTooManyRequests, code
	case core.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout, code
	case core.CodeProviderUnavailable:
		return http.StatusServiceUnavailable, code
	default:
		return http.StatusInternalServerError, code
	}
}

// withAuth enforces the bearer token on one handler.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Auth.AllowUnauthenticated || s.cfg.Auth.BearerToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", "")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Auth.BearerToken)) != 1 {
			writeError(w, http.StatusForbidden, "unauthorized", "invalid bearer token", "")
			return
		}
		next(w, r)
	}
}

// observe wraps the whole mux with request logging and metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(routePattern(r), rec.status, elapsed)
		s.logger.Info("HTTP request served", map[string]interface{}{
			"operation":   "http_request",
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
		})
	})
}

// routePattern returns the matched route pattern (bounded cardinality) or
// the raw path when routing never matched.
func routePattern(r *http.Request) string {
	if p := r.Pattern; p != "" {
		if _, after, ok := strings.Cut(p, " "); ok {
			return after
		}
		return p
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// clientLimiter is a token bucket per client key. The key is the session id
// when the client sends one, the remote address otherwise.
type clientLimiter struct {
	cfg core.RateLimitConfig
	mu  sync.Mutex
	m   map[string]*rate.Limiter
}

func newClientLimiter(cfg core.RateLimitConfig) *clientLimiter {
	return &clientLimiter{cfg: cfg, m: make(map[string]*rate.Limiter)}
}

func (c *clientLimiter) allow(key string) bool {
	if !c.cfg.Enabled || c.cfg.Max <= 0 {
		return true
	}
	c.mu.Lock()
	limiter, ok := c.m[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.cfg.Window/time.Duration(c.cfg.Max)), c.cfg.Max)
		c.m[key] = limiter
	}
	c.mu.Unlock()
	return limiter.Allow()
}

// rateLimit rejects clients past their budget with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			s.metrics.Record(telemetry.MetricRateLimited, 1, nil)
			writeError(w, http.StatusTooManyRequests, core.CodeRateLimited, "request budget exhausted, retry later", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
