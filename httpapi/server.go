// Package httpapi exposes the planner over HTTP: planning and chat
// endpoints, session inspection, plan export, health, metrics, and
// diagnostics. Handlers translate the error taxonomy into status codes and
// never leak internals in responses.
package httpapi

import (
	"net/http"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/pipeline"
	"github.com/djc-jpg/travel-planning-agent/providers"
	"github.com/djc-jpg/travel-planning-agent/session"
	"github.com/djc-jpg/travel-planning-agent/telemetry"
)

// Server wires the pipeline, the session store, and the middleware stack.
type Server struct {
	cfg      *core.Config
	pipeline *pipeline.Pipeline
	store    session.Store
	locks    *session.KeyedMutex
	set      *providers.Set
	metrics  *telemetry.Metrics
	limiter  *clientLimiter
	flags    *core.FlagHolder
	logger   core.Logger
	started  time.Time
}

// New creates the server. Metrics may be nil for tests; a fresh registry is
// created in that case.
func New(cfg *core.Config, p *pipeline.Pipeline, store session.Store, set *providers.Set, metrics *telemetry.Metrics, flags *core.FlagHolder, logger core.Logger) *Server {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	if flags == nil {
		flags = core.NewFlagHolder(core.RuntimeFlags{EngineVersion: core.EngineVersion})
	}
	return &Server{
		cfg:      cfg,
		pipeline: p,
		store:    store,
		locks:    session.NewKeyedMutex(),
		set:      set,
		metrics:  metrics,
		limiter:  newClientLimiter(cfg.RateLimit),
		flags:    flags,
		logger:   logger,
		started:  time.Now(),
	}
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated surface.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics/prometheus", s.metrics.Handler())

	// Authenticated API.
	mux.HandleFunc("POST /plan", s.withAuth(s.handlePlan))
	mux.HandleFunc("POST /chat", s.withAuth(s.handleChat))
	mux.HandleFunc("GET /sessions", s.withAuth(s.handleSessions))
	mux.HandleFunc("GET /sessions/{id}/history", s.withAuth(s.handleHistory))
	mux.HandleFunc("DELETE /sessions/{id}", s.withAuth(s.handleDeleteSession))
	mux.HandleFunc("GET /plans/{request_id}/export", s.withAuth(s.handleExport))
	mux.HandleFunc("GET /metrics", s.withAuth(s.handleMetrics))

	// Diagnostics carries its own token check.
	mux.HandleFunc("GET /diagnostics", s.handleDiagnostics)

	return s.cors(s.observe(s.rateLimit(mux)))
}
