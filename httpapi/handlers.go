package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/pipeline"
	"github.com/djc-jpg/travel-planning-agent/session"
	"github.com/djc-jpg/travel-planning-agent/telemetry"
)

const maxBodyBytes = 1 << 20

// planRequest is the body of POST /plan and POST /chat.
type planRequest struct {
	SessionID string          `json:"session_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	Patch     *core.EditPatch `json:"patch,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	poi, route, llm := s.set.Snapshot(s.set.Map != nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"engine_version": s.flags.Load().EngineVersion,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"providers": map[string]string{
			"poi": poi, "route": route, "llm": llm,
		},
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePlanRequest(w, r)
	if !ok {
		return
	}
	s.runPlan(w, r.Context(), req)
}

// handleChat is the conversational alias of /plan: same body, same
// pipeline, but a missing message is answered with the clarify questions
// instead of an error.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePlanRequest(w, r)
	if !ok {
		return
	}
	s.runPlan(w, r.Context(), req)
}

func (s *Server) decodePlanRequest(w http.ResponseWriter, r *http.Request) (planRequest, bool) {
	var req planRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, core.CodeInputInvalid, "request body is not valid JSON", "")
		return planRequest{}, false
	}
	if req.Message == "" && req.Patch == nil {
		writeError(w, http.StatusUnprocessableEntity, core.CodeInputInvalid, "message or patch is required", "")
		return planRequest{}, false
	}
	return req, true
}

// runPlan serializes per-session work, runs the pipeline, persists the
// outcome, and answers with the full plan result.
func (s *Server) runPlan(w http.ResponseWriter, ctx context.Context, req planRequest) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	unlock := s.locks.Lock(req.SessionID)
	defer unlock()

	state, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		if !errors.Is(err, core.ErrSessionNotFound) {
			s.writeFailure(w, err, "")
			return
		}
		state = &session.State{ID: req.SessionID}
	}

	start := time.Now()
	result, err := s.pipeline.Plan(ctx, pipeline.Request{
		SessionID:      req.SessionID,
		RequestID:      req.RequestID,
		Message:        req.Message,
		Patch:          req.Patch,
		PriorItinerary: state.LastItinerary,
		Prior:          state.Constraints,
		PriorProfile:   state.Profile,
	})
	elapsed := time.Since(start)

	status := core.StatusError
	if result != nil {
		status = result.Status
	}
	s.metrics.ObservePlan(string(status), elapsed)

	if err != nil {
		traceID := ""
		if result != nil {
			traceID = result.TraceID
		}
		s.writeFailure(w, err, traceID)
		return
	}

	seq, seqErr := s.store.NextSeq(ctx, req.SessionID)
	if seqErr == nil {
		result.SessionSeq = seq
	}

	if result.Constraints != nil {
		state.Constraints = result.Constraints
	}
	if result.Profile != nil {
		state.Profile = result.Profile
	}
	if result.Status == core.StatusDone && result.Itinerary != nil {
		state.LastItinerary = result.Itinerary
		state.LastRequestID = result.RequestID
	}
	if err := s.store.Save(ctx, state); err != nil {
		s.logger.Warn("Session state not persisted", map[string]interface{}{
			"operation": "session_save_failed",
			"session":   req.SessionID,
			"error":     err.Error(),
		})
	}
	s.store.AppendHistory(ctx, req.SessionID, session.HistoryEntry{
		Seq:       seq,
		RequestID: result.RequestID,
		Message:   truncate(req.Message, 200),
		Status:    result.Status,
	})
	if result.Status == core.StatusDone {
		s.store.SavePlan(ctx, result.RequestID, result)
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	type lister interface {
		ActiveSessions(ctx context.Context) ([]string, error)
	}
	l, ok := s.store.(lister)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": []string{}})
		return
	}
	ids, err := l.ActiveSessions(r.Context())
	if err != nil {
		s.writeFailure(w, err, "")
		return
	}
	s.metrics.Record(telemetry.MetricSessionActive, float64(len(ids)), nil)
	if limit := limitParam(r); limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": ids})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := s.store.History(r.Context(), id, limitParam(r))
	if err != nil {
		s.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"history":    entries,
	})
}

// limitParam reads ?limit=N; zero means no cap.
func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")
	result, err := s.store.Plan(r.Context(), requestID)
	if err != nil {
		s.writeFailure(w, err, "")
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(session.ExportMarkdown(result)))
	case "json":
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusUnprocessableEntity, core.CodeInputInvalid, "format must be markdown or json", "")
	}
}

// handleMetrics is the JSON metrics view; the Prometheus exposition lives
// at /metrics/prometheus.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"pool_cache":     s.pipeline.CacheStats(),
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if token := s.cfg.Auth.DiagnosticsToken; token != "" {
		if r.Header.Get("X-Diagnostics-Token") != token {
			writeError(w, http.StatusForbidden, "unauthorized", "invalid diagnostics token", "")
			return
		}
	}

	poi, route, llm := s.set.Snapshot(s.set.Map != nil)
	breakers := make(map[string]interface{}, len(s.set.Breakers))
	for name, b := range s.set.Breakers {
		breakers[name] = b.Metrics()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engine_version": s.flags.Load().EngineVersion,
		"env_source":     s.cfg.EnvSource,
		"strict_mode":    s.cfg.Providers.StrictExternalData,
		"providers": map[string]string{
			"poi": poi, "route": route, "llm": llm,
		},
		"breakers":   breakers,
		"pool_cache": s.pipeline.CacheStats(),
	})
}

func (s *Server) writeFailure(w http.ResponseWriter, err error, traceID string) {
	status, code := statusFor(err)
	message := err.Error()
	var pe *core.PlanError
	if errors.As(err, &pe) && pe.Message != "" {
		message = pe.Message
	}
	writeError(w, status, code, message, traceID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
