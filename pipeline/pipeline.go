// Package pipeline drives one plan request through the fixed stage order:
// intake, clarify, retrieve, plan, validate, repair, finalize. Stages are
// deterministic functions over an explicit state record; the LLM only ever
// fills fields inside a stage, never chooses the next one.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/intake"
	"github.com/djc-jpg/travel-planning-agent/planner"
	"github.com/djc-jpg/travel-planning-agent/providers"
	"github.com/djc-jpg/travel-planning-agent/repair"
	"github.com/djc-jpg/travel-planning-agent/retrieval"
	"github.com/djc-jpg/travel-planning-agent/telemetry"
	"github.com/djc-jpg/travel-planning-agent/trust"
	"github.com/djc-jpg/travel-planning-agent/validate"
)

// Request is one planning request, fresh or follow-up.
type Request struct {
	SessionID string
	RequestID string
	Message   string

	// Patch short-circuits the pipeline to a local edit of PriorItinerary.
	Patch          *core.EditPatch
	PriorItinerary *core.Itinerary

	// Prior session state layered under the new message by intake.
	Prior        *core.TripConstraints
	PriorProfile *core.UserProfile
}

// Pipeline owns the stage components. One instance serves all requests.
type Pipeline struct {
	cfg       *core.Config
	set       *providers.Set
	parser    *intake.Parser
	retriever *retrieval.Retriever
	validator *validate.Validator
	repairer  *repair.Repairer
	calendar  planner.Calendar

	logger    core.Logger
	telemetry core.Telemetry
}

// New assembles a pipeline from configuration and a provider set.
func New(cfg *core.Config, set *providers.Set, knownCities []string) *Pipeline {
	cache := retrieval.NewPoolCache(0, 0)
	return &Pipeline{
		cfg:       cfg,
		set:       set,
		parser:    intake.NewParser(set.LLM, knownCities),
		retriever: retrieval.NewRetriever(set, cache, cfg.Providers.StrictExternalData),
		validator: validate.New(),
		repairer:  repair.New(),
		calendar:  planner.NewCalendar(cfg.Planning.SpringFestivalDate),
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger and propagates it to every stage.
func (p *Pipeline) SetLogger(logger core.Logger) {
	if logger == nil {
		return
	}
	p.logger = logger
	p.parser.SetLogger(logger)
	p.retriever.SetLogger(logger)
	p.validator.SetLogger(logger)
	p.repairer.SetLogger(logger)
}

// SetTelemetry sets the telemetry provider and propagates it.
func (p *Pipeline) SetTelemetry(telemetry core.Telemetry) {
	if telemetry == nil {
		return
	}
	p.telemetry = telemetry
	p.parser.SetTelemetry(telemetry)
	p.retriever.SetTelemetry(telemetry)
	p.repairer.SetTelemetry(telemetry)
	p.set.SetTelemetry(telemetry)
}

// CacheStats exposes the pool cache for diagnostics.
func (p *Pipeline) CacheStats() retrieval.CacheStats {
	return p.retriever.CacheStats()
}

// Plan runs one request to a terminal PlanResult. Recoverable failures
// degrade; everything else maps onto the error taxonomy.
func (p *Pipeline) Plan(ctx context.Context, req Request) (*core.PlanResult, error) {
	deadline := p.cfg.Planning.RequestDeadline
	if deadline <= 0 {
		deadline = core.DefaultRequestDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ctx, span := p.telemetry.StartSpan(ctx, "pipeline.Plan")
	defer span.End()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	traceID := uuid.NewString()
	span.SetAttribute("request_id", req.RequestID)
	span.SetAttribute("trace_id", traceID)

	result, err := p.run(ctx, req, traceID)
	if err != nil {
		if ctx.Err() != nil {
			err = &core.PlanError{
				Op:   "pipeline.Plan",
				Code: core.CodeDeadlineExceeded,
				Err:  core.ErrDeadlineExceeded,
			}
		}
		span.RecordError(err)
		p.logger.Error("Plan request failed", map[string]interface{}{
			"operation":  "plan_failed",
			"request_id": req.RequestID,
			"error":      err.Error(),
			"code":       core.TaxonomyCode(err),
		})
		return &core.PlanResult{
			Status:    core.StatusError,
			ErrorCode: core.TaxonomyCode(err),
			Message:   err.Error(),
			SessionID: req.SessionID,
			RequestID: req.RequestID,
			TraceID:   traceID,
		}, err
	}

	result.SessionID = req.SessionID
	result.RequestID = req.RequestID
	result.TraceID = traceID
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, traceID string) (*core.PlanResult, error) {
	// Edit patches skip intake and retrieval entirely: local change, full
	// re-validation.
	if req.Patch != nil {
		return p.runPatch(ctx, req, traceID)
	}

	outcome, err := p.parser.Parse(ctx, req.Message, req.Prior, req.PriorProfile)
	if err != nil {
		return nil, err
	}
	if len(outcome.Missing) > 0 {
		return &core.PlanResult{
			Status:        core.StatusClarifying,
			Message:       "I need a bit more before planning.",
			NextQuestions: outcome.Questions,
			FieldEvidence: outcome.FieldEvidence,
			Fingerprint:   p.fingerprint(false, false, traceID),
			Constraints:   &outcome.Constraints,
			Profile:       &outcome.Profile,
		}, nil
	}

	pool, err := p.retriever.Pool(ctx, outcome.Constraints, outcome.Profile)
	if err != nil {
		return nil, err
	}

	it, constraints, accepted, exhausted, err := p.planAndRepair(ctx, pool.Pool, outcome.Constraints, outcome.Profile)
	if err != nil {
		return nil, err
	}

	p.finalize(it, constraints, accepted, exhausted, pool.UnresolvedMust)
	fp := p.fingerprint(pool.UsedMap, pool.UsedLLM, traceID)

	return &core.PlanResult{
		Status:          core.StatusDone,
		Itinerary:       it,
		Issues:          it.Issues,
		DegradeLevel:    it.DegradeLevel,
		ConfidenceScore: it.ConfidenceScore,
		FieldEvidence:   outcome.FieldEvidence,
		Fingerprint:     fp,
		Constraints:     &constraints,
		Profile:         &outcome.Profile,
	}, nil
}

// planAndRepair runs the bounded build -> validate -> repair fixpoint loop.
// The repair edge is taken only for medium-or-higher issues; the exhausted
// flag reports a loop that ran out of rounds with such issues unresolved.
func (p *Pipeline) planAndRepair(ctx context.Context, pool []core.POI, constraints core.TripConstraints, profile core.UserProfile) (*core.Itinerary, core.TripConstraints, bool, bool, error) {
	maxRounds := p.cfg.Planning.MaxRepairRounds
	accepted := false
	exhausted := false
	lastScore := -1
	rounds := 0

	var it *core.Itinerary
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, constraints, false, false, err
		}

		scheduler := planner.NewScheduler(p.calendar, planner.BudgetOptions{
			FoodMinPerPersonPerDay: p.cfg.Planning.FoodMinPerPersonPerDay,
			TravelersCount:         profile.TravelersType.Count(),
		}, p.routeFunc(), p.set.RouteSource())
		scheduler.SetLogger(p.logger)
		scheduler.SetTelemetry(p.telemetry)

		built, schedIssues := scheduler.Build(ctx, pool, constraints, profile)
		it = built
		it.Issues = append(schedIssues, p.validator.Check(it, constraints)...)

		score := validate.SeverityScore(it.Issues)
		p.logger.Info("Plan round validated", map[string]interface{}{
			"operation": "plan_round",
			"round":     round,
			"issues":    len(it.Issues),
			"score":     score,
		})

		if !validate.NeedsRepair(it.Issues) {
			break
		}
		if round >= maxRounds {
			exhausted = true
			break
		}
		// A round that fails to strictly reduce the weighted score is not
		// progress; ship what we have rather than thrash.
		if lastScore >= 0 && score >= lastScore {
			accepted = true
			break
		}
		lastScore = score

		roundResult := p.repairer.Repair(ctx, it, it.Issues, pool, constraints)
		rounds++
		if roundResult.Accepted {
			accepted = true
			break
		}
		it.Assumptions = append(it.Assumptions, "repair: "+roundResult.Action)
		pool = roundResult.Pool
		constraints = roundResult.Constraints
	}

	p.telemetry.RecordMetric(telemetry.MetricRepairRounds, float64(rounds), nil)
	if validate.HasBlocking(it.Issues) {
		accepted = true
	}
	return it, constraints, accepted, exhausted, nil
}

// runPatch applies a chat edit to the prior plan and re-validates.
func (p *Pipeline) runPatch(ctx context.Context, req Request, traceID string) (*core.PlanResult, error) {
	if req.PriorItinerary == nil {
		return nil, &core.PlanError{
			Op:      "pipeline.runPatch",
			Code:    core.CodeInputInvalid,
			Message: "edit patch without a prior plan",
			Err:     core.ErrPlanNotFound,
		}
	}
	constraints := core.TripConstraints{}
	if req.Prior != nil {
		constraints = *req.Prior
	}
	profile := core.UserProfile{}
	if req.PriorProfile != nil {
		profile = *req.PriorProfile
	}

	it, err := repair.ApplyPatch(ctx, req.PriorItinerary, req.Patch, repair.PatchContext{
		Calendar: p.calendar,
		Budget: planner.BudgetOptions{
			FoodMinPerPersonPerDay: p.cfg.Planning.FoodMinPerPersonPerDay,
			TravelersCount:         profile.TravelersType.Count(),
		},
		Route:       p.routeFunc(),
		Constraints: constraints,
	})
	if err != nil {
		return nil, err
	}

	it.Issues = p.validator.Check(it, constraints)
	p.finalize(it, constraints, validate.HasBlocking(it.Issues), false, nil)

	return &core.PlanResult{
		Status:          core.StatusDone,
		Message:         fmt.Sprintf("applied %s", req.Patch.Op()),
		Itinerary:       it,
		Issues:          it.Issues,
		DegradeLevel:    it.DegradeLevel,
		ConfidenceScore: it.ConfidenceScore,
		Fingerprint:     p.fingerprint(false, false, traceID),
		Constraints:     &constraints,
		Profile:         &profile,
	}, nil
}

// finalize stamps trust metadata, degrade level, and budget warnings.
func (p *Pipeline) finalize(it *core.Itinerary, constraints core.TripConstraints, accepted, exhausted bool, unresolvedMust []string) {
	realtime := p.set.RouteSource() != "fixture"
	trust.Apply(it, realtime)
	switch {
	case exhausted:
		it.DegradeLevel = core.DegradeL3
		it.Assumptions = append(it.Assumptions,
			"repair rounds exhausted with open issues; treat the whole plan as a draft")
	case accepted:
		it.DegradeLevel = it.DegradeLevel.Elevate()
		it.Assumptions = append(it.Assumptions,
			"plan shipped with unresolved issues; treat timings as estimates")
	}

	for _, name := range unresolvedMust {
		it.Assumptions = append(it.Assumptions,
			fmt.Sprintf("could not find %q in any data source; it is not scheduled", name))
	}

	for _, issue := range it.Issues {
		if issue.Code == core.IssueBudgetUnrealistic {
			it.BudgetWarning = fmt.Sprintf(
				"the stated budget is below the feasible floor of %.0f; the plan keeps free and low-cost options first",
				it.MinimumFeasibleBudget)
		}
	}
	if constraints.DailyBudget > 0 && it.BudgetWarning == "" {
		total := constraints.DailyBudget * float64(constraints.Days)
		if it.TotalCost > total {
			it.BudgetWarning = fmt.Sprintf("estimated cost %.0f runs %.0f over the stated budget", it.TotalCost, it.TotalCost-total)
		}
	}
}

// routeFunc adapts the provider to the scheduler's callback.
func (p *Pipeline) routeFunc() planner.RouteFunc {
	route := p.set.Route
	if route == nil {
		return nil
	}
	return func(ctx context.Context, from, to core.POI, mode core.TransportMode) (float64, float64, error) {
		minutes, confidence, err := route.Route(ctx, from, to, mode)
		if err != nil && !errors.Is(err, context.Canceled) {
			// Scheduler falls back to the haversine estimate on error.
			return 0, 0, err
		}
		return minutes, confidence, err
	}
}

func (p *Pipeline) fingerprint(usedMap, usedLLM bool, traceID string) core.RunFingerprint {
	poi, route, llm := p.set.Snapshot(usedMap)
	if !usedLLM && llm == "llm" {
		llm = "none"
	}
	return trust.Fingerprint(trust.ProviderSnapshot{
		PoiProvider:   poi,
		RouteProvider: route,
		LLMProvider:   llm,
	}, p.cfg.Providers.StrictExternalData, p.cfg.EnvSource, traceID)
}
