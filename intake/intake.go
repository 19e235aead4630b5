// Package intake turns free-form trip requests into validated constraints
// and a traveler profile. An LLM extraction pass runs first when a model is
// configured; a regex safety net covers everything the model misses or when
// no model is available. Missing required fields become clarify questions.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/providers"
)

// extracted is the working record both extraction passes fill in.
type extracted struct {
	City          string             `json:"city"`
	Days          int                `json:"days"`
	DateStart     string             `json:"date_start"`
	DateEnd       string             `json:"date_end"`
	DailyBudget   float64            `json:"daily_budget"`
	TransportMode core.TransportMode `json:"transport_mode"`
	Pace          core.Pace          `json:"pace"`
	TravelersType core.TravelersType `json:"travelers_type"`
	MustVisit     []string           `json:"must_visit"`
	Avoid         []string           `json:"avoid"`
	Themes        []string           `json:"themes"`
	Dietary       []string           `json:"dietary"`
	HolidayHint   string             `json:"holiday_hint"`
	Evidence      map[string]string  `json:"evidence"`
}

// Outcome is the intake result for one message.
type Outcome struct {
	Constraints   core.TripConstraints
	Profile       core.UserProfile
	FieldEvidence map[string]string
	// Missing lists required fields still unknown; non-empty Missing means
	// the pipeline should clarify instead of planning.
	Missing   []string
	Questions []string
}

// Parser extracts trip fields from user text.
type Parser struct {
	llm providers.LLMProvider // nil: heuristics only
	// knownCities seeds city detection for the regex pass, usually the
	// curated dataset's coverage.
	knownCities []string

	logger    core.Logger
	telemetry core.Telemetry
}

// NewParser creates a parser. llm may be nil.
func NewParser(llm providers.LLMProvider, knownCities []string) *Parser {
	return &Parser{
		llm:         llm,
		knownCities: knownCities,
		logger:      &core.NoOpLogger{},
		telemetry:   &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger provider.
func (p *Parser) SetLogger(logger core.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// SetTelemetry sets the telemetry provider.
func (p *Parser) SetTelemetry(telemetry core.Telemetry) {
	if telemetry != nil {
		p.telemetry = telemetry
	}
}

const extractionPrompt = `Extract trip planning fields from the user message below.
Respond with ONLY a JSON object matching this shape (null for anything not stated):
{"city": string|null, "days": integer|null, "date_start": "YYYY-MM-DD"|null, "date_end": "YYYY-MM-DD"|null,
 "daily_budget": number|null, "transport_mode": "walking"|"public_transit"|"taxi"|"driving"|null,
 "pace": "relaxed"|"moderate"|"intensive"|null, "travelers_type": "solo"|"couple"|"family"|"friends"|"elderly"|null,
 "must_visit": [string], "avoid": [string], "themes": [string], "dietary": [string],
 "holiday_hint": string|null, "evidence": {"field": "verbatim quote from the message"}}
Never invent values the message does not state.

User message:
%s`

// Parse extracts fields from the message, layered over any prior state from
// the session. Prior values survive unless the new message overrides them.
func (p *Parser) Parse(ctx context.Context, message string, prior *core.TripConstraints, priorProfile *core.UserProfile) (*Outcome, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "intake.Parse")
	defer span.End()
	span.SetAttribute("message_length", len(message))

	fields := extracted{Evidence: map[string]string{}}

	if p.llm != nil {
		if err := p.llmExtract(ctx, message, &fields); err != nil {
			p.logger.Warn("LLM extraction failed, using heuristics only", map[string]interface{}{
				"operation": "intake_llm_degraded",
				"error":     err.Error(),
			})
			span.RecordError(err)
		}
	}
	heuristicParse(message, p.knownCities, &fields)
	mergePrior(&fields, prior, priorProfile)
	applyDefaults(&fields)

	out := &Outcome{
		Constraints: core.TripConstraints{
			City:          fields.City,
			Days:          fields.Days,
			DateStart:     fields.DateStart,
			DateEnd:       fields.DateEnd,
			DailyBudget:   fields.DailyBudget,
			TransportMode: fields.TransportMode,
			Pace:          fields.Pace,
			MustVisit:     fields.MustVisit,
			Avoid:         fields.Avoid,
			HolidayHint:   fields.HolidayHint,
		},
		Profile: core.UserProfile{
			TravelersType: fields.TravelersType,
			Themes:        fields.Themes,
			Dietary:       fields.Dietary,
		},
		FieldEvidence: fields.Evidence,
	}
	out.Missing = missingFields(out.Constraints)
	out.Questions = clarifyQuestions(out.Constraints, out.Missing)

	p.logger.Info("Intake parsed", map[string]interface{}{
		"operation": "intake_parse",
		"city":      out.Constraints.City,
		"days":      out.Constraints.Days,
		"missing":   out.Missing,
	})
	return out, nil
}

const strictSystemPrompt = "You extract structured data. Your previous output was not valid JSON. " +
	"Respond with exactly one JSON object and nothing else: no prose, no markdown fences."

// llmExtract runs the model pass and folds schema-valid output into fields.
// Unparseable output gets one retry with a stricter system prompt; transport
// errors do not, the resilience layer already covers those.
func (p *Parser) llmExtract(ctx context.Context, message string, fields *extracted) error {
	err := p.extractOnce(ctx, message, "You extract structured data. You respond with strict JSON only.", fields)
	if err == nil || !errors.Is(err, core.ErrProviderResponse) {
		return err
	}
	p.logger.Warn("Extraction output unparseable, retrying with strict prompt", map[string]interface{}{
		"operation": "intake_llm_retry",
		"error":     err.Error(),
	})
	return p.extractOnce(ctx, message, strictSystemPrompt, fields)
}

func (p *Parser) extractOnce(ctx context.Context, message, systemPrompt string, fields *extracted) error {
	raw, err := p.llm.Generate(ctx, fmt.Sprintf(extractionPrompt, message), &providers.GenerateOptions{
		Temperature:  0,
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return err
	}

	cleaned := extractJSON(raw)

	// Validate against the schema before trusting a single field.
	var instance interface{}
	if err := json.Unmarshal([]byte(cleaned), &instance); err != nil {
		return &core.PlanError{
			Op:      "intake.llmExtract",
			Code:    core.CodeProviderUnavailable,
			Message: "extraction output is not JSON",
			Err:     core.ErrProviderResponse,
		}
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return &core.PlanError{
			Op:      "intake.llmExtract",
			Code:    core.CodeProviderUnavailable,
			Message: "extraction output failed schema validation",
			Err:     core.ErrProviderResponse,
		}
	}

	var parsed extracted
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return err
	}
	if parsed.Evidence == nil {
		parsed.Evidence = map[string]string{}
	}

	fields.City = parsed.City
	fields.Days = parsed.Days
	fields.DateStart = parsed.DateStart
	fields.DateEnd = parsed.DateEnd
	fields.DailyBudget = parsed.DailyBudget
	fields.TransportMode = parsed.TransportMode
	fields.Pace = parsed.Pace
	fields.TravelersType = parsed.TravelersType
	fields.MustVisit = parsed.MustVisit
	fields.Avoid = parsed.Avoid
	fields.Themes = parsed.Themes
	fields.Dietary = parsed.Dietary
	fields.HolidayHint = parsed.HolidayHint
	for k, v := range parsed.Evidence {
		fields.Evidence[k] = v
	}
	return nil
}

// mergePrior fills gaps from session state. The new message always wins where
// it stated something.
func mergePrior(fields *extracted, prior *core.TripConstraints, priorProfile *core.UserProfile) {
	if prior != nil {
		if fields.City == "" {
			fields.City = prior.City
		}
		if fields.Days == 0 {
			fields.Days = prior.Days
		}
		if fields.DateStart == "" {
			fields.DateStart = prior.DateStart
			fields.DateEnd = prior.DateEnd
		}
		if fields.DailyBudget == 0 {
			fields.DailyBudget = prior.DailyBudget
		}
		if fields.TransportMode == "" {
			fields.TransportMode = prior.TransportMode
		}
		if fields.Pace == "" {
			fields.Pace = prior.Pace
		}
		if len(fields.MustVisit) == 0 {
			fields.MustVisit = prior.MustVisit
		}
		if len(fields.Avoid) == 0 {
			fields.Avoid = prior.Avoid
		}
		if fields.HolidayHint == "" {
			fields.HolidayHint = prior.HolidayHint
		}
	}
	if priorProfile != nil {
		if fields.TravelersType == "" {
			fields.TravelersType = priorProfile.TravelersType
		}
		if len(fields.Themes) == 0 {
			fields.Themes = priorProfile.Themes
		}
		if len(fields.Dietary) == 0 {
			fields.Dietary = priorProfile.Dietary
		}
	}
}

// applyDefaults fills soft fields that have safe assumptions. City and days
// never default; they are the clarify triggers.
func applyDefaults(fields *extracted) {
	if !fields.TransportMode.Valid() {
		fields.TransportMode = core.TransportPublicTransit
	}
	if !fields.Pace.Valid() {
		fields.Pace = core.PaceModerate
	}
	if fields.TravelersType == "" {
		fields.TravelersType = core.TravelersCouple
	}
	if fields.Days < 0 || fields.Days > 30 {
		fields.Days = 0
	}
}

// missingFields lists required fields still unset.
func missingFields(c core.TripConstraints) []string {
	var missing []string
	if strings.TrimSpace(c.City) == "" {
		missing = append(missing, "city")
	}
	if c.Days <= 0 {
		missing = append(missing, "days")
	}
	return missing
}

// clarifyQuestions produces one to three questions, highest-priority gaps
// first: city, days, dates, budget, themes.
func clarifyQuestions(c core.TripConstraints, missing []string) []string {
	if len(missing) == 0 {
		return nil
	}
	var qs []string
	for _, field := range missing {
		switch field {
		case "city":
			qs = append(qs, "Which city are you planning to visit?")
		case "days":
			qs = append(qs, "How many days will your trip last?")
		}
	}
	if c.DateStart == "" && len(qs) < 3 {
		qs = append(qs, "Do you have travel dates in mind? Holidays change queues and prices.")
	}
	if c.DailyBudget == 0 && len(qs) < 3 {
		qs = append(qs, "Roughly what daily budget per person should I plan around?")
	}
	if len(qs) > 3 {
		qs = qs[:3]
	}
	return qs
}

// extractJSON strips markdown fences and surrounding prose from model output.
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
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			return s[start : end+1]
		}
	}
	return s
}
