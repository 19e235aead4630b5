package intake

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// extractionSchema constrains what the LLM extraction step may return.
// Anything outside it is rejected and the heuristic parser takes over.
const extractionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "city": {"type": ["string", "null"]},
    "days": {"type": ["integer", "null"], "minimum": 1, "maximum": 30},
    "date_start": {"type": ["string", "null"], "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "date_end": {"type": ["string", "null"], "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "daily_budget": {"type": ["number", "null"], "minimum": 0},
    "transport_mode": {"enum": ["walking", "public_transit", "taxi", "driving", null]},
    "pace": {"enum": ["relaxed", "moderate", "intensive", null]},
    "travelers_type": {"enum": ["solo", "couple", "family", "friends", "elderly", null]},
    "must_visit": {"type": "array", "items": {"type": "string"}},
    "avoid": {"type": "array", "items": {"type": "string"}},
    "themes": {"type": "array", "items": {"type": "string"}},
    "dietary": {"type": "array", "items": {"type": "string"}},
    "holiday_hint": {"type": ["string", "null"]},
    "evidence": {"type": "object", "additionalProperties": {"type": "string"}}
  },
  "additionalProperties": false
}`

// compileExtractionSchema compiles the schema once at package init.
func compileExtractionSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(extractionSchema)))
	if err != nil {
		panic(fmt.Sprintf("intake: invalid extraction schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("intake-extraction.json", doc); err != nil {
		panic(fmt.Sprintf("intake: add schema resource: %v", err))
	}
	schema, err := compiler.Compile("intake-extraction.json")
	if err != nil {
		panic(fmt.Sprintf("intake: compile extraction schema: %v", err))
	}
	return schema
}

var compiledSchema = compileExtractionSchema()
