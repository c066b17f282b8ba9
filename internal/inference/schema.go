package inference

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Backends must answer with {"decision": {...}}. Anything that fails this
// schema degrades to an idle decision upstream; no partial decisions.
const decisionSchemaSrc = `{
  "type": "object",
  "required": ["decision"],
  "properties": {
    "decision": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"enum": ["speak", "act", "idle"]},
        "text": {"type": "string", "maxLength": 512},
        "skill": {"type": "string"},
        "params": {"type": "object"},
        "reason": {"type": "string"}
      },
      "allOf": [
        {
          "if": {"properties": {"kind": {"const": "speak"}}},
          "then": {"required": ["text"]}
        },
        {
          "if": {"properties": {"kind": {"const": "act"}}},
          "then": {"required": ["skill"]}
        }
      ]
    }
  }
}`

var decisionSchema = jsonschema.MustCompileString("decision.schema.json", decisionSchemaSrc)

type decisionEnvelope struct {
	Decision Decision `json:"decision"`
}

// ParseDecision decodes and validates a raw backend response. Callers treat
// any error as a malformed response and fall back to IdleDecision.
func ParseDecision(raw []byte) (Decision, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Decision{}, fmt.Errorf("decision: %w", err)
	}
	if err := decisionSchema.Validate(doc); err != nil {
		return Decision{}, fmt.Errorf("decision: %w", err)
	}
	var env decisionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Decision{}, fmt.Errorf("decision: %w", err)
	}
	return env.Decision, nil
}
