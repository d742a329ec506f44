package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const requestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["workflow", "target"],
  "additionalProperties": false,
  "properties": {
    "workflow": {
      "type": "string",
      "enum": ["seo_audit", "technical_seo", "keyword_tracking", "content_optimization", "competitor_analysis"]
    },
    "target": {"type": "string", "minLength": 1},
    "keywords": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "maxItems": 200
    },
    "competitors": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "maxItems": 25
    },
    "depth": {"type": "string", "enum": ["basic", "standard", "deep"]},
    "params": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "options": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "parallel": {"type": "boolean"},
        "step_timeout": {"type": "string", "minLength": 2},
        "max_retries": {"type": "integer", "minimum": 0, "maximum": 10},
        "retry_backoff": {"type": "string", "minLength": 2}
      }
    }
  }
}`

var requestSchema = jsonschema.MustCompileString("request.schema.json", requestSchemaJSON)

// ParseRequest validates the raw JSON body against the request schema and
// decodes it. Schema violations come back as *ValidationError so callers
// can map them to a 400 uniformly with ValidateRequest failures.
func ParseRequest(raw []byte) (Request, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Request{}, &ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := requestSchema.Validate(generic); err != nil {
		return Request{}, &ValidationError{Field: "body", Reason: err.Error()}
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, &ValidationError{Field: "body", Reason: err.Error()}
	}
	if err := ValidateRequest(req); err != nil {
		return Request{}, err
	}
	return req, nil
}
