package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Request body schemas, embedded so the binary carries its own contract.
var schemaSources = map[string]string{
	"session-create": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["userId"],
		"properties": {
			"userId": {"type": "string", "minLength": 1, "maxLength": 128},
			"context": {"type": "object"}
		},
		"additionalProperties": false
	}`,
	"feedback": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["session_id", "product_id", "action"],
		"properties": {
			"session_id": {"type": "string", "format": "uuid"},
			"product_id": {"type": "string", "minLength": 1, "maxLength": 100},
			"action": {"type": "string", "enum": ["love", "like", "dislike", "skip", "neutral"]},
			"context": {"type": "object"},
			"idempotency_key": {"type": "string", "maxLength": 200}
		},
		"additionalProperties": false
	}`,
	"feedback-batch": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["feedbacks"],
		"properties": {
			"feedbacks": {
				"type": "array",
				"minItems": 1,
				"maxItems": 50,
				"items": {
					"type": "object",
					"required": ["session_id", "product_id", "action"],
					"properties": {
						"session_id": {"type": "string", "format": "uuid"},
						"product_id": {"type": "string", "minLength": 1},
						"action": {"type": "string", "enum": ["love", "like", "dislike", "skip", "neutral"]},
						"context": {"type": "object"},
						"idempotency_key": {"type": "string"}
					}
				}
			},
			"options": {
				"type": "object",
				"properties": {
					"continueOnError": {"type": "boolean"},
					"updateModelImmediately": {"type": "boolean"},
					"ignoreConflicts": {"type": "boolean"}
				},
				"additionalProperties": false
			}
		},
		"additionalProperties": false
	}`,
	"recommendations-batch": `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["requests"],
		"properties": {
			"requests": {
				"type": "array",
				"minItems": 1,
				"maxItems": 10,
				"items": {
					"type": "object",
					"required": ["sessionId"],
					"properties": {
						"sessionId": {"type": "string", "format": "uuid"},
						"count": {"type": "integer", "minimum": 1, "maximum": 20},
						"filters": {
							"type": "object",
							"properties": {
								"minPrice": {"type": "number", "minimum": 0},
								"maxPrice": {"type": "number", "minimum": 0},
								"category": {"type": "string"}
							},
							"additionalProperties": false
						}
					}
				}
			},
			"globalSettings": {"type": "object"}
		},
		"additionalProperties": false
	}`,
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// SchemaValidator validates request bodies against the embedded schemas.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema, len(schemaSources))}
	for name, source := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}
	return sv, nil
}

// ValidateBytes checks a raw JSON body against the named schema.
func (sv *SchemaValidator) ValidateBytes(schemaName string, body []byte) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("schema %q not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	if !json.Valid(body) {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "body",
				Message: "request body must be valid JSON",
				Code:    "INVALID_JSON",
			}},
		}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "body",
				Message: err.Error(),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    "SCHEMA_VIOLATION",
		})
	}
	return out
}
