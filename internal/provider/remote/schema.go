package remote

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// analyzeResponseSchema constrains the provider's success payload before any
// of it reaches the pipeline. Field values are tagged scalars; line items
// only appear for receipts.
const analyzeResponseSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["fields"],
	"properties": {
		"fields": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"additionalProperties": false,
				"required": ["type", "value", "confidence"],
				"properties": {
					"type": {"enum": ["string", "number", "date"]},
					"value": {"type": ["string", "number"]},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		},
		"line_items": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["description", "quantity", "unit_price", "line_total", "confidence"],
				"properties": {
					"description": {"type": "string"},
					"quantity": {"type": "number"},
					"unit_price": {"type": "number"},
					"line_total": {"type": "number"},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}
}`

var compiledResponseSchema = jsonschema.MustCompileString("analyze_response.json", analyzeResponseSchema)
