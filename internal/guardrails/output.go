package guardrails

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"cartparse/internal/extract"
	"cartparse/internal/telemetry"
)

// extractionSchema describes the envelope the model is asked to
// produce. Schema mismatches are informational; the extractor is
// expected to salvage what it can from loosely conforming output.
var extractionSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"items"},
	"properties": map[string]interface{}{
		"items": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]interface{}{
					"name":           map[string]interface{}{"type": "string", "minLength": 1},
					"quantity":       map[string]interface{}{"type": []string{"number", "string"}},
					"unit":           map[string]interface{}{"type": "string"},
					"specifications": map[string]interface{}{"type": "array"},
					"confidence":     map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
					"original_text":  map[string]interface{}{"type": "string"},
				},
			},
		},
		"unrecognized_text": map[string]interface{}{"type": "array"},
		"parsing_notes":     map[string]interface{}{"type": "string"},
	},
}

// OutputGuardrails validates model responses before extraction:
// structural JSON checks block, shape and confidence checks only log.
type OutputGuardrails struct {
	cfg     Config
	metrics *telemetry.Metrics
}

// NewOutputGuardrails builds the output evaluator. metrics may be nil.
func NewOutputGuardrails(cfg Config, metrics *telemetry.Metrics) *OutputGuardrails {
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	return &OutputGuardrails{cfg: cfg, metrics: metrics}
}

// Evaluate checks a model response. Empty responses and responses with
// no recoverable JSON are blocked; an oversized item list, malformed
// items, low-confidence items, and schema mismatches are recorded
// without blocking.
func (g *OutputGuardrails) Evaluate(response string) Result {
	var violations []Violation
	malformed := g.cfg.Policy.ActionFor(CategoryMalformedInput)

	if strings.TrimSpace(response) == "" {
		violations = append(violations, Violation{
			Category: CategoryMalformedInput,
			Severity: SeverityHigh,
			Action:   malformed,
			Message:  "Empty response from model",
		})
		return g.finish(response, violations)
	}

	jsonText, ok := extract.LocateJSON(response)
	if !ok {
		violations = append(violations, Violation{
			Category: CategoryMalformedInput,
			Severity: SeverityHigh,
			Action:   malformed,
			Message:  "No valid JSON found in response",
		})
		return g.finish(response, violations)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		violations = append(violations, Violation{
			Category: CategoryMalformedInput,
			Severity: SeverityHigh,
			Action:   malformed,
			Message:  "Invalid JSON: " + err.Error(),
		})
		return g.finish(response, violations)
	}

	violations = append(violations, g.checkStructure(parsed)...)
	violations = append(violations, g.checkSchema(jsonText)...)

	return g.finish(response, violations)
}

// EvaluatePlain checks a free-text response where no structured
// payload is expected. Only the empty check applies.
func (g *OutputGuardrails) EvaluatePlain(response string) Result {
	if strings.TrimSpace(response) == "" {
		return g.finish(response, []Violation{{
			Category: CategoryMalformedInput,
			Severity: SeverityHigh,
			Action:   g.cfg.Policy.ActionFor(CategoryMalformedInput),
			Message:  "Empty response from model",
		}})
	}
	return Result{Allowed: true, Sanitized: response}
}

// checkStructure inspects the items list for shape problems worth
// surfacing to monitoring.
func (g *OutputGuardrails) checkStructure(parsed map[string]interface{}) []Violation {
	items, ok := parsed["items"].([]interface{})
	if !ok {
		return nil
	}

	var violations []Violation
	if len(items) > g.cfg.MaxOutputItems {
		violations = append(violations, Violation{
			Category: CategoryMalformedInput,
			Severity: SeverityMedium,
			Action:   ActionLog,
			Message:  fmt.Sprintf("Response contains too many items: %d", len(items)),
		})
	}

	for i, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			violations = append(violations, Violation{
				Category: CategoryMalformedInput,
				Severity: SeverityMedium,
				Action:   ActionLog,
				Message:  fmt.Sprintf("Item %d is not a valid object", i),
			})
			continue
		}

		confidence, _ := item["confidence"].(float64)
		if confidence < g.cfg.LowConfidenceFloor {
			name, _ := item["name"].(string)
			if name == "" {
				name = "unknown"
			}
			violations = append(violations, Violation{
				Category: CategoryMalformedInput,
				Severity: SeverityLow,
				Action:   ActionLog,
				Message:  fmt.Sprintf("Low confidence item: %s (%v)", name, confidence),
			})
		}
	}
	return violations
}

// checkSchema validates the located JSON against the extraction
// envelope schema. Failures are logged, never blocking.
func (g *OutputGuardrails) checkSchema(jsonText string) []Violation {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(extractionSchema),
		gojsonschema.NewStringLoader(jsonText),
	)
	if err != nil {
		slog.Warn("Schema validation failed to run", "error", err)
		return nil
	}
	if result.Valid() {
		return nil
	}

	var violations []Violation
	for _, desc := range result.Errors() {
		violations = append(violations, Violation{
			Category: CategoryMalformedInput,
			Severity: SeverityLow,
			Action:   ActionLog,
			Message:  "Schema violation: " + desc.String(),
		})
	}
	return violations
}

func (g *OutputGuardrails) finish(response string, violations []Violation) Result {
	allowed := true
	for _, v := range violations {
		if v.Action == ActionBlock {
			allowed = false
		}
		g.metrics.RecordViolation(string(v.Category), string(v.Action))
	}

	if !allowed {
		g.metrics.RecordOutputBlocked()
		blocking := Result{Violations: violations}.Blocking()
		slog.Warn("Model response blocked by output guardrails",
			"message", blocking.Message,
			"response_length", len(response),
		)
	}

	return Result{Allowed: allowed, Violations: violations, Sanitized: response}
}
