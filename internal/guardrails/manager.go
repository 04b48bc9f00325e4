package guardrails

import (
	"encoding/json"

	"cartparse/internal/telemetry"
)

// Manager composes the input and output evaluators behind one
// interface and folds provider-native safety verdicts into the same
// violation vocabulary, so callers handle a single violation model
// regardless of where a rule fired.
type Manager struct {
	input  *InputGuardrails
	output *OutputGuardrails
}

// NewManager builds both evaluators from one config. metrics may be
// nil.
func NewManager(cfg Config, metrics *telemetry.Metrics) *Manager {
	return &Manager{
		input:  NewInputGuardrails(cfg, metrics),
		output: NewOutputGuardrails(cfg, metrics),
	}
}

// EvaluateInput screens user text before invocation.
func (m *Manager) EvaluateInput(text string) Result {
	return m.input.Evaluate(text)
}

// EvaluateOutput screens a model response expected to carry JSON.
func (m *Manager) EvaluateOutput(response string) Result {
	return m.output.Evaluate(response)
}

// EvaluatePlainOutput screens a free-text response where no structured
// payload is expected.
func (m *Manager) EvaluatePlainOutput(response string) Result {
	return m.output.EvaluatePlain(response)
}

// providerVerdict mirrors the guardrail fields Bedrock attaches to an
// invocation response body.
type providerVerdict struct {
	GuardrailAction string `json:"amazon-bedrock-guardrailAction"`
	Trace           struct {
		Guardrail struct {
			InputAssessment *struct {
				ContentPolicy struct {
					Filters []struct {
						Type   string `json:"type"`
						Action string `json:"action"`
					} `json:"filters"`
				} `json:"contentPolicy"`
				TopicPolicy struct {
					Topics []struct {
						Name   string `json:"name"`
						Action string `json:"action"`
					} `json:"topics"`
				} `json:"topicPolicy"`
			} `json:"inputAssessment"`
		} `json:"guardrail"`
	} `json:"amazon-bedrock-trace"`
}

// TranslateProviderVerdict reads Bedrock's own guardrail verdict out
// of a raw response body and restates it as local violations. It
// reports whether the provider blocked the request. Bodies without
// guardrail fields translate to no violations.
func (m *Manager) TranslateProviderVerdict(body []byte) (bool, []Violation) {
	var verdict providerVerdict
	if err := json.Unmarshal(body, &verdict); err != nil {
		return false, nil
	}

	if verdict.GuardrailAction == "BLOCKED" {
		return true, []Violation{{
			Category: CategoryContentFilter,
			Severity: SeverityHigh,
			Action:   ActionBlock,
			Message:  "Request blocked by Bedrock Guardrails",
		}}
	}

	var violations []Violation
	if assessment := verdict.Trace.Guardrail.InputAssessment; assessment != nil {
		for _, f := range assessment.ContentPolicy.Filters {
			if f.Action == "BLOCKED" {
				violations = append(violations, Violation{
					Category: CategoryContentFilter,
					Severity: SeverityHigh,
					Action:   ActionBlock,
					Message:  "Content blocked: " + f.Type,
				})
			}
		}
		for _, t := range assessment.TopicPolicy.Topics {
			if t.Action == "BLOCKED" {
				violations = append(violations, Violation{
					Category: CategoryTopicPolicy,
					Severity: SeverityMedium,
					Action:   ActionBlock,
					Message:  "Topic blocked: " + t.Name,
				})
			}
		}
	}

	for _, v := range violations {
		if v.Action == ActionBlock {
			return true, violations
		}
	}
	return false, violations
}
