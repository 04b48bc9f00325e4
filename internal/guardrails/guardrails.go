// Package guardrails screens model input and output text against
// injection, topical, and PII rules and normalizes provider-native
// safety verdicts into the same violation vocabulary.
package guardrails

import (
	"fmt"
	"strings"
)

// Action is what the evaluator did about a violation.
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionBlock     Action = "BLOCK"
	ActionAnonymize Action = "ANONYMIZE"
	ActionLog       Action = "LOG"
)

// Category classifies a violation by the rule family that produced it.
type Category string

const (
	CategoryContentFilter    Category = "CONTENT_FILTER"
	CategoryTopicPolicy      Category = "TOPIC_POLICY"
	CategoryWordPolicy       Category = "WORD_POLICY"
	CategoryPIIDetected      Category = "PII_DETECTED"
	CategoryMalformedInput   Category = "MALFORMED_INPUT"
	CategoryInjectionAttempt Category = "INJECTION_ATTEMPT"
)

// Severity grades how serious a violation is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// matchedContentLimit caps how much of the offending text a violation
// carries, so raw input never leaks wholesale into logs or responses.
const matchedContentLimit = 50

// Violation is a single guardrail match.
type Violation struct {
	Category       Category `json:"violation_type"`
	Severity       Severity `json:"severity"`
	Action         Action   `json:"action_taken"`
	Message        string   `json:"message"`
	MatchedContent string   `json:"matched_content,omitempty"`
	Fingerprint    string   `json:"fingerprint,omitempty"`
}

// Result is the outcome of evaluating one piece of text.
// Sanitized always holds usable text: the original when nothing was
// redacted, the redacted form when PII was anonymized.
type Result struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`
	Sanitized  string      `json:"sanitized_text,omitempty"`
}

// Blocking returns the first BLOCK violation, or nil when the result
// carries none.
func (r Result) Blocking() *Violation {
	for i := range r.Violations {
		if r.Violations[i].Action == ActionBlock {
			return &r.Violations[i]
		}
	}
	return nil
}

// Policy maps violation categories to the action taken when a rule in
// that category matches. Categories absent from the map fall back to
// the built-in defaults.
type Policy map[Category]Action

// DefaultPolicy returns the stock category-to-action mapping: hard
// failures and injections block, off-topic mentions are logged only,
// and PII is redacted rather than rejected.
func DefaultPolicy() Policy {
	return Policy{
		CategoryMalformedInput:   ActionBlock,
		CategoryInjectionAttempt: ActionBlock,
		CategoryTopicPolicy:      ActionLog,
		CategoryWordPolicy:       ActionBlock,
		CategoryPIIDetected:      ActionAnonymize,
		CategoryContentFilter:    ActionBlock,
	}
}

// ActionFor resolves the action for a category, falling back to the
// default policy for categories the map does not mention.
func (p Policy) ActionFor(c Category) Action {
	if a, ok := p[c]; ok {
		return a
	}
	switch c {
	case CategoryTopicPolicy:
		return ActionLog
	case CategoryPIIDetected:
		return ActionAnonymize
	default:
		return ActionBlock
	}
}

// ParsePolicy builds a Policy from string pairs, typically sourced from
// configuration. Unknown categories or actions are rejected.
func ParsePolicy(raw map[string]string) (Policy, error) {
	if len(raw) == 0 {
		return DefaultPolicy(), nil
	}

	valid := map[Category]bool{
		CategoryContentFilter:    true,
		CategoryTopicPolicy:      true,
		CategoryWordPolicy:       true,
		CategoryPIIDetected:      true,
		CategoryMalformedInput:   true,
		CategoryInjectionAttempt: true,
	}
	actions := map[Action]bool{
		ActionAllow:     true,
		ActionBlock:     true,
		ActionAnonymize: true,
		ActionLog:       true,
	}

	policy := DefaultPolicy()
	for k, v := range raw {
		c := Category(strings.ToUpper(strings.TrimSpace(k)))
		a := Action(strings.ToUpper(strings.TrimSpace(v)))
		if !valid[c] {
			return nil, fmt.Errorf("unknown guardrail category %q", k)
		}
		if !actions[a] {
			return nil, fmt.Errorf("unknown guardrail action %q for category %q", v, k)
		}
		policy[c] = a
	}
	return policy, nil
}

// Config tunes both evaluators. Start from DefaultConfig; the zero
// value rejects everything.
type Config struct {
	MinInputLength     int
	MaxInputLength     int
	MaxOutputItems     int
	LowConfidenceFloor float64
	FuzzyThreshold     float64
	FingerprintKey     string
	Policy             Policy
}

// DefaultConfig returns the evaluator limits used in production.
func DefaultConfig() Config {
	return Config{
		MinInputLength:     3,
		MaxInputLength:     10000,
		MaxOutputItems:     100,
		LowConfidenceFloor: 0.5,
		FuzzyThreshold:     0.82,
		Policy:             DefaultPolicy(),
	}
}

// BlockedError is returned when input guardrails reject a request
// before it reaches the model.
type BlockedError struct {
	Violations []Violation
}

func (e *BlockedError) Error() string {
	if len(e.Violations) == 0 {
		return "request blocked by guardrails"
	}
	v := e.Violations[0]
	return fmt.Sprintf("request blocked by guardrails: %s (%s)", v.Message, v.Category)
}

// snippet truncates matched text for safe inclusion in violations.
func snippet(s string) string {
	if len(s) <= matchedContentLimit {
		return s
	}
	return s[:matchedContentLimit]
}
