package guardrails

import (
	"fmt"
	"log/slog"
	"strings"

	"cartparse/internal/telemetry"
)

// InputGuardrails validates and sanitizes user text before it reaches
// the model.
type InputGuardrails struct {
	cfg     Config
	fuzzy   *FuzzyDetector
	fp      *Fingerprinter
	metrics *telemetry.Metrics
}

// NewInputGuardrails builds the input evaluator. metrics may be nil.
func NewInputGuardrails(cfg Config, metrics *telemetry.Metrics) *InputGuardrails {
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	return &InputGuardrails{
		cfg:     cfg,
		fuzzy:   NewFuzzyDetector(cfg.FuzzyThreshold),
		fp:      NewFingerprinter(cfg.FingerprintKey),
		metrics: metrics,
	}
}

// Evaluate runs the ordered input checks: structural validation,
// injection detection, off-topic detection, then PII redaction.
// Structural failures and policy-blocked injections short-circuit the
// remaining checks; off-topic matches are recorded without blocking,
// and PII is substituted with placeholder tokens in the sanitized
// text.
func (g *InputGuardrails) Evaluate(text string) Result {
	var violations []Violation
	malformed := g.cfg.Policy.ActionFor(CategoryMalformedInput)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		violations = append(violations, Violation{
			Category: CategoryMalformedInput,
			Severity: SeverityHigh,
			Action:   malformed,
			Message:  "Empty or null input provided",
		})
		return g.finish(text, violations)
	}

	if len(text) > g.cfg.MaxInputLength {
		violations = append(violations, Violation{
			Category: CategoryMalformedInput,
			Severity: SeverityMedium,
			Action:   malformed,
			Message:  fmt.Sprintf("Input exceeds maximum length of %d", g.cfg.MaxInputLength),
		})
		return g.finish(text, violations)
	}

	if len(trimmed) < g.cfg.MinInputLength {
		violations = append(violations, Violation{
			Category: CategoryMalformedInput,
			Severity: SeverityMedium,
			Action:   malformed,
			Message:  fmt.Sprintf("Input below minimum length of %d", g.cfg.MinInputLength),
		})
		return g.finish(text, violations)
	}

	if injections := g.checkInjection(text); len(injections) > 0 {
		violations = append(violations, injections...)
		if g.cfg.Policy.ActionFor(CategoryInjectionAttempt) == ActionBlock {
			return g.finish(text, violations)
		}
	}

	violations = append(violations, g.checkOffTopic(text)...)

	sanitized := text
	if action := g.cfg.Policy.ActionFor(CategoryPIIDetected); action != ActionAllow {
		var piiViolations []Violation
		sanitized, piiViolations = g.anonymizePII(text, action)
		violations = append(violations, piiViolations...)
	}

	return g.finish(sanitized, violations)
}

// checkInjection appends one violation per matching injection rule.
// When the rule table finds nothing, the fuzzy detector takes a second
// pass over the normalized text to catch obfuscated variants.
func (g *InputGuardrails) checkInjection(text string) []Violation {
	action := g.cfg.Policy.ActionFor(CategoryInjectionAttempt)
	if action == ActionAllow {
		return nil
	}

	var violations []Violation
	for _, rule := range InjectionRules() {
		if m, ok := rule.match(text); ok {
			violations = append(violations, Violation{
				Category:       rule.Category,
				Severity:       rule.Severity,
				Action:         action,
				Message:        "Potential prompt injection detected",
				MatchedContent: snippet(m),
			})
			slog.Error("Prompt injection detected",
				"rule", rule.Name,
				"pattern_matched", snippet(m),
			)
		}
	}
	if len(violations) > 0 {
		return violations
	}

	if det := g.fuzzy.Detect(text); det != nil {
		violations = append(violations, Violation{
			Category:       CategoryInjectionAttempt,
			Severity:       SeverityCritical,
			Action:         action,
			Message:        "Potential prompt injection detected",
			MatchedContent: snippet(det.Window),
		})
		slog.Error("Obfuscated prompt injection detected",
			"phrase", det.Phrase,
			"method", det.Method,
			"similarity", det.Similarity,
		)
	}
	return violations
}

// checkOffTopic records matches from the off-topic table. These never
// block under the default policy; the model is trusted to steer the
// conversation back to groceries.
func (g *InputGuardrails) checkOffTopic(text string) []Violation {
	action := g.cfg.Policy.ActionFor(CategoryTopicPolicy)
	if action == ActionAllow {
		return nil
	}

	var violations []Violation
	for _, rule := range OffTopicRules() {
		if m, ok := rule.match(text); ok {
			violations = append(violations, Violation{
				Category:       rule.Category,
				Severity:       rule.Severity,
				Action:         action,
				Message:        "Non-grocery content detected",
				MatchedContent: snippet(m),
			})
		}
	}
	return violations
}

// anonymizePII substitutes placeholder tokens for every PII match and
// records one violation per match. Violations carry a masked form of
// the value and a keyed fingerprint, never the raw match.
func (g *InputGuardrails) anonymizePII(text string, action Action) (string, []Violation) {
	sanitized := text
	var violations []Violation

	for _, rule := range PIIRules() {
		matches := rule.Pattern.FindAllString(sanitized, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			violations = append(violations, Violation{
				Category:       rule.Category,
				Severity:       rule.Severity,
				Action:         action,
				Message:        "PII detected: " + rule.Name,
				MatchedContent: MaskValue(m),
				Fingerprint:    g.fp.Fingerprint(m),
			})
		}
		if action == ActionAnonymize || action == ActionBlock {
			sanitized = rule.Pattern.ReplaceAllString(sanitized, rule.Placeholder)
		}
	}
	return sanitized, violations
}

// finish derives the allow decision, records metrics, and logs when
// anything matched.
func (g *InputGuardrails) finish(sanitized string, violations []Violation) Result {
	allowed := true
	for _, v := range violations {
		if v.Action == ActionBlock {
			allowed = false
		}
		g.metrics.RecordViolation(string(v.Category), string(v.Action))
	}

	if len(violations) > 0 {
		slog.Warn("Guardrail violations detected",
			"count", len(violations),
			"allowed", allowed,
			"category", string(violations[0].Category),
		)
	}

	return Result{Allowed: allowed, Violations: violations, Sanitized: sanitized}
}
