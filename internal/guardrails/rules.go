package guardrails

import (
	"regexp"
	"strings"
)

// Rule is one compiled detection pattern. The tables below are built
// once at init and never mutated; evaluators and tests read the same
// tables.
type Rule struct {
	Name     string
	Category Category
	Severity Severity
	Pattern  *regexp.Regexp

	// Placeholder replaces matches of PII rules in sanitized text.
	Placeholder string

	// ContextException suppresses a match when the surrounding text
	// contains this word, e.g. "medication" inside a grocery request.
	ContextException string
}

var injectionRules = []Rule{
	{Name: "ignore_instructions", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|commands?)`)},
	{Name: "system_role_spoof", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)system\s*:\s*`)},
	{Name: "assistant_role_spoof", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)assistant\s*:\s*`)},
	{Name: "human_role_spoof", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)human\s*:\s*`)},
	{Name: "pretend_role", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)pretend\s+(you\s+are|to\s+be)`)},
	{Name: "act_as_role", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)act\s+as\s+(if\s+)?you`)},
	{Name: "disregard_safety", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)disregard\s+(all\s+)?(safety|guidelines|rules)`)},
	{Name: "new_instruction", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)new\s+instruction`)},
	{Name: "jailbreak", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)jailbreak`)},
	{Name: "bypass_safety", Category: CategoryInjectionAttempt, Severity: SeverityCritical,
		Pattern: regexp.MustCompile(`(?i)bypass\s+(filter|guardrail|safety)`)},
}

var offTopicRules = []Rule{
	{Name: "financial_speculation", Category: CategoryTopicPolicy, Severity: SeverityLow,
		Pattern: regexp.MustCompile(`(?i)\b(bitcoin|crypto|cryptocurrency|forex|stock\s+market)\b`)},
	{Name: "credentials", Category: CategoryTopicPolicy, Severity: SeverityLow,
		Pattern: regexp.MustCompile(`(?i)\b(password|login|credential|api\s+key|secret\s+key)\b`)},
	{Name: "security_abuse", Category: CategoryTopicPolicy, Severity: SeverityLow,
		Pattern: regexp.MustCompile(`(?i)\b(hack|exploit|malware|virus|phishing)\b`)},
	{Name: "weapons", Category: CategoryTopicPolicy, Severity: SeverityLow,
		Pattern: regexp.MustCompile(`(?i)\b(weapon|ammunition|explosive|bomb)\b`)},
	{Name: "pharmaceutical", Category: CategoryTopicPolicy, Severity: SeverityLow,
		Pattern:          regexp.MustCompile(`(?i)\b(prescription|medication|pharmacy)\b`),
		ContextException: "grocery"},
}

// piiRules are applied in order; earlier rules consume their matches
// before later ones run, so credit cards are never re-matched as
// phone numbers.
var piiRules = []Rule{
	{Name: "credit_card", Category: CategoryPIIDetected, Severity: SeverityMedium, Placeholder: "[CREDIT_CARD]",
		Pattern: regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`)},
	{Name: "ssn", Category: CategoryPIIDetected, Severity: SeverityMedium, Placeholder: "[SSN]",
		Pattern: regexp.MustCompile(`\b\d{3}[- ]?\d{2}[- ]?\d{4}\b`)},
	{Name: "phone", Category: CategoryPIIDetected, Severity: SeverityMedium, Placeholder: "[PHONE]",
		Pattern: regexp.MustCompile(`\b(?:\+?1[- ]?)?\(?\d{3}\)?[- ]?\d{3}[- ]?\d{4}\b`)},
	{Name: "email", Category: CategoryPIIDetected, Severity: SeverityMedium, Placeholder: "[EMAIL]",
		Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)},
}

// InjectionRules returns the prompt-injection rule table.
func InjectionRules() []Rule { return injectionRules }

// OffTopicRules returns the off-topic keyword rule table.
func OffTopicRules() []Rule { return offTopicRules }

// PIIRules returns the PII detection and redaction rule table.
func PIIRules() []Rule { return piiRules }

// match returns the first text span the rule fires on, honoring the
// rule's context exception.
func (r Rule) match(text string) (string, bool) {
	m := r.Pattern.FindString(text)
	if m == "" {
		return "", false
	}
	if r.ContextException != "" && strings.Contains(strings.ToLower(text), r.ContextException) {
		return "", false
	}
	return m, true
}
