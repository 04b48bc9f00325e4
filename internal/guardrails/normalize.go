package guardrails

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// homoglyphs maps common lookalike runes to their ASCII equivalents so
// Cyrillic or fullwidth disguises of injection phrases still match.
var homoglyphs = map[rune]rune{
	// Cyrillic
	'а': 'a', 'А': 'A',
	'е': 'e', 'Е': 'E',
	'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P',
	'с': 'c', 'С': 'C',
	'у': 'y', 'У': 'Y',
	'х': 'x', 'Х': 'X',
	'і': 'i', 'І': 'I',
	'ј': 'j', 'Ј': 'J',

	// Greek
	'α': 'a', 'Α': 'A',
	'ε': 'e', 'Ε': 'E',
	'ο': 'o', 'Ο': 'O',
	'ρ': 'p', 'Ρ': 'P',
	'τ': 't', 'Τ': 'T',
	'υ': 'u', 'Υ': 'Y',

	// Latin oddballs
	'ı': 'i',
	'ł': 'l',
	'ø': 'o',
	'ß': 's',
}

// leetSubstitutions maps digit and symbol stand-ins back to letters.
var leetSubstitutions = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
	'+': 't',
	'|': 'l',
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeText folds evasion tricks out of text before fuzzy phrase
// matching: NFKC compatibility normalization, lowercasing, homoglyph
// and l33t substitution, whitespace collapsing, and removal of
// zero-width characters. It is intended only for phrase detection;
// the substitutions destroy digits, so never run PII rules on the
// normalized form.
func NormalizeText(input string) string {
	result := strings.ToLower(norm.NFKC.String(input))

	var b strings.Builder
	b.Grow(len(result))
	for _, r := range result {
		if sub, ok := homoglyphs[r]; ok {
			b.WriteRune(sub)
			continue
		}
		if sub, ok := leetSubstitutions[r]; ok {
			b.WriteRune(sub)
			continue
		}
		if isInvisible(r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// isInvisible reports zero-width and control characters that carry no
// visible content. Space, tab, and newline survive for the whitespace
// collapse pass.
func isInvisible(r rune) bool {
	switch r {
	case ' ', '\t', '\n':
		return false
	case '\u200b', '\u200c', '\u200d', '\u200e', '\u200f',
		'\u2060', '\u2061', '\u2062', '\u2063', '\u2064',
		'\ufeff':
		return true
	}
	return unicode.IsControl(r)
}
