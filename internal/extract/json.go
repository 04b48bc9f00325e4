package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonFenceRe    = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")
	genericFenceRe = regexp.MustCompile("```\\s*([\\s\\S]*?)\\s*```")
)

// LocateJSON finds the most plausible JSON document in free-form model
// output. It tries, in order: a ```json fenced block, a generic fenced
// block, the first balanced {...} span, and finally the whole trimmed
// text. The first candidate that is valid JSON wins.
func LocateJSON(text string) (string, bool) {
	for _, re := range []*regexp.Regexp{jsonFenceRe, genericFenceRe} {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			candidate := strings.TrimSpace(m[1])
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
	}

	if candidate, ok := balancedObject(text); ok {
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return trimmed, true
	}

	return "", false
}

// balancedObject returns the first {...} span with balanced braces,
// tracking string literals and escapes so braces inside values do not
// terminate the scan early.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// Braces inside string values are data, not structure.
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
