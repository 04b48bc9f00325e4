package guardrails

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// PhraseEntry is a canonical injection phrase and its common rewordings.
// The fuzzy layer catches typo'd and obfuscated variants of these that
// slip past the exact regex rules.
type PhraseEntry struct {
	Primary  string
	Variants []string
}

// canonicalInjectionPhrases are the cleartext forms of the attacks the
// injection rule table targets. Short phrases that sit within two
// edits of everyday English ("new instructions", "act as you") are
// deliberately absent; the exact rules cover those, and fuzzy matching
// them would flag ordinary requests.
var canonicalInjectionPhrases = []PhraseEntry{
	{Primary: "ignore previous instructions", Variants: []string{"ignore prior instructions", "ignore above instructions", "ignore all previous instructions"}},
	{Primary: "disregard safety guidelines", Variants: []string{"disregard all safety rules"}},
	{Primary: "pretend you are", Variants: []string{"pretend to be"}},
	{Primary: "jailbreak", Variants: []string{"jail break", "jail-break"}},
	{Primary: "bypass safety filters", Variants: []string{"bypass the filter", "bypass guardrails"}},
}

// Detection describes how a fuzzy phrase match was found.
type Detection struct {
	Phrase     string
	Window     string
	Similarity float64
	Method     string // "exact", "normalized", "fuzzy", or "word"
}

// FuzzyDetector finds obfuscated injection phrases using layered
// matching: exact substring, substring on normalized text, sliding
// window Levenshtein similarity, and word-level Jaccard overlap.
type FuzzyDetector struct {
	threshold float64
	phrases   []PhraseEntry
}

// NewFuzzyDetector builds a detector over the canonical injection
// phrases. threshold is the base similarity cutoff; values outside
// (0, 1] fall back to 0.82.
func NewFuzzyDetector(threshold float64) *FuzzyDetector {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.82
	}
	return &FuzzyDetector{threshold: threshold, phrases: canonicalInjectionPhrases}
}

// Detect scans text for any canonical phrase. It returns nil when the
// text is clean.
func (d *FuzzyDetector) Detect(text string) *Detection {
	lower := strings.ToLower(text)
	normalized := NormalizeText(text)

	for _, entry := range d.phrases {
		for _, phrase := range append([]string{entry.Primary}, entry.Variants...) {
			phrase = strings.ToLower(phrase)
			threshold := d.adaptiveThreshold(len(phrase))

			if strings.Contains(lower, phrase) {
				return &Detection{Phrase: phrase, Window: phrase, Similarity: 1.0, Method: "exact"}
			}
			if normalized != lower && strings.Contains(normalized, phrase) {
				return &Detection{Phrase: phrase, Window: phrase, Similarity: 0.98, Method: "normalized"}
			}
			if sim, window, ok := fuzzyWindow(normalized, phrase, threshold); ok {
				return &Detection{Phrase: phrase, Window: window, Similarity: sim, Method: "fuzzy"}
			}
			if sim, ok := wordWindow(normalized, phrase, threshold*0.9); ok {
				return &Detection{Phrase: phrase, Window: phrase, Similarity: sim, Method: "word"}
			}
		}
	}
	return nil
}

// adaptiveThreshold loosens the cutoff for short phrases, where a
// single edit is a large relative distance, and tightens it for long
// ones.
func (d *FuzzyDetector) adaptiveThreshold(phraseLen int) float64 {
	t := d.threshold
	switch {
	case phraseLen < 10:
		t -= 0.10
	case phraseLen < 15:
		t -= 0.05
	case phraseLen >= 30:
		t += 0.05
	}
	if t < 0.65 {
		t = 0.65
	}
	if t > 0.98 {
		t = 0.98
	}
	return t
}

// similarity is 1 - distance/maxLen over the Levenshtein edit distance.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// fuzzyWindow slides windows of phrase length ±20% across text and
// reports the best similarity above threshold.
func fuzzyWindow(text, phrase string, threshold float64) (float64, string, bool) {
	if len(phrase) == 0 {
		return 0, "", false
	}
	if len(text) < len(phrase) {
		if sim := similarity(text, phrase); sim >= threshold {
			return sim, text, true
		}
		return 0, "", false
	}

	minSize := len(phrase) * 8 / 10
	if minSize < 1 {
		minSize = 1
	}
	maxSize := len(phrase) * 12 / 10
	if maxSize > len(text) {
		maxSize = len(text)
	}

	best := 0.0
	bestWindow := ""
	for size := minSize; size <= maxSize; size++ {
		for i := 0; i+size <= len(text); i++ {
			window := text[i : i+size]
			sim := similarity(phrase, window)
			if sim >= 0.95 {
				return sim, window, true
			}
			if sim > best {
				best = sim
				bestWindow = window
			}
		}
	}
	if best >= threshold {
		return best, bestWindow, true
	}
	return 0, "", false
}

var wordRe = regexp.MustCompile(`[a-z]+`)

// wordWindow compares word sets with Jaccard similarity over a sliding
// window the width of the phrase, catching reordered or padded
// variants that defeat character-level matching.
func wordWindow(text, phrase string, threshold float64) (float64, bool) {
	phraseWords := wordRe.FindAllString(phrase, -1)
	if len(phraseWords) == 0 {
		return 0, false
	}
	textWords := wordRe.FindAllString(text, -1)
	if len(textWords) < len(phraseWords) {
		sim := jaccard(textWords, phraseWords)
		return sim, sim >= threshold
	}

	best := 0.0
	for i := 0; i+len(phraseWords) <= len(textWords); i++ {
		sim := jaccard(textWords[i:i+len(phraseWords)], phraseWords)
		if sim >= threshold {
			return sim, true
		}
		if sim > best {
			best = sim
		}
	}
	return best, false
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	intersection := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, w := range b {
		if seen[w] {
			continue
		}
		seen[w] = true
		if set[w] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
