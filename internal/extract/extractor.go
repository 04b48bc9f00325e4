// Package extract turns raw model responses into typed grocery items.
//
// The package is deliberately forgiving: model output is untrusted,
// so every field has a default, malformed entries are skipped rather
// than failing the batch, and an unparsable response degrades to an
// empty result with a diagnostic note instead of an error.
package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Level buckets a confidence score into a reviewable tier.
type Level string

const (
	LevelHigh    Level = "high"     // >= 0.85
	LevelMedium  Level = "medium"   // >= 0.70
	LevelLow     Level = "low"      // >= 0.50
	LevelVeryLow Level = "very_low" // below 0.50
)

// LevelFor maps a confidence score to its tier.
func LevelFor(confidence float64) Level {
	switch {
	case confidence >= 0.85:
		return LevelHigh
	case confidence >= 0.7:
		return LevelMedium
	case confidence >= 0.5:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// UncertaintyReason explains why an item's confidence was reduced.
type UncertaintyReason string

const (
	ReasonAmbiguousQuantity     UncertaintyReason = "ambiguous_quantity"
	ReasonAmbiguousItem         UncertaintyReason = "ambiguous_item"
	ReasonUnclearUnit           UncertaintyReason = "unclear_unit"
	ReasonIncompleteInformation UncertaintyReason = "incomplete_information"
)

// Item is one extracted grocery line item.
type Item struct {
	Name               string              `json:"name"`
	Quantity           float64             `json:"quantity"`
	Unit               string              `json:"unit"`
	Specifications     []string            `json:"specifications,omitempty"`
	Confidence         float64             `json:"confidence"`
	ConfidenceLevel    Level               `json:"confidence_level"`
	OriginalText       string              `json:"original_text,omitempty"`
	UncertaintyReasons []UncertaintyReason `json:"uncertainty_reasons,omitempty"`
}

// IsUncertain reports whether the item needs human review.
func (it Item) IsUncertain() bool {
	return it.Confidence < 0.7 || len(it.UncertaintyReasons) > 0
}

// Result is the outcome of one extraction pass. ParseFailed marks
// responses where no usable JSON could be located at all.
type Result struct {
	Items            []Item   `json:"items"`
	UnrecognizedText []string `json:"unrecognized_text,omitempty"`
	ParsingNotes     string   `json:"parsing_notes,omitempty"`
	RawResponse      string   `json:"-"`
	ParseFailed      bool     `json:"-"`
}

// Statistics summarizes a result's item list. High counts the high
// and medium tiers, low counts the rest.
type Statistics struct {
	TotalItems          int     `json:"total_items"`
	HighConfidenceCount int     `json:"high_confidence_count"`
	LowConfidenceCount  int     `json:"low_confidence_count"`
	AverageConfidence   float64 `json:"average_confidence"`
	UncertainItemsCount int     `json:"uncertain_items_count"`
}

// Statistics is recomputed from the current items on every call, so
// it never goes stale when items are edited after extraction.
func (r *Result) Statistics() Statistics {
	stats := Statistics{TotalItems: len(r.Items)}
	if len(r.Items) == 0 {
		return stats
	}

	var sum float64
	for _, it := range r.Items {
		sum += it.Confidence
		switch LevelFor(it.Confidence) {
		case LevelHigh, LevelMedium:
			stats.HighConfidenceCount++
		default:
			stats.LowConfidenceCount++
		}
		if it.IsUncertain() {
			stats.UncertainItemsCount++
		}
	}
	stats.AverageConfidence = round3(sum / float64(len(r.Items)))
	return stats
}

// UncertainItems returns the items flagged for review.
func (r *Result) UncertainItems() []Item {
	var uncertain []Item
	for _, it := range r.Items {
		if it.IsUncertain() {
			uncertain = append(uncertain, it)
		}
	}
	return uncertain
}

// Extractor parses model responses into items and flags uncertain
// ones. The zero value is not usable; construct with NewExtractor.
type Extractor struct {
	uncertaintyThreshold float64
	logUncertain         bool
}

// NewExtractor builds an extractor. threshold is the confidence below
// which items are logged for review; out-of-range values fall back
// to 0.7.
func NewExtractor(threshold float64) *Extractor {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &Extractor{uncertaintyThreshold: threshold, logUncertain: true}
}

type responseEnvelope struct {
	Items            []interface{} `json:"items"`
	UnrecognizedText []interface{} `json:"unrecognized_text"`
	ParsingNotes     string        `json:"parsing_notes"`
}

/// Extract parses a raw model response. It never returns an error:
// responses with no locatable JSON produce an empty result carrying
// the raw text and a parsing note.
func (e *Extractor) Extract(rawText string) *Result {
	jsonText, ok := LocateJSON(rawText)
	if !ok {
		slog.Error("Failed to locate JSON in model response", "response_length", len(rawText))
		return parseFailedResult(rawText)
	}

	var envelope responseEnvelope
	if err := json.Unmarshal([]byte(jsonText), &envelope); err != nil {
		// LocateJSON guarantees valid JSON, but the document may not
		// be an object at all.
		slog.Error("Model response JSON is not an extraction object", "error", err)
		return parseFailedResult(rawText)
	}

	items := e.parseItems(envelope.Items)
	for i := range items {
		e.analyzeUncertainty(&items[i])
	}
	if e.logUncertain {
		e.logUncertainItems(items)
	}

	return &Result{
		Items:            items,
		UnrecognizedText: toStrings(envelope.UnrecognizedText),
		ParsingNotes:     envelope.ParsingNotes,
		RawResponse:      rawText,
	}
}

func parseFailedResult(rawText string) *Result {
	return &Result{
		Items:            []Item{},
		UnrecognizedText: []string{rawText},
		ParsingNotes:     "Failed to parse response as JSON",
		RawResponse:      rawText,
		ParseFailed:      true,
	}
}

func (e *Extractor) parseItems(raw []interface{}) []Item {
	items := make([]Item, 0, len(raw))
	for i, entry := range raw {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			slog.Warn("Skipping non-object item entry", "index", i)
			continue
		}
		item, ok := parseItem(obj)
		if !ok {
			slog.Warn("Skipping item without a name", "index", i)
			continue
		}
		items = append(items, item)
	}
	return items
}

func parseItem(obj map[string]interface{}) (Item, bool) {
	name := strings.TrimSpace(toString(obj["name"]))
	if name == "" {
		return Item{}, false
	}

	unit := DefaultUnit
	if v, ok := obj["unit"]; ok && v != nil {
		unit = NormalizeUnit(toString(v))
	}

	var originalText string
	if v, ok := obj["original_text"]; ok && v != nil {
		originalText = toString(v)
	} else if v, ok := obj["raw_text_segment"]; ok && v != nil {
		originalText = toString(v)
	}

	confidence := ParseConfidence(obj["confidence"])
	return Item{
		Name:            name,
		Quantity:        ParseQuantity(obj["quantity"]),
		Unit:            unit,
		Specifications:  parseSpecifications(obj["specifications"]),
		Confidence:      confidence,
		ConfidenceLevel: LevelFor(confidence),
		OriginalText:    originalText,
	}, true
}

func parseSpecifications(v interface{}) []string {
	var raw []interface{}
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		if t := strings.TrimSpace(s); t != "" {
			return []string{t}
		}
		return nil
	case []interface{}:
		raw = s
	default:
		return nil
	}

	seen := make(map[string]bool, len(raw))
	var specs []string
	for _, entry := range raw {
		if entry == nil {
			continue
		}
		s := strings.TrimSpace(toString(entry))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		specs = append(specs, s)
	}
	return specs
}

var (
	// Names that suggest a weight unit would fit better than "piece".
	bulkKeywords = []string{"rice", "flour", "sugar", "salt", "beans", "pasta"}

	// Names too generic to shop for.
	genericNames = []string{"thing", "stuff", "item", "food", "something"}
)

// analyzeUncertainty collects uncertainty reasons and discounts the
// confidence of items that the model reported as confident anyway.
func (e *Extractor) analyzeUncertainty(item *Item) {
	var reasons []UncertaintyReason

	if item.Quantity == DefaultQuantity && item.OriginalText == "" {
		reasons = append(reasons, ReasonAmbiguousQuantity)
	}

	lower := strings.ToLower(item.Name)
	if item.Unit == "piece" || item.Unit == "unit" {
		for _, kw := range bulkKeywords {
			if strings.Contains(lower, kw) {
				reasons = append(reasons, ReasonUnclearUnit)
				break
			}
		}
	}

	for _, generic := range genericNames {
		if strings.Contains(lower, generic) {
			reasons = append(reasons, ReasonAmbiguousItem)
			break
		}
	}

	if len(item.Name) < 3 {
		reasons = append(reasons, ReasonIncompleteInformation)
	}

	if len(reasons) > 0 && item.Confidence >= 0.7 {
		item.Confidence = math.Max(0.5, item.Confidence-0.1*float64(len(reasons)))
		item.ConfidenceLevel = LevelFor(item.Confidence)
	}
	item.UncertaintyReasons = reasons
}

func (e *Extractor) logUncertainItems(items []Item) {
	var flagged []string
	for _, it := range items {
		if it.Confidence < e.uncertaintyThreshold {
			flagged = append(flagged, fmt.Sprintf("%s (%.2f)", it.Name, it.Confidence))
		}
	}
	if len(flagged) == 0 {
		return
	}
	slog.Warn("Extraction produced low-confidence items",
		"count", len(flagged),
		"threshold", e.uncertaintyThreshold,
		"items", strings.Join(flagged, ", "),
	)
}

func toStrings(raw []interface{}) []string {
	var out []string
	for _, entry := range raw {
		if entry == nil {
			continue
		}
		if s := strings.TrimSpace(toString(entry)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
