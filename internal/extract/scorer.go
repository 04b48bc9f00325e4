package extract

import (
	"math"
	"strings"
)

// Weights for the scored confidence factors.
const (
	modelConfidenceWeight = 0.5
	completenessWeight    = 0.2
	specificityWeight     = 0.15
	consistencyWeight     = 0.15
)

// ConfidenceScorer recalculates item confidence from extraction
// quality signals instead of trusting the model's self-report alone.
type ConfidenceScorer struct {
	baseThreshold float64
}

// NewConfidenceScorer builds a scorer. baseThreshold separates items
// that need review; out-of-range values fall back to 0.7.
func NewConfidenceScorer(baseThreshold float64) *ConfidenceScorer {
	if baseThreshold <= 0 || baseThreshold > 1 {
		baseThreshold = 0.7
	}
	return &ConfidenceScorer{baseThreshold: baseThreshold}
}

// Threshold returns the review threshold the scorer was built with.
func (s *ConfidenceScorer) Threshold() float64 {
	return s.baseThreshold
}

// ItemConfidence blends the model's reported confidence with
// completeness, specificity, and consistency signals. The result is
// rounded to three decimals.
func (s *ConfidenceScorer) ItemConfidence(item Item) float64 {
	score := modelConfidenceWeight*item.Confidence +
		completenessWeight*completeness(item) +
		specificityWeight*specificity(item) +
		consistencyWeight*consistency(item)
	return round3(score)
}

// completeness rewards items where the model committed to concrete
// fields instead of defaults.
func completeness(item Item) float64 {
	score := 0.0
	if len(item.Name) >= 2 {
		score += 0.4
	}
	if item.Quantity != DefaultQuantity || item.OriginalText != "" {
		score += 0.2
	}
	if item.Unit != "" && item.Unit != DefaultUnit {
		score += 0.2
	}
	if len(item.Specifications) > 0 {
		score += 0.1
	}
	if item.OriginalText != "" {
		score += 0.1
	}
	return math.Min(1.0, score)
}

// specificity rewards multi-word names and attached specifications.
func specificity(item Item) float64 {
	score := 0.5
	words := len(strings.Fields(item.Name))
	if words > 1 {
		score += 0.1
	}
	if words > 2 {
		score += 0.1
	}
	if n := len(item.Specifications); n > 0 {
		if n > 3 {
			n = 3
		}
		score += 0.1 * float64(n)
	}
	return math.Min(1.0, score)
}

// consistency penalizes quantity and unit pairings that rarely occur
// on real shopping lists.
func consistency(item Item) float64 {
	score := 0.7
	unit := strings.ToLower(item.Unit)
	if item.Quantity > 100 && unit == "piece" {
		score -= 0.2
	}
	if item.Quantity < 0.01 && (unit == "kg" || unit == "lb") {
		score -= 0.2
	}
	return math.Max(0.0, math.Min(1.0, score))
}

// BatchStats aggregates confidence over a batch of items.
type BatchStats struct {
	TotalItems          int                 `json:"total_items"`
	AverageConfidence   float64             `json:"average_confidence"`
	MinConfidence       float64             `json:"min_confidence"`
	MaxConfidence       float64             `json:"max_confidence"`
	Distribution        map[Level]int       `json:"confidence_distribution"`
	LowConfidenceItems  []LowConfidenceItem `json:"low_confidence_items"`
	ItemsBelowThreshold int                 `json:"items_below_threshold"`
}

// LowConfidenceItem identifies an item scoring below the review
// threshold.
type LowConfidenceItem struct {
	Name       string              `json:"name"`
	Confidence float64             `json:"confidence"`
	Reasons    []UncertaintyReason `json:"reasons,omitempty"`
}

// BatchConfidence buckets items into confidence tiers and lists the
// ones below the scorer's threshold. An empty batch returns zeroed
// stats rather than NaN averages.
func (s *ConfidenceScorer) BatchConfidence(items []Item) BatchStats {
	stats := BatchStats{
		Distribution: map[Level]int{
			LevelHigh: 0, LevelMedium: 0, LevelLow: 0, LevelVeryLow: 0,
		},
		LowConfidenceItems: []LowConfidenceItem{},
	}
	if len(items) == 0 {
		return stats
	}

	stats.TotalItems = len(items)
	minConf, maxConf := items[0].Confidence, items[0].Confidence
	var sum float64
	for _, it := range items {
		sum += it.Confidence
		if it.Confidence < minConf {
			minConf = it.Confidence
		}
		if it.Confidence > maxConf {
			maxConf = it.Confidence
		}
		stats.Distribution[LevelFor(it.Confidence)]++
		if it.Confidence < s.baseThreshold {
			stats.LowConfidenceItems = append(stats.LowConfidenceItems, LowConfidenceItem{
				Name:       it.Name,
				Confidence: it.Confidence,
				Reasons:    it.UncertaintyReasons,
			})
		}
	}
	stats.AverageConfidence = round3(sum / float64(len(items)))
	stats.MinConfidence = round3(minConf)
	stats.MaxConfidence = round3(maxConf)
	stats.ItemsBelowThreshold = len(stats.LowConfidenceItems)
	return stats
}

// ExtractAndScore runs extraction and batch scoring in one call,
// using the same threshold for both.
func ExtractAndScore(rawText string, threshold float64) (*Result, BatchStats) {
	result := NewExtractor(threshold).Extract(rawText)
	return result, NewConfidenceScorer(threshold).BatchConfidence(result.Items)
}
