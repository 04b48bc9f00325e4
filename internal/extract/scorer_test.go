package extract

import "testing"

func TestItemConfidence(t *testing.T) {
	s := NewConfidenceScorer(0.7)

	tests := []struct {
		name string
		item Item
		want float64
	}{
		{
			// completeness 1.0, specificity 0.9, consistency 0.7:
			// 0.5*0.9 + 0.2*1.0 + 0.15*0.9 + 0.15*0.7
			name: "fully specified item",
			item: Item{
				Name:           "organic whole milk",
				Quantity:       2,
				Unit:           "liter",
				Specifications: []string{"organic", "whole"},
				Confidence:     0.9,
				OriginalText:   "2 liters organic whole milk",
			},
			want: 0.89,
		},
		{
			// completeness 0.4, specificity 0.5, consistency 0.7
			name: "bare minimum item",
			item: Item{Name: "milk", Quantity: 1, Unit: "piece", Confidence: 0.5},
			want: 0.51,
		},
		{
			// quantity over 100 with "piece" drags consistency to 0.5
			name: "implausible piece count",
			item: Item{
				Name:         "paper plates",
				Quantity:     500,
				Unit:         "piece",
				Confidence:   0.8,
				OriginalText: "500 paper plates",
			},
			want: 0.705,
		},
		{
			// sub-gram weight with kg drags consistency to 0.5
			name: "implausible weight",
			item: Item{
				Name:         "saffron",
				Quantity:     0.005,
				Unit:         "kg",
				Confidence:   0.9,
				OriginalText: "a pinch of saffron",
			},
			want: 0.78,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ItemConfidence(tt.item); !within(got, tt.want) {
				t.Errorf("ItemConfidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemConfidenceRewardsDetail(t *testing.T) {
	s := NewConfidenceScorer(0.7)

	sparse := Item{Name: "milk", Quantity: 1, Unit: "piece", Confidence: 0.8}
	detailed := Item{
		Name:           "organic whole milk",
		Quantity:       2,
		Unit:           "liter",
		Specifications: []string{"organic"},
		Confidence:     0.8,
		OriginalText:   "2l organic whole milk",
	}

	if sparseScore, detailedScore := s.ItemConfidence(sparse), s.ItemConfidence(detailed); sparseScore >= detailedScore {
		t.Errorf("sparse item scored %v, detailed item %v; detail should raise the score", sparseScore, detailedScore)
	}
}

func TestBatchConfidence(t *testing.T) {
	s := NewConfidenceScorer(0.7)
	items := []Item{
		{Name: "milk", Confidence: 0.95},
		{Name: "eggs", Confidence: 0.85},
		{Name: "misc", Confidence: 0.40, UncertaintyReasons: []UncertaintyReason{ReasonAmbiguousItem}},
	}

	stats := s.BatchConfidence(items)

	if stats.TotalItems != 3 {
		t.Errorf("TotalItems = %d, want 3", stats.TotalItems)
	}
	if !within(stats.AverageConfidence, 0.733) {
		t.Errorf("AverageConfidence = %v, want 0.733", stats.AverageConfidence)
	}
	if !within(stats.MinConfidence, 0.4) || !within(stats.MaxConfidence, 0.95) {
		t.Errorf("min/max = %v/%v, want 0.4/0.95", stats.MinConfidence, stats.MaxConfidence)
	}
	if stats.Distribution[LevelHigh] != 2 || stats.Distribution[LevelVeryLow] != 1 {
		t.Errorf("Distribution = %v, want 2 high and 1 very_low", stats.Distribution)
	}
	if stats.Distribution[LevelMedium] != 0 || stats.Distribution[LevelLow] != 0 {
		t.Errorf("Distribution = %v, want empty medium and low tiers", stats.Distribution)
	}

	if stats.ItemsBelowThreshold != 1 {
		t.Fatalf("ItemsBelowThreshold = %d, want 1", stats.ItemsBelowThreshold)
	}
	low := stats.LowConfidenceItems[0]
	if low.Name != "misc" || !within(low.Confidence, 0.4) {
		t.Errorf("low confidence entry = %+v", low)
	}
	if len(low.Reasons) != 1 || low.Reasons[0] != ReasonAmbiguousItem {
		t.Errorf("low confidence reasons = %v, want ambiguous_item", low.Reasons)
	}
}

func TestBatchConfidenceEmpty(t *testing.T) {
	s := NewConfidenceScorer(0.7)
	stats := s.BatchConfidence(nil)

	if stats.TotalItems != 0 || stats.AverageConfidence != 0 || stats.MinConfidence != 0 || stats.MaxConfidence != 0 {
		t.Errorf("empty batch stats = %+v, want zeros", stats)
	}
	if len(stats.LowConfidenceItems) != 0 {
		t.Errorf("LowConfidenceItems = %v, want empty", stats.LowConfidenceItems)
	}
	for level, count := range stats.Distribution {
		if count != 0 {
			t.Errorf("Distribution[%s] = %d, want 0", level, count)
		}
	}
}

func TestExtractAndScore(t *testing.T) {
	response := "```json\n" +
		`{"items": [
			{"name": "organic milk", "quantity": 2, "unit": "liter", "confidence": 0.95, "original_text": "2l milk"},
			{"name": "bread", "quantity": 1, "unit": "loaf", "confidence": 0.6, "original_text": "bread"}
		]}` +
		"\n```"

	result, stats := ExtractAndScore(response, 0.7)

	if len(result.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(result.Items))
	}
	if stats.TotalItems != 2 {
		t.Errorf("stats.TotalItems = %d, want 2", stats.TotalItems)
	}
	if stats.ItemsBelowThreshold != 1 {
		t.Errorf("ItemsBelowThreshold = %d, want 1 (bread at 0.6)", stats.ItemsBelowThreshold)
	}
}
