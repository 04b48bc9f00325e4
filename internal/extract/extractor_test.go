package extract

import (
	"math"
	"reflect"
	"testing"
)

func within(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Level
	}{
		{0.95, LevelHigh},
		{0.85, LevelHigh},
		{0.84, LevelMedium},
		{0.75, LevelMedium},
		{0.70, LevelMedium},
		{0.69, LevelLow},
		{0.55, LevelLow},
		{0.50, LevelLow},
		{0.49, LevelVeryLow},
		{0.30, LevelVeryLow},
		{0, LevelVeryLow},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.confidence); got != tt.want {
			t.Errorf("LevelFor(%v) = %q, want %q", tt.confidence, got, tt.want)
		}
	}
}

func TestNormalizeUnit(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"liters", "liter"},
		{"Litre", "liter"},
		{" KG ", "kg"},
		{"Pounds", "lb"},
		{"each", "piece"},
		{"units", "piece"},
		{"doz", "dozen"},
		{"Loaves", "loaf"},
		{"gal", "gallon"},
		{"", "piece"},
		{"sack", "sack"},
	}
	for _, tt := range tests {
		if got := NormalizeUnit(tt.raw); got != tt.want {
			t.Errorf("NormalizeUnit(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
	}{
		{"float", 2.5, 2.5},
		{"integer string", "3", 3},
		{"decimal string with padding", "  2.5  ", 2.5},
		{"simple fraction", "1/2", 0.5},
		{"mixed number", "1 1/2", 1.5},
		{"mixed number quarters", "2 3/4", 2.75},
		{"zero denominator", "3/0", DefaultQuantity},
		{"garbage string", "not-a-number", DefaultQuantity},
		{"nil", nil, DefaultQuantity},
		{"unsupported type", true, DefaultQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseQuantity(tt.value); !within(got, tt.want) {
				t.Errorf("ParseQuantity(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
	}{
		{"in range", 0.9, 0.9},
		{"numeric string", "0.8", 0.8},
		{"above one clamps", 1.5, 1},
		{"below zero clamps", -0.2, 0},
		{"garbage string", "very sure", DefaultConfidence},
		{"nil", nil, DefaultConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseConfidence(tt.value); !within(got, tt.want) {
				t.Errorf("ParseConfidence(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	e := NewExtractor(0.7)

	response := "Here is what I found:\n```json\n" +
		`{"items": [
			{"name": "organic milk", "quantity": 2, "unit": "liters", "confidence": 0.95, "original_text": "2 liters organic milk"},
			{"name": "rice", "quantity": "1/2", "unit": "kg", "confidence": 0.8, "original_text": "half kilo rice"}
		], "parsing_notes": "clean list"}` +
		"\n```"

	result := e.Extract(response)
	if result.ParseFailed {
		t.Fatal("Extract() reported parse failure on valid response")
	}
	if len(result.Items) != 2 {
		t.Fatalf("Extract() produced %d items, want 2", len(result.Items))
	}
	if result.ParsingNotes != "clean list" {
		t.Errorf("ParsingNotes = %q, want %q", result.ParsingNotes, "clean list")
	}

	milk := result.Items[0]
	if milk.Name != "organic milk" || !within(milk.Quantity, 2) || milk.Unit != "liter" {
		t.Errorf("milk parsed as %+v", milk)
	}
	if !within(milk.Confidence, 0.95) || milk.ConfidenceLevel != LevelHigh {
		t.Errorf("milk confidence = %v (%s), want 0.95 (high)", milk.Confidence, milk.ConfidenceLevel)
	}
	if len(milk.UncertaintyReasons) != 0 {
		t.Errorf("milk flagged uncertain: %v", milk.UncertaintyReasons)
	}

	rice := result.Items[1]
	if !within(rice.Quantity, 0.5) || rice.Unit != "kg" {
		t.Errorf("rice parsed as %+v", rice)
	}
	if len(rice.UncertaintyReasons) != 0 {
		t.Errorf("rice flagged uncertain despite explicit quantity and unit: %v", rice.UncertaintyReasons)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	e := NewExtractor(0.7)
	response := `{"items": [{"name": "eggs", "quantity": 12, "unit": "pieces", "confidence": 0.9}]}`

	first := e.Extract(response)
	second := e.Extract(response)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated extraction diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestExtractUncertaintyDiscount(t *testing.T) {
	e := NewExtractor(0.7)

	t.Run("defaulted quantity and bulk name", func(t *testing.T) {
		result := e.Extract(`{"items": [{"name": "rice", "confidence": 0.9}]}`)
		if len(result.Items) != 1 {
			t.Fatalf("got %d items, want 1", len(result.Items))
		}
		item := result.Items[0]

		wantReasons := []UncertaintyReason{ReasonAmbiguousQuantity, ReasonUnclearUnit}
		if !reflect.DeepEqual(item.UncertaintyReasons, wantReasons) {
			t.Errorf("reasons = %v, want %v", item.UncertaintyReasons, wantReasons)
		}
		if !within(item.Confidence, 0.7) {
			t.Errorf("confidence = %v, want 0.7 after two-reason discount", item.Confidence)
		}
		if item.ConfidenceLevel != LevelMedium {
			t.Errorf("level = %q, want medium", item.ConfidenceLevel)
		}
		if !item.IsUncertain() {
			t.Error("item with uncertainty reasons not reported uncertain")
		}
	})

	t.Run("discount floors at 0.5", func(t *testing.T) {
		result := e.Extract(`{"items": [{"name": "rice stuff", "confidence": 0.75}]}`)
		item := result.Items[0]
		if len(item.UncertaintyReasons) != 3 {
			t.Fatalf("reasons = %v, want ambiguous quantity, unclear unit, ambiguous item", item.UncertaintyReasons)
		}
		if !within(item.Confidence, 0.5) {
			t.Errorf("confidence = %v, want floor of 0.5", item.Confidence)
		}
		if item.ConfidenceLevel != LevelLow {
			t.Errorf("level = %q, want low", item.ConfidenceLevel)
		}
	})

	t.Run("low confidence is not discounted further", func(t *testing.T) {
		result := e.Extract(`{"items": [{"name": "stuff", "quantity": 2, "unit": "bag", "confidence": 0.6, "original_text": "2 bags of stuff"}]}`)
		item := result.Items[0]
		if len(item.UncertaintyReasons) != 1 || item.UncertaintyReasons[0] != ReasonAmbiguousItem {
			t.Fatalf("reasons = %v, want ambiguous_item only", item.UncertaintyReasons)
		}
		if !within(item.Confidence, 0.6) {
			t.Errorf("confidence = %v, want 0.6 untouched below the discount gate", item.Confidence)
		}
	})

	t.Run("short name", func(t *testing.T) {
		result := e.Extract(`{"items": [{"name": "oj", "quantity": 1, "unit": "carton", "confidence": 0.9, "original_text": "oj"}]}`)
		item := result.Items[0]
		wantReasons := []UncertaintyReason{ReasonIncompleteInformation}
		if !reflect.DeepEqual(item.UncertaintyReasons, wantReasons) {
			t.Errorf("reasons = %v, want %v", item.UncertaintyReasons, wantReasons)
		}
	})
}

func TestExtractSkipsMalformedEntries(t *testing.T) {
	e := NewExtractor(0.7)
	result := e.Extract(`{"items": ["milk", {"quantity": 2}, {"name": "   "}, {"name": "eggs", "confidence": 0.9}]}`)

	if len(result.Items) != 1 {
		t.Fatalf("got %d items, want only the named object", len(result.Items))
	}
	if result.Items[0].Name != "eggs" {
		t.Errorf("surviving item = %q, want eggs", result.Items[0].Name)
	}
}

func TestExtractSpecifications(t *testing.T) {
	e := NewExtractor(0.7)

	t.Run("string becomes single-element list", func(t *testing.T) {
		result := e.Extract(`{"items": [{"name": "milk", "specifications": "organic", "confidence": 0.9, "quantity": 2, "unit": "liter"}]}`)
		want := []string{"organic"}
		if !reflect.DeepEqual(result.Items[0].Specifications, want) {
			t.Errorf("specifications = %v, want %v", result.Items[0].Specifications, want)
		}
	})

	t.Run("list is trimmed and deduplicated", func(t *testing.T) {
		result := e.Extract(`{"items": [{"name": "milk", "specifications": ["organic", "organic", " fresh ", ""], "confidence": 0.9, "quantity": 2, "unit": "liter"}]}`)
		want := []string{"organic", "fresh"}
		if !reflect.DeepEqual(result.Items[0].Specifications, want) {
			t.Errorf("specifications = %v, want %v", result.Items[0].Specifications, want)
		}
	})
}

func TestExtractParseFailure(t *testing.T) {
	e := NewExtractor(0.7)
	raw := "I could not find any groceries in that text."
	result := e.Extract(raw)

	if !result.ParseFailed {
		t.Fatal("ParseFailed = false for response with no JSON")
	}
	if len(result.Items) != 0 {
		t.Errorf("got %d items from unparsable response", len(result.Items))
	}
	if len(result.UnrecognizedText) != 1 || result.UnrecognizedText[0] != raw {
		t.Errorf("UnrecognizedText = %v, want the raw response", result.UnrecognizedText)
	}
	if result.ParsingNotes == "" {
		t.Error("ParsingNotes empty, want a diagnostic note")
	}
}

func TestExtractUnrecognizedText(t *testing.T) {
	e := NewExtractor(0.7)
	result := e.Extract(`{"items": [], "unrecognized_text": ["???", "", "and misc"], "parsing_notes": "two lines skipped"}`)

	if result.ParseFailed {
		t.Fatal("valid envelope reported as parse failure")
	}
	want := []string{"???", "and misc"}
	if !reflect.DeepEqual(result.UnrecognizedText, want) {
		t.Errorf("UnrecognizedText = %v, want %v", result.UnrecognizedText, want)
	}
	if result.ParsingNotes != "two lines skipped" {
		t.Errorf("ParsingNotes = %q", result.ParsingNotes)
	}
}

func TestResultStatistics(t *testing.T) {
	result := &Result{Items: []Item{
		{Name: "milk", Confidence: 0.9},
		{Name: "eggs", Confidence: 0.75},
		{Name: "rice", Confidence: 0.55},
		{Name: "misc", Confidence: 0.3},
	}}

	stats := result.Statistics()
	if stats.TotalItems != 4 {
		t.Errorf("TotalItems = %d, want 4", stats.TotalItems)
	}
	if stats.HighConfidenceCount != 2 {
		t.Errorf("HighConfidenceCount = %d, want 2 (high and medium tiers)", stats.HighConfidenceCount)
	}
	if stats.LowConfidenceCount != 2 {
		t.Errorf("LowConfidenceCount = %d, want 2", stats.LowConfidenceCount)
	}
	if !within(stats.AverageConfidence, 0.625) {
		t.Errorf("AverageConfidence = %v, want 0.625", stats.AverageConfidence)
	}
	if stats.UncertainItemsCount != 2 {
		t.Errorf("UncertainItemsCount = %d, want 2 below 0.7", stats.UncertainItemsCount)
	}
}

func TestResultStatisticsEmpty(t *testing.T) {
	var result Result
	stats := result.Statistics()
	if stats.TotalItems != 0 || stats.AverageConfidence != 0 {
		t.Errorf("empty result stats = %+v, want zeros", stats)
	}
}
