package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Defaults applied when the model omits or mangles a field.
const (
	DefaultQuantity   = 1.0
	DefaultUnit       = "piece"
	DefaultConfidence = 0.75
)

// unitSynonyms collapses unit spellings to canonical forms. Unknown
// units pass through unchanged rather than being rejected.
var unitSynonyms = map[string]string{
	// weight
	"kg": "kg", "kilogram": "kg", "kilograms": "kg", "kilo": "kg",
	"g": "g", "gram": "g", "grams": "g",
	"lb": "lb", "lbs": "lb", "pound": "lb", "pounds": "lb",
	"oz": "oz", "ounce": "oz", "ounces": "oz",
	// volume
	"l": "liter", "liter": "liter", "liters": "liter", "litre": "liter",
	"ml": "ml", "milliliter": "ml", "milliliters": "ml",
	"gal": "gallon", "gallon": "gallon", "gallons": "gallon",
	// count
	"pc": "piece", "pcs": "piece", "piece": "piece", "pieces": "piece",
	"unit": "piece", "units": "piece", "each": "piece",
	"dozen": "dozen", "doz": "dozen",
	"pack": "pack", "packs": "pack", "package": "pack", "packages": "pack",
	"bunch": "bunch", "bunches": "bunch",
	"bag": "bag", "bags": "bag",
	"bottle": "bottle", "bottles": "bottle",
	"can": "can", "cans": "can",
	"box": "box", "boxes": "box",
	"loaf": "loaf", "loaves": "loaf",
	"carton": "carton", "cartons": "carton",
}

// NormalizeUnit lowercases a unit and collapses it through the
// synonym table.
func NormalizeUnit(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	if u == "" {
		return DefaultUnit
	}
	if canonical, ok := unitSynonyms[u]; ok {
		return canonical
	}
	return u
}

var mixedNumberRe = regexp.MustCompile(`^(\d+)\s+(\d+)/(\d+)$`)

// ParseQuantity accepts numbers, decimal strings, simple fractions
// ("1/2"), and mixed numbers ("1 1/2"). Anything else falls back to
// the default quantity.
func ParseQuantity(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		return parseQuantityString(v)
	}
	return DefaultQuantity
}

func parseQuantityString(s string) float64 {
	s = strings.TrimSpace(s)

	if m := mixedNumberRe.FindStringSubmatch(s); m != nil {
		whole, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.ParseFloat(m[2], 64)
		denom, _ := strconv.ParseFloat(m[3], 64)
		if denom != 0 {
			return whole + num/denom
		}
		return DefaultQuantity
	}

	if strings.Contains(s, "/") {
		parts := strings.SplitN(s, "/", 2)
		num, errN := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		denom, errD := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errN == nil && errD == nil && denom != 0 {
			return num / denom
		}
		return DefaultQuantity
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return DefaultQuantity
}

// ParseConfidence coerces a confidence value to [0, 1], defaulting
// when absent or unparsable.
func ParseConfidence(value interface{}) float64 {
	var c float64
	switch v := value.(type) {
	case float64:
		c = v
	case int:
		c = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return DefaultConfidence
		}
		c = f
	default:
		return DefaultConfidence
	}

	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
