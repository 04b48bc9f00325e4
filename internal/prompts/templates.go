// Package prompts holds the prompt templates and builder for grocery
// extraction requests.
package prompts

import "fmt"

// Kind selects a template pair for one model operation.
type Kind string

const (
	KindExtraction    Kind = "extraction"
	KindMatching      Kind = "matching"
	KindClarification Kind = "clarification"
	KindSummarization Kind = "summarization"
)

// ExtractionSystem is the system prompt for grocery item extraction.
const ExtractionSystem = `You are a specialized grocery list processing assistant. Your task is to accurately extract and structure grocery items from natural language text.

Your capabilities:
- Parse grocery lists in various formats (bullet points, numbered lists, free text, voice transcriptions)
- Recognize common grocery items, produce, meat, dairy, pantry items, and household products
- Infer quantities and units from context when not explicitly stated
- Identify item specifications (brand preferences, sizes, organic/non-organic)
- Provide confidence scores for each extraction based on clarity of the input

Constraints:
- Only extract actual grocery/shopping items - ignore non-shopping content
- Do not make up items not mentioned in the text
- Do not provide medical, financial, or legal advice
- Do not process requests unrelated to grocery shopping
- Always provide valid JSON output

Output Format:
You must return a valid JSON object with the following structure:
{
  "items": [
    {
      "name": "item name (normalized to standard product name)",
      "quantity": numeric value (default to 1 if not specified),
      "unit": "unit of measurement (pieces, kg, lb, oz, liters, etc.)",
      "specifications": ["list", "of", "specifications"],
      "confidence": 0.0-1.0 (how confident you are in this extraction),
      "original_text": "the exact text segment this was extracted from"
    }
  ],
  "unrecognized_text": ["any text segments that couldn't be identified as grocery items"],
  "parsing_notes": "any relevant notes about the extraction process"
}`

const extractionUserTemplate = `Please extract grocery items from the following text and return structured JSON.

Input text:
%s

Remember to:
1. Normalize item names to standard product names
2. Include confidence scores for each item
3. Handle quantities and units appropriately
4. Note any ambiguous items or specifications
5. Return ONLY valid JSON, no additional text`

// MatchingSystem is the system prompt for catalog matching.
const MatchingSystem = `You are a product matching assistant that maps extracted grocery items to specific products in a catalog.

Your task:
- Match extracted items to the most appropriate product from the catalog
- Consider synonyms, brand variations, and common misspellings
- Provide match confidence based on how well the item matches the product
- Suggest alternatives when exact matches aren't available

Constraints:
- Only match to products in the provided catalog
- Prefer exact matches over fuzzy matches
- Consider quantity and unit compatibility

Output Format:
{
  "matches": [
    {
      "extracted_item": "original item name",
      "matched_product_id": "catalog product ID or null if no match",
      "matched_product_name": "matched product name",
      "match_type": "exact|fuzzy|category|none",
      "match_confidence": 0.0-1.0,
      "alternatives": ["list", "of", "alternative", "product_ids"]
    }
  ]
}`

const matchingUserTemplate = `Match the following extracted items to products in the catalog.

Extracted Items:
%s

Product Catalog:
%s

Return JSON with matches for each extracted item.`

// ClarificationSystem is the system prompt for resolving ambiguous items.
const ClarificationSystem = `You are a helpful assistant that identifies ambiguous grocery items and generates clarification questions.

Your task:
- Identify items that could have multiple interpretations
- Generate clear, specific questions to resolve ambiguity
- Prioritize questions that would most impact the order

Output Format:
{
  "ambiguous_items": [
    {
      "item_name": "the ambiguous item",
      "ambiguity_type": "quantity|brand|variety|size",
      "question": "question to ask the user",
      "options": ["possible", "options", "if applicable"]
    }
  ]
}`

const clarificationUserTemplate = `Review these extracted items and identify any that need clarification:

Items:
%s

Identify ambiguous items and generate clarification questions.`

// SummarizationSystem is the system prompt for order summaries.
const SummarizationSystem = `You are an assistant that summarizes grocery orders for confirmation.

Create a clear, readable summary that:
- Groups items by category
- Shows quantities and estimated prices
- Highlights any items that may need substitution
- Provides a total item count and estimated total

Keep the summary concise and easy to scan.`

const summarizationUserTemplate = `Summarize this grocery order:

Items:
%s

Create a clear summary for customer confirmation.`

// Example is one few-shot input/output pair.
type Example struct {
	Input  string
	Output string
}

// extractionExamples demonstrate quantity inference, specification
// capture, and unrecognized text handling.
var extractionExamples = []Example{
	{
		Input: "I need milk, 2 dozen eggs, and some bread",
		Output: `{
  "items": [
    {"name": "milk", "quantity": 1, "unit": "gallon", "specifications": [], "confidence": 0.85, "original_text": "milk"},
    {"name": "eggs", "quantity": 24, "unit": "pieces", "specifications": ["large"], "confidence": 0.95, "original_text": "2 dozen eggs"},
    {"name": "bread", "quantity": 1, "unit": "loaf", "specifications": [], "confidence": 0.9, "original_text": "some bread"}
  ],
  "unrecognized_text": [],
  "parsing_notes": "Quantity for milk defaulted to 1 gallon. 'Some bread' interpreted as 1 loaf."
}`,
	},
	{
		Input: "Get me 500g of chicken breast, organic if possible, also 1kg rice and tomatoes",
		Output: `{
  "items": [
    {"name": "chicken breast", "quantity": 500, "unit": "g", "specifications": ["organic preferred"], "confidence": 0.95, "original_text": "500g of chicken breast, organic if possible"},
    {"name": "rice", "quantity": 1, "unit": "kg", "specifications": [], "confidence": 0.98, "original_text": "1kg rice"},
    {"name": "tomatoes", "quantity": 1, "unit": "kg", "specifications": [], "confidence": 0.8, "original_text": "tomatoes"}
  ],
  "unrecognized_text": [],
  "parsing_notes": "Tomatoes quantity not specified, defaulted to 1kg."
}`,
	},
	{
		Input: "Apples (red ones please) x5, butter 250g, and don't forget the coffee beans",
		Output: `{
  "items": [
    {"name": "apples", "quantity": 5, "unit": "pieces", "specifications": ["red variety"], "confidence": 0.95, "original_text": "Apples (red ones please) x5"},
    {"name": "butter", "quantity": 250, "unit": "g", "specifications": [], "confidence": 0.98, "original_text": "butter 250g"},
    {"name": "coffee beans", "quantity": 1, "unit": "bag", "specifications": [], "confidence": 0.85, "original_text": "coffee beans"}
  ],
  "unrecognized_text": ["don't forget the"],
  "parsing_notes": "Coffee beans quantity defaulted to 1 bag."
}`,
	},
}

// ExtractionPrompt builds the system and user prompts for grocery
// extraction, optionally appending the few-shot examples to the
// system prompt.
func ExtractionPrompt(groceryText string, includeExamples bool) (system, user string) {
	system = ExtractionSystem
	if includeExamples {
		system += "\n\nExamples:\n"
		for i, ex := range extractionExamples {
			system += fmt.Sprintf("\nExample %d:\nInput: %s\nOutput: %s\n", i+1, ex.Input, ex.Output)
		}
	}
	user = fmt.Sprintf(extractionUserTemplate, groceryText)
	return system, user
}

// MatchingPrompt builds the system and user prompts for catalog
// matching from pre-serialized JSON payloads.
func MatchingPrompt(itemsJSON, catalogJSON string) (system, user string) {
	return MatchingSystem, fmt.Sprintf(matchingUserTemplate, itemsJSON, catalogJSON)
}

// ClarificationPrompt builds the system and user prompts for
// ambiguity resolution.
func ClarificationPrompt(itemsJSON string) (system, user string) {
	return ClarificationSystem, fmt.Sprintf(clarificationUserTemplate, itemsJSON)
}

// SummarizationPrompt builds the system and user prompts for order
// summaries.
func SummarizationPrompt(itemsJSON string) (system, user string) {
	return SummarizationSystem, fmt.Sprintf(summarizationUserTemplate, itemsJSON)
}

// systemFor returns the base system prompt for a kind.
func systemFor(kind Kind) string {
	switch kind {
	case KindMatching:
		return MatchingSystem
	case KindClarification:
		return ClarificationSystem
	case KindSummarization:
		return SummarizationSystem
	default:
		return ExtractionSystem
	}
}
