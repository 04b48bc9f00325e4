package bedrock

import (
	"encoding/json"
	"strings"

	"cartparse/internal/config"
)

// Anthropic messages-API body for InvokeModel.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	TopP             float64            `json:"top_p"`
	TopK             int                `json:"top_k,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

const defaultAnthropicVersion = "bedrock-2023-05-31"

// buildRequestBody marshals the Anthropic invocation body for one
// user prompt with an optional system prompt.
func buildRequestBody(prompt, systemPrompt string, mc config.ModelConfig) ([]byte, error) {
	version := mc.AnthropicVersion
	if version == "" {
		version = defaultAnthropicVersion
	}

	req := anthropicRequest{
		AnthropicVersion: version,
		MaxTokens:        mc.MaxTokens,
		Temperature:      mc.Temperature,
		TopP:             mc.TopP,
		TopK:             mc.TopK,
		StopSequences:    mc.StopSequences,
		System:           systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	return json.Marshal(req)
}

// extractContent joins the text blocks of a response. Non-text blocks
// are ignored.
func extractContent(resp anthropicResponse) string {
	if len(resp.Content) == 0 {
		return ""
	}

	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" || block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
