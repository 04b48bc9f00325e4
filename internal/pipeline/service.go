// Package pipeline wires model invocation, extraction, and confidence
// scoring into one text-to-items flow.
package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"cartparse/internal/bedrock"
	"cartparse/internal/config"
	"cartparse/internal/extract"
	"cartparse/internal/guardrails"
	"cartparse/internal/prompts"
	"cartparse/internal/telemetry"
)

// Status tags the overall outcome of a parse. Blocked input and
// unparseable model output are expected operating conditions, not
// errors.
type Status string

const (
	StatusOK          Status = "ok"
	StatusBlocked     Status = "blocked"
	StatusParseFailed Status = "parse_failed"
)

// Usage summarizes the invocation that produced a result.
type Usage struct {
	RequestID    string `json:"request_id,omitempty"`
	ModelID      string `json:"model_id"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	LatencyMS    int64  `json:"latency_ms"`
	RetryCount   int    `json:"retry_count,omitempty"`
}

// Result is the outcome of one parse.
type Result struct {
	Status     Status                 `json:"status"`
	Extraction *extract.Result        `json:"extraction,omitempty"`
	Batch      *extract.BatchStats    `json:"batch,omitempty"`
	Violations []guardrails.Violation `json:"violations,omitempty"`
	Usage      *Usage                 `json:"usage,omitempty"`
	Invocation *bedrock.Invocation    `json:"-"`
}

// Err converts a blocked result into its error form for callers that
// propagate failure instead of branching on Status. Other statuses
// return nil; parse failures are not errors.
func (r *Result) Err() error {
	if r.Status == StatusBlocked {
		return &guardrails.BlockedError{Violations: r.Violations}
	}
	return nil
}

// Invoker is the model client surface the pipeline drives.
type Invoker interface {
	ExtractGroceryItems(ctx context.Context, groceryText string, includeExamples bool) (*bedrock.Invocation, error)
	InvokeWithKnowledgeBase(ctx context.Context, prompt string, opts ...bedrock.InvokeOption) (*bedrock.Invocation, error)
}

// Service runs grocery text through the model and turns the response
// into scored items.
type Service struct {
	invoker   Invoker
	extractor *extract.Extractor
	scorer    *extract.ConfidenceScorer
	metrics   *telemetry.Metrics
}

// NewService wires the pipeline from configuration. metrics may be nil.
func NewService(invoker Invoker, cfg *config.Config, metrics *telemetry.Metrics) *Service {
	threshold := cfg.Extraction.UncertaintyThreshold
	return &Service{
		invoker:   invoker,
		extractor: extract.NewExtractor(threshold),
		scorer:    extract.NewConfidenceScorer(threshold),
		metrics:   metrics,
	}
}

// Parse extracts grocery items from free text. Transport and retry
// exhaustion failures surface as errors; guardrail blocks and
// unparseable responses come back as tagged results.
func (s *Service) Parse(ctx context.Context, text string) (*Result, error) {
	inv, err := s.invoker.ExtractGroceryItems(ctx, text, true)
	if err != nil {
		return nil, err
	}
	return s.assemble(inv), nil
}

// ParseWithContext is Parse with product catalog context retrieved
// from the knowledge base. query selects what gets retrieved and
// defaults to the raw input text; the templated prompt would pollute
// the vector search.
func (s *Service) ParseWithContext(ctx context.Context, text, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		query = text
	}
	system, user := prompts.ExtractionPrompt(text, true)
	inv, err := s.invoker.InvokeWithKnowledgeBase(ctx, user,
		bedrock.WithSystemPrompt(system),
		bedrock.WithRetrievalQuery(query),
	)
	if err != nil {
		return nil, err
	}
	return s.assemble(inv), nil
}

func (s *Service) assemble(inv *bedrock.Invocation) *Result {
	result := &Result{
		Invocation: inv,
		Violations: inv.Violations(),
		Usage: &Usage{
			RequestID:    inv.RequestID,
			ModelID:      inv.ModelID,
			InputTokens:  inv.InputTokens,
			OutputTokens: inv.OutputTokens,
			TotalTokens:  inv.TotalTokens(),
			LatencyMS:    inv.Latency.Milliseconds(),
			RetryCount:   inv.RetryCount,
		},
	}
	if inv.Blocked {
		result.Status = StatusBlocked
		return result
	}

	extraction := s.extractor.Extract(inv.Content)
	result.Extraction = extraction
	if extraction.ParseFailed {
		result.Status = StatusParseFailed
		s.metrics.RecordParseFailure()
		return result
	}

	batch := s.scorer.BatchConfidence(extraction.Items)
	result.Batch = &batch
	result.Status = StatusOK

	confidences := make([]float64, 0, len(extraction.Items))
	for _, it := range extraction.Items {
		confidences = append(confidences, it.Confidence)
	}
	s.metrics.RecordExtraction(inv.ModelID, confidences, batch.ItemsBelowThreshold)

	slog.Info("Extraction complete",
		"items", len(extraction.Items),
		"average_confidence", batch.AverageConfidence,
		"below_threshold", batch.ItemsBelowThreshold,
	)
	return result
}

// ScoreBatch recalibrates item confidences with the composite scorer
// and recomputes batch statistics at threshold. Values at or below
// zero reuse the configured threshold.
func (s *Service) ScoreBatch(items []extract.Item, threshold float64) ([]extract.Item, extract.BatchStats) {
	scorer := s.scorer
	if threshold > 0 {
		scorer = extract.NewConfidenceScorer(threshold)
	}

	rescored := make([]extract.Item, len(items))
	for i, it := range items {
		rescored[i] = it
		rescored[i].Confidence = scorer.ItemConfidence(it)
		rescored[i].ConfidenceLevel = extract.LevelFor(rescored[i].Confidence)
	}
	return rescored, scorer.BatchConfidence(rescored)
}
