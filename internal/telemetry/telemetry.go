// Package telemetry provides observability with Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for cartparse.
// All recording methods are nil-safe so components may run without telemetry.
type Metrics struct {
	// Invocation metrics
	InvocationsTotal  *prometheus.CounterVec
	InvocationLatency *prometheus.HistogramVec
	RetryAttempts     *prometheus.CounterVec

	// Token metrics
	TokensInput  *prometheus.CounterVec
	TokensOutput *prometheus.CounterVec

	// Guardrail metrics
	GuardrailViolations *prometheus.CounterVec
	GuardrailBlocked    *prometheus.CounterVec

	// Extraction metrics
	ExtractedItems       *prometheus.CounterVec
	ExtractionConfidence prometheus.Histogram
	LowConfidenceItems   prometheus.Counter
	ParseFailures        prometheus.Counter

	// Embedding cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Retrieval metrics
	RetrievalLatency  prometheus.Histogram
	RetrievalFailures prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cartparse_invocations_total",
				Help: "Total number of model invocations",
			},
			[]string{"model", "outcome"},
		),

		InvocationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cartparse_invocation_latency_seconds",
				Help:    "Model invocation latency including retries",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),

		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cartparse_retry_attempts_total",
				Help: "Total retry attempts against the model",
			},
			[]string{"model", "reason"},
		),

		TokensInput: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cartparse_tokens_input_total",
				Help: "Total input tokens consumed",
			},
			[]string{"model"},
		),

		TokensOutput: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cartparse_tokens_output_total",
				Help: "Total output tokens generated",
			},
			[]string{"model"},
		),

		GuardrailViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cartparse_guardrail_violations_total",
				Help: "Total guardrail violations by category and action",
			},
			[]string{"category", "action"},
		),

		GuardrailBlocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cartparse_guardrail_blocked_total",
				Help: "Total inputs/outputs blocked by guardrails",
			},
			[]string{"direction"},
		),

		ExtractedItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cartparse_extracted_items_total",
				Help: "Total items extracted from model output",
			},
			[]string{"model"},
		),

		ExtractionConfidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cartparse_extraction_confidence",
				Help:    "Per-item extraction confidence",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),

		LowConfidenceItems: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cartparse_low_confidence_items_total",
				Help: "Total extracted items below the uncertainty threshold",
			},
		),

		ParseFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cartparse_parse_failures_total",
				Help: "Total model responses with no recoverable JSON",
			},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cartparse_embedding_cache_hits_total",
				Help: "Total embedding cache hits",
			},
		),

		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cartparse_embedding_cache_misses_total",
				Help: "Total embedding cache misses",
			},
		),

		RetrievalLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cartparse_retrieval_latency_seconds",
				Help:    "Knowledge base retrieval latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),

		RetrievalFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cartparse_retrieval_failures_total",
				Help: "Total failed knowledge base retrievals",
			},
		),
	}
}

// Handler returns an HTTP handler for Prometheus metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// InvocationRecorder helps record metrics for one invocation
type InvocationRecorder struct {
	metrics   *Metrics
	model     string
	startTime time.Time
}

// NewInvocationRecorder starts recording an invocation
func (m *Metrics) NewInvocationRecorder(model string) *InvocationRecorder {
	return &InvocationRecorder{
		metrics:   m,
		model:     model,
		startTime: time.Now(),
	}
}

// RecordSuccess records a completed invocation
func (r *InvocationRecorder) RecordSuccess(inputTokens, outputTokens int64) {
	if r == nil || r.metrics == nil {
		return
	}
	duration := time.Since(r.startTime).Seconds()

	r.metrics.InvocationsTotal.WithLabelValues(r.model, "success").Inc()
	r.metrics.InvocationLatency.WithLabelValues(r.model).Observe(duration)
	r.metrics.TokensInput.WithLabelValues(r.model).Add(float64(inputTokens))
	r.metrics.TokensOutput.WithLabelValues(r.model).Add(float64(outputTokens))
}

// RecordError records a failed invocation
func (r *InvocationRecorder) RecordError(errorType string) {
	if r == nil || r.metrics == nil {
		return
	}
	duration := time.Since(r.startTime).Seconds()

	r.metrics.InvocationsTotal.WithLabelValues(r.model, errorType).Inc()
	r.metrics.InvocationLatency.WithLabelValues(r.model).Observe(duration)
}

// RecordBlocked records an invocation stopped by input guardrails
func (r *InvocationRecorder) RecordBlocked() {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.InvocationsTotal.WithLabelValues(r.model, "blocked").Inc()
	r.metrics.GuardrailBlocked.WithLabelValues("input").Inc()
}

// RecordRetry records one retry attempt
func (m *Metrics) RecordRetry(model, reason string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(model, reason).Inc()
}

// RecordViolation records a guardrail violation
func (m *Metrics) RecordViolation(category, action string) {
	if m == nil {
		return
	}
	m.GuardrailViolations.WithLabelValues(category, action).Inc()
}

// RecordOutputBlocked records an output rejected by guardrails
func (m *Metrics) RecordOutputBlocked() {
	if m == nil {
		return
	}
	m.GuardrailBlocked.WithLabelValues("output").Inc()
}

// RecordExtraction records item counts and confidences for one extraction
func (m *Metrics) RecordExtraction(model string, confidences []float64, lowConfidence int) {
	if m == nil {
		return
	}
	m.ExtractedItems.WithLabelValues(model).Add(float64(len(confidences)))
	for _, c := range confidences {
		m.ExtractionConfidence.Observe(c)
	}
	if lowConfidence > 0 {
		m.LowConfidenceItems.Add(float64(lowConfidence))
	}
}

// RecordParseFailure records a response with no recoverable JSON
func (m *Metrics) RecordParseFailure() {
	if m == nil {
		return
	}
	m.ParseFailures.Inc()
}

// RecordCacheHit records an embedding cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// RecordCacheMiss records an embedding cache miss
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// RecordRetrieval records a knowledge base retrieval
func (m *Metrics) RecordRetrieval(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.RetrievalLatency.Observe(duration.Seconds())
	if err != nil {
		m.RetrievalFailures.Inc()
	}
}
