// Package embedding generates text embeddings through Bedrock and
// memoizes them in a bounded cache for the downstream catalog matcher.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"cartparse/internal/telemetry"
)

// DefaultCacheSize bounds the embedding cache when no capacity is
// configured.
const DefaultCacheSize = 512

// EmbeddingClient generates embedding vectors for a batch of texts.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Service memoizes embeddings in an LRU cache keyed by a hash of the
// normalized text. The cache is safe for concurrent use; two
// goroutines racing on the same uncached text may both compute it,
// which is harmless.
type Service struct {
	client  EmbeddingClient
	cache   *lru.Cache[string, []float32]
	metrics *telemetry.Metrics
}

// NewService builds a caching embedding service. Capacities at or
// below zero fall back to DefaultCacheSize. metrics may be nil.
func NewService(client EmbeddingClient, capacity int, metrics *telemetry.Metrics) (*Service, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &Service{client: client, cache: cache, metrics: metrics}, nil
}

// Embedding returns the embedding vector for text, serving repeated
// texts from cache.
func (s *Service) Embedding(ctx context.Context, text string) ([]float32, error) {
	if s.client == nil {
		return nil, fmt.Errorf("embedding client not configured")
	}

	key := HashText(text)
	if vec, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit()
		return vec, nil
	}
	s.metrics.RecordCacheMiss()

	embeddings, err := s.client.Embed(ctx, []string{normalizeText(text)})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	s.cache.Add(key, embeddings[0])
	return embeddings[0], nil
}

// Len reports how many embeddings the cache holds.
func (s *Service) Len() int { return s.cache.Len() }

// HashText returns the cache key for text: a sha256 over its
// normalized form, so trivially different spellings share an entry.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Cosine returns the cosine similarity of two vectors. Mismatched or
// zero-magnitude vectors score zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
