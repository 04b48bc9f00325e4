// Package retrieval fetches product catalog context from a Bedrock
// knowledge base.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"cartparse/internal/config"
	"cartparse/internal/telemetry"
)

// Document is one retrieved knowledge base chunk.
type Document struct {
	Content  string
	Score    float64
	Metadata map[string]interface{}
}

// Source returns the document's source attribute, empty when the
// knowledge base supplied none.
func (d Document) Source() string {
	if s, ok := d.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

// KnowledgeBaseAPI is the agent runtime surface the client depends on.
type KnowledgeBaseAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// Client retrieves documents for a configured knowledge base.
type Client struct {
	api     KnowledgeBaseAPI
	cfg     config.KnowledgeBaseConfig
	metrics *telemetry.Metrics
}

// New builds a retrieval client over the given API surface.
func New(api KnowledgeBaseAPI, cfg config.KnowledgeBaseConfig, metrics *telemetry.Metrics) *Client {
	if cfg.NumberOfResults <= 0 {
		cfg.NumberOfResults = 5
	}
	return &Client{api: api, cfg: cfg, metrics: metrics}
}

// Retrieve runs a vector search against the knowledge base and maps
// the results into documents.
func (c *Client) Retrieve(ctx context.Context, query string) ([]Document, error) {
	input := &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(c.cfg.KnowledgeBaseID),
		RetrievalQuery: &types.KnowledgeBaseQuery{
			Text: aws.String(query),
		},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(int32(c.cfg.NumberOfResults)),
			},
		},
	}

	start := time.Now()
	out, err := c.api.Retrieve(ctx, input)
	c.metrics.RecordRetrieval(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("knowledge base retrieval: %w", err)
	}

	docs := make([]Document, 0, len(out.RetrievalResults))
	for _, result := range out.RetrievalResults {
		doc := Document{Score: aws.ToFloat64(result.Score)}
		if result.Content != nil {
			doc.Content = aws.ToString(result.Content.Text)
		}
		if len(result.Metadata) > 0 {
			doc.Metadata = make(map[string]interface{}, len(result.Metadata))
			for key, value := range result.Metadata {
				var decoded interface{}
				if derr := value.UnmarshalSmithyDocument(&decoded); derr == nil {
					doc.Metadata[key] = decoded
				}
			}
		}
		docs = append(docs, doc)
	}

	slog.Debug("Knowledge base retrieval completed",
		"knowledge_base_id", c.cfg.KnowledgeBaseID,
		"documents", len(docs),
	)
	return docs, nil
}
