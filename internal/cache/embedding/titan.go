package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultTitanModel is the embedding model used when none is
// configured.
const DefaultTitanModel = "amazon.titan-embed-text-v1"

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// ModelInvoker is the Bedrock runtime surface the Titan client calls.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// TitanClient generates embeddings with an Amazon Titan text model on
// Bedrock. Titan embeds one text per invocation, so batches fan out to
// sequential calls.
type TitanClient struct {
	runtime ModelInvoker
	modelID string
}

// NewTitanClient builds a Titan embedding client. An empty modelID
// falls back to DefaultTitanModel.
func NewTitanClient(runtime ModelInvoker, modelID string) *TitanClient {
	if modelID == "" {
		modelID = DefaultTitanModel
	}
	return &TitanClient{runtime: runtime, modelID: modelID}
}

// Embed generates one embedding per input text.
func (c *TitanClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body, err := json.Marshal(titanRequest{InputText: text})
		if err != nil {
			return nil, fmt.Errorf("encoding embedding request: %w", err)
		}

		out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(c.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, fmt.Errorf("invoking embedding model: %w", err)
		}

		var resp titanResponse
		if err := json.Unmarshal(out.Body, &resp); err != nil {
			return nil, fmt.Errorf("decoding embedding response: %w", err)
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("embedding model returned no vector")
		}
		embeddings = append(embeddings, resp.Embedding)
	}
	return embeddings, nil
}
