package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"
)

// DefaultEmbeddingModel is the Bedrock model used for query embeddings.
// Its output dimension must match the vector column of the conversation
// corpus.
const DefaultEmbeddingModel = "amazon.titan-embed-text-v2:0"

const embeddingDimensions = 1024

type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type titanEmbedResponse struct {
	Embedding           []float64 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// generateEmbedding embeds text with the Titan model. Embeddings are
// normalized so cosine similarity against the corpus is well-defined.
func generateEmbedding(ctx context.Context, client *bedrockruntime.Client, modelID string, text string) ([]float32, error) {
	req := titanEmbedRequest{
		InputText:  text,
		Dimensions: embeddingDimensions,
		Normalize:  true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	result, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		log.Error().Err(err).Str("modelId", modelID).Msg("Bedrock InvokeModel failed")
		return nil, fmt.Errorf("InvokeModel: %w", err)
	}

	var resp titanEmbedResponse
	if err := json.NewDecoder(bytes.NewReader(result.Body)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embedding := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}
