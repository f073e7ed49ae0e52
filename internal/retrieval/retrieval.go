// Package retrieval finds historical counseling exchanges similar to an
// incoming query. The query is embedded with Bedrock Titan and matched
// against pgvector conversation embeddings in Aurora PostgreSQL through
// the RDS Data API.
//
// Retrieval is best-effort by contract: callers treat an error from this
// package as "no examples available", never as a reason to abort the
// wider inference.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"

	"github.com/cura-ai/cura-inference/internal/metrics"
)

const (
	// DefaultTopK is the number of similar conversations fetched when the
	// caller does not specify one.
	DefaultTopK = 3

	// MaxTopK bounds a single retrieval. Requests above it are clamped.
	MaxTopK = 10

	// DefaultSimilarityFloor filters out matches with cosine similarity
	// below this value.
	DefaultSimilarityFloor = 0.1
)

// ErrNotConfigured is returned when retrieval is attempted without an
// Aurora cluster configured.
var ErrNotConfigured = errors.New("retrieval not configured")

// Example is one retrieved counseling exchange with its similarity to the
// query. Immutable once returned.
type Example struct {
	ConversationID    string  `json:"conversation_id"`
	PatientQuestion   string  `json:"patient_question"`
	CounselorResponse string  `json:"counselor_response"`
	Similarity        float64 `json:"similarity_score"`
}

// AuroraRetriever embeds queries with Bedrock Titan and searches the
// conversation corpus in Aurora. Safe for concurrent use.
type AuroraRetriever struct {
	bedrock *bedrockruntime.Client
	data    *DataAPIClient
	modelID string
}

// NewAuroraRetriever wires an embedding client and a Data API client into
// a retriever. modelID defaults to the Titan text embedding model when
// empty.
func NewAuroraRetriever(bedrock *bedrockruntime.Client, data *DataAPIClient, modelID string) *AuroraRetriever {
	if modelID == "" {
		modelID = DefaultEmbeddingModel
	}
	return &AuroraRetriever{bedrock: bedrock, data: data, modelID: modelID}
}

// Retrieve returns up to topK conversations similar to query, most similar
// first, skipping matches below floor. topK outside [1, MaxTopK] is
// clamped; floor <= 0 falls back to DefaultSimilarityFloor. An empty
// result with nil error means no neighbor cleared the floor.
func (r *AuroraRetriever) Retrieve(ctx context.Context, query string, topK int, floor float64) ([]Example, error) {
	if r.bedrock == nil || r.data == nil {
		return nil, ErrNotConfigured
	}
	topK = clampTopK(topK)
	if floor <= 0 {
		floor = DefaultSimilarityFloor
	}

	start := time.Now()
	embedding, err := generateEmbedding(ctx, r.bedrock, r.modelID, query)
	if err != nil {
		metrics.ForOperation("retrieval").Count("EmbeddingErrors").Flush()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	examples, err := r.data.QuerySimilarConversations(ctx, embedding, topK, floor)
	if err != nil {
		metrics.ForOperation("retrieval").Count("QueryErrors").Flush()
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	elapsed := time.Since(start)
	metrics.ForOperation("retrieval").
		Metric("LatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("ResultCount", float64(len(examples)), metrics.UnitCount).
		Flush()

	log.Debug().
		Int("topK", topK).
		Float64("floor", floor).
		Int("results", len(examples)).
		Dur("elapsed", elapsed).
		Msg("similarity retrieval complete")

	return examples, nil
}

func clampTopK(topK int) int {
	if topK < 1 {
		return DefaultTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}
