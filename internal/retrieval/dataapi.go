package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	rdsdatatypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/rs/zerolog/log"
)

// DataAPIClient runs SQL against the Aurora conversation corpus over the
// RDS Data API, so no database connection pool lives in the process.
type DataAPIClient struct {
	client     *rdsdata.Client
	clusterARN string
	secretARN  string
	database   string
}

// NewDataAPIClient wraps an rdsdata client with the cluster coordinates.
func NewDataAPIClient(client *rdsdata.Client, clusterARN, secretARN, database string) *DataAPIClient {
	return &DataAPIClient{
		client:     client,
		clusterARN: clusterARN,
		secretARN:  secretARN,
		database:   database,
	}
}

// QuerySimilarConversations returns the topK conversations whose combined
// embedding is nearest to embedding by cosine distance, at or above the
// similarity floor, nearest first.
func (c *DataAPIClient) QuerySimilarConversations(ctx context.Context, embedding []float32, topK int, floor float64) ([]Example, error) {
	embStr := formatVector(embedding)
	sql := `SELECT c.conversation_id, c.patient_question, c.counselor_response,
			1 - (e.combined_embedding <=> :emb::vector) AS similarity
		FROM conversation_embeddings e
		JOIN conversations c ON c.conversation_id = e.conversation_id
		WHERE 1 - (e.combined_embedding <=> :emb::vector) >= :floor
		ORDER BY e.combined_embedding <=> :emb::vector
		LIMIT :topk`
	params := []rdsdatatypes.SqlParameter{
		{Name: aws.String("emb"), Value: &rdsdatatypes.FieldMemberStringValue{Value: embStr}},
		{Name: aws.String("floor"), Value: &rdsdatatypes.FieldMemberDoubleValue{Value: floor}},
		{Name: aws.String("topk"), Value: &rdsdatatypes.FieldMemberLongValue{Value: int64(topK)}},
	}

	result, err := c.client.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
		ResourceArn: aws.String(c.clusterARN),
		SecretArn:   aws.String(c.secretARN),
		Database:    aws.String(c.database),
		Sql:         aws.String(sql),
		Parameters:  params,
	})
	if err != nil {
		log.Error().Err(err).Msg("QuerySimilarConversations failed")
		return nil, fmt.Errorf("QuerySimilarConversations: %w", err)
	}

	return examplesFromResult(result), nil
}

// examplesFromResult decodes Data API records into Examples. Column order
// follows the SELECT above; rows with missing columns are skipped.
func examplesFromResult(result *rdsdata.ExecuteStatementOutput) []Example {
	examples := make([]Example, 0, len(result.Records))
	for _, rec := range result.Records {
		if len(rec) < 4 {
			continue
		}
		ex := Example{
			ConversationID:    stringField(rec[0]),
			PatientQuestion:   stringField(rec[1]),
			CounselorResponse: stringField(rec[2]),
			Similarity:        doubleField(rec[3]),
		}
		examples = append(examples, ex)
	}
	return examples
}

func stringField(f rdsdatatypes.Field) string {
	if v, ok := f.(*rdsdatatypes.FieldMemberStringValue); ok {
		return v.Value
	}
	return ""
}

func doubleField(f rdsdatatypes.Field) float64 {
	switch v := f.(type) {
	case *rdsdatatypes.FieldMemberDoubleValue:
		return v.Value
	case *rdsdatatypes.FieldMemberLongValue:
		return float64(v.Value)
	case *rdsdatatypes.FieldMemberStringValue:
		// Aurora returns numerics as strings under some type mappings.
		if parsed, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return parsed
		}
	}
	return 0
}

// formatVector renders an embedding as a pgvector literal, e.g. [0.1,0.2].
func formatVector(emb []float32) string {
	if len(emb) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range emb {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
