// Package store provides the optional inference audit trail. Each
// completed inference writes one DynamoDB record summarizing what was
// asked and what was recommended, so clinical reviewers can audit
// recommendations after the fact without logging full conversations.
//
// The package uses a single-table DynamoDB design where each inference
// owns one partition (INFER#{inferenceId}) with a single RESULT record.
// A TTL attribute (expiresAt) auto-deletes records after 30 days,
// matching the audit retention policy.
package store

import (
	"context"
	"time"
)

// AuditTTL is the time-to-live for audit records (30-day retention).
const AuditTTL = 30 * 24 * time.Hour

// AuditStore defines the persistence interface for the inference audit
// trail. Each method is safe for concurrent use. Implementations must
// handle context cancellation and propagate errors with sufficient
// detail for debugging.
//
// GetInference returns (nil, nil) when the requested record does not
// exist. PutInference performs full-item replacement (upsert semantics).
type AuditStore interface {
	// PutInference creates or replaces an audit record.
	PutInference(ctx context.Context, record *InferenceRecord) error

	// GetInference retrieves an audit record by ID. Returns nil, nil if not found.
	GetInference(ctx context.Context, inferenceID string) (*InferenceRecord, error)
}

// InferenceRecord is the audited summary of one inference. The ID field
// is derived from the partition key on read and excluded from DynamoDB
// attributes on write (via dynamodbav:"-"). The record deliberately
// stores summary statistics rather than the full therapeutic context.
type InferenceRecord struct {
	ID               string   `json:"id" dynamodbav:"-"`
	Query            string   `json:"query" dynamodbav:"query"`
	PrimaryLabels    []string `json:"primaryLabels,omitempty" dynamodbav:"primaryLabels,omitempty"`
	MeanConfidence   float64  `json:"meanConfidence" dynamodbav:"meanConfidence"`
	MaxConfidence    float64  `json:"maxConfidence" dynamodbav:"maxConfidence"`
	PrimaryCount     int      `json:"primaryCount" dynamodbav:"primaryCount"`
	PredictedCount   int      `json:"predictedCount" dynamodbav:"predictedCount"`
	ExampleCount     int      `json:"exampleCount" dynamodbav:"exampleCount"`
	AdviceConfidence float64  `json:"adviceConfidence,omitempty" dynamodbav:"adviceConfidence,omitempty"`
	Error            string   `json:"error,omitempty" dynamodbav:"error,omitempty"`
	ProcessingMS     float64  `json:"processingMs" dynamodbav:"processingMs"`
	CreatedAt        int64    `json:"createdAt" dynamodbav:"createdAt"`
}
