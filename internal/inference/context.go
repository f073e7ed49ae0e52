package inference

import (
	"encoding/json"

	"github.com/cura-ai/cura-inference/internal/policy"
	"github.com/cura-ai/cura-inference/internal/retrieval"
)

// ConfidenceSummary aggregates one query's six category confidences.
// Mean and Max cover all raw confidences, not just primaries. A non-empty
// Error means classification failed and the statistics are meaningless.
type ConfidenceSummary struct {
	Mean           float64 `json:"mean_confidence"`
	Max            float64 `json:"max_confidence"`
	PrimaryCount   int     `json:"primary_count"`
	PredictedCount int     `json:"predicted_count"`
	Error          string  `json:"error,omitempty"`
}

// Degraded reports whether the summary carries a classification failure
// instead of statistics.
func (s ConfidenceSummary) Degraded() bool {
	return s.Error != ""
}

// MarshalJSON emits either the statistics or, for a degraded summary,
// only the error message. Zeroed statistics are not meaningful and are
// omitted from the wire shape.
func (s ConfidenceSummary) MarshalJSON() ([]byte, error) {
	if s.Degraded() {
		return json.Marshal(map[string]string{"error": s.Error})
	}
	type stats struct {
		Mean           float64 `json:"mean_confidence"`
		Max            float64 `json:"max_confidence"`
		PrimaryCount   int     `json:"primary_count"`
		PredictedCount int     `json:"predicted_count"`
	}
	return json.Marshal(stats{s.Mean, s.Max, s.PrimaryCount, s.PredictedCount})
}

// TherapeuticContext is the unified result of one inference: retrieved
// examples, evaluated predictions, response-pattern hints, and summary
// statistics. Built fresh per request and read-only once constructed.
//
// Predictions is sorted by confidence descending (ties keep taxonomy
// declaration order); PrimaryInterventions is its primary subset in the
// same order.
type TherapeuticContext struct {
	Query                string              `json:"query"`
	SimilarExamples      []retrieval.Example `json:"similar_examples"`
	Predictions          []policy.Prediction `json:"intervention_predictions"`
	PrimaryInterventions []policy.Prediction `json:"primary_interventions"`
	ResponsePatterns     []string            `json:"recommended_response_patterns"`
	Summary              ConfidenceSummary   `json:"confidence_summary"`
	ProcessingMS         float64             `json:"processing_time_ms"`
}

// Degraded reports whether classification failed for this context.
func (t *TherapeuticContext) Degraded() bool {
	return t.Summary.Degraded()
}
