package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cura-ai/cura-inference/internal/advice"
	"github.com/cura-ai/cura-inference/internal/inference"
	"github.com/cura-ai/cura-inference/internal/policy"
	"github.com/cura-ai/cura-inference/internal/retrieval"
	"github.com/cura-ai/cura-inference/internal/store"
	"github.com/cura-ai/cura-inference/internal/taxonomy"
)

// POST /api/therapeutic-inference
//
// Runs the full pipeline: context synthesis plus advice generation. A
// degraded context is still a 200; the failure is carried inside the
// context's confidence summary.
func (s *Server) handleInference(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", start)
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", start)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "query must not be blank", start)
		return
	}
	topK, ok := resolveTopK(req.TopK)
	if !ok {
		respondError(w, http.StatusBadRequest, "top_k must be between 1 and 10", start)
		return
	}

	tc := s.synthesizer.Synthesize(r.Context(), req.Query, topK)
	adv := s.advice.Generate(r.Context(), req.Query, tc.SimilarExamples, tc.PrimaryInterventions)

	id := uuid.New().String()
	s.writeAudit(r, id, tc, adv)

	respond(w, http.StatusOK, struct {
		InferenceID string                        `json:"inference_id"`
		Context     *inference.TherapeuticContext `json:"context"`
		Advice      *advice.TherapeuticAdvice     `json:"advice"`
	}{id, tc, adv}, start)
}

// POST or GET /api/semantic-search
//
// Exercises the retriever alone. Unlike the full pipeline, retrieval
// failures surface here: a missing retriever is 503 and an oracle error
// is 502.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var (
		query string
		topK  int
	)
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Query string `json:"query"`
			TopK  int    `json:"top_k,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", start)
			return
		}
		query, topK = req.Query, req.TopK
	case http.MethodGet:
		query = r.URL.Query().Get("query")
		if raw := r.URL.Query().Get("top_k"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				respondError(w, http.StatusBadRequest, "top_k must be an integer", start)
				return
			}
			topK = n
		}
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", start)
		return
	}

	if strings.TrimSpace(query) == "" {
		respondError(w, http.StatusBadRequest, "query must not be blank", start)
		return
	}
	topK, ok := resolveTopK(topK)
	if !ok {
		respondError(w, http.StatusBadRequest, "top_k must be between 1 and 10", start)
		return
	}
	if s.retriever == nil {
		respondError(w, http.StatusServiceUnavailable, "semantic search not configured", start)
		return
	}

	results, err := s.retriever.Retrieve(r.Context(), query, topK, retrieval.DefaultSimilarityFloor)
	if err != nil {
		log.Error().Err(err).Msg("Semantic search failed")
		respondError(w, http.StatusBadGateway, "semantic search failed", start)
		return
	}
	if results == nil {
		results = []retrieval.Example{}
	}

	respond(w, http.StatusOK, struct {
		Query      string              `json:"query"`
		Results    []retrieval.Example `json:"results"`
		TotalFound int                 `json:"total_found"`
	}{query, results, len(results)}, start)
}

// POST /api/classify-interventions
//
// Exercises the classifier and the confidence policy alone. This endpoint
// has no degraded-context contract; a classifier failure is 502.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", start)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", start)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text must not be blank", start)
		return
	}

	scores, err := s.classifier.Classify(r.Context(), req.Text)
	if err != nil {
		log.Error().Err(err).Msg("Intervention classification failed")
		respondError(w, http.StatusBadGateway, "intervention classification failed", start)
		return
	}

	preds := s.policy.Evaluate(scores)
	primaries := policy.Primaries(preds)
	if primaries == nil {
		primaries = []policy.Prediction{}
	}
	summary := inference.Summarize(preds, primaries)

	respond(w, http.StatusOK, struct {
		Predictions          []policy.Prediction `json:"predictions"`
		PrimaryInterventions []policy.Prediction `json:"primary_interventions"`
		Summary              classifySummary     `json:"summary"`
	}{preds, primaries, classifySummary{
		TotalPredictions: len(preds),
		PrimaryCount:     summary.PrimaryCount,
		PredictedCount:   summary.PredictedCount,
		MaxConfidence:    summary.Max,
	}}, start)
}

// classifySummary is the aggregate block of the classify endpoint's
// payload. It differs from the pipeline's confidence summary: no mean,
// and the total prediction count is included.
type classifySummary struct {
	TotalPredictions int     `json:"total_predictions"`
	PrimaryCount     int     `json:"primary_count"`
	PredictedCount   int     `json:"predicted_count"`
	MaxConfidence    float64 `json:"max_confidence"`
}

// POST /api/generate-advice
//
// Generates advice for a caller-supplied context, exercising the
// generator boundary alone. Callers feed back examples and primaries
// from earlier search and classify responses.
func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", start)
		return
	}

	var req struct {
		PatientQuery         string              `json:"patient_query"`
		SimilarExamples      []retrieval.Example `json:"similar_examples,omitempty"`
		PrimaryInterventions []policy.Prediction `json:"primary_interventions,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", start)
		return
	}
	if strings.TrimSpace(req.PatientQuery) == "" {
		respondError(w, http.StatusBadRequest, "patient_query must not be blank", start)
		return
	}

	adv := s.advice.Generate(r.Context(), req.PatientQuery, req.SimilarExamples, req.PrimaryInterventions)

	modelUsed := "fallback"
	if s.advice.Configured() {
		modelUsed = advice.ModelName()
	}

	respond(w, http.StatusOK, struct {
		*advice.TherapeuticAdvice
		ModelUsed string `json:"model_used"`
	}{adv, modelUsed}, start)
}

// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", start)
		return
	}

	respond(w, http.StatusOK, struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
		UptimeS    float64         `json:"uptime_seconds"`
	}{
		Status: "healthy",
		Components: map[string]bool{
			"semantic_search":             s.retriever != nil,
			"intervention_classification": true,
			"advice_generation":           s.advice.Configured(),
			"audit_trail":                 s.audit != nil,
		},
		UptimeS: time.Since(s.started).Seconds(),
	}, start)
}

// GET /api/categories
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", start)
		return
	}

	cats := taxonomy.Categories()
	respond(w, http.StatusOK, struct {
		Categories []taxonomy.Category `json:"categories"`
		Total      int                 `json:"total"`
	}{cats, len(cats)}, start)
}

// resolveTopK validates a requested example count. Zero means "not
// specified" and resolves to the default; anything else outside
// [1, MaxTopK] is rejected.
func resolveTopK(topK int) (int, bool) {
	if topK == 0 {
		return retrieval.DefaultTopK, true
	}
	if topK < 1 || topK > retrieval.MaxTopK {
		return 0, false
	}
	return topK, true
}

// writeAudit persists the inference summary when a store is configured.
// Audit failures never affect the request.
func (s *Server) writeAudit(r *http.Request, id string, tc *inference.TherapeuticContext, adv *advice.TherapeuticAdvice) {
	if s.audit == nil {
		return
	}

	labels := make([]string, 0, len(tc.PrimaryInterventions))
	for _, p := range tc.PrimaryInterventions {
		labels = append(labels, p.Label)
	}

	rec := &store.InferenceRecord{
		ID:             id,
		Query:          tc.Query,
		PrimaryLabels:  labels,
		MeanConfidence: tc.Summary.Mean,
		MaxConfidence:  tc.Summary.Max,
		PrimaryCount:   tc.Summary.PrimaryCount,
		PredictedCount: tc.Summary.PredictedCount,
		ExampleCount:   len(tc.SimilarExamples),
		Error:          tc.Summary.Error,
		ProcessingMS:   tc.ProcessingMS,
	}
	if adv != nil {
		rec.AdviceConfidence = adv.Confidence
	}

	if err := s.audit.PutInference(r.Context(), rec); err != nil {
		log.Warn().Err(err).Str("inferenceId", id).Msg("Failed to write audit record")
	}
}
