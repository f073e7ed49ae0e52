// Package api exposes the inference pipeline over HTTP. Every endpoint
// answers with the same JSON envelope: {success, data, error?,
// processing_time_ms}, where processing_time_ms covers the handler's own
// wall time. Degraded therapeutic contexts are still successes at this
// layer; only transport and validation problems surface as errors.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cura-ai/cura-inference/internal/advice"
	"github.com/cura-ai/cura-inference/internal/inference"
	"github.com/cura-ai/cura-inference/internal/policy"
	"github.com/cura-ai/cura-inference/internal/store"
)

// Config carries the collaborators a Server serves. Synthesizer and
// Classifier are required; the rest degrade gracefully when absent.
type Config struct {
	Synthesizer *inference.Synthesizer
	Advice      *advice.Generator
	Retriever   inference.Retriever // nil disables /api/semantic-search
	Classifier  inference.Classifier
	Policy      *policy.Policy
	Audit       store.AuditStore // nil disables the audit trail
}

// Server routes HTTP requests to the pipeline. Safe for concurrent use.
type Server struct {
	synthesizer *inference.Synthesizer
	advice      *advice.Generator
	retriever   inference.Retriever
	classifier  inference.Classifier
	policy      *policy.Policy
	audit       store.AuditStore
	started     time.Time
}

// NewServer builds a Server from cfg. A nil Policy falls back to the
// default confidence policy; a nil Advice generator falls back to one
// without a model client.
func NewServer(cfg Config) *Server {
	if cfg.Synthesizer == nil {
		panic("api: NewServer requires a synthesizer")
	}
	if cfg.Classifier == nil {
		panic("api: NewServer requires a classifier")
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.New()
	}
	if cfg.Advice == nil {
		cfg.Advice = advice.NewGenerator(nil)
	}
	return &Server{
		synthesizer: cfg.Synthesizer,
		advice:      cfg.Advice,
		retriever:   cfg.Retriever,
		classifier:  cfg.Classifier,
		policy:      cfg.Policy,
		audit:       cfg.Audit,
		started:     time.Now(),
	}
}

// Handler returns the full route table wrapped in request logging and
// CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/therapeutic-inference", s.handleInference)
	mux.HandleFunc("/api/semantic-search", s.handleSearch)
	mux.HandleFunc("/api/classify-interventions", s.handleClassify)
	mux.HandleFunc("/api/generate-advice", s.handleAdvice)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/categories", s.handleCategories)

	return withLogging(withCORS(mux))
}

// envelope is the uniform response shape shared by every endpoint.
type envelope struct {
	Success      bool    `json:"success"`
	Data         any     `json:"data,omitempty"`
	Error        string  `json:"error,omitempty"`
	ProcessingMS float64 `json:"processing_time_ms"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respond writes a success envelope with the elapsed handler time.
func respond(w http.ResponseWriter, status int, data any, start time.Time) {
	respondJSON(w, status, envelope{
		Success:      true,
		Data:         data,
		ProcessingMS: elapsedMS(start),
	})
}

// respondError writes a failure envelope. message is client-facing and
// must not leak internals beyond what the oracles already return.
func respondError(w http.ResponseWriter, status int, message string, start time.Time) {
	respondJSON(w, status, envelope{
		Success:      false,
		Error:        message,
		ProcessingMS: elapsedMS(start),
	})
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
