// Package inference orchestrates one therapeutic query end to end: it
// runs similarity retrieval and intervention classification concurrently,
// applies the confidence policy, and assembles the unified context that
// advice generation and the API surface consume.
//
// The two oracle branches fail asymmetrically. Retrieval is best-effort:
// an error there costs the retrieved passages and nothing else. Classification is
// load-bearing: without scores there is nothing to recommend, so its
// failure produces a degraded context carrying the failure message. In
// both cases Synthesize returns a usable value: partial guidance beats
// none in this domain, and callers never see an error.
package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cura-ai/cura-inference/internal/metrics"
	"github.com/cura-ai/cura-inference/internal/policy"
	"github.com/cura-ai/cura-inference/internal/retrieval"
	"github.com/cura-ai/cura-inference/internal/taxonomy"
)

// exampleQuoteLimit caps the counselor-response excerpt quoted in the
// first response pattern. The excerpt is never re-expanded downstream.
const exampleQuoteLimit = 100

// Retriever finds counseling exchanges similar to a query. An empty
// result with nil error is valid; errors are treated as "no examples".
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, floor float64) ([]retrieval.Example, error)
}

// Classifier scores a query against every intervention category in one
// atomic call: all six confidences or an error.
type Classifier interface {
	Classify(ctx context.Context, query string) (map[taxonomy.Key]float64, error)
}

// Synthesizer merges both oracle branches into therapeutic contexts.
// Safe for concurrent use; all mutable state is request-scoped.
type Synthesizer struct {
	retriever  Retriever // nil when retrieval is not configured
	classifier Classifier
	policy     *policy.Policy
}

// NewSynthesizer wires the oracle adapters and the confidence policy.
// retriever may be nil (contexts are built without examples); classifier
// must not be.
func NewSynthesizer(r Retriever, c Classifier, p *policy.Policy) *Synthesizer {
	if c == nil {
		panic("inference: NewSynthesizer requires a classifier")
	}
	if p == nil {
		p = policy.New()
	}
	return &Synthesizer{retriever: r, classifier: c, policy: p}
}

// Synthesize runs one query through both oracles and assembles the unified
// context. topK bounds the retrieved examples (defaulted when <= 0).
// Cancelling ctx cancels both oracle calls; the call still returns a
// (degraded) context rather than an error.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, topK int) *TherapeuticContext {
	start := time.Now()
	if topK < 1 {
		topK = retrieval.DefaultTopK
	}

	log.Info().Str("query", truncate(query, 50)).Int("topK", topK).Msg("Processing therapeutic query")

	// Fork-join: both oracle calls run concurrently with per-branch
	// results, merged only after the barrier. No state is shared between
	// the branches.
	var (
		wg       sync.WaitGroup
		examples []retrieval.Example
		retErr   error
		scores   map[taxonomy.Key]float64
		classErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if s.retriever == nil {
			log.Debug().Msg("retrieval not configured; continuing without examples")
			return
		}
		examples, retErr = s.retriever.Retrieve(ctx, query, topK, retrieval.DefaultSimilarityFloor)
	}()
	go func() {
		defer wg.Done()
		scores, classErr = s.classifier.Classify(ctx, query)
	}()
	wg.Wait()

	if retErr != nil {
		log.Warn().Err(retErr).Msg("similar-example retrieval failed; continuing without examples")
		examples = nil
	}
	if examples == nil {
		examples = []retrieval.Example{}
	}

	if classErr != nil {
		return s.degraded(query, examples, classErr, start)
	}

	preds := s.policy.Evaluate(scores)
	primaries := policy.Primaries(preds)
	if primaries == nil {
		primaries = []policy.Prediction{}
	}

	tc := &TherapeuticContext{
		Query:                query,
		SimilarExamples:      examples,
		Predictions:          preds,
		PrimaryInterventions: primaries,
		ResponsePatterns:     responsePatterns(examples, primaries),
		Summary:              Summarize(preds, primaries),
		ProcessingMS:         elapsedMS(start),
	}

	metrics.ForOperation("synthesis").
		Metric("LatencyMs", tc.ProcessingMS, metrics.UnitMilliseconds).
		Metric("PrimaryCount", float64(len(primaries)), metrics.UnitCount).
		Property("example_count", len(examples)).
		Flush()

	log.Info().
		Float64("elapsedMs", tc.ProcessingMS).
		Int("examples", len(examples)).
		Int("primary", len(primaries)).
		Msg("Therapeutic inference complete")

	return tc
}

// degraded builds the context returned when classification fails: no
// predictions, an explanatory response pattern, and the failure message in
// the confidence summary. Examples retrieved by the surviving branch are
// kept.
func (s *Synthesizer) degraded(query string, examples []retrieval.Example, cause error, start time.Time) *TherapeuticContext {
	log.Error().Err(cause).Msg("Therapeutic inference degraded")
	metrics.ForOperation("synthesis").Count("DegradedContexts").Flush()

	return &TherapeuticContext{
		Query:                query,
		SimilarExamples:      examples,
		Predictions:          []policy.Prediction{},
		PrimaryInterventions: []policy.Prediction{},
		ResponsePatterns:     []string{fmt.Sprintf("Error processing query: %v", cause)},
		Summary:              ConfidenceSummary{Error: cause.Error()},
		ProcessingMS:         elapsedMS(start),
	}
}

// responsePatterns builds the ordered hint list: one quote from the top
// example when any were retrieved, then the fixed recommendation sentence
// for each primary intervention, in primary order.
func responsePatterns(examples []retrieval.Example, primaries []policy.Prediction) []string {
	patterns := make([]string, 0, len(primaries)+1)
	if len(examples) > 0 {
		patterns = append(patterns, fmt.Sprintf(
			"Similar situations have been addressed with responses like: '%s...'",
			truncate(examples[0].CounselorResponse, exampleQuoteLimit)))
	}
	for _, p := range primaries {
		if cat, ok := taxonomy.ByKey(p.Intervention); ok {
			patterns = append(patterns, cat.Recommendation)
		}
	}
	return patterns
}

// Summarize computes aggregate statistics over the full prediction list.
// Empty predictions yield zero statistics.
func Summarize(preds, primaries []policy.Prediction) ConfidenceSummary {
	s := ConfidenceSummary{PrimaryCount: len(primaries)}
	if len(preds) == 0 {
		return s
	}
	var sum float64
	for _, p := range preds {
		sum += p.Confidence
		if p.Confidence > s.Max {
			s.Max = p.Confidence
		}
		if p.Predicted {
			s.PredictedCount++
		}
	}
	s.Mean = sum / float64(len(preds))
	return s
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
