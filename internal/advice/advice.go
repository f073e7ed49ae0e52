// Package advice generates counselor-facing guidance from a synthesized
// therapeutic context using Gemini.
//
// Advice is the third layer of the pipeline, after semantic retrieval and
// intervention classification. The model receives a clinical system
// instruction plus a context block describing the patient query, the most
// similar historical exchanges, and the recommended interventions. When no
// client is configured, or the model call fails, deterministic fallback
// advice built from the primary interventions is returned instead; advice
// generation never fails a request.
package advice

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/cura-ai/cura-inference/internal/assets"
	"github.com/cura-ai/cura-inference/internal/metrics"
	"github.com/cura-ai/cura-inference/internal/policy"
	"github.com/cura-ai/cura-inference/internal/retrieval"
)

// DefaultModel is the Gemini model used for advice generation.
// Can be overridden via the GEMINI_MODEL environment variable.
const DefaultModel = "gemini-2.5-flash"

const (
	adviceTemperature = 0.7
	adviceMaxTokens   = 1000

	// The prompt quotes at most two retrieved exchanges, trimmed so one
	// verbose conversation cannot crowd out the rest of the context.
	maxPromptExamples     = 2
	patientExcerptLimit   = 200
	counselorExcerptLimit = 300
)

// TherapeuticAdvice is structured guidance for the counselor handling a
// patient query.
type TherapeuticAdvice struct {
	AdviceText     string   `json:"advice_text"`
	Techniques     []string `json:"therapeutic_techniques"`
	Considerations []string `json:"considerations"`
	NextSteps      []string `json:"next_steps"`
	Confidence     float64  `json:"confidence_score"`
	Reasoning      string   `json:"reasoning"`
}

// Generator produces therapeutic advice. A nil client disables the model
// and routes every request through the deterministic fallback.
type Generator struct {
	client *genai.Client
}

// NewGenerator wraps a Gemini client. client may be nil.
func NewGenerator(client *genai.Client) *Generator {
	return &Generator{client: client}
}

// Configured reports whether a model client is attached. When false,
// every Generate call answers with fallback advice.
func (g *Generator) Configured() bool {
	return g != nil && g.client != nil
}

// ModelName returns the Gemini model to use, resolved from the
// GEMINI_MODEL environment variable with DefaultModel as fallback.
func ModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModel
}

// Generate produces advice for the query given the retrieved examples and
// the primary interventions. It never returns an error: any model failure
// is logged and answered with Fallback advice.
func (g *Generator) Generate(ctx context.Context, query string, examples []retrieval.Example, primaries []policy.Prediction) *TherapeuticAdvice {
	if g == nil || g.client == nil {
		log.Debug().Msg("Advice model not configured, using fallback advice")
		metrics.ForOperation("advice").Count("Fallbacks").Flush()
		return Fallback(primaries)
	}

	prompt := buildContext(query, examples, primaries)
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.AdviceSystemPrompt}},
		},
		Temperature:     genai.Ptr[float32](adviceTemperature),
		MaxOutputTokens: adviceMaxTokens,
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}

	model := ModelName()
	log.Debug().
		Str("model", model).
		Int("prompt_length", len(prompt)).
		Int("examples", len(examples)).
		Int("primaries", len(primaries)).
		Msg("Starting Gemini API call for advice generation")

	callStart := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	duration := time.Since(callStart)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", duration).
			Msg("Failed to generate advice, using fallback advice")
		metrics.ForOperation("advice").Count("ModelErrors").Count("Fallbacks").Flush()
		return Fallback(primaries)
	}

	var text string
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		log.Error().Str("model", model).Dur("duration", duration).
			Msg("Empty advice response from Gemini, using fallback advice")
		metrics.ForOperation("advice").Count("EmptyResponses").Count("Fallbacks").Flush()
		return Fallback(primaries)
	}

	advice := structure(text, primaries)
	metrics.ForOperation("advice").
		Metric("LatencyMs", float64(duration.Milliseconds()), metrics.UnitMilliseconds).
		Flush()
	log.Info().
		Str("model", model).
		Int("advice_length", len(advice.AdviceText)).
		Int("techniques", len(advice.Techniques)).
		Dur("duration", duration).
		Msg("Advice generation complete")
	return advice
}

// Fallback builds deterministic advice from the primary interventions
// without calling the model.
func Fallback(primaries []policy.Prediction) *TherapeuticAdvice {
	techniques := append([]string(nil), defaultTechniques...)
	text := "Focus on building therapeutic alliance through active listening and validation. Create a safe space for the patient to explore their concerns."
	if len(primaries) > 0 {
		text = fmt.Sprintf("Based on the analysis, %s appears to be the most appropriate intervention for this situation. Focus on validating the patient's feelings and providing a supportive therapeutic environment.", primaries[0].Label)
	}
	return &TherapeuticAdvice{
		AdviceText:     text,
		Techniques:     techniques,
		Considerations: append([]string(nil), defaultConsiderations...),
		NextSteps:      append([]string(nil), defaultNextSteps...),
		Confidence:     confidence(primaries),
		Reasoning:      reasoning(primaries, techniques),
	}
}

// buildContext renders the user prompt: the patient query, up to two
// retrieved exchanges, and the recommended interventions.
func buildContext(query string, examples []retrieval.Example, primaries []policy.Prediction) string {
	data := assets.AdviceContextData{Query: query}
	for i, ex := range examples {
		if i == maxPromptExamples {
			break
		}
		data.Examples = append(data.Examples, assets.AdviceExample{
			Index:      i + 1,
			Patient:    truncate(ex.PatientQuestion, patientExcerptLimit),
			Counselor:  truncate(ex.CounselorResponse, counselorExcerptLimit),
			Similarity: fmt.Sprintf("%.3f", ex.Similarity),
		})
	}
	for _, p := range primaries {
		data.Interventions = append(data.Interventions, assets.AdviceIntervention{
			Label:      p.Label,
			Confidence: fmt.Sprintf("%.3f", p.Confidence),
		})
	}
	return strings.TrimSpace(assets.RenderAdviceContextPrompt(data))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
