package advice

// extract.go implements the keyword heuristics that turn free-form model
// output into the structured advice fields. The model is asked for a
// specific response structure but is not forced into JSON, so extraction
// has to tolerate arbitrary prose.

import (
	"fmt"
	"math"
	"strings"

	"github.com/cura-ai/cura-inference/internal/policy"
)

const (
	// maxListItems caps each extracted list, matching the 2-3 items the
	// system prompt asks the model for.
	maxListItems = 3

	// minSentenceLen filters out fragments left over from abbreviations
	// and list markers when splitting on periods.
	minSentenceLen = 20
)

// techniqueKeywords maps lowercase technique mentions to display names.
// Matching is substring-based over the lowercased advice text, in table
// order.
var techniqueKeywords = []struct{ match, display string }{
	{"cognitive behavioral therapy", "Cognitive Behavioral Therapy"},
	{"cbt", "CBT"},
	{"cognitive restructuring", "Cognitive Restructuring"},
	{"mindfulness", "Mindfulness"},
	{"meditation", "Meditation"},
	{"breathing exercises", "Breathing Exercises"},
	{"grounding", "Grounding"},
	{"behavioral activation", "Behavioral Activation"},
	{"exposure therapy", "Exposure Therapy"},
	{"systematic desensitization", "Systematic Desensitization"},
	{"validation", "Validation"},
	{"empathy", "Empathy"},
	{"active listening", "Active Listening"},
	{"reflective listening", "Reflective Listening"},
	{"problem-solving", "Problem-Solving"},
	{"goal-setting", "Goal-Setting"},
	{"coping strategies", "Coping Strategies"},
	{"stress management", "Stress Management"},
	{"relaxation techniques", "Relaxation Techniques"},
	{"progressive muscle relaxation", "Progressive Muscle Relaxation"},
	{"guided imagery", "Guided Imagery"},
}

var considerationIndicators = []string{
	"consider", "important to note", "keep in mind", "be aware",
	"safety", "risk", "crisis", "emergency", "referral", "professional help",
}

var nextStepIndicators = []string{
	"next step", "follow up", "continue", "begin", "start",
	"practice", "implement", "try", "explore", "develop",
}

var defaultTechniques = []string{"Active Listening", "Validation", "Empathetic Responding"}

var defaultConsiderations = []string{
	"Monitor patient's emotional state and safety",
	"Maintain therapeutic boundaries and professional ethics",
	"Consider referral to specialized mental health services if needed",
}

var defaultNextSteps = []string{
	"Validate patient's feelings and experiences",
	"Explore coping strategies and resources",
	"Schedule follow-up to monitor progress",
}

// structure parses free-form advice text into the structured fields.
func structure(text string, primaries []policy.Prediction) *TherapeuticAdvice {
	techniques := extractTechniques(text)
	return &TherapeuticAdvice{
		AdviceText:     text,
		Techniques:     techniques,
		Considerations: extractSentences(text, considerationIndicators, defaultConsiderations),
		NextSteps:      extractSentences(text, nextStepIndicators, defaultNextSteps),
		Confidence:     confidence(primaries),
		Reasoning:      reasoning(primaries, techniques),
	}
}

// extractTechniques collects up to three recognized technique names
// mentioned in the text, falling back to the core counseling skills when
// none are mentioned.
func extractTechniques(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range techniqueKeywords {
		if strings.Contains(lower, kw.match) {
			out = append(out, kw.display)
			if len(out) == maxListItems {
				break
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultTechniques...)
	}
	return out
}

// extractSentences returns up to three sentences containing one of the
// indicator phrases, or defaults when nothing matches.
func extractSentences(text string, indicators, defaults []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(text, ".") {
		sentence := strings.TrimSpace(raw)
		if len(sentence) <= minSentenceLen || seen[sentence] {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, indicator := range indicators {
			if strings.Contains(lower, indicator) {
				seen[sentence] = true
				out = append(out, sentence)
				break
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaults...)
	}
	if len(out) > maxListItems {
		out = out[:maxListItems]
	}
	return out
}

// confidence scores the advice from the primary interventions backing it:
// their mean confidence, boosted 10% (capped at 0.95) when at least two
// interventions agree, rounded to three decimals. Without primaries the
// advice rests on general practice and scores a flat 0.3.
func confidence(primaries []policy.Prediction) float64 {
	if len(primaries) == 0 {
		return 0.3
	}
	var sum float64
	for _, p := range primaries {
		sum += p.Confidence
	}
	avg := sum / float64(len(primaries))
	if len(primaries) >= 2 {
		avg = math.Min(0.95, avg*1.1)
	}
	return math.Round(avg*1000) / 1000
}

// reasoning explains which interventions and techniques the advice is
// built on.
func reasoning(primaries []policy.Prediction, techniques []string) string {
	if len(primaries) == 0 {
		return "Based on general therapeutic best practices and evidence-based approaches."
	}
	labels := make([]string, len(primaries))
	scores := make([]string, len(primaries))
	for i, p := range primaries {
		labels[i] = p.Label
		scores[i] = fmt.Sprintf("%.3f", p.Confidence)
	}
	return fmt.Sprintf(
		"Based on %s interventions (confidence scores: %s), recommended techniques include %s. This approach aligns with evidence-based therapeutic practices.",
		strings.Join(labels, ", "),
		strings.Join(scores, ", "),
		strings.Join(techniques, ", "),
	)
}
