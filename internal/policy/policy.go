// Package policy turns raw classifier confidences into intervention
// predictions by applying the calibrated threshold tables.
//
// Two thresholds apply to every category: its own prediction threshold
// (taxonomy.Category.Threshold, category-specific) and the uniform primary
// threshold below. On top of the numeric rules sits one hard business
// rule, the baseline override: validation_empathy is always surfaced as a
// primary recommendation no matter how the classifier scored it.
package policy

import (
	"sort"

	"github.com/cura-ai/cura-inference/internal/taxonomy"
)

// PrimaryThreshold is the uniform confidence bar for recommending an
// intervention as primary. It is at or above every per-category prediction
// threshold, so a primary intervention is always also predicted.
const PrimaryThreshold = 0.6

// Prediction is the evaluated outcome for one intervention category.
// Predicted and Primary are derived from Confidence at evaluation time and
// must never be cached apart from it.
type Prediction struct {
	Intervention taxonomy.Key `json:"intervention"`
	Label        string       `json:"label"`
	Confidence   float64      `json:"confidence"`
	Predicted    bool         `json:"is_predicted"`
	Primary      bool         `json:"is_primary"`
}

// Policy evaluates raw classifier scores against the calibrated
// thresholds. The tables are fixed at construction; a Policy is safe for
// concurrent use across requests.
type Policy struct {
	categories []taxonomy.Category
}

// New builds a Policy over the full intervention taxonomy.
func New() *Policy {
	return &Policy{categories: taxonomy.Categories()}
}

// Evaluate scores every category in the taxonomy against raw classifier
// confidences. Categories missing from raw score 0.0. The result is
// sorted by confidence descending; equal confidences keep taxonomy
// declaration order. Evaluate is a pure function of its input.
func (p *Policy) Evaluate(raw map[taxonomy.Key]float64) []Prediction {
	preds := make([]Prediction, 0, len(p.categories))
	for _, c := range p.categories {
		score := raw[c.Key]
		preds = append(preds, Prediction{
			Intervention: c.Key,
			Label:        c.Label,
			Confidence:   score,
			Predicted:    score >= c.Threshold,
			Primary:      score >= PrimaryThreshold,
		})
	}

	// Stable sort preserves declaration order for equal confidences.
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})

	forceBaseline(preds)
	return preds
}

// forceBaseline marks validation_empathy as primary (and therefore
// predicted) regardless of its raw score. Corpus validation found the
// category appropriate in effectively every conversation, so it is always
// recommended. No other category gets an override.
func forceBaseline(preds []Prediction) {
	for i := range preds {
		if preds[i].Intervention == taxonomy.ValidationEmpathy {
			preds[i].Primary = true
			preds[i].Predicted = true
			return
		}
	}
}

// Primaries returns the subset of preds marked primary, preserving order.
func Primaries(preds []Prediction) []Prediction {
	var out []Prediction
	for _, p := range preds {
		if p.Primary {
			out = append(out, p)
		}
	}
	return out
}
