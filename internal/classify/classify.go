// Package classify scores a query against the intervention taxonomy using
// a hosted zero-shot NLI model. Every call submits the full ordered list
// of category descriptions as candidate labels; there is no partial
// classification. Results come back keyed by candidate label and are
// mapped to category keys through the taxonomy.
//
// Unlike retrieval, classification failure is fatal to scoring: no
// meaningful default confidence exists, so callers must degrade the whole
// context rather than invent scores.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cura-ai/cura-inference/internal/metrics"
	"github.com/cura-ai/cura-inference/internal/taxonomy"
)

// DefaultEndpoint is the hosted inference URL for the zero-shot model.
// Self-hosted deployments point CLASSIFIER_ENDPOINT at their own server.
const DefaultEndpoint = "https://api-inference.huggingface.co/models/facebook/bart-large-mnli"

const requestTimeout = 30 * time.Second

// ErrUnavailable marks any classification failure: transport errors,
// non-200 responses, and malformed or partial results all wrap it.
var ErrUnavailable = errors.New("classifier unavailable")

// ZeroShotClassifier calls the zero-shot model over HTTPS. Safe for
// concurrent use across requests.
type ZeroShotClassifier struct {
	endpoint string
	token    string
	client   *http.Client
	labels   []string
}

// NewZeroShotClassifier builds a classifier for the given endpoint.
// endpoint defaults to DefaultEndpoint; token may be empty for
// unauthenticated self-hosted endpoints.
func NewZeroShotClassifier(endpoint, token string) *ZeroShotClassifier {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &ZeroShotClassifier{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: requestTimeout},
		labels:   taxonomy.Descriptions(),
	}
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
	Options    zeroShotOptions    `json:"options"`
}

type zeroShotParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

type zeroShotOptions struct {
	// WaitForModel blocks on the hosted API while the model container
	// warms up instead of returning 503.
	WaitForModel bool `json:"wait_for_model"`
}

type zeroShotResponse struct {
	Sequence string    `json:"sequence"`
	Labels   []string  `json:"labels"`
	Scores   []float64 `json:"scores"`
	Error    string    `json:"error,omitempty"`
}

// Classify returns an independent confidence in [0,1] per category key.
// The six confidences do not sum to 1 (multi-label scoring). On any
// failure the returned error wraps ErrUnavailable and no scores are
// returned.
func (c *ZeroShotClassifier) Classify(ctx context.Context, query string) (map[taxonomy.Key]float64, error) {
	start := time.Now()

	scores, err := c.classify(ctx, query)
	if err != nil {
		metrics.ForOperation("classification").Count("Errors").Flush()
		log.Error().Err(err).Msg("intervention classification failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	elapsed := time.Since(start)
	metrics.ForOperation("classification").
		Metric("LatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("CategoryCount", float64(len(scores)), metrics.UnitCount).
		Flush()

	log.Debug().Int("categories", len(scores)).Dur("elapsed", elapsed).Msg("zero-shot classification complete")
	return scores, nil
}

func (c *ZeroShotClassifier) classify(ctx context.Context, query string) (map[taxonomy.Key]float64, error) {
	reqData := zeroShotRequest{
		Inputs: query,
		Parameters: zeroShotParameters{
			CandidateLabels: c.labels,
			MultiLabel:      true,
		},
		Options: zeroShotOptions{WaitForModel: true},
	}
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp zeroShotResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != "" {
		return nil, fmt.Errorf("api error: %s", apiResp.Error)
	}
	if len(apiResp.Labels) != len(apiResp.Scores) {
		return nil, fmt.Errorf("mismatched response: %d labels, %d scores", len(apiResp.Labels), len(apiResp.Scores))
	}

	// Results are ranked by score, so labels come back reordered. Map
	// each back to its category by label text.
	scores := make(map[taxonomy.Key]float64, len(apiResp.Labels))
	for i, label := range apiResp.Labels {
		cat, ok := taxonomy.ByDescription(label)
		if !ok {
			return nil, fmt.Errorf("unrecognized label in response: %q", label)
		}
		scores[cat.Key] = apiResp.Scores[i]
	}
	if len(scores) != len(c.labels) {
		return nil, fmt.Errorf("partial classification: %d of %d categories scored", len(scores), len(c.labels))
	}
	return scores, nil
}
