package inference

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cura-ai/cura-inference/internal/policy"
	"github.com/cura-ai/cura-inference/internal/retrieval"
	"github.com/cura-ai/cura-inference/internal/taxonomy"
)

type fakeRetriever struct {
	examples []retrieval.Example
	err      error
	gotTopK  int
	gotFloor float64
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int, floor float64) ([]retrieval.Example, error) {
	f.gotTopK = topK
	f.gotFloor = floor
	return f.examples, f.err
}

type fakeClassifier struct {
	scores map[taxonomy.Key]float64
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, query string) (map[taxonomy.Key]float64, error) {
	return f.scores, f.err
}

func testExamples() []retrieval.Example {
	return []retrieval.Example{
		{
			ConversationID:    "conv-001",
			PatientQuestion:   "I keep thinking I'm going to fail at everything",
			CounselorResponse: "It sounds like these thoughts feel overwhelming. Let's look at the evidence for and against them together, starting with one recent situation.",
			Similarity:        0.91,
		},
		{
			ConversationID:    "conv-002",
			PatientQuestion:   "Nothing I do seems good enough",
			CounselorResponse: "That inner critic sounds relentless.",
			Similarity:        0.84,
		},
	}
}

func highCognitiveScores() map[taxonomy.Key]float64 {
	return map[taxonomy.Key]float64{
		taxonomy.ValidationEmpathy:      0.1,
		taxonomy.CognitiveRestructuring: 0.9,
		taxonomy.BehavioralActivation:   0.2,
		taxonomy.MindfulnessGrounding:   0.1,
		taxonomy.ProblemSolving:         0.1,
		taxonomy.Psychoeducation:        0.1,
	}
}

func TestSynthesizeFullPipeline(t *testing.T) {
	r := &fakeRetriever{examples: testExamples()}
	c := &fakeClassifier{scores: highCognitiveScores()}
	s := NewSynthesizer(r, c, policy.New())

	tc := s.Synthesize(context.Background(), "I keep thinking I'll fail", 3)

	if tc.Query != "I keep thinking I'll fail" {
		t.Errorf("unexpected query: %q", tc.Query)
	}
	if len(tc.SimilarExamples) != 2 {
		t.Fatalf("expected 2 examples, got %d", len(tc.SimilarExamples))
	}
	if len(tc.Predictions) != 6 {
		t.Fatalf("expected 6 predictions, got %d", len(tc.Predictions))
	}
	if tc.Predictions[0].Intervention != taxonomy.CognitiveRestructuring {
		t.Errorf("expected cognitive_restructuring ranked first, got %s", tc.Predictions[0].Intervention)
	}

	if len(tc.PrimaryInterventions) != 2 {
		t.Fatalf("expected 2 primary interventions, got %d", len(tc.PrimaryInterventions))
	}
	if tc.PrimaryInterventions[0].Intervention != taxonomy.CognitiveRestructuring {
		t.Errorf("expected cognitive_restructuring first, got %s", tc.PrimaryInterventions[0].Intervention)
	}
	if tc.PrimaryInterventions[1].Intervention != taxonomy.ValidationEmpathy || !tc.PrimaryInterventions[1].Primary {
		t.Error("expected forced validation_empathy as second primary")
	}

	// Quote from the top example first, then one sentence per primary.
	if len(tc.ResponsePatterns) != 3 {
		t.Fatalf("expected 3 response patterns, got %d: %v", len(tc.ResponsePatterns), tc.ResponsePatterns)
	}
	if !strings.HasPrefix(tc.ResponsePatterns[0], "Similar situations have been addressed with responses like: '") {
		t.Errorf("expected example quote first, got %q", tc.ResponsePatterns[0])
	}
	if tc.ResponsePatterns[1] != "Help explore and challenge any unhelpful thought patterns" {
		t.Errorf("unexpected second pattern: %q", tc.ResponsePatterns[1])
	}
	if tc.ResponsePatterns[2] != "Acknowledge and validate the person's feelings with empathetic language" {
		t.Errorf("unexpected third pattern: %q", tc.ResponsePatterns[2])
	}

	wantMean := (0.1 + 0.9 + 0.2 + 0.1 + 0.1 + 0.1) / 6
	if diff := tc.Summary.Mean - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected mean %.4f, got %.4f", wantMean, tc.Summary.Mean)
	}
	if tc.Summary.Max != 0.9 {
		t.Errorf("expected max 0.9, got %.2f", tc.Summary.Max)
	}
	if tc.Summary.PrimaryCount != 2 {
		t.Errorf("expected primary_count 2, got %d", tc.Summary.PrimaryCount)
	}
	if tc.Summary.PredictedCount < tc.Summary.PrimaryCount {
		t.Errorf("predicted_count %d below primary_count %d", tc.Summary.PredictedCount, tc.Summary.PrimaryCount)
	}
	if tc.Degraded() {
		t.Error("successful synthesis should not be degraded")
	}
	if tc.ProcessingMS <= 0 {
		t.Errorf("expected positive processing time, got %f", tc.ProcessingMS)
	}
}

func TestSynthesizeQuoteTruncated(t *testing.T) {
	long := strings.Repeat("a", 250)
	r := &fakeRetriever{examples: []retrieval.Example{{ConversationID: "c", CounselorResponse: long, Similarity: 0.9}}}
	s := NewSynthesizer(r, &fakeClassifier{scores: highCognitiveScores()}, nil)

	tc := s.Synthesize(context.Background(), "q", 3)

	quote := tc.ResponsePatterns[0]
	if !strings.Contains(quote, strings.Repeat("a", 100)+"...'") {
		t.Errorf("expected 100-char excerpt, got %q", quote)
	}
	if strings.Contains(quote, strings.Repeat("a", 101)) {
		t.Error("excerpt exceeds 100 characters")
	}
}

func TestSynthesizeRetrievalFailureIsNonFatal(t *testing.T) {
	r := &fakeRetriever{err: errors.New("connection refused")}
	s := NewSynthesizer(r, &fakeClassifier{scores: highCognitiveScores()}, nil)

	tc := s.Synthesize(context.Background(), "q", 3)

	if len(tc.SimilarExamples) != 0 {
		t.Errorf("expected no examples, got %d", len(tc.SimilarExamples))
	}
	if tc.SimilarExamples == nil {
		t.Error("examples should be an empty slice, not nil")
	}
	for _, p := range tc.ResponsePatterns {
		if strings.HasPrefix(p, "Similar situations") {
			t.Errorf("example-derived pattern should not appear: %q", p)
		}
	}
	// Category sentences still present for the primaries.
	if len(tc.ResponsePatterns) != 2 {
		t.Fatalf("expected 2 category patterns, got %d: %v", len(tc.ResponsePatterns), tc.ResponsePatterns)
	}
	if tc.Degraded() {
		t.Error("retrieval failure must not degrade the context")
	}
}

func TestSynthesizeWithoutRetriever(t *testing.T) {
	s := NewSynthesizer(nil, &fakeClassifier{scores: highCognitiveScores()}, nil)

	tc := s.Synthesize(context.Background(), "q", 3)

	if len(tc.SimilarExamples) != 0 {
		t.Errorf("expected no examples, got %d", len(tc.SimilarExamples))
	}
	if len(tc.PrimaryInterventions) != 2 {
		t.Errorf("expected 2 primaries, got %d", len(tc.PrimaryInterventions))
	}
}

func TestSynthesizeClassificationFailureDegrades(t *testing.T) {
	r := &fakeRetriever{examples: testExamples()}
	c := &fakeClassifier{err: errors.New("classifier unavailable: api error (status 503)")}
	s := NewSynthesizer(r, c, nil)

	tc := s.Synthesize(context.Background(), "q", 3)

	if !tc.Degraded() {
		t.Fatal("expected degraded context")
	}
	if tc.Summary.Error != "classifier unavailable: api error (status 503)" {
		t.Errorf("unexpected summary error: %q", tc.Summary.Error)
	}
	if len(tc.Predictions) != 0 {
		t.Errorf("expected no predictions, got %d", len(tc.Predictions))
	}
	if len(tc.PrimaryInterventions) != 0 {
		t.Errorf("expected no primaries, got %d", len(tc.PrimaryInterventions))
	}
	if len(tc.ResponsePatterns) != 1 || !strings.HasPrefix(tc.ResponsePatterns[0], "Error processing query: ") {
		t.Errorf("expected explanatory pattern, got %v", tc.ResponsePatterns)
	}
	// The surviving branch's examples are preserved.
	if len(tc.SimilarExamples) != 2 {
		t.Errorf("expected retrieved examples kept, got %d", len(tc.SimilarExamples))
	}
	if tc.ProcessingMS <= 0 {
		t.Errorf("expected positive processing time, got %f", tc.ProcessingMS)
	}
}

// blockingRetriever and blockingClassifier each wait for the other to
// start before returning, so a sequential implementation would stall.
type blockingRetriever struct {
	started chan struct{}
	peer    chan struct{}
	t       *testing.T
}

func (b *blockingRetriever) Retrieve(ctx context.Context, query string, topK int, floor float64) ([]retrieval.Example, error) {
	close(b.started)
	select {
	case <-b.peer:
	case <-time.After(2 * time.Second):
		b.t.Error("classifier never started; branches are not concurrent")
	}
	return nil, nil
}

type blockingClassifier struct {
	started chan struct{}
	peer    chan struct{}
	t       *testing.T
}

func (b *blockingClassifier) Classify(ctx context.Context, query string) (map[taxonomy.Key]float64, error) {
	close(b.started)
	select {
	case <-b.peer:
	case <-time.After(2 * time.Second):
		b.t.Error("retriever never started; branches are not concurrent")
	}
	return highCognitiveScores(), nil
}

func TestSynthesizeBranchesRunConcurrently(t *testing.T) {
	retStarted := make(chan struct{})
	clsStarted := make(chan struct{})
	r := &blockingRetriever{started: retStarted, peer: clsStarted, t: t}
	c := &blockingClassifier{started: clsStarted, peer: retStarted, t: t}

	tc := NewSynthesizer(r, c, nil).Synthesize(context.Background(), "q", 3)
	if tc == nil {
		t.Fatal("expected a context")
	}
}

func TestSynthesizeDefaultsTopK(t *testing.T) {
	r := &fakeRetriever{}
	s := NewSynthesizer(r, &fakeClassifier{scores: highCognitiveScores()}, nil)

	s.Synthesize(context.Background(), "q", 0)

	if r.gotTopK != retrieval.DefaultTopK {
		t.Errorf("expected default topK %d, got %d", retrieval.DefaultTopK, r.gotTopK)
	}
	if r.gotFloor != retrieval.DefaultSimilarityFloor {
		t.Errorf("expected default floor %v, got %v", retrieval.DefaultSimilarityFloor, r.gotFloor)
	}
}

func TestConfidenceSummaryJSON(t *testing.T) {
	t.Run("normal", func(t *testing.T) {
		data, err := json.Marshal(ConfidenceSummary{Mean: 0.25, Max: 0.9, PrimaryCount: 2, PredictedCount: 3})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if _, ok := m["error"]; ok {
			t.Error("error key should be absent from a normal summary")
		}
		if m["mean_confidence"] != 0.25 || m["max_confidence"] != 0.9 {
			t.Errorf("unexpected statistics: %v", m)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		data, err := json.Marshal(ConfidenceSummary{Error: "boom"})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(m) != 1 || m["error"] != "boom" {
			t.Errorf(`expected {"error":"boom"}, got %v`, m)
		}
	})
}

func TestNewSynthesizerRequiresClassifier(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on nil classifier")
		}
	}()
	NewSynthesizer(nil, nil, nil)
}
