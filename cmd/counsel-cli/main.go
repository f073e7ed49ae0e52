package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cura-ai/cura-inference/internal/advice"
	"github.com/cura-ai/cura-inference/internal/boot"
	"github.com/cura-ai/cura-inference/internal/inference"
	"github.com/cura-ai/cura-inference/internal/logging"
	"github.com/cura-ai/cura-inference/internal/policy"
	"github.com/cura-ai/cura-inference/internal/retrieval"
	"github.com/cura-ai/cura-inference/internal/taxonomy"
)

// CLI flags
var (
	queryFlag  string
	topKFlag   int
	modelFlag  string
	adviceFlag bool
	saveFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "counsel-cli",
	Short: "Operator CLI for the therapeutic inference pipeline",
	Long: `Counsel CLI runs the therapeutic inference pipeline from the terminal:
semantic search across historical counseling conversations, zero-shot
intervention classification, and Gemini-generated advice for counselors.

Examples:
  counsel-cli infer -q "I'm overwhelmed at work and can't focus"
  counsel-cli infer -q "I feel stuck" --top-k 5 --save results.json
  counsel-cli search -q "anxiety about work performance"
  counsel-cli classify -q "Let's examine the evidence for those thoughts"
  counsel-cli categories`,
}

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Run the full inference pipeline for a patient query",
	Run:   runInfer,
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find similar historical counseling conversations",
	Run:   runSearch,
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify text for therapeutic interventions",
	Run:   runClassify,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the intervention categories and their thresholds",
	Run:   runCategories,
}

func init() {
	inferCmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Patient query or scenario for therapeutic guidance")
	inferCmd.Flags().IntVar(&topKFlag, "top-k", retrieval.DefaultTopK, "Number of similar conversations to retrieve")
	inferCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini model for advice generation (overrides GEMINI_MODEL)")
	inferCmd.Flags().BoolVar(&adviceFlag, "advice", true, "Generate therapeutic advice (disable with --advice=false)")
	inferCmd.Flags().StringVar(&saveFlag, "save", "", "Write the full result as JSON to this file")

	searchCmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Search query for similar conversations")
	searchCmd.Flags().IntVar(&topKFlag, "top-k", retrieval.DefaultTopK, "Number of results to return")

	classifyCmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Text to classify for therapeutic interventions")

	rootCmd.AddCommand(inferCmd, searchCmd, classifyCmd, categoriesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInfer(cmd *cobra.Command, args []string) {
	if strings.TrimSpace(queryFlag) == "" {
		fmt.Fprintln(os.Stderr, "Error: --query is required")
		os.Exit(1)
	}
	if modelFlag != "" {
		os.Setenv("GEMINI_MODEL", modelFlag)
	}

	ctx := context.Background()
	rt := boot.Init(ctx, "counsel-cli")

	tc := rt.Synthesizer.Synthesize(ctx, queryFlag, topKFlag)

	var adv *advice.TherapeuticAdvice
	if adviceFlag {
		adv = rt.Advice.Generate(ctx, queryFlag, tc.SimilarExamples, tc.PrimaryInterventions)
	}

	printTherapeuticReport(tc, adv)

	if saveFlag != "" {
		saveResults(saveFlag, tc, adv)
	}
}

func runSearch(cmd *cobra.Command, args []string) {
	if strings.TrimSpace(queryFlag) == "" {
		fmt.Fprintln(os.Stderr, "Error: --query is required")
		os.Exit(1)
	}

	ctx := context.Background()
	rt := boot.Init(ctx, "counsel-cli")
	if rt.Retriever == nil {
		log.Fatal().Msg("Semantic search requires AURORA_CLUSTER_ARN and AURORA_SECRET_ARN")
	}

	results, err := rt.Retriever.Retrieve(ctx, queryFlag, topKFlag, retrieval.DefaultSimilarityFloor)
	if err != nil {
		log.Fatal().Err(err).Msg("Semantic search failed")
	}

	fmt.Println()
	fmt.Printf("Semantic Search Results for: '%s'\n", queryFlag)
	fmt.Println(strings.Repeat("-", 60))
	if len(results) == 0 {
		fmt.Println("No similar conversations found.")
	}
	for i, ex := range results {
		fmt.Printf("\n%d. Similarity: %.3f\n", i+1, ex.Similarity)
		fmt.Printf("   Question: %s\n", excerpt(ex.PatientQuestion, 100))
		fmt.Printf("   Response: %s\n", excerpt(ex.CounselorResponse, 100))
	}
	fmt.Println()
}

func runClassify(cmd *cobra.Command, args []string) {
	if strings.TrimSpace(queryFlag) == "" {
		fmt.Fprintln(os.Stderr, "Error: --query is required")
		os.Exit(1)
	}

	ctx := context.Background()
	rt := boot.Init(ctx, "counsel-cli")

	scores, err := rt.Classifier.Classify(ctx, queryFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Intervention classification failed")
	}

	preds := rt.Policy.Evaluate(scores)
	primaries := policy.Primaries(preds)

	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INTERVENTION CLASSIFICATION")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("\nText: %s\n", excerpt(queryFlag, 100))

	fmt.Println("\nALL INTERVENTION PREDICTIONS:")
	for _, p := range preds {
		fmt.Printf("   %-25s %.3f (%s)\n", p.Label, p.Confidence, predictionStatus(p))
	}

	fmt.Printf("\nPRIMARY INTERVENTIONS (%d recommended):\n", len(primaries))
	for _, p := range primaries {
		fmt.Printf("   - %s: %.3f confidence\n", p.Label, p.Confidence)
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
}

func runCategories(cmd *cobra.Command, args []string) {
	logging.Init()

	fmt.Println()
	fmt.Println("INTERVENTION CATEGORIES")
	fmt.Println(strings.Repeat("-", 80))
	for _, c := range taxonomy.Categories() {
		fmt.Printf("\n%s (%s)\n", c.Label, c.Key)
		fmt.Printf("   %s\n", c.Description)
		fmt.Printf("   threshold %.2f, prevalence %.1f%%, avg confidence %.3f\n",
			c.Threshold, c.Prevalence, c.AvgConfidence)
	}
	fmt.Println()
}

func printTherapeuticReport(tc *inference.TherapeuticContext, adv *advice.TherapeuticAdvice) {
	banner := strings.Repeat("=", 80)
	fmt.Println()
	fmt.Println(banner)
	fmt.Println("THERAPEUTIC INFERENCE RESULTS")
	fmt.Println(banner)

	fmt.Printf("\nQuery: %s\n", tc.Query)
	fmt.Printf("Processing Time: %.1fms\n", tc.ProcessingMS)

	fmt.Printf("\nSIMILAR THERAPEUTIC EXAMPLES (%d found):\n", len(tc.SimilarExamples))
	for i, ex := range tc.SimilarExamples {
		fmt.Printf("   %d. Similarity: %.3f\n", i+1, ex.Similarity)
		fmt.Printf("      Patient: %s\n", excerpt(ex.PatientQuestion, 100))
		fmt.Printf("      Counselor: %s\n", excerpt(ex.CounselorResponse, 100))
		fmt.Println()
	}

	fmt.Printf("PRIMARY INTERVENTIONS (%d recommended):\n", len(tc.PrimaryInterventions))
	for _, p := range tc.PrimaryInterventions {
		fmt.Printf("   - %s: %.3f confidence\n", p.Label, p.Confidence)
	}

	fmt.Println("\nALL INTERVENTION PREDICTIONS:")
	for _, p := range tc.Predictions {
		fmt.Printf("   %-25s %.3f (%s)\n", p.Label, p.Confidence, predictionStatus(p))
	}

	fmt.Println("\nRECOMMENDED RESPONSE PATTERNS:")
	for i, pattern := range tc.ResponsePatterns {
		fmt.Printf("   %d. %s\n", i+1, pattern)
	}

	fmt.Println("\nCONFIDENCE SUMMARY:")
	if tc.Degraded() {
		fmt.Printf("   Error: %s\n", tc.Summary.Error)
	} else {
		fmt.Printf("   Mean Confidence: %.3f\n", tc.Summary.Mean)
		fmt.Printf("   Max Confidence: %.3f\n", tc.Summary.Max)
		fmt.Printf("   Primary Count: %d\n", tc.Summary.PrimaryCount)
		fmt.Printf("   Predicted Count: %d\n", tc.Summary.PredictedCount)
	}

	if adv != nil {
		fmt.Println("\nTHERAPEUTIC ADVICE:")
		fmt.Printf("   %s\n", adv.AdviceText)
		fmt.Println("\n   Techniques:")
		for _, tech := range adv.Techniques {
			fmt.Printf("   - %s\n", tech)
		}
		fmt.Println("\n   Considerations:")
		for _, con := range adv.Considerations {
			fmt.Printf("   - %s\n", con)
		}
		fmt.Println("\n   Next Steps:")
		for _, step := range adv.NextSteps {
			fmt.Printf("   - %s\n", step)
		}
		fmt.Printf("\n   Confidence: %.3f\n", adv.Confidence)
		fmt.Printf("   Reasoning: %s\n", adv.Reasoning)
	}

	fmt.Println()
	fmt.Println(banner)
}

func predictionStatus(p policy.Prediction) string {
	switch {
	case p.Primary:
		return "PRIMARY"
	case p.Predicted:
		return "predicted"
	default:
		return "below threshold"
	}
}

// excerpt truncates s for single-line display.
func excerpt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func saveResults(path string, tc *inference.TherapeuticContext, adv *advice.TherapeuticAdvice) {
	payload := struct {
		*inference.TherapeuticContext
		Advice    *advice.TherapeuticAdvice `json:"advice,omitempty"`
		Timestamp string                    `json:"timestamp"`
	}{tc, adv, time.Now().Format(time.RFC3339)}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode results")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to save results")
	}
	fmt.Printf("\nResults saved to: %s\n", path)
}
