package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cura-ai/cura-inference/internal/api"
	"github.com/cura-ai/cura-inference/internal/boot"
)

// CLI flags
var (
	portFlag  int
	modelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "counsel-api",
	Short: "HTTP API for therapeutic context synthesis",
	Long: `Counsel API serves the therapeutic inference pipeline over HTTP: semantic
search across historical counseling conversations, zero-shot intervention
classification, unified context synthesis, and Gemini-generated advice
for counselors.

Endpoints are served under /api/. Semantic search requires an Aurora
cluster; advice generation requires a Gemini API key. Both degrade
gracefully when not configured.

Examples:
  counsel-api
  counsel-api --port 9090
  counsel-api --model gemini-2.5-pro`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8000, "Port to listen on")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini model for advice generation (overrides GEMINI_MODEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	if modelFlag != "" {
		os.Setenv("GEMINI_MODEL", modelFlag)
	}

	ctx := context.Background()
	rt := boot.Init(ctx, "counsel-api")

	cfg := api.Config{
		Synthesizer: rt.Synthesizer,
		Advice:      rt.Advice,
		Classifier:  rt.Classifier,
		Policy:      rt.Policy,
		Audit:       rt.Store,
	}
	if rt.Retriever != nil {
		cfg.Retriever = rt.Retriever
	}
	server := api.NewServer(cfg)

	addr := fmt.Sprintf(":%d", portFlag)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting inference API server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
