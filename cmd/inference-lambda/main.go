// Package main provides the Lambda entry point for the therapeutic
// inference API.
//
// The full runtime is assembled at cold start: AWS config, the Aurora
// retriever (when AURORA_CLUSTER_ARN and AURORA_SECRET_ARN are set), the
// zero-shot classifier, the Gemini advice client, and the optional
// DynamoDB audit store. Secrets resolve from the environment first, then
// SSM Parameter Store:
//   - /cura/prod/gemini-api-key
//   - /cura/prod/huggingface-api-token
//
// Requests arrive through an API Gateway v2 proxy and are served by the
// same handler as the counsel-api binary.
package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/cura-ai/cura-inference/internal/api"
	"github.com/cura-ai/cura-inference/internal/boot"
)

var handler http.Handler

func init() {
	rt := boot.Init(context.Background(), "inference-lambda")

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
	handler = api.NewServer(cfg).Handler()
}

func main() {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
