// Package boot assembles the shared inference runtime. The API server,
// the operator CLI, and the Lambda entrypoint all need the same subset
// of: AWS config, oracle clients, the synthesizer, the advice generator,
// and startup logging. This package extracts the common init patterns so
// each entrypoint is a short composition of helpers.
package boot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/cura-ai/cura-inference/internal/advice"
	"github.com/cura-ai/cura-inference/internal/classify"
	"github.com/cura-ai/cura-inference/internal/inference"
	"github.com/cura-ai/cura-inference/internal/logging"
	"github.com/cura-ai/cura-inference/internal/policy"
	"github.com/cura-ai/cura-inference/internal/retrieval"
	"github.com/cura-ai/cura-inference/internal/store"
)

// Default SSM parameter paths for secrets not provided via environment.
const (
	DefaultGeminiKeyParam = "/cura/prod/gemini-api-key"
	DefaultHFTokenParam   = "/cura/prod/huggingface-api-token"
)

// Runtime holds every initialized component of the inference service.
// Optional components (Retriever, Store) are nil when not configured;
// the rest are always present after Init returns.
type Runtime struct {
	Cfg aws.Config
	SSM *ssm.Client

	Retriever   *retrieval.AuroraRetriever
	Classifier  *classify.ZeroShotClassifier
	Policy      *policy.Policy
	Synthesizer *inference.Synthesizer
	Advice      *advice.Generator
	Store       store.AuditStore
}

// AWSClients holds the core AWS SDK clients used across entrypoints.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// Init builds the full runtime. name identifies the process in the
// startup log ("counsel-api", "counsel-cli", "inference-lambda"). Only an
// unusable AWS config is fatal; a missing oracle downgrades its feature
// and the process keeps serving.
func Init(ctx context.Context, name string) *Runtime {
	initStart := time.Now()
	logging.Init()

	awsClients := InitAWS(ctx)
	rt := &Runtime{Cfg: awsClients.Config, SSM: awsClients.SSM, Policy: policy.New()}
	startup := logging.NewStartupLogger(name)

	// Retrieval requires the Aurora cluster and its access secret. Without
	// them the synthesizer runs classification-only.
	clusterARN := os.Getenv("AURORA_CLUSTER_ARN")
	secretARN := os.Getenv("AURORA_SECRET_ARN")
	if clusterARN != "" && secretARN != "" {
		database := logging.EnvOrDefault("AURORA_DATABASE", "cura")
		modelID := logging.EnvOrDefault("EMBEDDING_MODEL_ID", retrieval.DefaultEmbeddingModel)
		data := retrieval.NewDataAPIClient(rdsdata.NewFromConfig(rt.Cfg), clusterARN, secretARN, database)
		rt.Retriever = retrieval.NewAuroraRetriever(bedrockruntime.NewFromConfig(rt.Cfg), data, modelID)
		startup.Endpoint("auroraCluster", clusterARN)
		startup.Model("embedding", modelID)
	} else {
		log.Warn().Msg("Aurora cluster not configured, semantic search disabled")
	}
	startup.Feature("retrieval", rt.Retriever != nil)

	// Classification is always wired. A failing endpoint degrades each
	// request at synthesis time rather than blocking boot.
	endpoint := logging.EnvOrDefault("CLASSIFIER_ENDPOINT", classify.DefaultEndpoint)
	token := LoadHuggingFaceToken(ctx, awsClients.SSM)
	if token == "" {
		startup.SSMParam("huggingfaceToken", logging.EnvOrDefault("SSM_HF_TOKEN_PARAM", DefaultHFTokenParam))
	}
	rt.Classifier = classify.NewZeroShotClassifier(endpoint, token)
	startup.Endpoint("classifier", endpoint)

	var retriever inference.Retriever
	if rt.Retriever != nil {
		retriever = rt.Retriever
	}
	rt.Synthesizer = inference.NewSynthesizer(retriever, rt.Classifier, rt.Policy)

	// Advice runs against Gemini when a key resolves, fallback advice
	// otherwise.
	client := InitGeminiClient(ctx, awsClients.SSM)
	rt.Advice = advice.NewGenerator(client)
	if client != nil {
		startup.Model("advice", advice.ModelName())
	}
	startup.Feature("advice", client != nil)

	// Audit trail.
	if ds := InitDynamoOptional(rt.Cfg, "AUDIT_TABLE_NAME"); ds != nil {
		rt.Store = ds
		startup.DynamoTable("audit", os.Getenv("AUDIT_TABLE_NAME"))
	}
	startup.Feature("audit", rt.Store != nil)

	startup.InitDuration(time.Since(initStart)).Log()
	return rt
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS(ctx context.Context) AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitDynamoOptional creates the audit store if the table env var is set.
// Returns nil (with a warning) if not configured.
func InitDynamoOptional(cfg aws.Config, tableEnvVar string) *store.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Warn().Str("envVar", tableEnvVar).Msg("DynamoDB table not set, audit trail disabled")
		return nil
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// LoadHuggingFaceToken resolves the Hugging Face API token from the
// HF_API_TOKEN env var, falling back to SSM Parameter Store. Non-fatal:
// unauthenticated calls still work against the public inference API at a
// reduced rate limit.
func LoadHuggingFaceToken(ctx context.Context, ssmClient *ssm.Client) string {
	if token := os.Getenv("HF_API_TOKEN"); token != "" {
		return token
	}
	paramName := logging.EnvOrDefault("SSM_HF_TOKEN_PARAM", DefaultHFTokenParam)
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Warn().Err(err).Str("param", paramName).Msg("Hugging Face token not found, calling classifier unauthenticated")
		return ""
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Hugging Face token loaded from SSM")
	return *result.Parameter.Value
}

// InitGeminiClient builds a Gemini client when an API key is available
// from GEMINI_API_KEY or SSM. Returns nil when no key resolves, which
// puts advice generation into fallback mode.
func InitGeminiClient(ctx context.Context, ssmClient *ssm.Client) *genai.Client {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		paramName := logging.EnvOrDefault("SSM_API_KEY_PARAM", DefaultGeminiKeyParam)
		ssmStart := time.Now()
		result, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           &paramName,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			log.Warn().Err(err).Str("param", paramName).Msg("Gemini API key not found, advice generation will use fallbacks")
			return nil
		}
		apiKey = *result.Parameter.Value
		log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create Gemini client, advice generation will use fallbacks")
		return nil
	}
	log.Info().Msg("Gemini client initialized")
	return client
}
