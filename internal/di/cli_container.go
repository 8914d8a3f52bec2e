package di

import (
	"context"
	"flag"
	"net"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/adapters/attachment"
	"github.com/autoguardian/autoguardian/internal/adapters/osint"
	"github.com/autoguardian/autoguardian/internal/adapters/similarity"
	"github.com/autoguardian/autoguardian/internal/anomaly"
	"github.com/autoguardian/autoguardian/internal/config"
	"github.com/autoguardian/autoguardian/internal/core"
	"github.com/autoguardian/autoguardian/internal/factory"
	"github.com/autoguardian/autoguardian/internal/history"
	"github.com/autoguardian/autoguardian/internal/logging"
	"github.com/autoguardian/autoguardian/internal/memory"
	"github.com/autoguardian/autoguardian/internal/trust"
	"github.com/autoguardian/autoguardian/internal/utils"
	"github.com/autoguardian/autoguardian/internal/weights"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Classifier provider flags
	ContentProvider     string
	TransformerProvider string
	MaxTokens           int
	Temperature         float64
	TopP                float64
	MaxBodySize         int

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// OSINT flags
	VirusTotalAPIKey string
	AbuseIPDBAPIKey  string

	// Scan flags
	UserEmail  string
	UserPlan   string
	UserLocale string

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Classifier provider flags
	flag.StringVar(&flags.ContentProvider, "content-provider", "lexical", "Content classifier provider (openai, gemini, bedrock, lexical)")
	flag.StringVar(&flags.TransformerProvider, "transformer-provider", "none", "Transformer classifier provider (openai, gemini, bedrock, none)")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 1000, "Maximum tokens for model response")
	flag.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for model generation")
	flag.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for model generation")
	flag.IntVar(&flags.MaxBodySize, "max-body-size", 4096, "Maximum email body size to send to the model")

	// OpenAI flags
	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4", "OpenAI model name")

	// Gemini flags
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-pro", "Gemini model name")

	// Bedrock flags
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// OSINT flags
	flag.StringVar(&flags.VirusTotalAPIKey, "virustotal-api-key", "", "API key for VirusTotal lookups")
	flag.StringVar(&flags.AbuseIPDBAPIKey, "abuseipdb-api-key", "", "API key for AbuseIPDB lookups")

	// Scan flags
	flag.StringVar(&flags.UserEmail, "user", "cli@localhost", "Account the scan runs on behalf of")
	flag.StringVar(&flags.UserPlan, "plan", "free", "Account plan (free, pro, enterprise)")
	flag.StringVar(&flags.UserLocale, "locale", "en", "Expected message locale")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container
// for the CLI application. The CLI scans one message with in-process stores
// and no background loops.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	// Register text processor and classifier factory
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}

	// Register the scan service over in-memory collaborators
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		classifiers *factory.ClassifierFactory,
	) (*core.ScanService, error) {
		content, err := classifiers.CreateContentClassifier()
		if err != nil {
			return nil, err
		}
		transformer, err := classifiers.CreateTransformerClassifier()
		if err != nil {
			return nil, err
		}

		historyStore, err := history.NewSqliteStore(":memory:")
		if err != nil {
			return nil, err
		}
		table := weights.NewTable()
		memorySvc := memory.NewService(memory.NewInMemoryStore(), table, logger)
		checker := trust.NewChecker(net.DefaultResolver, trust.NewMemoryCache(), logger)
		simIndex, err := similarity.NewIndex(nil, logger)
		if err != nil {
			return nil, err
		}

		deps := core.ScanDeps{
			Content:     content,
			Transformer: transformer,
			Lexical:     classifiers.CreateLexicalClassifier(),
			Reputation:  osint.NewClient(cfg.GetString("osint.virustotal_api_key"), cfg.GetString("osint.abuseipdb_api_key"), logger),
			Attachments: attachment.NewAnalyzer(cfg.GetString("osint.virustotal_api_key"), logger),
			Similarity:  simIndex,
			Behavior:    noBehavior{},
			Memory:      memorySvc,
			Weights:     table,
			History:     historyStore,
			Override:    trust.NewPolicy(checker, historyStore, logger),
			Anomaly:     anomaly.NewDetector(logger),
		}
		return core.NewScanService(deps, logger, 15*time.Second, 1, cfg.GetFloat64("scan.prior_score")), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// noBehavior reports no click history; the CLI has none to draw on.
type noBehavior struct{}

func (noBehavior) Scores(ctx context.Context, userID string) (*core.BehaviorStats, error) {
	return &core.BehaviorStats{}, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("classifier.content_provider", flags.ContentProvider)
	v.Set("classifier.transformer_provider", flags.TransformerProvider)

	v.Set("openai.api_key", flags.OpenAIAPIKey)
	v.Set("openai.model_name", flags.OpenAIModelName)
	v.Set("openai.max_tokens", flags.MaxTokens)
	v.Set("openai.temperature", flags.Temperature)
	v.Set("openai.top_p", flags.TopP)
	v.Set("openai.max_body_size", flags.MaxBodySize)

	v.Set("gemini.api_key", flags.GeminiAPIKey)
	v.Set("gemini.model_name", flags.GeminiModelName)
	v.Set("gemini.max_tokens", flags.MaxTokens)
	v.Set("gemini.temperature", flags.Temperature)
	v.Set("gemini.top_p", flags.TopP)
	v.Set("gemini.max_body_size", flags.MaxBodySize)

	v.Set("bedrock.region", flags.BedrockRegion)
	v.Set("bedrock.model_id", flags.BedrockModelID)
	v.Set("bedrock.max_tokens", flags.MaxTokens)
	v.Set("bedrock.temperature", flags.Temperature)
	v.Set("bedrock.top_p", flags.TopP)
	v.Set("bedrock.max_body_size", flags.MaxBodySize)

	v.Set("osint.virustotal_api_key", flags.VirusTotalAPIKey)
	v.Set("osint.abuseipdb_api_key", flags.AbuseIPDBAPIKey)

	return config.NewFromViper(v)
}
