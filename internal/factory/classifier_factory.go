package factory

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/adapters/bedrock"
	"github.com/autoguardian/autoguardian/internal/adapters/gemini"
	"github.com/autoguardian/autoguardian/internal/adapters/lexical"
	"github.com/autoguardian/autoguardian/internal/adapters/openai"
	"github.com/autoguardian/autoguardian/internal/config"
	"github.com/autoguardian/autoguardian/internal/core"
	"github.com/autoguardian/autoguardian/internal/utils"
)

// ClassifierFactory creates the content and transformer signal classifiers
type ClassifierFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateContentClassifier creates the primary content-signal classifier
func (f *ClassifierFactory) CreateContentClassifier() (core.ContentClassifier, error) {
	return f.createProvider(f.cfg.GetClassifier().ContentProvider)
}

// CreateTransformerClassifier creates the secondary transformer-signal
// classifier. An empty provider disables the signal.
func (f *ClassifierFactory) CreateTransformerClassifier() (core.ContentClassifier, error) {
	provider := f.cfg.GetClassifier().TransformerProvider
	if provider == "" || provider == "none" {
		return nil, nil
	}
	return f.createProvider(provider)
}

// CreateLexicalClassifier creates the offline pattern-bank classifier
func (f *ClassifierFactory) CreateLexicalClassifier() core.ContentClassifier {
	return lexical.NewClassifier(f.logger)
}

func (f *ClassifierFactory) createProvider(provider string) (core.ContentClassifier, error) {
	switch provider {
	case "openai":
		c := f.cfg.GetOpenAI()
		return openai.NewClassifier(
			c.APIKey, c.ModelName, c.MaxTokens, c.Temperature, c.TopP, c.MaxBodySize, f.logger), nil
	case "gemini":
		c := f.cfg.GetGemini()
		return gemini.NewClassifier(
			c.APIKey, c.ModelName, c.MaxTokens, c.Temperature, c.TopP, c.MaxBodySize, f.logger)
	case "bedrock":
		c := f.cfg.GetBedrock()
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(c.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		return bedrock.NewClassifier(
			client, c.ModelID, c.MaxTokens, c.Temperature, c.TopP, c.MaxBodySize, f.logger, f.textProcessor), nil
	case "lexical":
		return lexical.NewClassifier(f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", provider)
	}
}
