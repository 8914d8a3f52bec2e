package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/autoguardian/autoguardian/internal/core"
)

// Classifier scores messages for phishing risk using Google Gemini.
type Classifier struct {
	client       *genai.Client
	model        *genai.GenerativeModel
	modelName    string
	maxBodySize  int
	logger       *zap.Logger
	promptFormat string
}

// riskAnalysisResponse is the structured response requested from the model.
type riskAnalysisResponse struct {
	RiskScore   float64  `json:"risk_score"`
	Labels      []string `json:"labels"`
	Explanation string   `json:"explanation"`
}

// NewClassifier creates a new Gemini-backed content classifier.
func NewClassifier(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
) (*Classifier, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &Classifier{
		client:      client,
		model:       model,
		modelName:   modelName,
		maxBodySize: maxBodySize,
		logger:      logger,
		promptFormat: `You are a phishing detection system. Analyze the following email for phishing risk.
Respond with a JSON object containing:
- risk_score: number between 0 and 100 (higher means more likely phishing)
- labels: array of short snake_case strings naming the indicators you found (e.g. "urgent_language", "credential_request", "spoofed_brand")
- explanation: string (brief explanation of the assessment)

Email:
From: %s
To: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`,
	}, nil
}

// Close closes the Gemini client
func (c *Classifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// truncateBody truncates the email body if it exceeds the maximum size
func (c *Classifier) truncateBody(body string) string {
	if c.maxBodySize <= 0 || len(body) <= c.maxBodySize {
		return body
	}

	truncated := body[:c.maxBodySize]
	c.logger.Debug("Email body truncated",
		zap.Int("original_size", len(body)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", c.maxBodySize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// Classify scores a message for phishing risk.
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) (*core.SignalResult, error) {
	to := ""
	if len(msg.To) > 0 {
		to = msg.To[0]
		if len(msg.To) > 1 {
			to += fmt.Sprintf(" and %d others", len(msg.To)-1)
		}
	}

	prompt := fmt.Sprintf(c.promptFormat, msg.From, to, msg.Subject, c.truncateBody(msg.Body))

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	var analysis riskAnalysisResponse
	if err := json.Unmarshal([]byte(responseText), &analysis); err != nil {
		jsonStart := 0
		jsonEnd := len(responseText)
		for i := 0; i < len(responseText); i++ {
			if responseText[i] == '{' {
				jsonStart = i
				break
			}
		}
		for i := len(responseText) - 1; i >= 0; i-- {
			if responseText[i] == '}' {
				jsonEnd = i + 1
				break
			}
		}
		if jsonStart >= jsonEnd {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
		if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &analysis); err != nil {
			return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}

	score := analysis.RiskScore
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	return &core.SignalResult{
		Source:  core.SourceTransformer,
		Score:   score,
		Labels:  analysis.Labels,
		Reasons: []string{analysis.Explanation},
	}, nil
}
