package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

// Classifier scores messages for phishing risk using the OpenAI chat API.
type Classifier struct {
	client       *openai.Client
	modelName    string
	maxTokens    int
	temperature  float32
	topP         float32
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

// NewClassifier creates a new OpenAI-backed content classifier.
func NewClassifier(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
) *Classifier {
	client := openai.NewClient(apiKey)

	return &Classifier{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
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
	}
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

// buildRequest assembles the chat completion request for a message.
func (c *Classifier) buildRequest(msg *core.Message) openai.ChatCompletionRequest {
	to := ""
	if len(msg.To) > 0 {
		to = msg.To[0]
		if len(msg.To) > 1 {
			to += fmt.Sprintf(" and %d others", len(msg.To)-1)
		}
	}

	prompt := fmt.Sprintf(c.promptFormat, msg.From, to, msg.Subject, c.truncateBody(msg.Body))

	return openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a phishing detection system. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

// Classify scores a message for phishing risk.
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) (*core.SignalResult, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	analysis, err := parseRiskResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return &core.SignalResult{
		Source:  core.SourceContent,
		Score:   clampScore(analysis.RiskScore),
		Labels:  analysis.Labels,
		Reasons: []string{analysis.Explanation},
	}, nil
}

// parseRiskResponse parses the model output, tolerating prose around the JSON
// object.
func parseRiskResponse(responseText string) (*riskAnalysisResponse, error) {
	var analysis riskAnalysisResponse
	if err := json.Unmarshal([]byte(responseText), &analysis); err == nil {
		return &analysis, nil
	}

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
		return nil, fmt.Errorf("failed to extract JSON from LLM response")
	}
	if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
	}
	return &analysis, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
