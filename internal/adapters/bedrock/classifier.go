package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
	"github.com/autoguardian/autoguardian/internal/utils"
)

// Classifier scores messages for phishing risk using Amazon Bedrock.
type Classifier struct {
	client        *bedrockruntime.Client
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	promptFormat  string
	textProcessor *utils.TextProcessor
}

// riskAnalysisResponse is the structured response requested from the model.
type riskAnalysisResponse struct {
	RiskScore   float64  `json:"risk_score"`
	Labels      []string `json:"labels"`
	Explanation string   `json:"explanation"`
}

// NewClassifier creates a new Bedrock-backed content classifier.
func NewClassifier(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Classifier {
	return &Classifier{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
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

// Classify scores a message for phishing risk.
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) (*core.SignalResult, error) {
	to := ""
	if len(msg.To) > 0 {
		to = msg.To[0]
		if len(msg.To) > 1 {
			to += fmt.Sprintf(" and %d others", len(msg.To)-1)
		}
	}

	processedBody := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, msg.From, to, msg.Subject, processedBody)

	var payload []byte
	var err error
	if c.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": c.maxTokens,
			"temperature":          c.temperature,
			"top_p":                c.topP,
		})
	} else if c.isAmazonTitanModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	responseText, err := c.extractText(resp.Body)
	if err != nil {
		return nil, err
	}

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
		Source:  core.SourceContent,
		Score:   score,
		Labels:  analysis.Labels,
		Reasons: []string{analysis.Explanation},
	}, nil
}

// extractText pulls the generated text out of the model-specific response
// envelope.
func (c *Classifier) extractText(body []byte) (string, error) {
	if c.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	}
	if c.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	}

	var genericResp struct {
		Output   string `json:"output"`
		Text     string `json:"text"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
	}
	switch {
	case genericResp.Output != "":
		return genericResp.Output, nil
	case genericResp.Text != "":
		return genericResp.Text, nil
	case genericResp.Response != "":
		return genericResp.Response, nil
	}
	return string(body), nil
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *Classifier) isAnthropicModel() bool {
	return strings.HasPrefix(c.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *Classifier) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}
