package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/AgamJK/sentinel-final/internal/core"
	"github.com/AgamJK/sentinel-final/internal/utils"
)

// GeminiClassifier is an implementation of the Classifier interface
// using Google Gemini.
type GeminiClassifier struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// emotionResponse represents the structured response from the model.
type emotionResponse struct {
	Emotion     string  `json:"emotion"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// NewGeminiClassifier creates a new Gemini-backed classifier.
func NewGeminiClassifier(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiClassifier, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClassifier{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat: `You are an emotional tone classifier for incoming messages. Classify the following message into exactly one of these emotions: anger, frustration, sadness, fear, confusion, neutral, joy, gratitude.
Respond with a JSON object containing:
- emotion: string, exactly one of the labels above
- confidence: number between 0 and 1 (how confident you are in the label)
- explanation: string (brief reason for the label)

Message:
%s

Respond only with the JSON object and nothing else.`,
	}, nil
}

// Close closes the underlying Gemini client.
func (c *GeminiClassifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Classify scores a piece of text against the emotion vocabulary.
func (c *GeminiClassifier) Classify(ctx context.Context, text string) (*core.Classification, error) {
	processed := c.textProcessor.ProcessText(text, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, processed)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	var parsed emotionResponse
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		jsonStart := -1
		jsonEnd := -1
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
		if jsonStart < 0 || jsonEnd <= jsonStart {
			return nil, fmt.Errorf("no JSON object in Gemini response")
		}
		if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse Gemini response as JSON: %w", err)
		}
	}

	return &core.Classification{
		Emotion:     core.ParseEmotion(parsed.Emotion),
		Confidence:  parsed.Confidence,
		Explanation: parsed.Explanation,
		ModelUsed:   c.modelName,
		AnalyzedAt:  time.Now(),
	}, nil
}
