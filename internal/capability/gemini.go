package capability

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when the config names no model.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini is a Client backed by the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client. An empty model falls back to
// DefaultGeminiModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Generate implements Client. JSON tasks constrain the response MIME type
// so the model cannot reply with prose.
func (g *Gemini) Generate(ctx context.Context, task Task, prompt string) (string, error) {
	if err := task.Validate(); err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	}
	if task == TaskDiscovery || task == TaskReview {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed for %s: %w", task, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response for %s", task)
	}
	return text, nil
}
