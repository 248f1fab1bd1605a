package oracle

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient implements Oracle against the Gemini API through the
// official genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
}

// NewGeminiClient creates a Gemini-backed oracle.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: config.Temperature,
	}, nil
}

// Complete sends the request and returns the completion text. JSON
// output is requested at the API level so responses arrive without
// markdown wrapping.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	temperature := c.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(temperature)),
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	result, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(req.Prompt),
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("Gemini completion failed: %w", err)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return strings.TrimSpace(text), nil
}
