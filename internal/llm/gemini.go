package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	Model       string
	APIKey      string
	MaxTokens   int64
	Temperature float64
}

// GeminiClient generates text with the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	tracker     *TokenTracker
}

// NewGeminiClient creates a Gemini backend. The key falls back to
// GEMINI_API_KEY, then GOOGLE_API_KEY.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		maxTokens:   int32(orDefault(cfg.MaxTokens, DefaultMaxTokens)),
		temperature: float32(cfg.Temperature),
		tracker:     NewTokenTracker(),
	}, nil
}

// Generate sends the prompt with the system prompt as system instruction.
func (c *GeminiClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: c.maxTokens,
		Temperature:     genai.Ptr(c.temperature),
	}
	if system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), genCfg)
	if err != nil {
		c.tracker.Fail()
		return "", fmt.Errorf("gemini call failed: %w", err)
	}

	if resp.UsageMetadata != nil {
		c.tracker.Add(int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount))
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ModelID returns the configured model name.
func (c *GeminiClient) ModelID() string {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *GeminiClient) Tracker() *TokenTracker {
	return c.tracker
}
