package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// OpenAIClient generates text with the chat completions API.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	tracker     *TokenTracker
}

// NewOpenAIClient creates an OpenAI backend. The key falls back to
// OPENAI_API_KEY.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   orDefault(cfg.MaxTokens, DefaultMaxTokens),
		temperature: cfg.Temperature,
		tracker:     NewTokenTracker(),
	}, nil
}

// Generate sends one system and user message pair.
func (c *OpenAIClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		c.tracker.Fail()
		return "", fmt.Errorf("openai call failed: %w", err)
	}

	c.tracker.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// ModelID returns the configured model name.
func (c *OpenAIClient) ModelID() string {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *OpenAIClient) Tracker() *TokenTracker {
	return c.tracker
}
