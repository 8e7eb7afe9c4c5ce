package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// GroqConfig configures the Groq generator. Groq serves an
// OpenAI compatible chat completions API.
type GroqConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

type groqClient struct {
	client openai.Client
	cfg    GroqConfig
}

// NewGroq creates a Generator backed by the Groq chat completions endpoint
func NewGroq(cfg GroqConfig) Generator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-r1-distill-llama-70b"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	return &groqClient{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

func (c *groqClient) Name() string {
	return "groq/" + c.cfg.Model
}

func (c *groqClient) Generate(ctx context.Context, message string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(c.cfg.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(message))

	params := openai.ChatCompletionNewParams{
		Model:               c.cfg.Model,
		Messages:            messages,
		Temperature:         openai.Float(c.cfg.Temperature),
		MaxCompletionTokens: openai.Int(int64(c.cfg.MaxTokens)),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("groq chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Sprintf("No response returned from %s.", c.cfg.Model), nil
	}

	slog.DebugContext(ctx, "chat completion finished",
		"model", c.cfg.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason)

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "No content returned.", nil
	}
	return content, nil
}
