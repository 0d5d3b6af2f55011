package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hanifadr/callward/pkg/errorsx"
	"github.com/hanifadr/callward/pkg/llm"
	"github.com/hanifadr/callward/pkg/resilience"

	openai "github.com/sashabaranov/go-openai"
)

// Config tunes the chat completion requests. Responses are spoken over
// the phone, so MaxTokens stays small and temperature moderate.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	MaxRetries  int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = openai.GPT4oMini
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 128
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.6
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	return c
}

// Generator produces spoken responses via the OpenAI Chat Completions API.
type Generator struct {
	cfg    Config
	client *openai.Client
	retry  resilience.RetryPolicy
}

func NewGenerator(cfg Config) *Generator {
	cfg = cfg.withDefaults()
	var client *openai.Client
	if cfg.BaseURL != "" {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = cfg.BaseURL
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		client = openai.NewClient(cfg.APIKey)
	}
	return &Generator{
		cfg:    cfg,
		client: client,
		retry:  resilience.NewRetryPolicy(cfg.MaxRetries, 150*time.Millisecond),
	}
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) Generate(ctx context.Context, prompt llm.Prompt) (llm.Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt.History)+2)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	for _, msg := range prompt.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	if prompt.UserText != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt.UserText,
		})
	}

	var resp openai.ChatCompletionResponse
	err := g.retry.DoWithContext(ctx, func() error {
		var callErr error
		resp, callErr = g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       g.cfg.Model,
			Messages:    messages,
			MaxTokens:   g.cfg.MaxTokens,
			Temperature: g.cfg.Temperature,
		})
		return callErr
	})
	if err != nil {
		return llm.Reply{}, errorsx.Wrap(err, errorsx.ReasonGenerateFailed)
	}
	if len(resp.Choices) == 0 {
		return llm.Reply{}, errorsx.Wrap(errors.New("no choices in completion"), errorsx.ReasonGenerateFailed)
	}

	choice := resp.Choices[0]
	return llm.Reply{
		Text:         strings.TrimSpace(choice.Message.Content),
		Tokens:       resp.Usage.CompletionTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

var _ llm.Generator = (*Generator)(nil)
