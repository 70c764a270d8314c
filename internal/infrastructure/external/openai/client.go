package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/entity"
)

// ErrNoProvider is returned when neither the organization nor the global
// configuration has a usable model provider
var ErrNoProvider = errors.New("no model provider configured")

// ChatClient sends chat completions to the default model provider of an organization
type ChatClient struct {
	providers port.ModelProviderRepository
	fallback  *entity.ModelProvider
	logger    *zap.Logger
}

// NewChatClient creates a chat client. fallback is used when the store has no
// default provider for the organization; it may be nil.
func NewChatClient(providers port.ModelProviderRepository, fallback *entity.ModelProvider, logger *zap.Logger) *ChatClient {
	return &ChatClient{
		providers: providers,
		fallback:  fallback,
		logger:    logger,
	}
}

// Complete sends one system + user exchange and returns the reply text and the model that produced it
func (c *ChatClient) Complete(ctx context.Context, orgID string, spec PromptSpec, userPrompt string) (string, string, error) {
	provider, err := c.resolve(ctx, orgID)
	if err != nil {
		return "", "", err
	}

	resp, err := c.clientFor(provider).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       provider.Model,
		Temperature: spec.Temperature,
		MaxTokens:   spec.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: spec.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
	})
	if err != nil {
		c.logger.Error("Chat completion failed",
			zap.String("org_id", orgID),
			zap.String("provider", provider.Name),
			zap.String("model", provider.Model),
			zap.Error(err))
		return "", provider.Model, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", provider.Model, fmt.Errorf("no response from model %s", provider.Model)
	}

	model := resp.Model
	if model == "" {
		model = provider.Model
	}
	return resp.Choices[0].Message.Content, model, nil
}

func (c *ChatClient) resolve(ctx context.Context, orgID string) (*entity.ModelProvider, error) {
	var provider *entity.ModelProvider
	if c.providers != nil {
		p, err := c.providers.FindDefault(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("find model provider: %w", err)
		}
		provider = p
	}
	if !provider.IsConfigured() {
		provider = c.fallback
	}
	if !provider.IsConfigured() {
		return nil, ErrNoProvider
	}
	return provider, nil
}

func (c *ChatClient) clientFor(provider *entity.ModelProvider) *openai.Client {
	cfg := openai.DefaultConfig(provider.APIKey)
	if provider.BaseURL != "" {
		cfg.BaseURL = provider.BaseURL
	}
	return openai.NewClientWithConfig(cfg)
}
