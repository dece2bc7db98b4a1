package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
)

// OpenAIProvider generates content with the OpenAI chat completions API
type OpenAIProvider struct {
	client *openai.Client
	config common.OpenAIConfig
	model  string
	logger arbor.ILogger
}

// NewOpenAIProvider creates an OpenAI provider. An empty model uses the configured default.
// A configured base URL allows OpenAI-compatible endpoints.
func NewOpenAIProvider(cfg common.OpenAIConfig, model string, logger arbor.ILogger) *OpenAIProvider {
	if model == "" {
		model = cfg.Model
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		model:  model,
		logger: logger,
	}
}

func (p *OpenAIProvider) Type() ProviderType { return ProviderOpenAI }

func (p *OpenAIProvider) Model() string { return p.model }

// GenerateContent sends one chat completion request
func (p *OpenAIProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if request.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: request.Prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: temp,
		MaxTokens:   maxTokens,
	}
	if request.JSONOutput {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	p.logger.Debug().
		Str("model", p.model).
		Int("prompt_chars", len(request.Prompt)).
		Msg("OpenAI API request")

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("empty response from OpenAI API")
	}

	return &ContentResponse{
		Text:     resp.Choices[0].Message.Content,
		Provider: ProviderOpenAI,
		Model:    p.model,
	}, nil
}
