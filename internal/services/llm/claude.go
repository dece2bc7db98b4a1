package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
)

// ClaudeProvider generates content with the Anthropic Messages API
type ClaudeProvider struct {
	client anthropic.Client
	config common.ClaudeConfig
	model  string
	logger arbor.ILogger
}

// NewClaudeProvider creates a Claude provider. An empty model uses the configured default.
func NewClaudeProvider(cfg common.ClaudeConfig, model string, logger arbor.ILogger, opts ...option.RequestOption) *ClaudeProvider {
	if model == "" {
		model = cfg.Model
	}
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)

	return &ClaudeProvider{
		client: anthropic.NewClient(opts...),
		config: cfg,
		model:  model,
		logger: logger,
	}
}

func (p *ClaudeProvider) Type() ProviderType { return ProviderClaude }

func (p *ClaudeProvider) Model() string { return p.model }

// GenerateContent sends one Messages request
func (p *ClaudeProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if request.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: request.SystemInstruction},
		}
	}

	p.logger.Debug().
		Str("model", p.model).
		Int("prompt_chars", len(request.Prompt)).
		Msg("Claude API request")

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    p.model,
	}, nil
}
