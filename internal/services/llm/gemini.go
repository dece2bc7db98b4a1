package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/deepstock/internal/common"
)

// GeminiProvider generates content with the Gemini API
type GeminiProvider struct {
	client *genai.Client
	config common.GeminiConfig
	model  string
	logger arbor.ILogger
}

// NewGeminiProvider creates a Gemini provider. An empty model uses the configured default.
func NewGeminiProvider(ctx context.Context, cfg common.GeminiConfig, model string, logger arbor.ILogger) (*GeminiProvider, error) {
	if model == "" {
		model = cfg.Model
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: cfg,
		model:  model,
		logger: logger,
	}, nil
}

func (p *GeminiProvider) Type() ProviderType { return ProviderGemini }

func (p *GeminiProvider) Model() string { return p.model }

// GenerateContent sends one GenerateContent request
func (p *GeminiProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	if request.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemInstruction, genai.RoleUser)
	}
	if request.JSONOutput {
		config.ResponseMIMEType = "application/json"
	}

	p.logger.Debug().
		Str("model", p.model).
		Int("prompt_chars", len(request.Prompt)).
		Msg("Gemini API request")

	contents := genai.Text(request.Prompt)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{
		Text:     responseText,
		Provider: ProviderGemini,
		Model:    p.model,
	}, nil
}
