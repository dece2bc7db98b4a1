// Package llm wraps the Anthropic, Gemini and OpenAI SDKs behind one
// provider-agnostic generate call.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderOpenAI uses the OpenAI chat completions API
	ProviderOpenAI ProviderType = "openai"
)

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Prompt            string
	SystemInstruction string
	Temperature       float32
	MaxTokens         int
	JSONOutput        bool // ask the provider for a JSON object where supported
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// Provider defines the interface for AI content generation.
// A single call makes a single API request; retries belong to the caller.
type Provider interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	Type() ProviderType
	Model() string
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-3-5-sonnet-20241022" or "anthropic/claude-..." -> Claude
// - "gemini-2.0-flash" or "google/gemini-..." -> Gemini
// - "gpt-4", "o1-mini" or "openai/gpt-4" -> OpenAI
// - anything else -> fallback
func DetectProvider(model string, fallback ProviderType) ProviderType {
	model = strings.ToLower(strings.TrimSpace(model))

	switch {
	case strings.HasPrefix(model, "claude/"), strings.HasPrefix(model, "anthropic/"), strings.HasPrefix(model, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(model, "gemini/"), strings.HasPrefix(model, "google/"), strings.HasPrefix(model, "gemini-"):
		return ProviderGemini
	case strings.HasPrefix(model, "openai/"), strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return ProviderOpenAI
	default:
		return fallback
	}
}

// NormalizeModel removes provider prefix from model name if present
func NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/", "openai/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// NewProvider creates the provider selected by configuration. The AI_MODEL
// override is applied only when it belongs to the selected provider.
func NewProvider(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (Provider, error) {
	providerType := ProviderType(cfg.ResolveAIProvider())
	if providerType == "" {
		return nil, fmt.Errorf("no AI provider API key configured")
	}

	model := ""
	if cfg.AI.Model != "" && DetectProvider(cfg.AI.Model, providerType) == providerType {
		model = NormalizeModel(cfg.AI.Model)
	}

	var (
		provider Provider
		err      error
	)
	switch providerType {
	case ProviderClaude:
		provider = NewClaudeProvider(cfg.Claude, model, logger)
	case ProviderGemini:
		provider, err = NewGeminiProvider(ctx, cfg.Gemini, model, logger)
	case ProviderOpenAI:
		provider = NewOpenAIProvider(cfg.OpenAI, model, logger)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", providerType)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("provider", string(provider.Type())).
		Str("model", provider.Model()).
		Msg("AI provider initialised")

	return provider, nil
}
