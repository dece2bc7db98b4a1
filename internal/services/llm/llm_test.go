package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
)

func TestDetectProvider(t *testing.T) {
	assert.Equal(t, ProviderClaude, DetectProvider("claude-3-5-sonnet-20241022", ProviderOpenAI))
	assert.Equal(t, ProviderClaude, DetectProvider("anthropic/claude-x", ProviderOpenAI))
	assert.Equal(t, ProviderGemini, DetectProvider("gemini-2.0-flash", ProviderOpenAI))
	assert.Equal(t, ProviderOpenAI, DetectProvider("gpt-4o", ProviderClaude))
	assert.Equal(t, ProviderGemini, DetectProvider("mystery", ProviderGemini))
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "gpt-4", NormalizeModel("openai/gpt-4"))
	assert.Equal(t, "claude-x", NormalizeModel("Anthropic/claude-x"))
	assert.Equal(t, "gemini-2.0-flash", NormalizeModel("gemini-2.0-flash"))
}

func TestExtractJSON(t *testing.T) {
	type payload struct {
		Score float64 `json:"significance_score"`
	}

	tests := []struct {
		name string
		text string
		want float64
		ok   bool
	}{
		{"raw", `{"significance_score": 7.5}`, 7.5, true},
		{"fenced", "Here you go:\n```json\n{\"significance_score\": 8}\n```", 8, true},
		{"embedded", `Sure! {"significance_score": 6} Hope this helps.`, 6, true},
		{"none", "I cannot help with that.", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := ExtractJSON(tt.text, &p)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Score)
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.False(t, IsRateLimitError(errors.New("connection reset")))
	assert.True(t, IsRateLimitError(errors.New("Error 429, Status: RESOURCE_EXHAUSTED")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: quota exceeded. Please retry in 45.5s., Status: RESOURCE_EXHAUSTED")
	assert.Equal(t, 45500*time.Millisecond, ExtractRetryDelay(err))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("boom")))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := NewDefaultRetryConfig()
	assert.Equal(t, DefaultInitialBackoff, cfg.CalculateBackoff(0, 0))
	assert.Equal(t, 3*time.Second, cfg.CalculateBackoff(1, 0))
	assert.Equal(t, DefaultMaxBackoff, cfg.CalculateBackoff(0, 2*time.Minute), "API delay is capped")
}

func TestOpenAIProvider_GenerateContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model          string `json:"model"`
			Messages       []struct{ Role, Content string }
			ResponseFormat *struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"significance_score\": 9}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	cfg := common.NewDefaultConfig().OpenAI
	cfg.APIKey = "sk-test"
	cfg.BaseURL = server.URL + "/v1"

	provider := NewOpenAIProvider(cfg, "gpt-4o-mini", arbor.NewLogger())
	assert.Equal(t, ProviderOpenAI, provider.Type())

	resp, err := provider.GenerateContent(context.Background(), &ContentRequest{
		Prompt:            "analyse",
		SystemInstruction: "you are an analyst",
		JSONOutput:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"significance_score": 9}`, resp.Text)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
}

func TestNewProvider_SelectsByKey(t *testing.T) {
	cfg := common.NewDefaultConfig()
	_, err := NewProvider(context.Background(), cfg, arbor.NewLogger())
	assert.Error(t, err)

	cfg.Claude.APIKey = "k"
	cfg.AI.Model = "gpt-4" // belongs to another provider, ignored
	provider, err := NewProvider(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, ProviderClaude, provider.Type())
	assert.Equal(t, cfg.Claude.Model, provider.Model())
}
