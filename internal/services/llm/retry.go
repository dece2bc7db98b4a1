package llm

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// RetryConfig defines the wait between bounded attempts of an AI call
type RetryConfig struct {
	// InitialBackoff is the wait before a retry when the API suggests none
	InitialBackoff time.Duration

	// MaxBackoff caps any wait, including API-suggested delays
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to backoff on each retry
	BackoffMultiplier float64
}

const (
	DefaultInitialBackoff    = 2 * time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffMultiplier = 1.5
)

// NewDefaultRetryConfig returns a RetryConfig with the default waits
func NewDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches typed 429s from the Anthropic and OpenAI SDKs, and 429 /
// RESOURCE_EXHAUSTED / quota text from Gemini.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) && claudeErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) && openaiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs", "retryDelay:Xs" or "try again in Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+|try again in )(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from an error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// CalculateBackoff computes the backoff duration for a given attempt.
// If apiDelay > 0 (from ExtractRetryDelay), it's used as the base.
// Otherwise, InitialBackoff is used.
// The result is capped at MaxBackoff.
func (c *RetryConfig) CalculateBackoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}

	return backoff
}
