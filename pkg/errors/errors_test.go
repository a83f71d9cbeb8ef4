package errors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid key text", fmt.Errorf("Invalid API key provided"), TypeCredential},
		{"unauthorized", fmt.Errorf("Unauthorized"), TypeCredential},
		{"authentication failed", fmt.Errorf("authentication failed for token"), TypeCredential},
		{"api key not found", fmt.Errorf("API key not found"), TypeCredential},
		{"status 401", NewUpstreamError("openai", 401, "OpenAI API error: 401 - nope"), TypeCredential},
		{"status 403", NewUpstreamError("openai", 403, "OpenAI API error: 403 - nope"), TypeCredential},
		{"quota exceeded", fmt.Errorf("Quota exceeded for today"), TypeQuota},
		{"rate limit", fmt.Errorf("Rate limit reached"), TypeQuota},
		{"insufficient quota", fmt.Errorf("insufficient quota"), TypeQuota},
		{"status 429", NewUpstreamError("groq", 429, "Groq API error: 429 - slow down"), TypeQuota},
		{"typed format", NewFormatError("gemini", "no candidates"), TypeFormat},
		{"typed config", NewConfigurationError("qwen", "No API keys configured for qwen"), TypeConfiguration},
		{"server error", NewUpstreamError("openai", 500, "OpenAI API error: 500 - boom"), TypeUpstream},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), TypeTransport},
		{"plain", fmt.Errorf("something odd"), TypeUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsKeyRelated(t *testing.T) {
	assert.True(t, IsKeyRelated(NewUpstreamError("openai", 401, "OpenAI API error: 401 - bad key")))
	assert.True(t, IsKeyRelated(fmt.Errorf("429 Too Many Requests")))
	assert.True(t, IsKeyRelated(NewCredentialError("baidu", 200, "access token rejected")))
	assert.False(t, IsKeyRelated(NewUpstreamError("openai", 500, "OpenAI API error: 500 - boom")))
	assert.False(t, IsKeyRelated(NewTransportError("openai", context.DeadlineExceeded)))
	// A port number in the failed URL must not read as a status code.
	assert.False(t, IsKeyRelated(NewTransportError("openai", fmt.Errorf(`Post "http://127.0.0.1:34015/v1": EOF`))))
	assert.False(t, IsKeyRelated(NewFormatError("gemini", "Invalid response format")))
	assert.False(t, IsKeyRelated(nil))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	err := NewTransportError("openai", context.DeadlineExceeded)
	wrapped := fmt.Errorf("dispatch: %w", err)

	ce, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, TypeTransport, ce.Type)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, ce.HTTPStatusCode())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"configuration", NewConfigurationError("openai", "No API keys configured for openai"), "not configured"},
		{"invalid key", NewUpstreamError("openai", 401, "OpenAI API error: 401 - Unauthorized"), "invalid"},
		{"quota", NewUpstreamError("openai", 429, "OpenAI API error: 429 - slow"), "quota"},
		{"denied", NewUpstreamError("openai", 403, "OpenAI API error: 403 - Forbidden"), "denied"},
		{"unavailable", NewProviderUnavailableError("cohere"), "unavailable"},
		{"generic", NewUpstreamError("openai", 500, "OpenAI API error: 500 - secret-body"), "try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := UserMessage(tt.err)
			assert.Contains(t, strings.ToLower(msg), tt.contains)
			assert.NotContains(t, msg, "secret-body")
		})
	}
}

func TestSummary(t *testing.T) {
	err := NewUpstreamError("openai", 429, "OpenAI API error: 429 - "+strings.Repeat("x", 1000))
	s := Summary(err)
	assert.True(t, strings.HasPrefix(s, TypeQuota+": OpenAI API error: 429"))
	assert.LessOrEqual(t, len(s), len(TypeQuota)+2+maxSummaryLen)
	assert.Empty(t, Summary(nil))
}
