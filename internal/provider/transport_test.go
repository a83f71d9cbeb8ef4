package provider

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
)

func TestInvoker_ErrorStatusBecomesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key sk-abcdefghijklmnopqrstuvwxyz123456"}` + strings.Repeat("x", 2000)))
	}))
	defer server.Close()

	desc := Descriptor{ID: "openai", DisplayName: "OpenAI GPT", BaseURL: server.URL}
	req, err := NewJSONRequest(context.Background(), desc.Endpoint("chat/completions"), map[string]string{"a": "b"}, desc)
	require.NoError(t, err)

	_, err = NewInvoker(server.Client(), nil).Do(req)
	require.Error(t, err)

	ce, ok := llmerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeUpstream, ce.Type)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.Equal(t, "openai", ce.Provider)
	assert.True(t, strings.HasPrefix(ce.Message, "OpenAI GPT API error: 401 - "))
	assert.NotContains(t, ce.Message, "abcdefghijklmnopqrstuvwxyz123456")
	assert.Less(t, len(ce.Message), MaxErrorExcerpt+100)

	// The declarative table sees the status code and key wording.
	assert.True(t, llmerrors.IsKeyRelated(err))
}

func TestInvoker_ErrorLogMasksCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"denied"}`))
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	desc := Descriptor{ID: "anthropic", DisplayName: "Claude", BaseURL: server.URL}
	req, err := NewJSONRequest(context.Background(), server.URL, struct{}{}, desc)
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "sk-ant-REDACTED")
	req.Header.Set("Anthropic-Version", "2023-06-01")

	_, err = NewInvoker(server.Client(), logger).Do(req)
	require.Error(t, err)

	out := logs.String()
	assert.Contains(t, out, "provider returned error status")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "2023-06-01")
	assert.NotContains(t, out, "secretsecret")
}

func TestInvoker_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	desc := Descriptor{ID: "groq", BaseURL: server.URL}
	req, err := NewJSONRequest(context.Background(), server.URL, struct{}{}, desc)
	require.NoError(t, err)

	client := &http.Client{Timeout: 20 * time.Millisecond}
	_, err = NewInvoker(client, nil).Do(req)
	ce, ok := llmerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeTransport, ce.Type)
	assert.False(t, llmerrors.IsKeyRelated(err))
}

func TestNewJSONRequest(t *testing.T) {
	desc := Descriptor{ID: "x"}
	req, err := NewJSONRequest(context.Background(), "http://example.com/a", map[string]int{"n": 1}, desc)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	got, ok := DescriptorFromContext(req.Context())
	require.True(t, ok)
	assert.Equal(t, "x", got.ID)

	_, err = NewJSONRequest(context.Background(), "http://example.com", make(chan int), desc)
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	_, _ = rec.WriteString(`{"text":"hi"}`)
	var out struct {
		Text string `json:"text"`
	}
	require.NoError(t, DecodeJSON(rec.Result(), Descriptor{ID: "cohere"}, &out))
	assert.Equal(t, "hi", out.Text)

	bad := httptest.NewRecorder()
	_, _ = bad.WriteString(`<html>`)
	err := DecodeJSON(bad.Result(), Descriptor{ID: "cohere", DisplayName: "Cohere"}, &out)
	ce, ok := llmerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeFormat, ce.Type)
	assert.Contains(t, ce.Message, "Invalid response from Cohere API")
}

func TestReadLimitedBody(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("hello"), 10)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	body, err = ReadLimitedBody(strings.NewReader("helloworld"), 5)
	assert.True(t, errors.Is(err, ErrResponseBodyTooLarge))
	assert.Equal(t, "hello", string(body))
}
