package cohere

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/chatrelay/internal/prompt"
	"github.com/blueberrycongee/chatrelay/internal/provider"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

func run(t *testing.T, handler http.HandlerFunc) (*types.ChatResult, error) {
	t.Helper()
	server := httptest.NewServer(handler)
	defer server.Close()

	a := New(provider.Deps{Invoker: provider.NewInvoker(server.Client(), nil), Prompt: prompt.NewBuilder()})
	desc := provider.Descriptor{ID: "cohere", DisplayName: "Cohere", BaseURL: server.URL + "/v1", Model: "command-test"}
	req := &types.ChatRequest{Message: "next", History: []types.Turn{{Role: "user", Content: "first"}}}

	httpReq, err := a.BuildRequest(context.Background(), req, "co-key", desc)
	require.NoError(t, err)
	resp, err := a.Invoke(httpReq)
	if err != nil {
		return nil, err
	}
	return a.ParseResponse(resp, desc)
}

func TestAdapter_SingleMessage(t *testing.T) {
	var got chatRequest
	res, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat", r.URL.Path)
		assert.Equal(t, "Bearer co-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"text":"answer","meta":{"tokens":{"total_tokens":30}}}`))
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Content)
	assert.Equal(t, 30, res.TokensUsed)

	assert.True(t, strings.HasPrefix(got.Message, "You are"))
	assert.Contains(t, got.Message, "User: first")
	assert.True(t, strings.HasSuffix(got.Message, "Current user message: next"))
}

func TestAdapter_TokenFallbacks(t *testing.T) {
	res, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"a","meta":{"billed_units":{"input_tokens":3,"output_tokens":4}}}`))
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.TokensUsed)

	res, err = run(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TokensUsed)
}

func TestAdapter_MissingText(t *testing.T) {
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta":{}}`))
	})
	ce, ok := llmerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeFormat, ce.Type)
}
