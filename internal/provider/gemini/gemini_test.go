package gemini

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/chatrelay/internal/prompt"
	"github.com/blueberrycongee/chatrelay/internal/provider"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	webpBytes = []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00")
)

func run(t *testing.T, handler http.HandlerFunc, req *types.ChatRequest) (*types.ChatResult, error) {
	t.Helper()
	server := httptest.NewServer(handler)
	defer server.Close()

	a := New(provider.Deps{Invoker: provider.NewInvoker(server.Client(), nil), Prompt: prompt.NewBuilder()})
	desc := provider.Descriptor{ID: "gemini", DisplayName: "Google Gemini", BaseURL: server.URL + "/v1beta", Model: "gemini-test"}

	httpReq, err := a.BuildRequest(context.Background(), req, "AIza-test", desc)
	require.NoError(t, err)
	resp, err := a.Invoke(httpReq)
	if err != nil {
		return nil, err
	}
	return a.ParseResponse(resp, desc)
}

func TestAdapter_RequestWithImages(t *testing.T) {
	var got generateRequest
	req := &types.ChatRequest{
		Message: "what is in the picture?",
		History: []types.Turn{{Role: "user", Content: "hi"}},
		Attachments: []types.Attachment{
			{Name: "a.png", MimeType: "image/jpeg", Data: pngBytes},
			{Name: "b", Kind: types.KindImage, MimeType: "image/png", Data: webpBytes},
			{Name: "doc.txt", MimeType: "text/plain", Text: "notes"},
			{Name: "unresolved.png", MimeType: "image/png", Ref: "uploads/x"},
		},
	}

	res, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "AIza-test", r.URL.Query().Get("key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"A cat"}]}}],"usageMetadata":{"totalTokenCount":77}}`))
	}, req)
	require.NoError(t, err)
	assert.Equal(t, "A cat", res.Content)
	assert.Equal(t, 77, res.TokensUsed)
	assert.Equal(t, Confidence, res.Confidence)

	require.Len(t, got.Contents, 1)
	parts := got.Contents[0].Parts
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Text, "Conversation so far:\nUser: hi")
	assert.Contains(t, parts[0].Text, "Current user message: what is in the picture?")
	assert.Contains(t, parts[0].Text, "- doc.txt (text/plain): notes")

	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), parts[1].InlineData.Data)
	require.NotNil(t, parts[2].InlineData)
	assert.Equal(t, "image/webp", parts[2].InlineData.MimeType)

	assert.InDelta(t, 0.7, got.GenerationConfig.Temperature, 1e-9)
	assert.Equal(t, provider.DefaultMaxTokens, got.GenerationConfig.MaxOutputTokens)
}

func TestAdapter_NoCandidatesIsFormatError(t *testing.T) {
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}, &types.ChatRequest{Message: "x"})
	ce, ok := llmerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeFormat, ce.Type)
	assert.Contains(t, ce.Message, "SAFETY")
	assert.False(t, llmerrors.IsKeyRelated(err))
}

func TestAdapter_QuotaStatus(t *testing.T) {
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED"}}`))
	}, &types.ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AIza-test")
	assert.True(t, llmerrors.IsKeyRelated(err))
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "image/png", DetectMimeType(pngBytes, "image/gif"))
	assert.Equal(t, "image/webp", DetectMimeType(webpBytes, "image/png"))
	assert.Equal(t, "image/heic", DetectMimeType([]byte("garbage"), "image/heic"))
	assert.Equal(t, "application/octet-stream", DetectMimeType([]byte("garbage"), ""))
}
