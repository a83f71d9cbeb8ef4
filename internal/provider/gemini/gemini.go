// Package gemini implements the contents dialect: one content whose parts are
// the full text transcript followed by inline base64 images, with the key in
// the query string.
package gemini

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/blueberrycongee/chatrelay/internal/provider"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

// Confidence is reported for every answer of this dialect.
const Confidence = 0.85

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Adapter speaks the contents dialect.
type Adapter struct {
	deps provider.Deps
}

// New creates the contents dialect adapter.
func New(deps provider.Deps) provider.Adapter {
	return &Adapter{deps: deps}
}

// Dialect returns provider.DialectContents.
func (a *Adapter) Dialect() provider.Dialect {
	return provider.DialectContents
}

// DetectMimeType sniffs image bytes and falls back to the declared type.
func DetectMimeType(data []byte, declared string) string {
	if detected := mimetype.Detect(data); strings.HasPrefix(detected.String(), "image/") {
		return detected.String()
	}
	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}

// BuildRequest builds POST {base}/models/{model}:generateContent?key=.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc provider.Descriptor) (*http.Request, error) {
	parts := []part{{Text: a.deps.Prompt.Transcript(req, true)}}
	for _, img := range req.Images() {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: DetectMimeType(img.Data, img.MimeType),
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}

	body := generateRequest{
		Contents: []content{{Parts: parts}},
		GenerationConfig: generationConfig{
			Temperature:     provider.DefaultTemperature,
			MaxOutputTokens: desc.MaxTokensOrDefault(),
		},
	}

	endpoint := desc.Endpoint("models/"+desc.Model+":generateContent") + "?key=" + url.QueryEscape(credential)
	return provider.NewJSONRequest(ctx, endpoint, body, desc)
}

// Invoke sends the request.
func (a *Adapter) Invoke(req *http.Request) (*http.Response, error) {
	return a.deps.Invoker.Do(req)
}

// ParseResponse reads candidates[0].content.parts and usageMetadata.
func (a *Adapter) ParseResponse(resp *http.Response, desc provider.Descriptor) (*types.ChatResult, error) {
	var out generateResponse
	if err := provider.DecodeJSON(resp, desc, &out); err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 {
		msg := "Invalid response format from " + desc.DisplayName + " API: no candidates"
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			msg += " (blocked: " + out.PromptFeedback.BlockReason + ")"
		}
		return nil, llmerrors.NewFormatError(desc.ID, msg)
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	result := &types.ChatResult{Content: sb.String(), Confidence: Confidence}
	if out.UsageMetadata != nil {
		result.TokensUsed = out.UsageMetadata.TotalTokenCount
	}
	return result, nil
}
