// Package cohere implements the Cohere v1 chat dialect, which takes the
// whole conversation as a single message.
package cohere

import (
	"context"
	"net/http"

	"github.com/blueberrycongee/chatrelay/internal/provider"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

// Confidence is reported for every answer of this dialect.
const Confidence = 0.9

type chatRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type chatResponse struct {
	Text *string `json:"text"`
	Meta *struct {
		Tokens *struct {
			TotalTokens  int `json:"total_tokens"`
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"tokens"`
		BilledUnits *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

// Adapter speaks the Cohere chat dialect.
type Adapter struct {
	deps provider.Deps
}

// New creates the Cohere dialect adapter.
func New(deps provider.Deps) provider.Adapter {
	return &Adapter{deps: deps}
}

// Dialect returns provider.DialectCohere.
func (a *Adapter) Dialect() provider.Dialect {
	return provider.DialectCohere
}

// BuildRequest builds POST {base}/chat with the transcript as the message.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc provider.Descriptor) (*http.Request, error) {
	body := chatRequest{
		Model:       desc.Model,
		Message:     a.deps.Prompt.Transcript(req, false),
		Temperature: provider.DefaultTemperature,
		MaxTokens:   desc.MaxTokensOrDefault(),
	}
	httpReq, err := provider.NewJSONRequest(ctx, desc.Endpoint("chat"), body, desc)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+credential)
	return httpReq, nil
}

// Invoke sends the request.
func (a *Adapter) Invoke(req *http.Request) (*http.Response, error) {
	return a.deps.Invoker.Do(req)
}

// ParseResponse reads text and meta.tokens, falling back to billed units.
func (a *Adapter) ParseResponse(resp *http.Response, desc provider.Descriptor) (*types.ChatResult, error) {
	var out chatResponse
	if err := provider.DecodeJSON(resp, desc, &out); err != nil {
		return nil, err
	}
	if out.Text == nil {
		return nil, llmerrors.NewFormatError(desc.ID, "Invalid response format from "+desc.DisplayName+" API: missing text")
	}

	result := &types.ChatResult{Content: *out.Text, Confidence: Confidence}
	if m := out.Meta; m != nil {
		switch {
		case m.Tokens != nil && m.Tokens.TotalTokens > 0:
			result.TokensUsed = m.Tokens.TotalTokens
		case m.Tokens != nil:
			result.TokensUsed = m.Tokens.InputTokens + m.Tokens.OutputTokens
		case m.BilledUnits != nil:
			result.TokensUsed = m.BilledUnits.InputTokens + m.BilledUnits.OutputTokens
		}
	}
	return result, nil
}
