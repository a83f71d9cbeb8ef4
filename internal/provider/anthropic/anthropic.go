// Package anthropic implements the messages dialect: the system prompt goes
// in a dedicated parameter, the key in x-api-key and the API version in a
// header.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	"github.com/blueberrycongee/chatrelay/internal/provider"
	"github.com/blueberrycongee/chatrelay/internal/provider/openailike"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

const (
	// APIVersion is sent in the anthropic-version header.
	APIVersion = "2023-06-01"

	// Confidence is reported for every answer of this dialect.
	Confidence = 0.95
)

type messagesRequest struct {
	Model     string               `json:"model"`
	System    string               `json:"system,omitempty"`
	Messages  []openailike.Message `json:"messages"`
	MaxTokens int                  `json:"max_tokens"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Adapter speaks the messages dialect.
type Adapter struct {
	deps provider.Deps
}

// New creates the messages dialect adapter.
func New(deps provider.Deps) provider.Adapter {
	return &Adapter{deps: deps}
}

// Dialect returns provider.DialectMessages.
func (a *Adapter) Dialect() provider.Dialect {
	return provider.DialectMessages
}

// BuildRequest builds POST {base}/messages.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc provider.Descriptor) (*http.Request, error) {
	messages := openailike.HistoryMessages(req.History)
	messages = append(messages, openailike.Message{Role: types.RoleUser, Content: a.deps.Prompt.UserContent(req)})

	body := messagesRequest{
		Model:     desc.Model,
		System:    a.deps.Prompt.SystemPrompt(),
		Messages:  messages,
		MaxTokens: desc.MaxTokensOrDefault(),
	}

	httpReq, err := provider.NewJSONRequest(ctx, desc.Endpoint("messages"), body, desc)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", credential)
	httpReq.Header.Set("anthropic-version", APIVersion)
	return httpReq, nil
}

// Invoke sends the request.
func (a *Adapter) Invoke(req *http.Request) (*http.Response, error) {
	return a.deps.Invoker.Do(req)
}

// ParseResponse joins the text blocks and sums input and output tokens.
func (a *Adapter) ParseResponse(resp *http.Response, desc provider.Descriptor) (*types.ChatResult, error) {
	var out messagesResponse
	if err := provider.DecodeJSON(resp, desc, &out); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if len(out.Content) == 0 {
		return nil, llmerrors.NewFormatError(desc.ID, "Invalid response format from "+desc.DisplayName+" API: no content")
	}

	result := &types.ChatResult{Content: sb.String(), Confidence: Confidence}
	if out.Usage != nil {
		result.TokensUsed = out.Usage.InputTokens + out.Usage.OutputTokens
	}
	return result, nil
}
