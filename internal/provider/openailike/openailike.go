// Package openailike implements the chat dialect shared by every provider
// that follows the OpenAI chat completions format: a messages array with
// roles, bearer authentication and choices in the response.
package openailike

import (
	"context"
	"net/http"

	"github.com/blueberrycongee/chatrelay/internal/provider"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

// Confidence is reported for every answer of this dialect.
const Confidence = 0.9

// Message is one entry of the chat messages array.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Adapter speaks the chat dialect.
type Adapter struct {
	deps provider.Deps
}

// New creates the chat dialect adapter.
func New(deps provider.Deps) provider.Adapter {
	return &Adapter{deps: deps}
}

// Dialect returns provider.DialectChat.
func (a *Adapter) Dialect() provider.Dialect {
	return provider.DialectChat
}

// HistoryMessages converts prior turns to role-tagged messages.
func HistoryMessages(history []types.Turn) []Message {
	out := make([]Message, 0, len(history))
	for _, t := range history {
		out = append(out, Message{Role: t.NormalizedRole(), Content: t.Content})
	}
	return out
}

// BuildRequest builds POST {base}/chat/completions.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc provider.Descriptor) (*http.Request, error) {
	messages := make([]Message, 0, len(req.History)+2)
	messages = append(messages, Message{Role: types.RoleSystem, Content: a.deps.Prompt.SystemPrompt()})
	messages = append(messages, HistoryMessages(req.History)...)
	messages = append(messages, Message{Role: types.RoleUser, Content: a.deps.Prompt.UserContent(req)})

	body := chatRequest{
		Model:       desc.Model,
		Messages:    messages,
		MaxTokens:   desc.MaxTokensOrDefault(),
		Temperature: provider.DefaultTemperature,
	}

	httpReq, err := provider.NewJSONRequest(ctx, desc.Endpoint("chat/completions"), body, desc)
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

// ParseResponse reads choices[0].message.content and usage.total_tokens.
func (a *Adapter) ParseResponse(resp *http.Response, desc provider.Descriptor) (*types.ChatResult, error) {
	var out chatResponse
	if err := provider.DecodeJSON(resp, desc, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, llmerrors.NewFormatError(desc.ID, "Invalid response format from "+desc.DisplayName+" API: no choices")
	}

	result := &types.ChatResult{
		Content:    out.Choices[0].Message.Content,
		Confidence: Confidence,
	}
	if out.Usage != nil {
		result.TokensUsed = out.Usage.TotalTokens
	}
	return result, nil
}
