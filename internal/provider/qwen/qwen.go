// Package qwen implements the DashScope text-generation dialect used by
// Alibaba Tongyi Qianwen.
package qwen

import (
	"context"
	"net/http"

	"github.com/blueberrycongee/chatrelay/internal/provider"
	"github.com/blueberrycongee/chatrelay/internal/provider/openailike"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

const (
	// Confidence is reported for every answer of this dialect.
	Confidence = 0.9

	topP = 0.9
)

type parameters struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

type input struct {
	Messages []openailike.Message `json:"messages"`
}

type generationRequest struct {
	Model      string     `json:"model"`
	Input      input      `json:"input"`
	Parameters parameters `json:"parameters"`
}

type generationResponse struct {
	Output *struct {
		Text    string `json:"text"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Adapter speaks the DashScope dialect.
type Adapter struct {
	deps provider.Deps
}

// New creates the DashScope dialect adapter.
func New(deps provider.Deps) provider.Adapter {
	return &Adapter{deps: deps}
}

// Dialect returns provider.DialectDashScope.
func (a *Adapter) Dialect() provider.Dialect {
	return provider.DialectDashScope
}

// BuildRequest builds POST {base}/services/aigc/text-generation/generation.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc provider.Descriptor) (*http.Request, error) {
	messages := []openailike.Message{{Role: types.RoleSystem, Content: a.deps.Prompt.SystemPrompt()}}
	messages = append(messages, openailike.HistoryMessages(req.History)...)
	messages = append(messages, openailike.Message{Role: types.RoleUser, Content: a.deps.Prompt.UserContent(req)})

	body := generationRequest{
		Model: desc.Model,
		Input: input{Messages: messages},
		Parameters: parameters{
			Temperature: provider.DefaultTemperature,
			MaxTokens:   desc.MaxTokensOrDefault(),
			TopP:        topP,
		},
	}

	httpReq, err := provider.NewJSONRequest(ctx, desc.Endpoint("services/aigc/text-generation/generation"), body, desc)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+credential)
	httpReq.Header.Set("X-DashScope-SSE", "disable")
	return httpReq, nil
}

// Invoke sends the request.
func (a *Adapter) Invoke(req *http.Request) (*http.Response, error) {
	return a.deps.Invoker.Do(req)
}

// ParseResponse reads output.text, or output.choices[0].message.content when
// the message result format is returned.
func (a *Adapter) ParseResponse(resp *http.Response, desc provider.Descriptor) (*types.ChatResult, error) {
	var out generationResponse
	if err := provider.DecodeJSON(resp, desc, &out); err != nil {
		return nil, err
	}

	var text string
	if out.Output != nil {
		text = out.Output.Text
		if text == "" && len(out.Output.Choices) > 0 {
			text = out.Output.Choices[0].Message.Content
		}
	}
	if text == "" {
		msg := "Invalid response from " + desc.DisplayName + " API"
		if out.Code != "" {
			msg += ": " + out.Code + " " + out.Message
		}
		return nil, llmerrors.NewFormatError(desc.ID, msg)
	}

	result := &types.ChatResult{Content: text, Confidence: Confidence}
	if out.Usage != nil {
		result.TokensUsed = out.Usage.TotalTokens
	}
	return result, nil
}
