// Package huggingface implements the Hugging Face inference text-generation
// dialect.
package huggingface

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/chatrelay/internal/provider"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

const (
	// Confidence is reported for every answer of this dialect.
	Confidence = 0.8

	// MaxLength bounds generated text.
	MaxLength = 2000
)

type generationParameters struct {
	Temperature float64 `json:"temperature"`
	MaxLength   int     `json:"max_length"`
}

type generationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters generationParameters `json:"parameters"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Adapter speaks the text-generation dialect.
type Adapter struct {
	deps provider.Deps
}

// New creates the text-generation dialect adapter.
func New(deps provider.Deps) provider.Adapter {
	return &Adapter{deps: deps}
}

// Dialect returns provider.DialectTextGeneration.
func (a *Adapter) Dialect() provider.Dialect {
	return provider.DialectTextGeneration
}

// BuildRequest builds POST {base}/{model}.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc provider.Descriptor) (*http.Request, error) {
	body := generationRequest{
		Inputs: a.deps.Prompt.Prompt(req),
		Parameters: generationParameters{
			Temperature: provider.DefaultTemperature,
			MaxLength:   MaxLength,
		},
	}
	httpReq, err := provider.NewJSONRequest(ctx, desc.Endpoint(desc.Model), body, desc)
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

// ParseResponse accepts either [{"generated_text"}] or {"generated_text"}.
func (a *Adapter) ParseResponse(resp *http.Response, desc provider.Descriptor) (*types.ChatResult, error) {
	var raw json.RawMessage
	if err := provider.DecodeJSON(resp, desc, &raw); err != nil {
		return nil, err
	}

	var text string
	var list []generation
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 {
			text = list[0].GeneratedText
		}
	} else {
		var single generation
		if err := json.Unmarshal(raw, &single); err == nil {
			text = single.GeneratedText
		}
	}
	if text == "" {
		return nil, llmerrors.NewFormatError(desc.ID, "Invalid response from "+desc.DisplayName+" API: no generated_text")
	}
	return &types.ChatResult{Content: text, Confidence: Confidence}, nil
}
