// Package replicate implements the predictions dialect. Predictions are
// requested synchronously with "Prefer: wait"; an unfinished prediction is a
// format error rather than a placeholder answer.
package replicate

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/chatrelay/internal/provider"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

// Confidence is reported for every answer of this dialect.
const Confidence = 0.8

type predictionInput struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// Adapter speaks the predictions dialect.
type Adapter struct {
	deps provider.Deps
}

// New creates the predictions dialect adapter.
func New(deps provider.Deps) provider.Adapter {
	return &Adapter{deps: deps}
}

// Dialect returns provider.DialectPrediction.
func (a *Adapter) Dialect() provider.Dialect {
	return provider.DialectPrediction
}

// BuildRequest builds POST {base}/predictions with the prompt and no history.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc provider.Descriptor) (*http.Request, error) {
	body := predictionRequest{
		Version: desc.Model,
		Input: predictionInput{
			Prompt:      a.deps.Prompt.Prompt(req),
			Temperature: provider.DefaultTemperature,
			MaxTokens:   desc.MaxTokensOrDefault(),
		},
	}
	httpReq, err := provider.NewJSONRequest(ctx, desc.Endpoint("predictions"), body, desc)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Token "+credential)
	httpReq.Header.Set("Prefer", "wait")
	return httpReq, nil
}

// Invoke sends the request.
func (a *Adapter) Invoke(req *http.Request) (*http.Response, error) {
	return a.deps.Invoker.Do(req)
}

// ParseResponse reads output as a string or a list of string chunks.
// Token usage is not reported by this dialect.
func (a *Adapter) ParseResponse(resp *http.Response, desc provider.Descriptor) (*types.ChatResult, error) {
	var out predictionResponse
	if err := provider.DecodeJSON(resp, desc, &out); err != nil {
		return nil, err
	}

	text := outputText(out.Output)
	if text == "" {
		status := out.Status
		if status == "" {
			status = "unknown"
		}
		return nil, llmerrors.NewFormatError(desc.ID,
			"Invalid response from "+desc.DisplayName+" API: prediction "+out.ID+" has no output (status "+status+")")
	}
	return &types.ChatResult{Content: text, Confidence: Confidence}, nil
}

func outputText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var chunks []string
	if err := json.Unmarshal(raw, &chunks); err == nil {
		return strings.Join(chunks, "")
	}
	return ""
}
