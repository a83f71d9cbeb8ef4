// Package baidu implements the ERNIE dialect. The credential is a
// "clientId:clientSecret" pair exchanged for an access token, which is sent
// as a query parameter. Failures are also reported in 200 bodies through
// error_code and error_msg.
package baidu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/blueberrycongee/chatrelay/internal/provider"
	"github.com/blueberrycongee/chatrelay/internal/provider/openailike"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

const (
	// Confidence is reported for every answer of this dialect.
	Confidence = 0.9

	topP         = 0.9
	penaltyScore = 1.0
)

// Body error codes that concern the credential rather than the request.
var (
	tokenErrorCodes = map[int]bool{110: true, 111: true, 14: true, 13: true}
	quotaErrorCodes = map[int]bool{4: true, 17: true, 18: true, 19: true, 336501: true, 336502: true}
)

type chatRequest struct {
	Messages     []openailike.Message `json:"messages"`
	Temperature  float64              `json:"temperature"`
	TopP         float64              `json:"top_p"`
	PenaltyScore float64              `json:"penalty_score"`
}

type chatResponse struct {
	Result    string `json:"result"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Usage     *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Adapter speaks the ERNIE dialect.
type Adapter struct {
	deps provider.Deps
}

// New creates the ERNIE dialect adapter. deps.Tokens must be set.
func New(deps provider.Deps) provider.Adapter {
	return &Adapter{deps: deps}
}

// Dialect returns provider.DialectOAuth.
func (a *Adapter) Dialect() provider.Dialect {
	return provider.DialectOAuth
}

type credentialKey struct{}

// BuildRequest exchanges the credential for a token and builds
// POST {base}/{model}?access_token=. The system prompt is prepended to the
// final user message because the API has no system role.
func (a *Adapter) BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc provider.Descriptor) (*http.Request, error) {
	token, err := a.deps.Tokens.Token(ctx, desc, credential)
	if err != nil {
		return nil, err
	}

	messages := openailike.HistoryMessages(req.History)
	messages = append(messages, openailike.Message{
		Role:    types.RoleUser,
		Content: a.deps.Prompt.SystemPrompt() + "\n\n" + a.deps.Prompt.UserContent(req),
	})

	body := chatRequest{
		Messages:     messages,
		Temperature:  provider.DefaultTemperature,
		TopP:         topP,
		PenaltyScore: penaltyScore,
	}

	endpoint := desc.Endpoint(desc.Model) + "?access_token=" + url.QueryEscape(token)
	ctx = context.WithValue(ctx, credentialKey{}, credential)
	return provider.NewJSONRequest(ctx, endpoint, body, desc)
}

// Invoke sends the request.
func (a *Adapter) Invoke(req *http.Request) (*http.Response, error) {
	return a.deps.Invoker.Do(req)
}

// ParseResponse reads result and usage, turning body error codes into
// classified errors.
func (a *Adapter) ParseResponse(resp *http.Response, desc provider.Descriptor) (*types.ChatResult, error) {
	var out chatResponse
	if err := provider.DecodeJSON(resp, desc, &out); err != nil {
		return nil, err
	}

	if out.ErrorCode != 0 {
		msg := fmt.Sprintf("%s API error: %d - %s", desc.DisplayName, out.ErrorCode, out.ErrorMsg)
		switch {
		case tokenErrorCodes[out.ErrorCode]:
			if resp.Request != nil {
				if cred, ok := resp.Request.Context().Value(credentialKey{}).(string); ok {
					a.deps.Tokens.Invalidate(desc, cred)
				}
			}
			return nil, llmerrors.NewCredentialError(desc.ID, http.StatusUnauthorized, msg)
		case quotaErrorCodes[out.ErrorCode]:
			return nil, llmerrors.NewQuotaError(desc.ID, http.StatusTooManyRequests, msg)
		default:
			return nil, llmerrors.NewUpstreamError(desc.ID, resp.StatusCode, msg)
		}
	}
	if out.Result == "" {
		return nil, llmerrors.NewFormatError(desc.ID, "Invalid response from "+desc.DisplayName+" API: empty result")
	}

	result := &types.ChatResult{Content: out.Result, Confidence: Confidence}
	if out.Usage != nil {
		result.TokensUsed = out.Usage.TotalTokens
	}
	return result, nil
}
