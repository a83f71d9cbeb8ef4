// Package provider defines the provider catalog, the adapter contract every
// dialect implements and the registry that answers which providers can
// currently be dispatched to.
package provider

import (
	"context"
	"net/http"

	"github.com/blueberrycongee/chatrelay/pkg/types"
)

// Adapter translates the canonical request into one provider dialect and
// parses the provider's answer back. Adapters hold no per-request state and
// are shared by all goroutines.
type Adapter interface {
	// Dialect returns the dialect this adapter speaks.
	Dialect() Dialect

	// BuildRequest creates the outbound HTTP request for desc using credential.
	BuildRequest(ctx context.Context, req *types.ChatRequest, credential string, desc Descriptor) (*http.Request, error)

	// Invoke sends the request. Non-2xx statuses are returned as classified
	// errors carrying the status code and a bounded body excerpt.
	Invoke(req *http.Request) (*http.Response, error)

	// ParseResponse extracts content and token usage. It closes the body.
	ParseResponse(resp *http.Response, desc Descriptor) (*types.ChatResult, error)
}

// Factory creates an adapter from the shared services in deps.
type Factory func(deps Deps) Adapter
