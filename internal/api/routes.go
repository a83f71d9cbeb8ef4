package api //nolint:revive // package name is intentional

import (
	"net/http"

	"github.com/blueberrycongee/chatrelay/internal/metrics"
	"github.com/blueberrycongee/chatrelay/internal/observability"
)

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat", h.Chat)

	mux.HandleFunc("GET /v1/providers", h.ListProviders)
	mux.HandleFunc("GET /v1/providers/available", h.AvailableProviders)
	mux.HandleFunc("POST /v1/providers/{provider}/reset", h.ResetProvider)
	mux.HandleFunc("POST /v1/providers/{provider}/probe", h.ProbeProvider)

	mux.HandleFunc("GET /v1/quota", h.AllQuota)
	mux.HandleFunc("GET /v1/quota/{provider}", h.ProviderQuota)

	mux.HandleFunc("GET /v1/config/status", h.ConfigStatus)
	mux.HandleFunc("POST /v1/config/reload", h.ReloadConfig)

	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)
}

// Wrap applies the request ID and metrics middleware. Metrics wrap the mux
// directly so the matched route pattern is visible to them.
func Wrap(mux *http.ServeMux) http.Handler {
	return observability.RequestIDMiddleware(metrics.Middleware(mux))
}

// RouteInfo describes an API route.
type RouteInfo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// GetRoutes returns information about all registered routes.
func GetRoutes() []RouteInfo {
	return []RouteInfo{
		{Method: "POST", Path: "/v1/chat", Description: "Dispatch a chat request to a provider", Category: "chat"},

		{Method: "GET", Path: "/v1/providers", Description: "List the catalog with availability and credential state", Category: "provider"},
		{Method: "GET", Path: "/v1/providers/available", Description: "List dispatchable providers in priority order", Category: "provider"},
		{Method: "POST", Path: "/v1/providers/{provider}/reset", Description: "Clear credential quarantine", Category: "provider"},
		{Method: "POST", Path: "/v1/providers/{provider}/probe", Description: "Send a minimal request through one credential", Category: "provider"},

		{Method: "GET", Path: "/v1/quota", Description: "Quota status of configured providers", Category: "quota"},
		{Method: "GET", Path: "/v1/quota/{provider}", Description: "Quota status of one provider", Category: "quota"},

		{Method: "GET", Path: "/v1/config/status", Description: "Loaded configuration checksum", Category: "config"},
		{Method: "POST", Path: "/v1/config/reload", Description: "Reload the configuration file", Category: "config"},

		{Method: "GET", Path: "/health/live", Description: "Liveness probe", Category: "health"},
		{Method: "GET", Path: "/health/ready", Description: "Readiness probe", Category: "health"},
	}
}
