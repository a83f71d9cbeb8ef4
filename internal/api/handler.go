// Package api exposes the dispatcher over HTTP: chat dispatch, provider
// listings, quota status and administrative credential resets.
package api //nolint:revive // package name is intentional

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/chatrelay/internal/config"
	"github.com/blueberrycongee/chatrelay/internal/dispatch"
	"github.com/blueberrycongee/chatrelay/internal/observability"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

// Dispatcher is the engine behind the handlers. *dispatch.Dispatcher
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, providerID string, req *types.ChatRequest) (*types.ChatResult, error)
	Probe(ctx context.Context, providerID string) (types.QuotaView, error)
	CheckStatus(ctx context.Context, providerID string) (types.QuotaView, error)
	AllStatuses(ctx context.Context) map[string]types.QuotaView
	AvailableProviders() []string
	DescribeAll() []dispatch.ProviderOverview
	ResetProvider(providerID string) error
}

// ConfigController reloads the configuration file. *config.Manager
// satisfies it.
type ConfigController interface {
	Status() config.Status
	Reload() error
}

// Handler serves the HTTP API.
type Handler struct {
	dispatcher  Dispatcher
	configs     ConfigController
	logger      *slog.Logger
	maxBodySize int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithConfigController enables the config status and reload endpoints.
func WithConfigController(c ConfigController) Option {
	return func(h *Handler) { h.configs = c }
}

// WithMaxBodySize bounds the chat request body.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// NewHandler creates a new API handler.
func NewHandler(d Dispatcher, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		dispatcher:  d,
		logger:      logger,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ChatRequest is the body of POST /v1/chat: the target provider plus the
// canonical request.
type ChatRequest struct {
	Provider string `json:"provider"`
	types.ChatRequest
}

// Chat handles POST /v1/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerWithRequestID(r.Context(), h.logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
	defer func() { _ = r.Body.Close() }()
	if err != nil {
		writeError(w, http.StatusBadRequest, llmerrors.TypeInvalidRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > h.maxBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, llmerrors.TypeInvalidRequest, "request body too large")
		return
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, llmerrors.TypeInvalidRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, llmerrors.TypeInvalidRequest, "provider is required")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), req.Provider, &req.ChatRequest)
	if err != nil {
		logger.Warn("chat dispatch failed", "provider", req.Provider, "error_class", llmerrors.Classify(err))
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HealthLive handles GET /health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready. The service is ready once at least
// one provider can be dispatched to.
func (h *Handler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	available := h.dispatcher.AvailableProviders()
	if len(available) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unavailable",
			"providers": 0,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": len(available),
	})
}
