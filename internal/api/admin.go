package api //nolint:revive // package name is intentional

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/chatrelay/internal/dispatch"
	"github.com/blueberrycongee/chatrelay/internal/observability"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

const (
	errTypeNotFound = "not_found_error"
	errTypeConflict = "conflict_error"
	errTypeInternal = "internal_error"
)

type probeResponse struct {
	Provider string          `json:"provider"`
	OK       bool            `json:"ok"`
	Quota    types.QuotaView `json:"quota"`
	Error    *ErrorDetail    `json:"error,omitempty"`
}

type configReloadRequest struct {
	ExpectedChecksum string `json:"expected_checksum,omitempty"`
}

// ListProviders handles GET /v1/providers.
func (h *Handler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data": h.dispatcher.DescribeAll(),
	})
}

// AvailableProviders handles GET /v1/providers/available.
func (h *Handler) AvailableProviders(w http.ResponseWriter, _ *http.Request) {
	available := h.dispatcher.AvailableProviders()
	if available == nil {
		available = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": available,
	})
}

// AllQuota handles GET /v1/quota.
func (h *Handler) AllQuota(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data": h.dispatcher.AllStatuses(r.Context()),
	})
}

// ProviderQuota handles GET /v1/quota/{provider}.
func (h *Handler) ProviderQuota(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("provider")
	view, err := h.dispatcher.CheckStatus(r.Context(), id)
	if errors.Is(err, dispatch.ErrUnknownProvider) {
		writeError(w, http.StatusNotFound, errTypeNotFound, "unknown provider: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errTypeInternal, "failed to read quota")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ResetProvider handles POST /v1/providers/{provider}/reset. It clears the
// quarantine of every credential of the provider.
func (h *Handler) ResetProvider(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("provider")
	if err := h.dispatcher.ResetProvider(id); err != nil {
		if errors.Is(err, dispatch.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, errTypeNotFound, "unknown provider: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, errTypeInternal, "failed to reset provider")
		return
	}

	observability.LoggerWithRequestID(r.Context(), h.logger).Info("provider credentials reset", "provider", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": id,
		"reset":    true,
	})
}

// ProbeProvider handles POST /v1/providers/{provider}/probe. A failed probe
// is still a 200: the outcome is in the body.
func (h *Handler) ProbeProvider(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("provider")
	view, err := h.dispatcher.Probe(r.Context(), id)
	if err != nil {
		if ce, ok := llmerrors.As(err); ok && ce.Type == llmerrors.TypeProviderUnavailable {
			writeDispatchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, probeResponse{
			Provider: id,
			Quota:    view,
			Error: &ErrorDetail{
				Message: llmerrors.UserMessage(err),
				Type:    llmerrors.Classify(err),
			},
		})
		return
	}
	writeJSON(w, http.StatusOK, probeResponse{Provider: id, OK: true, Quota: view})
}

// ConfigStatus handles GET /v1/config/status.
func (h *Handler) ConfigStatus(w http.ResponseWriter, _ *http.Request) {
	if h.configs == nil {
		writeError(w, http.StatusServiceUnavailable, errTypeInternal, "config manager not available")
		return
	}
	writeJSON(w, http.StatusOK, h.configs.Status())
}

// ReloadConfig handles POST /v1/config/reload. When expected_checksum is
// given the reload only happens if the loaded file still matches it.
func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.configs == nil {
		writeError(w, http.StatusServiceUnavailable, errTypeInternal, "config manager not available")
		return
	}

	var req configReloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, llmerrors.TypeInvalidRequest, "invalid request body")
		return
	}

	before := h.configs.Status()
	if req.ExpectedChecksum != "" && req.ExpectedChecksum != before.Checksum {
		writeError(w, http.StatusConflict, errTypeConflict, "config checksum mismatch")
		return
	}

	logger := observability.LoggerWithRequestID(r.Context(), h.logger)
	if err := h.configs.Reload(); err != nil {
		logger.Error("config reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, errTypeInternal, "failed to reload config")
		return
	}

	after := h.configs.Status()
	logger.Info("config reloaded", "previous_checksum", before.Checksum, "checksum", after.Checksum)
	writeJSON(w, http.StatusOK, map[string]any{
		"previous_checksum": before.Checksum,
		"status":            after,
	})
}
