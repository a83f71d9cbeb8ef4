package api //nolint:revive // package name is intentional

import (
	"net/http"

	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the error payload. Message is safe to show to end
// users; Type is the error class.
type ErrorDetail struct {
	Message  string `json:"message"`
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Provider string `json:"provider,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
}

// writeDispatchError maps a dispatch failure onto a status code and a
// user-facing message. The status follows the class the body reports.
// Upstream bodies and credentials never reach the caller.
func writeDispatchError(w http.ResponseWriter, err error) {
	class := llmerrors.Classify(err)
	detail := ErrorDetail{
		Message: llmerrors.UserMessage(err),
		Type:    class,
	}
	status := llmerrors.StatusForClass(class)
	if ce, ok := llmerrors.As(err); ok {
		detail.Provider = ce.Provider
		if ce.StatusCode > 0 {
			detail.Code = http.StatusText(ce.StatusCode)
		}
	}
	writeJSON(w, status, ErrorResponse{Error: detail})
}
