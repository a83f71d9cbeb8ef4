package main

import (
	"net/http"

	"github.com/blueberrycongee/chatrelay/internal/api"
	"github.com/blueberrycongee/chatrelay/internal/config"
)

// buildHandler wraps mux in the server middleware. CORS runs first so
// rejected preflights never reach the request counters.
func buildHandler(cfg *config.Config, mux *http.ServeMux) (http.Handler, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	return corsMiddleware(cfg.CORS, api.Wrap(mux)), nil
}
