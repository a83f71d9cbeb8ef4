package main

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/blueberrycongee/chatrelay/internal/config"
)

// corsPolicy is a CORSConfig with its header values joined once.
type corsPolicy struct {
	cfg           config.CORSConfig
	allowMethods  string
	allowHeaders  string
	exposeHeaders string
	maxAge        string
}

func newCORSPolicy(cfg config.CORSConfig) *corsPolicy {
	p := &corsPolicy{
		cfg:           cfg,
		allowMethods:  strings.Join(cfg.AllowMethods, ", "),
		allowHeaders:  strings.Join(cfg.AllowHeaders, ", "),
		exposeHeaders: strings.Join(cfg.ExposeHeaders, ", "),
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.FormatInt(int64(cfg.MaxAge.Seconds()), 10)
	}
	return p
}

// corsMiddleware answers preflights and sets CORS headers for browser
// clients. Requests without an Origin header pass through untouched.
func corsMiddleware(cfg config.CORSConfig, next http.Handler) http.Handler {
	if !cfg.Enabled {
		return next
	}
	policy := newCORSPolicy(cfg)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !policy.allows(origin, r.URL.Path) {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		policy.writeHeaders(w.Header(), origin)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *corsPolicy) allows(origin, path string) bool {
	origins := p.cfg.DataOrigins
	for _, prefix := range p.cfg.AdminPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			origins = p.cfg.AdminOrigins
			break
		}
	}

	for _, denied := range origins.Denylist {
		if denied == "*" || denied == origin {
			return false
		}
	}
	return p.cfg.AllowAllOrigins || slices.Contains(origins.Allowlist, origin)
}

func (p *corsPolicy) writeHeaders(h http.Header, origin string) {
	if p.cfg.AllowAllOrigins && !p.cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
	}
	if p.cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.allowMethods != "" {
		h.Set("Access-Control-Allow-Methods", p.allowMethods)
	}
	if p.allowHeaders != "" {
		h.Set("Access-Control-Allow-Headers", p.allowHeaders)
	}
	if p.exposeHeaders != "" {
		h.Set("Access-Control-Expose-Headers", p.exposeHeaders)
	}
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}
}
