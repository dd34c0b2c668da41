package security

import (
	"net/http"
	"strconv"
)

// APIContentSecurityPolicy forbids every subresource; responses are JSON only.
const APIContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// Headers sets response hardening headers for the JSON API.
type Headers struct {
	// HSTSMaxAge in seconds; zero disables Strict-Transport-Security.
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// NoStore marks responses uncacheable. Cart bodies are per session.
	NoStore bool
	// CSP overrides APIContentSecurityPolicy.
	CSP string
}

// Middleware attaches the headers before the handler writes its response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	csp := h.CSP
	if csp == "" {
		csp = APIContentSecurityPolicy
	}
	hsts := ""
	if h.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(h.HSTSMaxAge)
		if h.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Content-Security-Policy", csp)
		if h.NoStore {
			headers.Set("Cache-Control", "no-store")
		}
		if hsts != "" && r.TLS != nil {
			headers.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
