package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Accept, Content-Type, Authorization, X-CKAN-API-Key, " + RequestIDHeader
	corsMaxAge       = "86400"
)

// corsPolicy decides which browser origins may call the API. Patterns are
// exact origins ("https://ckan.example.org"), host suffixes ("*.ngds.org",
// any scheme and port, not the bare domain) or "*" for every origin.
type corsPolicy struct {
	any      bool
	origins  map[string]bool
	suffixes []string
}

// newCORSPolicy compiles patterns; it returns nil when there are none.
func newCORSPolicy(patterns []string) *corsPolicy {
	if len(patterns) == 0 {
		return nil
	}
	p := &corsPolicy{origins: make(map[string]bool)}
	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		switch {
		case pat == "*":
			p.any = true
		case strings.HasPrefix(pat, "*."):
			p.suffixes = append(p.suffixes, strings.ToLower(pat[1:]))
		case pat != "":
			p.origins[strings.TrimRight(pat, "/")] = true
		}
	}
	return p
}

// allows reports whether origin matches the policy.
func (p *corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any || p.origins[origin] {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}

// middleware sets CORS headers for allowed origins and answers preflight
// requests itself.
func (p *corsPolicy) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")

		if p.allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			h.Set("Access-Control-Max-Age", corsMaxAge)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
