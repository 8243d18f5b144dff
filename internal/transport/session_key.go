package transport

import "net/http"

// sessionKey extracts the session key from a request: the "config" path
// parameter takes precedence (routes are registered as "/{config}/mcp" etc.),
// then the "config" query parameter, then the global default.
func sessionKey(r *http.Request) string {
	if v := r.PathValue("config"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("config"); v != "" {
		return v
	}
	return "global"
}
