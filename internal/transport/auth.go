package transport

import (
	"fmt"
	"net/http"
	"strings"

	"mcpwsbridge/internal/session"
)

// authorize checks the request's bearer against sess's token. A session
// with no token yet assigned (no OAuth exchange has happened for it) is
// treated as open — this lets the default "global" session work without
// forcing every deployment through the OAuth flow, while a session that has
// had a token issued must present it on every call.
func authorize(r *http.Request, sess *session.Session) bool {
	want := sess.Token()
	if want == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return got != "" && got == want
}

// writeUnauthorized emits a 401 with a WWW-Authenticate challenge pointing
// at the authorization and token endpoints, per the bearer-token usage
// described in RFC 6750 and the metadata this service advertises. The
// rejected Authorization header is logged only after passing through the
// redactor, so a malformed-but-real bearer never lands in plaintext in the
// logs.
func (s *Server) writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	if presented := r.Header.Get("Authorization"); presented != "" {
		s.logger.Debug("rejected request with invalid bearer",
			"path", r.URL.Path, "presented", s.redactor.Redact(presented))
	}
	issuer := issuerURL(r)
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Bearer realm="mcpwsbridge", authorization_uri="%s/oauth/authorize", token_uri="%s/oauth/token"`,
		issuer, issuer,
	))
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func issuerURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
