package oauth

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"mcpwsbridge/internal/audit"
	"mcpwsbridge/internal/metrics"
	"mcpwsbridge/internal/redact"
	"mcpwsbridge/internal/session"
)

// Handlers implements the Auth Surface's HTTP endpoints: metadata
// discovery, dynamic client registration, the consent page, and the
// code-for-bearer exchange. The bearer it ultimately hands back is equal to
// the session key by design, so admission checks elsewhere in the service
// never need to consult this package again once a token has been issued.
type Handlers struct {
	store    *Store
	sessions *session.Registry
	metrics  *metrics.Collector
	audit    *audit.Hub
	redactor *redact.Redactor
	logger   *slog.Logger
}

// NewHandlers builds the Auth Surface's handlers.
func NewHandlers(store *Store, sessions *session.Registry, collector *metrics.Collector, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, sessions: sessions, metrics: collector, logger: logger}
}

// SetAuditHub attaches the audit feed OAuth issuance events publish to.
func (h *Handlers) SetAuditHub(hub *audit.Hub) {
	h.audit = hub
}

// SetRedactor registers the shared redactor that authorization codes and
// issued bearers are fed into. They are masked in any log value passed
// through that redactor (the transport's 401 path logs the rejected
// Authorization header this way); log lines that do not pass through it
// are not masked.
func (h *Handlers) SetRedactor(r *redact.Redactor) {
	h.redactor = r
}

func (h *Handlers) redactSecret(s string) {
	if h.redactor == nil || s == "" {
		return
	}
	h.redactor.AddSecrets([]string{s})
}

func (h *Handlers) publish(sessionKey, kind, detail string) {
	if h.audit == nil {
		return
	}
	h.audit.Publish(audit.Event{Timestamp: time.Now(), Session: sessionKey, Kind: kind, Detail: detail})
}

// Register installs every Auth Surface route on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", h.handleAuthorizationServerMetadata)
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", h.handleProtectedResourceMetadata)
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("GET /oauth/authorize", h.handleAuthorizeGet)
	mux.HandleFunc("POST /oauth/authorize", h.handleAuthorizePost)
	mux.HandleFunc("POST /oauth/token", h.handleToken)
}

// sessionKeyParam extracts which session a pending authorization is scoped
// to: the "config" path parameter first, then the "session" query
// parameter, then a "session" form field, then the global default. Unlike
// transport.sessionKey it reads "session" rather than "config" from the
// query, and it does not import the transport package, since the Auth
// Surface is deliberately a standalone collaborator.
func sessionKeyParam(r *http.Request) string {
	if v := r.PathValue("config"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("session"); v != "" {
		return v
	}
	if v := r.FormValue("session"); v != "" {
		return v
	}
	return session.DefaultKey
}

func (h *Handlers) handleAuthorizeGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	responseType := q.Get("response_type")
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")
	state := q.Get("state")

	if responseType != "code" {
		http.Error(w, "unsupported_response_type: only 'code' is supported", http.StatusBadRequest)
		return
	}
	if clientID == "" {
		http.Error(w, "client_id required", http.StatusBadRequest)
		return
	}
	client := h.store.GetClient(clientID)
	if client == nil {
		http.Error(w, "invalid client_id", http.StatusBadRequest)
		return
	}
	if !client.ValidateRedirectURI(redirectURI) {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	if codeChallenge == "" || codeChallengeMethod != "S256" {
		http.Error(w, "PKCE S256 code_challenge required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(renderConsentPage(client.Name, clientID, redirectURI, codeChallenge, codeChallengeMethod, state)))
}

func (h *Handlers) handleAuthorizePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	clientID := r.FormValue("client_id")
	redirectURI := r.FormValue("redirect_uri")
	codeChallenge := r.FormValue("code_challenge")
	codeChallengeMethod := r.FormValue("code_challenge_method")
	state := r.FormValue("state")
	action := r.FormValue("action")

	if action == "deny" {
		redirectWithError(w, r, redirectURI, state, "access_denied", "user denied the request")
		return
	}

	client := h.store.GetClient(clientID)
	if client == nil {
		http.Error(w, "invalid client_id", http.StatusBadRequest)
		return
	}
	if !client.ValidateRedirectURI(redirectURI) {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	sessionKey := sessionKeyParam(r)
	sess := h.sessions.GetOrCreate(sessionKey)

	code := h.store.CreateAuthCode(clientID, redirectURI, codeChallenge, codeChallengeMethod, sessionKey)
	sess.SetPendingCode(code)
	h.redactSecret(code)
	if h.metrics != nil {
		h.metrics.RecordCodeIssued()
	}
	h.publish(sessionKey, audit.KindCodeIssued, "client "+clientID)

	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (h *Handlers) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	var grantType, code, clientID, clientSecret, codeVerifier, redirectURI string

	if strings.Contains(contentType, "application/json") {
		var req struct {
			GrantType    string `json:"grant_type"`
			Code         string `json:"code"`
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
			CodeVerifier string `json:"code_verifier"`
			RedirectURI  string `json:"redirect_uri"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOAuthError(w, "invalid_request", "invalid JSON body")
			return
		}
		grantType, code, clientID, clientSecret, codeVerifier, redirectURI =
			req.GrantType, req.Code, req.ClientID, req.ClientSecret, req.CodeVerifier, req.RedirectURI
	} else {
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, "invalid_request", "invalid form body")
			return
		}
		grantType = r.FormValue("grant_type")
		code = r.FormValue("code")
		clientID = r.FormValue("client_id")
		clientSecret = r.FormValue("client_secret")
		codeVerifier = r.FormValue("code_verifier")
		redirectURI = r.FormValue("redirect_uri")
	}

	if grantType != "authorization_code" {
		writeOAuthError(w, "unsupported_grant_type", "only authorization_code is supported")
		return
	}
	if h.store.ValidateClientSecret(clientID, clientSecret) == nil {
		writeOAuthError(w, "invalid_client", "invalid client credentials")
		return
	}

	sessionKey, err := h.store.ExchangeCode(code, clientID, redirectURI, codeVerifier)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordTokenExchangeFailed()
		}
		writeOAuthError(w, "invalid_grant", err.Error())
		return
	}

	sess := h.sessions.GetOrCreate(sessionKey)
	sess.SetToken(sessionKey)
	sess.ClearPendingCode()
	h.redactSecret(sessionKey)
	if h.metrics != nil {
		h.metrics.RecordTokenIssued()
	}
	h.publish(sessionKey, audit.KindTokenIssued, "client "+clientID)

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": sessionKey,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func writeOAuthError(w http.ResponseWriter, errCode, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":             errCode,
		"error_description": description,
	})
}

func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI, state, errCode, errDesc string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	q := u.Query()
	q.Set("error", errCode)
	q.Set("error_description", errDesc)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
