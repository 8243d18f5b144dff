package transport

import (
	"bufio"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mcpwsbridge/internal/audit"
	"mcpwsbridge/internal/logging"
	"mcpwsbridge/internal/metrics"
	"mcpwsbridge/internal/oauth"
	"mcpwsbridge/internal/router"
	"mcpwsbridge/internal/session"
)

// newIntegrationServer wires a full Server the way cmd/mcpwsbridge/main.go
// does, against an httptest server, for end-to-end exercises of the HTTP +
// WebSocket surface (as opposed to router_test.go's direct Router calls).
func newIntegrationServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	logger := logging.Discard()
	sessions := session.NewRegistry()
	collector := metrics.NewCollector()
	rt := router.New(logger, collector)
	rt.SetAuditHub(audit.NewHub())
	oauthHandlers := oauth.NewHandlers(oauth.NewStore(), sessions, collector, logger)

	srv := New(Config{
		Sessions: sessions,
		Router:   rt,
		OAuth:    oauthHandlers,
		Metrics:  collector,
		Logger:   logger,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, sessions
}

func dialBrowserSocket(t *testing.T, ts *httptest.Server, configKey string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?config=" + configKey
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial browser socket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readOneSSEFrame reads a single "data: ...\n\n" frame's payload from an
// open event-stream response, skipping any leading comment keepalives.
func readOneSSEFrame(t *testing.T, body *bufio.Reader) []byte {
	t.Helper()
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			t.Fatalf("unexpected SSE line: %q", line)
		}
		return []byte(strings.TrimPrefix(line, "data: "))
	}
}

// A request/response round trip while the browser socket is attached:
// the POST becomes an event-stream, the browser receives the forwarded
// frame over the WebSocket, and its reply is written back to that same
// POST's stream.
func TestIntegration_RequestResponseWhileBrowserAttached(t *testing.T) {
	ts, _ := newIntegrationServer(t)
	conn := dialBrowserSocket(t, ts, "s1")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp?config=s1",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 event-stream response, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("browser read forwarded frame: %v", err)
	}
	if !strings.Contains(string(raw), `"method":"ping"`) {
		t.Fatalf("browser did not receive the forwarded request, got %s", raw)
	}

	if err := conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"result":"pong"}`)); err != nil {
		t.Fatalf("browser write response: %v", err)
	}

	frame := readOneSSEFrame(t, bufio.NewReader(resp.Body))
	if !strings.Contains(string(frame), `"result":"pong"`) {
		t.Fatalf("expected the POST stream to carry the matched response, got %s", frame)
	}
}

// A POST carrying a request arrives before any browser socket is
// attached: it is accepted immediately and the payload is delivered as the
// first frame once the browser connects.
func TestIntegration_EarlyPostQueueing(t *testing.T) {
	ts, _ := newIntegrationServer(t)

	resp, err := http.Post(ts.URL+"/mcp?config=s3", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"foo"}`))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 Accepted with no browser attached, got %d", resp.StatusCode)
	}

	conn := dialBrowserSocket(t, ts, "s3")
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("browser read queued frame: %v", err)
	}
	if !strings.Contains(string(raw), `"method":"foo"`) {
		t.Fatalf("expected the queued frame as the first message, got %s", raw)
	}
}

// A second GET /mcp for the same session replaces the first; the first
// connection is closed and further traffic flows only to the second.
func TestIntegration_ClientStreamReplacement(t *testing.T) {
	ts, sessions := newIntegrationServer(t)

	first, err := http.Get(ts.URL + "/mcp?config=s4")
	if err != nil {
		t.Fatalf("first GET /mcp: %v", err)
	}
	defer first.Body.Close()

	// Give the handler goroutine a moment to register the attachment before
	// the second one races it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sessions.GetOrCreate("s4").HasLiveClientStream() {
			break
		}
		time.Sleep(time.Millisecond)
	}

	second, err := http.Get(ts.URL + "/mcp?config=s4")
	if err != nil {
		t.Fatalf("second GET /mcp: %v", err)
	}
	defer second.Body.Close()

	// The first stream should be closed by the server once replaced: reads
	// past the initial keepalive comment should reach EOF.
	firstReader := bufio.NewReader(first.Body)
	for {
		line, err := firstReader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("unexpected error reading displaced stream: %v", err)
		}
		if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, ":") {
			t.Fatalf("displaced stream should carry no data frames, got %q", line)
		}
	}
}

// The OAuth authorization-code + PKCE happy path: authorize, consent,
// exchange the code for a bearer, and confirm the code cannot be replayed.
func TestIntegration_OAuthHappyPath(t *testing.T) {
	ts, _ := newIntegrationServer(t)

	registerBody, _ := json.Marshal(map[string]any{
		"client_name":   "integration-test-client",
		"redirect_uris": []string{"https://app.example/cb"},
	})
	regResp, err := http.Post(ts.URL+"/register", "application/json", strings.NewReader(string(registerBody)))
	if err != nil {
		t.Fatalf("POST /register: %v", err)
	}
	defer regResp.Body.Close()
	if regResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from dynamic client registration, got %d", regResp.StatusCode)
	}
	var client struct {
		ID     string `json:"client_id"`
		Secret string `json:"client_secret"`
	}
	if err := json.NewDecoder(regResp.Body).Decode(&client); err != nil {
		t.Fatalf("decode registration response: %v", err)
	}

	verifier := "integration-test-verifier-value-long-enough-for-pkce"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	form := url.Values{
		"client_id":             {client.ID},
		"redirect_uri":          {"https://app.example/cb"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"state":                 {"xyz"},
		"action":                {"authorize"},
		"session":               {"s6"},
	}

	noRedirectClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	authResp, err := noRedirectClient.PostForm(ts.URL+"/oauth/authorize", form)
	if err != nil {
		t.Fatalf("POST /oauth/authorize: %v", err)
	}
	defer authResp.Body.Close()
	if authResp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302 redirect with code, got %d", authResp.StatusCode)
	}
	loc, err := url.Parse(authResp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect location: %v", err)
	}
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatal("expected an authorization code in the redirect")
	}
	if loc.Query().Get("state") != "xyz" {
		t.Fatal("expected state to round-trip unchanged")
	}

	tokenForm := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {client.ID},
		"client_secret": {client.Secret},
		"code_verifier": {verifier},
		"redirect_uri":  {"https://app.example/cb"},
	}
	tokResp, err := http.PostForm(ts.URL+"/oauth/token", tokenForm)
	if err != nil {
		t.Fatalf("POST /oauth/token: %v", err)
	}
	defer tokResp.Body.Close()
	if tokResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from token exchange, got %d", tokResp.StatusCode)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(tokResp.Body).Decode(&tok); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if tok.AccessToken != "s6" {
		t.Fatalf("expected the access token to equal the session key, got %q", tok.AccessToken)
	}
	if tok.TokenType != "Bearer" {
		t.Fatalf("expected token_type Bearer, got %q", tok.TokenType)
	}

	replay, err := http.PostForm(ts.URL+"/oauth/token", tokenForm)
	if err != nil {
		t.Fatalf("replay POST /oauth/token: %v", err)
	}
	defer replay.Body.Close()
	if replay.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected replaying a consumed code to fail with 400, got %d", replay.StatusCode)
	}
}

// Requests against a session with an issued bearer must present it; a
// missing or wrong Authorization header gets a 401 with a WWW-Authenticate
// challenge pointing at the authorization and token endpoints.
func TestIntegration_UnauthorizedWithoutBearer(t *testing.T) {
	ts, sessions := newIntegrationServer(t)
	sessions.GetOrCreate("s7").SetToken("s7")

	resp, err := http.Get(ts.URL + "/mcp?config=s7")
	if err != nil {
		t.Fatalf("GET /mcp: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a session with a bearer and no Authorization header, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("WWW-Authenticate"), "authorization_uri") {
		t.Fatalf("expected WWW-Authenticate challenge to point at the authorization endpoint, got %q",
			resp.Header.Get("WWW-Authenticate"))
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/mcp?config=s7", nil)
	req.Header.Set("Authorization", "Bearer s7")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized GET /mcp: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 once the correct bearer is presented, got %d", authed.StatusCode)
	}
}
