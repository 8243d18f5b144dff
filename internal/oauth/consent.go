package oauth

import (
	"fmt"
	"html"
)

// renderConsentPage renders the user-facing consent form. Every value
// substituted into the template is HTML-escaped: clientName and clientID
// come from Dynamic Client Registration (attacker-controlled), and
// redirectURI/codeChallenge/state arrive on the authorize request itself.
func renderConsentPage(clientName, clientID, redirectURI, codeChallenge, codeChallengeMethod, state string) string {
	displayName := clientName
	if displayName == "" {
		displayName = clientID
	}
	return fmt.Sprintf(consentTemplate,
		html.EscapeString(displayName),
		html.EscapeString(clientID),
		html.EscapeString(redirectURI),
		html.EscapeString(codeChallenge),
		html.EscapeString(codeChallengeMethod),
		html.EscapeString(state),
	)
}

const consentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Authorize Application</title>
<style>
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: #101014;
    color: #e4e4e7;
    display: flex;
    justify-content: center;
    align-items: center;
    min-height: 100vh;
    padding: 20px;
  }
  .card {
    background: #18181d;
    border: 1px solid #2a2a32;
    border-radius: 16px;
    padding: 40px;
    max-width: 420px;
    width: 100%%;
    box-shadow: 0 8px 32px rgba(0,0,0,0.4);
  }
  .logo { text-align: center; margin-bottom: 24px; }
  .logo h1 { font-size: 22px; color: #7ab8ff; font-weight: 700; }
  .logo p { color: #888; font-size: 13px; margin-top: 4px; }
  .prompt {
    text-align: center;
    margin-bottom: 28px;
    padding: 16px;
    background: #141418;
    border-radius: 10px;
    border: 1px solid #2a2a32;
  }
  .prompt .client-name { font-weight: 600; color: #9fd0ff; font-size: 16px; }
  .prompt .desc { color: #999; font-size: 13px; margin-top: 6px; }
  .actions { display: flex; gap: 12px; margin-top: 8px; }
  button {
    flex: 1;
    padding: 12px;
    border: none;
    border-radius: 8px;
    font-size: 14px;
    font-weight: 600;
    cursor: pointer;
    transition: opacity 0.2s;
  }
  button:hover { opacity: 0.85; }
  .btn-authorize { background: #3a7fd6; color: #fff; }
  .btn-deny { background: #2e2e36; color: #ccc; }
  .note { text-align: center; font-size: 11px; color: #666; margin-top: 20px; }
</style>
</head>
<body>
<div class="card">
  <div class="logo">
    <h1>Tool Runtime Bridge</h1>
    <p>Authorization Request</p>
  </div>
  <div class="prompt">
    <div class="client-name">%s</div>
    <div class="desc">wants to relay MCP requests to your connected tool runtime</div>
  </div>
  <form method="POST" action="/oauth/authorize">
    <input type="hidden" name="client_id" value="%s">
    <input type="hidden" name="redirect_uri" value="%s">
    <input type="hidden" name="code_challenge" value="%s">
    <input type="hidden" name="code_challenge_method" value="%s">
    <input type="hidden" name="state" value="%s">
    <div class="actions">
      <button type="submit" name="action" value="deny" class="btn-deny">Deny</button>
      <button type="submit" name="action" value="authorize" class="btn-authorize">Authorize</button>
    </div>
  </form>
  <p class="note">This grants the application access to the session you are currently bridging.</p>
</div>
</body>
</html>`
