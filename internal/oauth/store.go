// Package oauth implements the Auth Surface: an in-memory OAuth 2.0
// authorization-code + PKCE flow, Dynamic Client Registration (RFC 7591),
// and Authorization Server Metadata (RFC 8414). The access token this flow
// issues is, by design, equal to the session key it was minted for — there
// is no separate token to manage or revoke, which keeps admission control
// as simple as comparing a bearer header to a session's key.
package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds registered clients and pending authorization codes in memory.
// Nothing here survives a restart, matching the no-persistence non-goal.
type Store struct {
	mu      sync.RWMutex
	clients map[string]*Client   // client_id → Client
	codes   map[string]*AuthCode // code → AuthCode
}

// Client represents a registered OAuth client.
type Client struct {
	ID           string   `json:"client_id"`
	Secret       string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	Name         string   `json:"client_name"`
	CreatedAt    time.Time
}

// AuthCode represents a pending, single-use authorization code bound to the
// session it will admit once exchanged.
type AuthCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	SessionKey          string
	ExpiresAt           time.Time
}

const codeExpiry = 10 * time.Minute

// NewStore creates an OAuth store and starts its background code-expiry
// sweep.
func NewStore() *Store {
	s := &Store{
		clients: make(map[string]*Client),
		codes:   make(map[string]*AuthCode),
	}
	go s.cleanupLoop()
	return s
}

// RegisterClient creates a new OAuth client with generated credentials. The
// client id is a UUID (RFC 7591 leaves the id's shape unspecified; a UUID
// is globally unique without a registry round-trip), while the secret uses
// crypto/rand directly since it must resist guessing, not just collision.
func (s *Store) RegisterClient(name string, redirectURIs []string) *Client {
	return s.addClient(uuid.NewString(), generateRandomString(32), name, redirectURIs)
}

// RegisterStaticClient installs a client with an operator-chosen id and
// secret, used to preload trusted clients from a config file instead of
// Dynamic Client Registration. An existing client with the same id is
// overwritten, so re-loading the same config file is idempotent.
func (s *Store) RegisterStaticClient(clientID, clientSecret, name string, redirectURIs []string) *Client {
	return s.addClient(clientID, clientSecret, name, redirectURIs)
}

func (s *Store) addClient(id, secret, name string, redirectURIs []string) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := &Client{
		ID:           id,
		Secret:       secret,
		RedirectURIs: redirectURIs,
		Name:         name,
		CreatedAt:    time.Now(),
	}
	s.clients[client.ID] = client
	return client
}

// GetClient returns a client by ID, or nil if not found.
func (s *Store) GetClient(clientID string) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[clientID]
}

// ValidateClientSecret checks that the client exists and the secret matches.
func (s *Store) ValidateClientSecret(clientID, clientSecret string) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.clients[clientID]
	if c == nil || c.Secret != clientSecret {
		return nil
	}
	return c
}

// CreateAuthCode mints a single-use code binding clientID's eventual token
// exchange to sessionKey.
func (s *Store) CreateAuthCode(clientID, redirectURI, codeChallenge, codeChallengeMethod, sessionKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := generateRandomString(32)
	s.codes[code] = &AuthCode{
		Code:                code,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		SessionKey:          sessionKey,
		ExpiresAt:           time.Now().Add(codeExpiry),
	}
	return code
}

// ExchangeCode consumes code and returns the session key it was minted for.
// The returned string is also the bearer this design hands back to the
// client — it is the session key itself, not a freshly generated token.
func (s *Store) ExchangeCode(code, clientID, redirectURI, codeVerifier string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac := s.codes[code]
	if ac == nil {
		return "", fmt.Errorf("invalid authorization code")
	}
	delete(s.codes, code) // single-use

	if time.Now().After(ac.ExpiresAt) {
		return "", fmt.Errorf("authorization code expired")
	}
	if ac.ClientID != clientID {
		return "", fmt.Errorf("client_id mismatch")
	}
	if ac.RedirectURI != redirectURI {
		return "", fmt.Errorf("redirect_uri mismatch")
	}
	if !VerifyPKCE(codeVerifier, ac.CodeChallenge, ac.CodeChallengeMethod) {
		return "", fmt.Errorf("PKCE verification failed")
	}

	return ac.SessionKey, nil
}

// ValidateRedirectURI checks if the given URI is registered for the client.
func (c *Client) ValidateRedirectURI(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for k, ac := range s.codes {
			if now.After(ac.ExpiresAt) {
				delete(s.codes, k)
			}
		}
		s.mu.Unlock()
	}
}

func generateRandomString(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
