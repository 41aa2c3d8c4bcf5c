package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"go.uber.org/zap"

	"genreroulette/internal/core"
)

// memoryStore is an in-memory CredentialStore for tests.
type memoryStore struct {
	token    string
	verifier string
}

func (m *memoryStore) Token() (string, error) {
	if m.token == "" {
		return "", core.ErrCredentialNotFound
	}
	return m.token, nil
}

func (m *memoryStore) SetToken(token string) error {
	m.token = token
	return nil
}

func (m *memoryStore) ClearToken() error {
	m.token = ""
	return nil
}

func (m *memoryStore) Verifier() (string, error) {
	if m.verifier == "" {
		return "", core.ErrCredentialNotFound
	}
	return m.verifier, nil
}

func (m *memoryStore) SetVerifier(verifier string) error {
	m.verifier = verifier
	return nil
}

func (m *memoryStore) ClearVerifier() error {
	m.verifier = ""
	return nil
}

func testConfig() *core.SpotifyConfig {
	return &core.SpotifyConfig{
		ClientID:    "test-client",
		RedirectURL: "http://localhost:8080/callback",
		Scopes:      []string{"user-modify-playback-state"},
	}
}

func testSession(config *core.SpotifyConfig, store core.CredentialStore) *Session {
	return NewSession(config, store, zap.NewNop())
}

func TestBeginReturnsAuthorizationURL(t *testing.T) {
	store := &memoryStore{}
	session := testSession(testConfig(), store)

	authURL, err := session.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("Begin returned unparseable URL: %v", err)
	}
	query := parsed.Query()
	if query.Get("client_id") != "test-client" {
		t.Errorf("client_id = %q, want test-client", query.Get("client_id"))
	}
	if query.Get("code_challenge") == "" {
		t.Error("expected a PKCE code challenge")
	}
	if query.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", query.Get("code_challenge_method"))
	}
	if query.Get("state") == "" {
		t.Error("expected a state parameter")
	}
	if store.verifier == "" {
		t.Error("verifier must be persisted for the later exchange")
	}
}

func TestBeginGeneratesFreshVerifier(t *testing.T) {
	store := &memoryStore{}
	session := testSession(testConfig(), store)

	if _, err := session.Begin(); err != nil {
		t.Fatalf("first Begin failed: %v", err)
	}
	first := store.verifier

	if _, err := session.Begin(); err != nil {
		t.Fatalf("second Begin failed: %v", err)
	}
	if store.verifier == first {
		t.Error("each login must draw a fresh verifier")
	}
}

func TestBeginMissingConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.SpotifyConfig)
	}{
		{"missing client id", func(c *core.SpotifyConfig) { c.ClientID = "" }},
		{"missing redirect url", func(c *core.SpotifyConfig) { c.RedirectURL = "" }},
		{"missing scopes", func(c *core.SpotifyConfig) { c.Scopes = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			tt.mutate(config)
			store := &memoryStore{}
			session := testSession(config, store)

			_, err := session.Begin()
			if !errors.Is(err, core.ErrConfigMissing) {
				t.Fatalf("Begin error = %v, want ErrConfigMissing", err)
			}
			if store.verifier != "" {
				t.Error("no verifier may be persisted when login fails fast")
			}
		})
	}
}

func TestAcquireExchangesCode(t *testing.T) {
	var gotVerifier string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request: %v", err)
		}
		gotVerifier = r.FormValue("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	store := &memoryStore{verifier: "stored-verifier"}
	session := testSession(testConfig(), store)
	session.endpoints.TokenURL = tokenServer.URL

	token, err := session.Acquire(context.Background(), url.Values{"code": {"auth-code"}})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("token = %q, want fresh-token", token)
	}
	if gotVerifier != "stored-verifier" {
		t.Errorf("exchange sent verifier %q, want stored-verifier", gotVerifier)
	}
	if store.token != "fresh-token" {
		t.Error("exchanged token must be persisted")
	}
	if store.verifier != "" {
		t.Error("verifier must be discarded after the exchange")
	}
	if session.AccessToken() != "fresh-token" {
		t.Error("session must hold the exchanged token")
	}
}

func TestAcquireReturnsCachedToken(t *testing.T) {
	store := &memoryStore{token: "cached-token"}
	session := testSession(testConfig(), store)

	token, err := session.Acquire(context.Background(), nil)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if token != "cached-token" {
		t.Errorf("token = %q, want cached-token", token)
	}
}

func TestAcquireWithoutCodeRequiresAuth(t *testing.T) {
	session := testSession(testConfig(), &memoryStore{})

	_, err := session.Acquire(context.Background(), url.Values{})
	if !errors.Is(err, core.ErrAuthRequired) {
		t.Fatalf("Acquire error = %v, want ErrAuthRequired", err)
	}
}

func TestAcquireWithoutVerifierFails(t *testing.T) {
	session := testSession(testConfig(), &memoryStore{})

	_, err := session.Acquire(context.Background(), url.Values{"code": {"auth-code"}})
	if !errors.Is(err, core.ErrTokenExchange) {
		t.Fatalf("Acquire error = %v, want ErrTokenExchange", err)
	}
}

func TestAcquireExchangeFailureDiscardsVerifier(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer tokenServer.Close()

	store := &memoryStore{verifier: "stored-verifier"}
	session := testSession(testConfig(), store)
	session.endpoints.TokenURL = tokenServer.URL

	_, err := session.Acquire(context.Background(), url.Values{"code": {"bad-code"}})
	if !errors.Is(err, core.ErrTokenExchange) {
		t.Fatalf("Acquire error = %v, want ErrTokenExchange", err)
	}
	if store.verifier != "" {
		t.Error("verifier must be discarded even when the exchange fails")
	}
	if session.AccessToken() != "" {
		t.Error("no token may be cached after a failed exchange")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      bool
		tokenKept bool
	}{
		{"valid credential", http.StatusOK, true, true},
		{"rejected credential is cleared", http.StatusUnauthorized, false, false},
		{"transient failure keeps credential", http.StatusServiceUnavailable, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			probeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}))
			defer probeServer.Close()

			store := &memoryStore{token: "probe-token"}
			session := testSession(testConfig(), store)
			session.endpoints.ProbeURL = probeServer.URL
			session.setToken("probe-token")

			if got := session.Validate(context.Background()); got != tt.want {
				t.Errorf("Validate = %v, want %v", got, tt.want)
			}
			if gotAuth != "Bearer probe-token" {
				t.Errorf("Authorization = %q, want Bearer probe-token", gotAuth)
			}
			if kept := store.token != ""; kept != tt.tokenKept {
				t.Errorf("token kept = %v, want %v", kept, tt.tokenKept)
			}
		})
	}
}

func TestValidateWithoutToken(t *testing.T) {
	session := testSession(testConfig(), &memoryStore{})
	if session.Validate(context.Background()) {
		t.Error("Validate must be false when logged out")
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store := &memoryStore{token: "some-token", verifier: "some-verifier"}
	session := testSession(testConfig(), store)
	session.setToken("some-token")

	session.Revoke()
	session.Revoke()

	if store.token != "" || store.verifier != "" {
		t.Error("Revoke must clear the stored credential and verifier")
	}
	if session.AccessToken() != "" {
		t.Error("Revoke must clear the in-memory token")
	}
}

func TestTokenSource(t *testing.T) {
	session := testSession(testConfig(), &memoryStore{})

	if _, err := session.Token(); !errors.Is(err, core.ErrAuthRequired) {
		t.Fatalf("Token error = %v, want ErrAuthRequired", err)
	}

	session.setToken("source-token")
	token, err := session.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token.AccessToken != "source-token" {
		t.Errorf("AccessToken = %q, want source-token", token.AccessToken)
	}
}
