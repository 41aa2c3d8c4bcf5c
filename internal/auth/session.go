// Package auth owns credential acquisition, validation, and invalidation
// for the Spotify authorization-code flow with PKCE.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"genreroulette/internal/core"
)

const (
	// ProbeURL is the lightweight endpoint used to validate a credential.
	ProbeURL = "https://api.spotify.com/v1/me"

	probeTimeout = 10 * time.Second
	stateBytes   = 16
)

// Endpoints are the identity-provider URLs. Overridable for tests.
type Endpoints struct {
	AuthURL  string
	TokenURL string
	ProbeURL string
}

// DefaultEndpoints returns the Spotify accounts and API endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthURL:  spotifyauth.AuthURL,
		TokenURL: spotifyauth.TokenURL,
		ProbeURL: ProbeURL,
	}
}

// Session produces a usable bearer credential and lets the caller discard
// it. The credential and the transient PKCE verifier live in the store; the
// session never retries a failed exchange on its own.
type Session struct {
	config     *core.SpotifyConfig
	store      core.CredentialStore
	endpoints  Endpoints
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.Mutex
	token string
}

// NewSession creates a session over the given credential store.
func NewSession(config *core.SpotifyConfig, store core.CredentialStore, logger *zap.Logger) *Session {
	return &Session{
		config:     config,
		store:      store,
		endpoints:  DefaultEndpoints(),
		httpClient: &http.Client{Timeout: probeTimeout},
		logger:     logger,
	}
}

// Begin starts a login: it generates a fresh PKCE verifier, persists it for
// the later exchange, and returns the authorization URL to navigate to.
// Missing client configuration fails fast without persisting anything.
func (s *Session) Begin() (string, error) {
	if s.config.ClientID == "" {
		return "", fmt.Errorf("%w: client id", core.ErrConfigMissing)
	}
	if s.config.RedirectURL == "" {
		return "", fmt.Errorf("%w: redirect url", core.ErrConfigMissing)
	}
	if len(s.config.Scopes) == 0 {
		return "", fmt.Errorf("%w: scopes", core.ErrConfigMissing)
	}

	verifier := oauth2.GenerateVerifier()
	if err := s.store.SetVerifier(verifier); err != nil {
		return "", fmt.Errorf("failed to persist verifier: %w", err)
	}

	authURL := s.oauthConfig().AuthCodeURL(randomState(), oauth2.S256ChallengeOption(verifier))
	s.logger.Info("Login started, redirecting to authorization endpoint")
	return authURL, nil
}

// Acquire resolves a credential: the cached one if present, otherwise an
// authorization code carried in the callback query is exchanged using the
// stored verifier. The verifier is discarded after the exchange, success or
// failure. With neither a cached credential nor a code, ErrAuthRequired is
// returned and the caller must present a login affordance.
func (s *Session) Acquire(ctx context.Context, query url.Values) (string, error) {
	if token, err := s.store.Token(); err == nil && token != "" {
		s.setToken(token)
		return token, nil
	}

	code := query.Get("code")
	if code == "" {
		return "", core.ErrAuthRequired
	}

	verifier, err := s.store.Verifier()
	if err != nil || verifier == "" {
		_ = s.store.ClearVerifier()
		return "", fmt.Errorf("%w: verifier not found", core.ErrTokenExchange)
	}

	token, exchangeErr := s.oauthConfig().Exchange(ctx, code, oauth2.VerifierOption(verifier))

	// One-shot verifier: discarded whether the exchange worked or not.
	if err := s.store.ClearVerifier(); err != nil {
		s.logger.Warn("Failed to clear verifier", zap.Error(err))
	}

	if exchangeErr != nil {
		s.logger.Warn("Token exchange failed", zap.Error(exchangeErr))
		return "", fmt.Errorf("%w: %v", core.ErrTokenExchange, exchangeErr)
	}

	if err := s.store.SetToken(token.AccessToken); err != nil {
		s.logger.Warn("Failed to persist token", zap.Error(err))
	}
	s.setToken(token.AccessToken)

	s.logger.Info("Token exchange completed")
	return token.AccessToken, nil
}

// Validate probes the API with the current credential. A 401-class response
// invalidates and clears the cached credential; any other non-success
// response is treated as unknown without destroying the credential.
func (s *Session) Validate(ctx context.Context) bool {
	token := s.AccessToken()
	if token == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoints.ProbeURL, http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("Credential probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	case resp.StatusCode == http.StatusUnauthorized:
		s.logger.Info("Credential rejected by probe, clearing")
		s.Revoke()
		return false
	default:
		s.logger.Debug("Credential probe inconclusive", zap.Int("status", resp.StatusCode))
		return false
	}
}

// Revoke clears the cached credential and any in-flight verifier state.
// Idempotent.
func (s *Session) Revoke() {
	if err := s.store.ClearToken(); err != nil && !errors.Is(err, core.ErrCredentialNotFound) {
		s.logger.Warn("Failed to clear token", zap.Error(err))
	}
	if err := s.store.ClearVerifier(); err != nil && !errors.Is(err, core.ErrCredentialNotFound) {
		s.logger.Warn("Failed to clear verifier", zap.Error(err))
	}
	s.setToken("")
}

// AccessToken returns the in-memory credential, or empty when logged out.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Token implements oauth2.TokenSource so the playback gateway can attach
// the current credential to every request.
func (s *Session) Token() (*oauth2.Token, error) {
	token := s.AccessToken()
	if token == "" {
		return nil, core.ErrAuthRequired
	}
	return &oauth2.Token{AccessToken: token}, nil
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Session) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    s.config.ClientID,
		RedirectURL: s.config.RedirectURL,
		Scopes:      s.config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.endpoints.AuthURL,
			TokenURL: s.endpoints.TokenURL,
		},
	}
}

func randomState() string {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "genreroulette-auth-state"
	}
	return hex.EncodeToString(buf)
}
