// Package store provides the durable credential cache and the bounded
// round history.
package store

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"genreroulette/internal/core"
)

const (
	// keyringService is the service identifier under which all entries live.
	keyringService = "genreroulette"
	// tokenKey is the fixed name of the bearer token entry.
	tokenKey = "spotify-access-token"
	// verifierKey is the fixed name of the transient PKCE verifier entry.
	verifierKey = "spotify-code-verifier"
)

// CredentialStore persists the bearer token and the transient PKCE verifier
// in the system keyring under fixed names.
type CredentialStore struct {
	service string
}

// NewCredentialStore creates a store under the default service name.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{service: keyringService}
}

// Token returns the cached bearer token.
func (s *CredentialStore) Token() (string, error) {
	return s.get(tokenKey)
}

// SetToken persists the bearer token.
func (s *CredentialStore) SetToken(token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	return keyring.Set(s.service, tokenKey, token)
}

// ClearToken removes the bearer token. Missing entries are not an error.
func (s *CredentialStore) ClearToken() error {
	return s.delete(tokenKey)
}

// Verifier returns the pending PKCE verifier.
func (s *CredentialStore) Verifier() (string, error) {
	return s.get(verifierKey)
}

// SetVerifier persists the PKCE verifier for the upcoming exchange.
func (s *CredentialStore) SetVerifier(verifier string) error {
	if verifier == "" {
		return fmt.Errorf("verifier cannot be empty")
	}
	return keyring.Set(s.service, verifierKey, verifier)
}

// ClearVerifier removes the pending verifier. Missing entries are not an error.
func (s *CredentialStore) ClearVerifier() error {
	return s.delete(verifierKey)
}

func (s *CredentialStore) get(key string) (string, error) {
	value, err := keyring.Get(s.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", core.ErrCredentialNotFound
		}
		return "", fmt.Errorf("keyring read failed: %w", err)
	}
	return value, nil
}

func (s *CredentialStore) delete(key string) error {
	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete failed: %w", err)
	}
	return nil
}
