// Package auth maintains the account's OAuth token material: secure
// persistence, liveness checks, and single-flight refresh with backoff.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mailloom/mailloom/internal/credential"
)

// tokenKey is the fixed logical name under which token material is held
// in the credential store.
const tokenKey = "oauth-token"

// expiringSoonWindow is how far ahead of expiry a token is treated as
// needing refresh.
const expiringSoonWindow = 5 * time.Minute

// TokenRecord is the current token material. Mutated only by a
// successful refresh or an explicit sign-out.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
}

// Expired reports whether the token has passed its expiry.
func (r TokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ExpiringSoon reports whether the token expires within the refresh
// window.
func (r TokenRecord) ExpiringSoon(now time.Time) bool {
	return !now.Add(expiringSoonWindow).Before(r.ExpiresAt)
}

// TokenStore holds the current token record, persisting it through an
// injected credential store. Reads after the first are served from an
// in-memory copy; Save and Clear replace it atomically.
type TokenStore struct {
	creds credential.Store

	mu     sync.RWMutex
	cached *TokenRecord
	loaded bool
}

// NewTokenStore creates a token store over the given credential store.
func NewTokenStore(creds credential.Store) *TokenStore {
	return &TokenStore{creds: creds}
}

// Current returns the stored token record, or nil when none exists.
func (s *TokenStore) Current() (*TokenRecord, error) {
	s.mu.RLock()
	if s.loaded {
		rec := s.cached
		s.mu.RUnlock()
		return rec, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cached, nil
	}

	raw, err := s.creds.Load(tokenKey)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			s.loaded = true
			return nil, nil
		}
		return nil, fmt.Errorf("loading token record: %w", err)
	}

	var rec TokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding token record: %w", err)
	}

	s.cached = &rec
	s.loaded = true
	return s.cached, nil
}

// Save persists a new token record, replacing any existing one.
func (s *TokenStore) Save(rec TokenRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.creds.Save(tokenKey, string(raw)); err != nil {
		return fmt.Errorf("saving token record: %w", err)
	}

	s.cached = &rec
	s.loaded = true
	return nil
}

// Clear removes the token record (sign-out).
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.creds.Delete(tokenKey); err != nil {
		return fmt.Errorf("clearing token record: %w", err)
	}

	s.cached = nil
	s.loaded = true
	return nil
}
