// Package credential provides secure key-value persistence for secrets,
// backed by the operating system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mailloom"

// Logical key names for the secrets mailloom stores.
const (
	// KeyClientSecret holds the OAuth client secret (gmail provider).
	KeyClientSecret = "oauth-client-secret"

	// KeyIMAPPassword holds the account password (imap provider).
	KeyIMAPPassword = "imap-password"
)

// ErrNotFound is returned when no value is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store is the secure persistence capability: key-value save/load/delete
// for secret material. Implementations must treat values as opaque.
type Store interface {
	Load(key string) (string, error)
	Save(key, value string) error
	Delete(key string) error
}

// KeyringStore implements Store on the system keyring. Values are
// device-local and available only after the keyring backend unlocks.
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyring opens the system keyring for mailloom's service name.
func OpenKeyring() (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailloom/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailloom-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

// Load retrieves a credential value by key.
func (s *KeyringStore) Load(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Save stores a credential value by key.
func (s *KeyringStore) Save(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an
// error.
func (s *KeyringStore) Delete(key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

var _ Store = (*KeyringStore)(nil)
