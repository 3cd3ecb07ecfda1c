// Package credential stores the Gmail authorized-user document in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const (
	serviceName = "mailtriage"

	// GmailKey is the keyring item holding the authorized-user JSON.
	GmailKey = "gmail-credentials"

	envFilePassword = "MAILTRIAGE_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential
)

// ErrNotFound means the keyring has no item for the key.
var ErrNotFound = errors.New("credential not found")

// openFunc is replaced in tests.
var openFunc = keyring.Open

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := openFunc(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir(),
		FilePasswordFunc:         filePassword,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func fileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".mailtriage", "credentials")
	}
	return filepath.Join(home, ".config", "mailtriage", "credentials")
}

func filePassword(string) (string, error) {
	if pw := os.Getenv(envFilePassword); pw != "" {
		return pw, nil
	}
	return "mailtriage-file-key", nil
}

// Get retrieves a credential value by key.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func Set(key, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// GmailCredentials returns the stored authorized-user document.
func GmailCredentials() (string, error) {
	return Get(GmailKey)
}
