package config

import "strings"

// Secret store coordinates of the session credential.
const (
	SecretService  = "profedit"
	SessionAccount = "session_token"
)

// SecretStore reads and writes credentials in the platform secret store.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

type keychain struct{}

// NewKeychain returns the platform secret store: macOS Keychain on darwin,
// a 0600 JSON file elsewhere.
func NewKeychain() SecretStore {
	return keychain{}
}

func (keychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

func (keychain) Delete(service, account string) error {
	return keychainDelete(service, account)
}
