package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	secretService   = "propmatch"
	apiTokenAccount = "api_token"
	apiTokenEnv     = "PROPMATCH_API_TOKEN"
)

// Keychain reads and writes secrets outside the config file.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// fileKeychain keeps secrets in a 0600 JSON file keyed by service, then
// account.
type fileKeychain struct {
	path string
}

// NewKeychain returns the secret store at $XDG_DATA_HOME/propmatch/secrets.json.
func NewKeychain() Keychain {
	return fileKeychain{path: secretsFilePath()}
}

func (k fileKeychain) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (k fileKeychain) Get(service, account string) (string, error) {
	secrets, err := k.read()
	if err != nil {
		return "", fmt.Errorf("secrets not available: %w", err)
	}
	svc, ok := secrets[service]
	if !ok {
		return "", fmt.Errorf("service %q not found", service)
	}
	val, ok := svc[account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return val, nil
}

func (k fileKeychain) Set(service, account, value string) error {
	secrets, err := k.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, out, 0o600)
}

// GetAPIToken returns the bearer token for the HTTP API: the
// PROPMATCH_API_TOKEN env var, else the stored token, else a new random
// token that is stored for later runs.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv(apiTokenEnv); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(secretService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
