// Package secretstore reads and writes the DNG API key in one of several backends.
//
// Writing an empty string clears the stored secret, so callers can log out
// without knowing which backend is configured:
//
//	store := secretstore.NewKeyringStore("dng-proxy", username)
//	if err := store.Write(ctx, ""); err != nil {
//		// handle
//	}
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

var (
	// ErrNotFound is returned by Read when no secret is stored.
	ErrNotFound = errors.New("secret not found")
	// ErrReadOnly is returned by Write on backends that cannot be modified.
	ErrReadOnly = errors.New("secret store is read-only")
)

// Store reads and writes a single secret.
type Store interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, secret string) error
}

// EnvStore reads a secret from an environment variable. It is read-only.
type EnvStore struct {
	name      string
	lookupEnv func(string) (string, bool)
}

// NewEnvStore creates a store for the named variable. A nil lookupEnv uses os.LookupEnv.
func NewEnvStore(name string, lookupEnv func(string) (string, bool)) *EnvStore {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &EnvStore{name: name, lookupEnv: lookupEnv}
}

func (s *EnvStore) Read(context.Context) (string, error) {
	value, ok := s.lookupEnv(s.name)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNotFound, s.name)
	}
	return value, nil
}

func (s *EnvStore) Write(context.Context, string) error {
	return fmt.Errorf("%w: set %s in the environment instead", ErrReadOnly, s.name)
}

// KeyringStore keeps the secret in the operating system keyring.
type KeyringStore struct {
	service string
	account string
}

// NewKeyringStore creates a store for the given keyring service and account.
func NewKeyringStore(service, account string) *KeyringStore {
	return &KeyringStore{service: service, account: account}
}

func (s *KeyringStore) Read(context.Context) (string, error) {
	secret, err := keyring.Get(s.service, s.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: no keyring entry for %s/%s", ErrNotFound, s.service, s.account)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return secret, nil
}

func (s *KeyringStore) Write(_ context.Context, secret string) error {
	if secret == "" {
		if err := keyring.Delete(s.service, s.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear keyring: %w", err)
		}
		return nil
	}
	if err := keyring.Set(s.service, s.account, secret); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// FileStore keeps the secret in a file readable only by the owner.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Read(context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s does not exist", ErrNotFound, s.path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, s.path)
	}
	return secret, nil
}

func (s *FileStore) Write(_ context.Context, secret string) error {
	if secret == "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove secret file: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create secret directory: %w", err)
	}

	// The secret is replaced atomically through a sibling temp file.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".secret-*")
	if err != nil {
		return fmt.Errorf("failed to create secret file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict secret file: %w", err)
	}
	if _, err := tmp.WriteString(secret + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write secret file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write secret file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace secret file: %w", err)
	}
	return nil
}
