package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/dng-proxy/internal/dng"
	"github.com/florianilch/dng-proxy/internal/proxy"
	"github.com/florianilch/dng-proxy/internal/secretstore"
)

// KeyringService is the keyring service under which API keys are stored.
const KeyringService = "dng-proxy"

// APIKeyEnvVar is read by the env API key storage.
const APIKeyEnvVar = "DNG_API_KEY"

// APIKeyStorage selects where the DNG API key is kept.
type APIKeyStorage string

const (
	APIKeyStorageEnv     APIKeyStorage = "env"
	APIKeyStorageKeyring APIKeyStorage = "keyring"
	APIKeyStorageFile    APIKeyStorage = "file"
)

// Config is the process configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	DNG    DNGConfig    `koanf:"dng"`
	Auth   AuthConfig   `koanf:"auth"`
}

type ServerConfig struct {
	Listen          string `koanf:"listen" validate:"required,hostname_port"`
	MaxRequestBytes int64  `koanf:"max_request_bytes" validate:"gt=0"`
}

// DNGConfig holds the upstream connection settings. Credentials may be
// incomplete; requests then fail with a configuration error.
type DNGConfig struct {
	BaseURL  string        `koanf:"base_url"`
	Username string        `koanf:"username"`
	APIKey   string        `koanf:"api_key"`
	Timeout  time.Duration `koanf:"timeout" validate:"gte=0"`
}

type AuthConfig struct {
	Storage APIKeyStorage `koanf:"storage" validate:"oneof=env keyring file"`
	File    string        `koanf:"file" validate:"required_if=Storage file"`
}

// Defaults returns the default configuration as a flat key map.
func Defaults() map[string]any {
	return map[string]any{
		"server.listen":            "127.0.0.1:5000",
		"server.max_request_bytes": proxy.DefaultMaxRequestBytes,
		"dng.timeout":              dng.DefaultTimeout.String(),
		"auth.storage":             string(APIKeyStorageEnv),
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// NewAPIKeyStore creates the store selected by Storage. The keyring entry is
// keyed by the DNG username.
func (a AuthConfig) NewAPIKeyStore(username string) (secretstore.Store, error) {
	switch a.Storage {
	case APIKeyStorageEnv:
		return secretstore.NewEnvStore(APIKeyEnvVar, nil), nil
	case APIKeyStorageKeyring:
		if username == "" {
			return nil, fmt.Errorf("keyring storage requires dng.username (DNG_USERNAME)")
		}
		return secretstore.NewKeyringStore(KeyringService, username), nil
	case APIKeyStorageFile:
		if a.File == "" {
			return nil, fmt.Errorf("file storage requires auth.file")
		}
		return secretstore.NewFileStore(a.File), nil
	default:
		return nil, fmt.Errorf("unknown API key storage %q", a.Storage)
	}
}

// Credentials resolves the DNG credentials. An API key set directly in the
// configuration wins over the configured storage. Missing values are logged,
// never fatal.
func (c *Config) Credentials(ctx context.Context) dng.Credentials {
	creds := dng.Credentials{
		BaseURL:  c.DNG.BaseURL,
		Username: c.DNG.Username,
		APIKey:   c.DNG.APIKey,
	}

	if creds.APIKey == "" && c.Auth.Storage != APIKeyStorageEnv {
		key, err := c.readAPIKey(ctx)
		if err != nil {
			slog.WarnContext(ctx, "could not read DNG API key", "storage", string(c.Auth.Storage), "error", err)
		}
		creds.APIKey = key
	}

	if err := creds.Validate(); err != nil {
		slog.WarnContext(ctx, "DNG credentials incomplete, DNG routes will answer with a configuration error",
			"error", err)
	}

	return creds
}

func (c *Config) readAPIKey(ctx context.Context) (string, error) {
	store, err := c.Auth.NewAPIKeyStore(c.DNG.Username)
	if err != nil {
		return "", err
	}
	return store.Read(ctx)
}
