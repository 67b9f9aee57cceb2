package commands

import (
	"fmt"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/dng-proxy/internal/app"
)

// envKeys maps supported environment variables to configuration keys.
var envKeys = map[string]string{
	"DNG_BASE_URL":                "dng.base_url",
	"DNG_USERNAME":                "dng.username",
	"DNG_API_KEY":                 "dng.api_key",
	"DNG_TIMEOUT":                 "dng.timeout",
	"DNG_PROXY_LISTEN":            "server.listen",
	"DNG_PROXY_MAX_REQUEST_BYTES": "server.max_request_bytes",
	"DNG_PROXY_API_KEY_STORAGE":   "auth.storage",
	"DNG_PROXY_API_KEY_FILE":      "auth.file",
}

// loadConfig layers defaults, the optional TOML file, the environment and
// flag overrides, in that order, and validates the result.
func loadConfig(path string, overrides map[string]any, environ func() []string) (app.Config, error) {
	var cfg app.Config
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(app.Defaults(), "."), nil); err != nil {
		return cfg, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: "DNG_",
		TransformFunc: func(key, value string) (string, any) {
			mapped, ok := envKeys[key]
			if !ok || value == "" {
				return "", nil
			}
			return mapped, value
		},
		EnvironFunc: environ,
	}), nil)
	if err != nil {
		return cfg, fmt.Errorf("failed to load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return cfg, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// flagOverrides collects explicitly set flags that map to configuration keys.
func flagOverrides(cmd *cli.Command) map[string]any {
	overrides := map[string]any{}
	if cmd.IsSet("listen") {
		overrides["server.listen"] = cmd.String("listen")
	}
	if cmd.IsSet("dng-timeout") {
		overrides["dng.timeout"] = cmd.Duration("dng-timeout").String()
	}
	if cmd.IsSet("api-key-storage") {
		overrides["auth.storage"] = cmd.String("api-key-storage")
	}
	return overrides
}
