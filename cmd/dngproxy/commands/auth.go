package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/dng-proxy/internal/app"
	"github.com/florianilch/dng-proxy/internal/dng"
	"github.com/florianilch/dng-proxy/internal/secretstore"
)

// authCommand returns the 'auth' subcommand for managing the DNG API key.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the DNG API key",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Store the DNG API key in the configured storage",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-verify",
						Usage: "store the key without checking it against the DNG server",
					},
				},
				Action: authLoginAction,
			},
			{
				Name:   "logout",
				Usage:  "Remove the DNG API key from the configured storage",
				Action: authLogoutAction,
			},
		},
	}
}

// keySession is the resolved configuration and writable key store shared by
// the auth subcommands.
type keySession struct {
	cfg   app.Config
	store secretstore.Store
	out   io.Writer
}

func openKeySession(cmd *cli.Command) (*keySession, error) {
	cfg, err := loadConfig(cmd.String("config"), flagOverrides(cmd), os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Auth.Storage == app.APIKeyStorageEnv {
		return nil, fmt.Errorf("the env API key storage is read-only, set %s or choose keyring or file storage", app.APIKeyEnvVar)
	}

	store, err := cfg.Auth.NewAPIKeyStore(cfg.DNG.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s API key storage: %w", cfg.Auth.Storage, err)
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	return &keySession{cfg: cfg, store: store, out: out}, nil
}

func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	s, err := openKeySession(cmd)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(s.out, "DNG server: %s\nDNG user:   %s\n", valueOrUnset(s.cfg.DNG.BaseURL), s.cfg.DNG.Username)

	apiKey, err := promptSecret(ctx, s.out, os.Stdin, "API key: ")
	if err != nil {
		return err
	}
	if apiKey == "" {
		return errors.New("no API key entered")
	}

	if !cmd.Bool("no-verify") {
		if err := verifyAPIKey(ctx, s.out, s.cfg, apiKey); err != nil {
			return err
		}
	}

	if err := s.store.Write(ctx, apiKey); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	_, _ = fmt.Fprintf(s.out, "API key stored in %s storage\n", s.cfg.Auth.Storage)
	return nil
}

func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	s, err := openKeySession(cmd)
	if err != nil {
		return err
	}

	// An empty secret clears the entry in every writable store.
	if err := s.store.Write(ctx, ""); err != nil {
		return fmt.Errorf("failed to remove API key: %w", err)
	}

	_, _ = fmt.Fprintf(s.out, "API key removed from %s storage\n", s.cfg.Auth.Storage)
	return nil
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

// verifyAPIKey lists project areas with the new key. Only an authentication
// failure rejects the key; other upstream problems are reported and ignored.
func verifyAPIKey(ctx context.Context, out io.Writer, cfg app.Config, apiKey string) error {
	client, err := dng.NewClient(dng.Credentials{
		BaseURL:  cfg.DNG.BaseURL,
		Username: cfg.DNG.Username,
		APIKey:   apiKey,
	}, dng.WithTimeout(cfg.DNG.Timeout))
	if err != nil {
		_, _ = fmt.Fprintf(out, "Skipping verification: %v\n", err)
		return nil
	}

	_, err = client.ListProjectAreas(ctx)
	switch {
	case err == nil:
		_, _ = fmt.Fprintln(out, "API key verified against DNG server")
		return nil
	case errors.Is(err, dng.ErrAuthentication):
		return fmt.Errorf("DNG server rejected the API key: %w", err)
	default:
		_, _ = fmt.Fprintf(out, "Could not verify API key: %v\n", err)
		return nil
	}
}

// promptSecret reads one secret from in. Terminals get a hidden prompt; any
// other input (a pipe or a file) is read up to the first newline.
// term.ReadPassword ignores ctx, so the read runs in its own goroutine.
func promptSecret(ctx context.Context, out io.Writer, in *os.File, prompt string) (string, error) {
	read := func() (string, error) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return line, err
	}
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		_, _ = fmt.Fprint(out, prompt)
		defer func() { _, _ = fmt.Fprintln(out) }()

		read = func() (string, error) {
			b, err := term.ReadPassword(fd)
			return string(b), err
		}
	}

	type result struct {
		value string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := read()
		done <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("failed to read API key: %w", res.err)
		}
		return strings.TrimSpace(res.value), nil
	}
}
