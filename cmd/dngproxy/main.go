// Command dngproxy serves a simplified REST API over IBM DOORS Next Generation.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/florianilch/dng-proxy/cmd/dngproxy/commands"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// exitInterrupted follows the shell convention of 128 + SIGINT.
const exitInterrupted = 130

func main() {
	// SIGINT and SIGTERM cancel ctx; `start` then shuts down gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, os.Args, version, commit)
	stop()

	if code := exitCode(err); code != 0 {
		if code != exitInterrupted {
			slog.Error("dngproxy failed", slog.Any("error", err))
		}
		os.Exit(code)
	}
}

// exitCode maps the command result to a process exit status. Cancellation,
// e.g. Ctrl+C at the API key prompt, is not reported as a failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}
