package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/dng-proxy/internal/proxy"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg        Config
	configured bool
	proxy      *proxy.Proxy
	health     *Health
}

// New creates a new App instance. Incomplete DNG credentials are logged but
// do not prevent the server from starting.
func New(ctx context.Context, cfg Config, opts ...proxy.Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	health := NewHealth()

	opts = append([]proxy.Option{
		proxy.WithUpstreamTimeout(cfg.DNG.Timeout),
		proxy.WithMaxRequestBytes(cfg.Server.MaxRequestBytes),
	}, opts...)

	creds := cfg.Credentials(ctx)
	proxyServer, err := proxy.New(creds, health, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:        cfg,
		configured: creds.Validate() == nil,
		proxy:      proxyServer,
		health:     health,
	}, nil
}

// shutdownTimeout bounds the graceful stop of all services.
const shutdownTimeout = 5 * time.Second

// stopFunc releases a started service.
type stopFunc func(context.Context) error

// Start serves until ctx is cancelled or a service fails at runtime, then
// stops the started services in reverse order. Readiness is reported only
// between a successful startup and the beginning of shutdown.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	logger := slog.Default().With(slog.String("component", "app"))
	logger.InfoContext(gCtx, "starting proxy server",
		slog.String("listen", a.cfg.Server.Listen),
		slog.Bool("dng_configured", a.configured),
	)

	serveErrs, err := a.proxy.Start(gCtx, a.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	stops := []stopFunc{a.proxy.Shutdown}

	a.health.SetReady(true)

	// The first runtime error cancels gCtx and with it every monitor.
	g.Go(func() error {
		select {
		case err := <-serveErrs:
			if err != nil {
				logger.ErrorContext(gCtx, "proxy runtime error", slog.Any("error", err))
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()
	a.health.SetReady(false)

	logger.InfoContext(gCtx, "shutting down services")
	stopErr := stopAll(logger, stops)

	if runtimeErr != nil || stopErr != nil {
		if runtimeErr != nil {
			runtimeErr = fmt.Errorf("runtime: %w", runtimeErr)
		}
		return errors.Join(runtimeErr, stopErr)
	}

	logger.Info("application stopped")
	return nil
}

// stopAll calls stops in reverse order under one shared deadline.
func stopAll(logger *slog.Logger, stops []stopFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i](ctx); err != nil {
			logger.ErrorContext(ctx, "service shutdown failed", slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler exposes the proxy's HTTP handler.
func (a *App) Handler() http.Handler {
	return a.proxy
}

// Health returns the readiness state reported by the health endpoints.
func (a *App) Health() *Health {
	return a.health
}
