package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/florianilch/dng-proxy/internal/dng"
	"github.com/florianilch/dng-proxy/internal/observability"
	"github.com/florianilch/dng-proxy/internal/observability/middleware"
)

// DefaultMaxRequestBytes caps inbound request bodies.
const DefaultMaxRequestBytes int64 = 1 << 20

// RoutePrefix is the path under which the DNG routes are mounted.
const RoutePrefix = "/mcp/tools/dng"

// ReadinessChecker reports whether the application is ready to serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Proxy serves the simplified DNG REST surface.
type Proxy struct {
	creds           dng.Credentials
	transport       http.RoundTripper
	upstreamTimeout time.Duration
	metrics         *observability.Metrics

	handler http.Handler
	server  *http.Server
}

type proxyOptions struct {
	transport       http.RoundTripper
	upstreamTimeout time.Duration
	maxRequestBytes int64
	metrics         *observability.Metrics
}

// Option configures a Proxy.
type Option func(*proxyOptions)

// WithTransport sets the transport shared by all per-request DNG clients.
// Useful for tests or custom connection pooling.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *proxyOptions) {
		o.transport = transport
	}
}

// WithUpstreamTimeout bounds each request to the DNG server. Zero disables the timeout.
func WithUpstreamTimeout(timeout time.Duration) Option {
	return func(o *proxyOptions) {
		o.upstreamTimeout = timeout
	}
}

// WithMaxRequestBytes caps the size of inbound request bodies.
func WithMaxRequestBytes(maxBytes int64) Option {
	return func(o *proxyOptions) {
		o.maxRequestBytes = maxBytes
	}
}

// WithMetrics sets the metrics registry. A fresh one is created otherwise.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *proxyOptions) {
		o.metrics = metrics
	}
}

// New creates a Proxy for the given credentials. Incomplete credentials are
// accepted; every DNG route then answers with a ConfigurationError.
func New(creds dng.Credentials, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if health == nil {
		return nil, fmt.Errorf("readiness checker cannot be nil")
	}

	o := proxyOptions{
		transport:       http.DefaultTransport,
		upstreamTimeout: dng.DefaultTimeout,
		maxRequestBytes: DefaultMaxRequestBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if o.maxRequestBytes <= 0 {
		return nil, fmt.Errorf("max request bytes must be positive, got %d", o.maxRequestBytes)
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics()
	}

	p := &Proxy{
		creds:           creds,
		transport:       o.metrics.InstrumentTransport(o.transport),
		upstreamTimeout: o.upstreamTimeout,
		metrics:         o.metrics,
	}

	r := chi.NewRouter()
	r.NotFound(notFoundHandler())
	r.MethodNotAllowed(methodNotAllowedHandler())

	r.Get("/health/liveness", livenessHandler())
	r.Get("/health/readiness", readinessHandler(health, creds.Validate() == nil))
	r.Method(http.MethodGet, "/metrics", o.metrics.Handler())

	r.Route(RoutePrefix, func(r chi.Router) {
		p.mount(r, "/project_areas", p.listProjectAreasHandler())
		p.mount(r, "/requirements/{requirement_id}", p.requirementDetailsHandler())
		p.mount(r, "/requirements/{requirement_id}/traceability", p.requirementTraceabilityHandler())
		p.mount(r, "/projects/{project_id}/requirements", p.listRequirementsHandler())
	})

	p.handler = applyMiddlewares(r,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		middleware.RequestIDPropagation,
		Recovery,
		RequestSizeLimit(o.maxRequestBytes),
	)

	return p, nil
}

// mount registers a GET route instrumented under its full pattern.
func (p *Proxy) mount(r chi.Router, pattern string, h http.Handler) {
	r.Method(http.MethodGet, pattern, p.metrics.InstrumentHandler(RoutePrefix+pattern, h))
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start binds addr and serves in the background. The returned channel reports
// a runtime error of the server, if any, and is closed when serving stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	slog.InfoContext(ctx, "proxy listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests until ctx ends.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}

// newClient builds the DNG client for one request.
func (p *Proxy) newClient() (*dng.Client, error) {
	return dng.NewClient(p.creds,
		dng.WithTransport(p.transport),
		dng.WithTimeout(p.upstreamTimeout),
		dng.WithLogger(slog.Default()),
	)
}
