package dng

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultTimeout bounds a single upstream request unless overridden with WithTimeout.
const DefaultTimeout = 30 * time.Second

// oslcCoreVersion is sent with every request; DNG answers OSLC 1.0 shapes without it.
const oslcCoreVersion = "2.0"

// ErrIncompleteCredentials is returned by Credentials.Validate when a field is
// missing or malformed.
var ErrIncompleteCredentials = errors.New("DNG server configuration is incomplete")

var validate = validator.New()

// Credentials identify the DNG server and the shared account used for every call.
type Credentials struct {
	BaseURL  string `validate:"required,url"`
	Username string `validate:"required"`
	APIKey   string `validate:"required"`
}

// Validate reports whether all three credential fields are usable.
func (c Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			names := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				names = append(names, fe.Field())
			}
			return fmt.Errorf("%w: invalid or missing %s", ErrIncompleteCredentials, strings.Join(names, ", "))
		}
		return fmt.Errorf("%w: %w", ErrIncompleteCredentials, err)
	}
	return nil
}

// Client talks to a single DNG server over one authenticated session.
// A Client holds no state besides that session and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// clientOptions collects Option values before the session is built.
type clientOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithTransport sets the base transport that carries authenticated requests.
// Defaults to http.DefaultTransport.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = transport
	}
}

// WithTimeout bounds each upstream request. Zero disables the timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient creates a Client for the given credentials.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{
		transport: http.DefaultTransport,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	return &Client{
		baseURL: strings.TrimRight(creds.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &sessionTransport{
				username: creds.Username,
				apiKey:   creds.APIKey,
				base:     o.transport,
			},
			Timeout: o.timeout,
		},
		logger: o.logger.With(slog.String("component", "dng_client")),
	}, nil
}

// sessionTransport authenticates every request and declares the OSLC headers.
type sessionTransport struct {
	username string
	apiKey   string
	base     http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OSLC-Core-Version", oslcCoreVersion)
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	return t.base.RoundTrip(req)
}

// upstreamResponse is a successful upstream reply with a validated JSON body.
type upstreamResponse struct {
	body   json.RawMessage
	header http.Header
}

// getJSON issues a GET against target and classifies every failure.
// The body of a successful response is guaranteed to be valid JSON.
func (c *Client) getJSON(ctx context.Context, target string) (*upstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, newAPIError(target, fmt.Errorf("creating request: %w", err))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "upstream request failed", "url", target, "error", err)
		return nil, newAPIError(target, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newAPIError(target, fmt.Errorf("reading response body: %w", err))
	}

	c.logger.DebugContext(ctx, "upstream request",
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newStatusError(target, resp.StatusCode, body)
	}

	if !json.Valid(body) {
		return nil, newAPIError(target, errors.New("failed to decode JSON response"))
	}

	return &upstreamResponse{body: body, header: resp.Header}, nil
}

// decodeObject decodes a JSON object into its raw fields.
func decodeObject(target string, body json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, newAPIError(target, fmt.Errorf("expected a JSON object: %w", err))
	}
	return fields, nil
}
