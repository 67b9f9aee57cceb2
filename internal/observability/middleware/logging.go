package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/httplog/v3"
)

// quietPathPrefixes are probe and scrape endpoints whose successful requests
// are not access-logged.
var quietPathPrefixes = []string{"/health/", "/metrics"}

// Logging logs HTTP requests with method, path, status, and duration.
// Successful health probes and metric scrapes are skipped.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Only these headers are logged; Authorization and bodies never are.
		LogRequestHeaders:  []string{"Content-Type", "Origin", "User-Agent"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		Skip: func(r *http.Request, respStatus int) bool {
			return respStatus < http.StatusBadRequest && isQuietPath(r.URL.Path)
		},

		RecoverPanics: false, // proxy.Recovery writes the error envelope and logs the panic
	})
}

func isQuietPath(path string) bool {
	for _, prefix := range quietPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
