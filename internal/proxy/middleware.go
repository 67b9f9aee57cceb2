package proxy

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/florianilch/dng-proxy/internal/observability/middleware"
)

// Recovery turns a handler panic into an UnexpectedError envelope and logs
// the panic value with its stack. http.ErrAbortHandler is re-raised so the
// server can abort the response as usual.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			ctx := r.Context()
			middleware.SetLogAttrs(ctx, slog.Any("panic", rec))
			slog.ErrorContext(ctx, "handler panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			writeJSONError(ctx, w, ErrorKindUnexpected, unexpectedErrorMessage)
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimit rejects requests whose declared Content-Length exceeds
// maxBytes and caps the body of all others.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeJSONError(r.Context(), w, ErrorKindInvalidInput, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// applyMiddlewares applies middlewares to a handler in the order they appear.
// The first middleware in the slice is the outermost (executes first).
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
