package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/sitegen-api/internal/api/shared"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
)

// TraceIDHeader echoes the request trace ID back to the client.
const TraceIDHeader = "X-Trace-ID"

// NewTraceMiddleware assigns every request a trace ID and places a logger
// carrying it in the request context. It should run before any middleware
// that logs.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			log := logger.FromContextOrDefault(ctx, base).With(slog.String("trace_id", traceID))
			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			w.Header().Set(TraceIDHeader, traceID)
			next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, log)))
		})
	}
}
