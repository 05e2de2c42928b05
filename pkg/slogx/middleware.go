package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pledgepoint/guard/pkg/idx"
)

// HTTPMiddleware stamps every request with an ID, injects a request-scoped
// logger into the context, and emits one access-log record per request.
// The request ID is taken from X-Request-ID when the caller supplies one
// and echoed back on the response either way.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = idx.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)

			logger := base.With(
				slog.String("req_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)

			recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(&recorder, r.WithContext(WithContext(r.Context(), logger)))

			logger.Info("http_request",
				slog.Int("status", recorder.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("user_agent", r.UserAgent()),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}
