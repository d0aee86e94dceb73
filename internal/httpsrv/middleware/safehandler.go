package middleware

import (
	"log/slog"
	"net/http"
)

type SafeHandlerMiddleware struct {
	Logger *slog.Logger
}

// Middleware turns a handler panic into a 500 response. The process keeps
// serving.
func (m *SafeHandlerMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				m.Logger.Error("panic recovered",
					slog.Any("err", rec),
					slog.String("path", r.URL.EscapedPath()),
				)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
