package middlewares

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/portal/internal/observability/logger"
	"go.uber.org/zap"
)

// WithRecover convierte un panic del handler en un 500 JSON y lo loguea con stack.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.From(r.Context()).Error("panic recovered",
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":      "internal_error",
					"request_id": GetRequestID(r.Context()),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
