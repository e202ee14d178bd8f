package middlewares

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HeaderRequestID es el header de correlación, el mismo que manda el cliente
// de la API hacia afuera.
const HeaderRequestID = "X-Request-ID"

// WithRequestID genera o propaga un Request ID único para cada request.
// Si el cliente envía X-Request-ID, lo usa. Si no, genera uno nuevo.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, rid)
			next.ServeHTTP(w, r.WithContext(setRequestID(r.Context(), rid)))
		})
	}
}
