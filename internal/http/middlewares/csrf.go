package middlewares

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// CSRFConfig configura el middleware CSRF.
type CSRFConfig struct {
	HeaderName string // Default: "X-CSRF-Token"
	CookieName string // Default: "csrf_token"
}

func (c CSRFConfig) withDefaults() CSRFConfig {
	c.HeaderName = strings.TrimSpace(c.HeaderName)
	if c.HeaderName == "" {
		c.HeaderName = "X-CSRF-Token"
	}
	c.CookieName = strings.TrimSpace(c.CookieName)
	if c.CookieName == "" {
		c.CookieName = "csrf_token"
	}
	return c
}

// CSRFCookie arma la cookie double-submit que el dashboard entrega en GET.
func CSRFCookie(cfg CSRFConfig, token string) *http.Cookie {
	cfg = cfg.withDefaults()
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
	}
}

// WithCSRF exige double-submit (header y cookie iguales) en métodos inseguros.
// El dashboard no usa Bearer: la sesión vive en el proceso, así que todo POST
// de un browser pasa por este check.
func WithCSRF(cfg CSRFConfig) Middleware {
	cfg = cfg.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUnsafe(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			hdr := strings.TrimSpace(r.Header.Get(cfg.HeaderName))
			ck, _ := r.Cookie(cfg.CookieName)
			if hdr == "" || ck == nil || subtle.ConstantTimeCompare([]byte(hdr), []byte(strings.TrimSpace(ck.Value))) != 1 {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":             "invalid_csrf_token",
					"error_description": "CSRF token missing or mismatch",
					"request_id":        GetRequestID(r.Context()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isUnsafe(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
