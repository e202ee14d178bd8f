package middlewares

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/guard"
	"github.com/dropDatabas3/portal/internal/session"
)

// StateSource es la vista de sólo lectura de la sesión que necesitan los guards.
type StateSource interface {
	Snapshot() session.State
}

// RequireUser deja pasar sólo con usuario; sin usuario redirige a login con
// la ruta actual como retorno.
func RequireUser(src StateSource, opts guard.Options) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apply(w, r, guard.Route(src.Snapshot(), r.URL.RequestURI(), opts), next, nil)
		})
	}
}

// RequireAdmin es RequireUser más acceso al panel admin.
func RequireAdmin(src StateSource, opts guard.Options) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apply(w, r, guard.Admin(src.Snapshot(), r.URL.RequestURI(), opts), next, nil)
		})
	}
}

// RequireCapability sirve next si el usuario tiene c. Si no, sirve fallback;
// sin fallback responde 204 (nada que mostrar, para widgets).
func RequireCapability(src StateSource, c types.Capability, fallback http.Handler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apply(w, r, guard.Capability(src.Snapshot(), c, fallback != nil), next, fallback)
		})
	}
}

func apply(w http.ResponseWriter, r *http.Request, d guard.Decision, next, fallback http.Handler) {
	switch d.Outcome {
	case guard.Allow:
		next.ServeHTTP(w, r)
	case guard.Redirect:
		http.Redirect(w, r, d.Location, http.StatusFound)
	case guard.Fallback:
		fallback.ServeHTTP(w, r)
	case guard.Hide:
		w.WriteHeader(http.StatusNoContent)
	default:
		// Pending: la sesión todavía se está resolviendo.
		w.Header().Set("Retry-After", "1")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "loading"})
	}
}
