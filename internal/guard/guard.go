// Package guard decide qué ve el usuario según el estado de la sesión.
// Son funciones puras sobre session.State; la traducción a HTTP vive en
// internal/http/middlewares.
package guard

import (
	"net/url"
	"strings"

	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/session"
)

// Outcome es el tipo de decisión.
type Outcome int

const (
	// Pending: la sesión no se resolvió todavía; no mostrar ni contenido ni fallback.
	Pending Outcome = iota
	Allow
	// Fallback: sin permiso, mostrar el contenido alternativo.
	Fallback
	// Hide: sin permiso y sin fallback, no mostrar nada.
	Hide
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Fallback:
		return "fallback"
	case Hide:
		return "hide"
	case Redirect:
		return "redirect"
	default:
		return "pending"
	}
}

// Decision es el resultado de un guard. Location sólo aplica a Redirect.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Options de los guards de ruta.
type Options struct {
	LoginPath     string // default "/login"
	DashboardPath string // default "/dashboard"
	ReturnParam   string // default "redirect"
	// AdminCapability es un permiso extra que exige Admin, además de CanAccessAdmin.
	AdminCapability types.Capability
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.DashboardPath == "" {
		o.DashboardPath = "/dashboard"
	}
	if o.ReturnParam == "" {
		o.ReturnParam = "redirect"
	}
	return o
}

// Capability permite si el usuario tiene cap. Mientras la sesión no se
// resolvió devuelve Pending (ni contenido ni fallback).
func Capability(st session.State, cap types.Capability, hasFallback bool) Decision {
	if !st.Resolved() {
		return Decision{Outcome: Pending}
	}
	if st.User != nil && st.User.Permissions.Has(cap) {
		return Decision{Outcome: Allow}
	}
	if hasFallback {
		return Decision{Outcome: Fallback}
	}
	return Decision{Outcome: Hide}
}

// Route exige un usuario. Sin usuario redirige a login con la ruta actual
// como parámetro de retorno.
func Route(st session.State, currentPath string, opts Options) Decision {
	opts = opts.withDefaults()
	if !st.Resolved() {
		return Decision{Outcome: Pending}
	}
	if st.User == nil {
		return Decision{Outcome: Redirect, Location: LoginURL(currentPath, opts)}
	}
	return Decision{Outcome: Allow}
}

// Admin es Route más acceso admin. Un usuario autenticado sin acceso va al
// dashboard, no a login: el problema es el usuario, no la sesión.
func Admin(st session.State, currentPath string, opts Options) Decision {
	opts = opts.withDefaults()
	if d := Route(st, currentPath, opts); d.Outcome != Allow {
		return d
	}
	u := st.User
	if !u.AdminAccess.CanAccessAdmin {
		return Decision{Outcome: Redirect, Location: opts.DashboardPath}
	}
	if opts.AdminCapability != "" && !u.Permissions.Has(opts.AdminCapability) {
		return Decision{Outcome: Redirect, Location: opts.DashboardPath}
	}
	return Decision{Outcome: Allow}
}

// LoginURL arma la URL de login con el retorno a currentPath. Sólo se aceptan
// paths locales como retorno.
func LoginURL(currentPath string, opts Options) string {
	opts = opts.withDefaults()
	if !SafeReturnPath(currentPath) || currentPath == opts.LoginPath {
		return opts.LoginPath
	}
	q := url.Values{}
	q.Set(opts.ReturnParam, currentPath)
	return opts.LoginPath + "?" + q.Encode()
}

// SafeReturnPath es true para paths locales ("/x"), nunca para URLs absolutas
// ni "//host".
func SafeReturnPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}
