// Package session es el store de autenticación: un contenedor de estado
// explícito (token, usuario, loading, error, hidratado) con suscripción a
// cambios y persistencia parcial en un kv.Store.
//
// Sólo token (cifrado) y usuario se persisten. IsLoading y Err son siempre
// transitorios.
package session

import (
	"errors"
	"reflect"

	"github.com/dropDatabas3/portal/internal/domain/types"
)

// ErrNotAuthenticated: la operación requiere una sesión activa.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// State es un snapshot inmutable del store. User es una copia: modificarlo no
// afecta al store.
type State struct {
	Token     string
	User      *types.AuthUser
	IsLoading bool
	Err       error
	Hydrated  bool
}

// Authenticated es true con token y usuario presentes.
func (s State) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// Resolved es true cuando la sesión ya no está en duda: hidratada y sin
// operación en curso. Los guards no deciden antes de esto.
func (s State) Resolved() bool {
	return s.Hydrated && !s.IsLoading
}

func (s State) clone() State {
	s.User = s.User.Clone()
	return s
}

func (s State) equal(o State) bool {
	return s.Token == o.Token &&
		s.IsLoading == o.IsLoading &&
		s.Hydrated == o.Hydrated &&
		sameErr(s.Err, o.Err) &&
		sameUser(s.User, o.User)
}

func sameUser(a, b *types.AuthUser) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func sameErr(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Error() == b.Error()
}

// LoginResult es lo que devuelven Login/Register.
type LoginResult struct {
	User              *types.AuthUser
	NeedsVerification bool
}
