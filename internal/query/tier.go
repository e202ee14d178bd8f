// Package query es la capa de cache de lecturas remotas: cada clave pertenece
// a una familia, cada familia a un tier de frescura. Las mutaciones invalidan
// familias enteras; el logout limpia todo.
package query

import (
	"strings"
	"time"
)

// Tier define cuánto tiempo un dato se considera fresco.
type Tier int

const (
	// TierStatic no vence nunca; sólo se invalida explícitamente.
	TierStatic Tier = iota
	// TierStable: catálogos que cambian poco (planes, roles).
	TierStable
	// TierStandard: el default.
	TierStandard
	// TierDynamic: contadores y listas que cambian seguido.
	TierDynamic
)

// StaleTime devuelve la ventana de frescura. 0 significa "no vence".
func (t Tier) StaleTime() time.Duration {
	switch t {
	case TierStatic:
		return 0
	case TierStable:
		return time.Hour
	case TierDynamic:
		return 30 * time.Second
	default:
		return 5 * time.Minute
	}
}

func (t Tier) String() string {
	switch t {
	case TierStatic:
		return "static"
	case TierStable:
		return "stable"
	case TierDynamic:
		return "dynamic"
	default:
		return "standard"
	}
}

// Family agrupa claves que se invalidan juntas.
type Family string

const (
	FamilyMe             Family = "me"
	FamilySiteConfig     Family = "site-config"
	FamilyPlans          Family = "plans"
	FamilyMedia          Family = "media"
	FamilyAdminRoles     Family = "admin-roles"
	FamilyAdminUsers     Family = "admin-users"
	FamilyEvents         Family = "events"
	FamilyPosts          Family = "posts"
	FamilyDonations      Family = "donations"
	FamilyLabBookings    Family = "lab-bookings"
	FamilyDashboardStats Family = "dashboard-stats"
)

var familyTiers = map[Family]Tier{
	FamilyMe:             TierStandard,
	FamilySiteConfig:     TierStatic,
	FamilyPlans:          TierStable,
	FamilyMedia:          TierStable,
	FamilyAdminRoles:     TierStable,
	FamilyAdminUsers:     TierStandard,
	FamilyEvents:         TierStandard,
	FamilyPosts:          TierStandard,
	FamilyDonations:      TierDynamic,
	FamilyLabBookings:    TierDynamic,
	FamilyDashboardStats: TierDynamic,
}

// Tier devuelve el tier de la familia (TierStandard si no está registrada).
func (f Family) Tier() Tier {
	if t, ok := familyTiers[f]; ok {
		return t
	}
	return TierStandard
}

// Families devuelve todas las familias registradas.
func Families() []Family {
	out := make([]Family, 0, len(familyTiers))
	for f := range familyTiers {
		out = append(out, f)
	}
	return out
}

// Key identifica una lectura cacheada: familia + parámetros (id, página, filtros).
type Key struct {
	Family Family
	Params []string
}

// NewKey arma una Key.
func NewKey(f Family, params ...string) Key {
	return Key{Family: f, Params: params}
}

const keySep = "|"

func (k Key) String() string {
	if len(k.Params) == 0 {
		return string(k.Family)
	}
	return string(k.Family) + keySep + strings.Join(k.Params, keySep)
}

func (k Key) belongsTo(f Family) bool {
	s := k.String()
	return s == string(f) || strings.HasPrefix(s, string(f)+keySep)
}
