// Package types define tipos de dominio compartidos entre paquetes.
package types

import "time"

// AuthUser es la identidad autenticada, con permisos de UI y acceso admin embebidos.
type AuthUser struct {
	ID              int64          `json:"id"`
	Username        string         `json:"username"`
	Email           string         `json:"email"`
	EmailVerifiedAt *time.Time     `json:"email_verified_at"`
	AvatarURL       string         `json:"avatar_url,omitempty"`
	Permissions     UiPermissions  `json:"ui_permissions"`
	AdminAccess     AdminAccess    `json:"admin_access"`
	Member          *MemberProfile `json:"member,omitempty"`
}

// MemberProfile es el perfil de socio, opcional.
type MemberProfile struct {
	IsStaff   bool   `json:"is_staff"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AdminAccess indica si el usuario entra al panel admin y qué menú ve (ordenado).
type AdminAccess struct {
	CanAccessAdmin bool       `json:"can_access_admin"`
	Menu           []MenuItem `json:"menu"`
}

// MenuItem es una entrada del menú admin.
type MenuItem struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Path  string `json:"path"`
	Icon  string `json:"icon,omitempty"`
}

// NeedsVerification es true mientras el email no esté verificado.
func (u *AuthUser) NeedsVerification() bool {
	return u != nil && u.EmailVerifiedAt == nil
}

// DisplayName prefiere el nombre del perfil de socio, luego username, luego email.
func (u *AuthUser) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Member != nil {
		if n := joinName(u.Member.FirstName, u.Member.LastName); n != "" {
			return n
		}
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Clone devuelve una copia profunda; el store nunca comparte punteros con sus lectores.
func (u *AuthUser) Clone() *AuthUser {
	if u == nil {
		return nil
	}
	c := *u
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	if u.Member != nil {
		m := *u.Member
		c.Member = &m
	}
	if u.AdminAccess.Menu != nil {
		c.AdminAccess.Menu = append([]MenuItem(nil), u.AdminAccess.Menu...)
	}
	return &c
}

// UserPatch es un merge superficial: solo los campos no-nil se aplican.
// EmailVerifiedAt usa doble puntero para poder limpiar el valor.
type UserPatch struct {
	Username        *string        `json:"username,omitempty"`
	Email           *string        `json:"email,omitempty"`
	AvatarURL       *string        `json:"avatar_url,omitempty"`
	EmailVerifiedAt **time.Time    `json:"-"`
	Member          *MemberProfile `json:"member,omitempty"`
}

// Apply aplica el patch sobre una copia de u y la devuelve.
func (p UserPatch) Apply(u *AuthUser) *AuthUser {
	if u == nil {
		return nil
	}
	out := u.Clone()
	if p.Username != nil {
		out.Username = *p.Username
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.AvatarURL != nil {
		out.AvatarURL = *p.AvatarURL
	}
	if p.EmailVerifiedAt != nil {
		out.EmailVerifiedAt = *p.EmailVerifiedAt
	}
	if p.Member != nil {
		m := *p.Member
		out.Member = &m
	}
	return out
}

// Session empareja un bearer token con el usuario que autentica.
// La expiración no se guarda: se consulta a la autoridad emisora.
type Session struct {
	Token string    `json:"access_token"`
	User  *AuthUser `json:"user"`
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
