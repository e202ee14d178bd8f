package api

import (
	"net/mail"
	"strings"
)

// Credentials es el payload de login por password.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate chequea el input antes de cualquier llamada remota.
func (c Credentials) Validate() error {
	f := map[string][]string{}
	if !validEmail(c.Email) {
		f["email"] = append(f["email"], "A valid email is required.")
	}
	if c.Password == "" {
		f["password"] = append(f["password"], "Password is required.")
	}
	if len(f) > 0 {
		return Validation(f)
	}
	return nil
}

// RegisterRequest es el payload de alta de cuenta.
type RegisterRequest struct {
	Username             string `json:"username"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Validate chequea el input antes de cualquier llamada remota.
func (r RegisterRequest) Validate() error {
	f := map[string][]string{}
	if strings.TrimSpace(r.Username) == "" {
		f["username"] = append(f["username"], "Username is required.")
	}
	if !validEmail(r.Email) {
		f["email"] = append(f["email"], "A valid email is required.")
	}
	validatePasswordPair(f, r.Password, r.PasswordConfirmation)
	if len(f) > 0 {
		return Validation(f)
	}
	return nil
}

// ResetPasswordRequest confirma un reset de password con el token del email.
type ResetPasswordRequest struct {
	Token                string `json:"token"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Validate chequea el input antes de cualquier llamada remota.
func (r ResetPasswordRequest) Validate() error {
	f := map[string][]string{}
	if strings.TrimSpace(r.Token) == "" {
		f["token"] = append(f["token"], "Reset token is required.")
	}
	if !validEmail(r.Email) {
		f["email"] = append(f["email"], "A valid email is required.")
	}
	validatePasswordPair(f, r.Password, r.PasswordConfirmation)
	if len(f) > 0 {
		return Validation(f)
	}
	return nil
}

const minPasswordLength = 8

func validatePasswordPair(f map[string][]string, pw, confirm string) {
	if len(pw) < minPasswordLength {
		f["password"] = append(f["password"], "Password must be at least 8 characters.")
	}
	if pw != confirm {
		f["password_confirmation"] = append(f["password_confirmation"], "Passwords do not match.")
	}
}

func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}
