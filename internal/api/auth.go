package api

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/portal/internal/domain/types"
)

type sessionResponse struct {
	AccessToken string          `json:"access_token"`
	User        *types.AuthUser `json:"user"`
}

func (r sessionResponse) session() (types.Session, error) {
	if r.AccessToken == "" || r.User == nil {
		return types.Session{}, &Error{Kind: KindServer, Message: "response is missing user or access_token"}
	}
	return types.Session{Token: r.AccessToken, User: r.User}, nil
}

type userResponse struct {
	User *types.AuthUser `json:"user"`
}

// Login intercambia credenciales por una sesión. Una sola llamada, sin reintentos.
func (c *Client) Login(ctx context.Context, cr Credentials) (types.Session, error) {
	if err := cr.Validate(); err != nil {
		return types.Session{}, err
	}
	var out sessionResponse
	if err := c.do(ctx, request{endpoint: "login", method: http.MethodPost, path: "auth/login", body: cr, out: &out}); err != nil {
		return types.Session{}, err
	}
	return out.session()
}

// Register crea la cuenta y devuelve la sesión inicial.
func (c *Client) Register(ctx context.Context, r RegisterRequest) (types.Session, error) {
	if err := r.Validate(); err != nil {
		return types.Session{}, err
	}
	var out sessionResponse
	if err := c.do(ctx, request{endpoint: "register", method: http.MethodPost, path: "auth/register", body: r, out: &out}); err != nil {
		return types.Session{}, err
	}
	return out.session()
}

// Logout revoca el token del lado servidor.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, request{endpoint: "logout", method: http.MethodPost, path: "auth/logout", token: token})
}

// Refresh cambia el token actual por uno nuevo.
func (c *Client) Refresh(ctx context.Context, token string) (types.Session, error) {
	var out sessionResponse
	if err := c.do(ctx, request{endpoint: "refresh", method: http.MethodPost, path: "auth/refresh", token: token, out: &out}); err != nil {
		return types.Session{}, err
	}
	return out.session()
}

// Me es el "who am I": el usuario dueño del token.
func (c *Client) Me(ctx context.Context, token string) (*types.AuthUser, error) {
	var out userResponse
	if err := c.do(ctx, request{endpoint: "me", method: http.MethodGet, path: "auth/me", token: token, out: &out}); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, &Error{Kind: KindServer, Message: "response is missing user"}
	}
	return out.User, nil
}

// UpdateProfile aplica el patch del lado servidor y devuelve el usuario resultante.
func (c *Client) UpdateProfile(ctx context.Context, token string, patch types.UserPatch) (*types.AuthUser, error) {
	var out userResponse
	if err := c.do(ctx, request{endpoint: "update_profile", method: http.MethodPatch, path: "auth/profile", token: token, body: patch, out: &out}); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, &Error{Kind: KindServer, Message: "response is missing user"}
	}
	return out.User, nil
}

// ForgotPassword pide el email de reset.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if !validEmail(email) {
		return Validation(map[string][]string{"email": {"A valid email is required."}})
	}
	body := map[string]string{"email": email}
	return c.do(ctx, request{endpoint: "password_forgot", method: http.MethodPost, path: "auth/password/forgot", body: body})
}

// ResetPassword confirma el reset con el token recibido por email.
func (c *Client) ResetPassword(ctx context.Context, r ResetPasswordRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return c.do(ctx, request{endpoint: "password_reset", method: http.MethodPost, path: "auth/password/reset", body: r})
}

type tokenStatusResponse struct {
	ExpiresIn int64 `json:"expires_in"` // segundos
}

// TokenTTL pregunta a la autoridad cuánto le queda al token.
func (c *Client) TokenTTL(ctx context.Context, token string) (time.Duration, error) {
	var out tokenStatusResponse
	if err := c.do(ctx, request{endpoint: "token_status", method: http.MethodGet, path: "auth/token", token: token, out: &out}); err != nil {
		return 0, err
	}
	return time.Duration(out.ExpiresIn) * time.Second, nil
}
