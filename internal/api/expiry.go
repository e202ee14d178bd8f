package api

import (
	"context"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ExpiresWithin responde si token vence dentro de window.
//
// Si el token es un JWT con claim exp se lee localmente, sin verificar firma:
// sólo interesa el vencimiento y la firma la valida la API en cada llamada.
// Tokens opacos (o JWT sin exp) se consultan a GET /auth/token.
func (c *Client) ExpiresWithin(ctx context.Context, token string, window time.Duration) (bool, error) {
	if exp, ok := jwtExpiry(token); ok {
		return time.Until(exp) <= window, nil
	}
	ttl, err := c.TokenTTL(ctx, token)
	if err != nil {
		return false, err
	}
	return ttl <= window, nil
}

func jwtExpiry(token string) (time.Time, bool) {
	claims := jwtv5.MapClaims{}
	if _, _, err := jwtv5.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
