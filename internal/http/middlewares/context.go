package middlewares

import "context"

type ctxKey int

const requestIDKey ctxKey = iota

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// GetRequestID devuelve el request id inyectado por WithRequestID, o "".
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
