package logger

import (
	"strconv"
	"time"

	"github.com/dropDatabas3/portal/internal/util"
	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request saliente.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración de una llamada.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SESIÓN
// =================================================================================

// UserID crea un campo para el ID numérico del usuario.
func UserID(v int64) zap.Field {
	return zap.String("user_id", strconv.FormatInt(v, 10))
}

// Email enmascara el email antes de loguearlo.
func Email(v string) zap.Field {
	return zap.String("email", util.MaskEmail(v))
}

// Family crea un campo para una familia de claves de la query cache.
func Family(v string) zap.Field {
	return zap.String("family", v)
}

// Reason crea un campo para el motivo de un logout forzado.
func Reason(v string) zap.Field {
	return zap.String("reason", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Key crea un campo genérico para una clave.
func Key(v string) zap.Field {
	return zap.String("key", v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
