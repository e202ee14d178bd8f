package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind clasifica un error remoto. Se fija en el borde HTTP a partir del
// status code; nunca se infiere del texto del mensaje.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: input mal formado (400/422 o validación local). Recuperable, va al formulario.
	KindValidation
	// KindAuth: 401, token vencido o ausente. Siempre fuerza logout local; nunca se reintenta.
	KindAuth
	// KindForbidden: 403, autenticado pero sin permiso.
	KindForbidden
	KindNotFound
	KindConflict
	// KindTransient: red, timeout, 408/429/502/503/504. Los procesos de fondo lo tragan.
	KindTransient
	// KindServer: 5xx no transitorio o respuesta que no respeta el contrato.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error es el error estructurado de toda llamada remota.
type Error struct {
	Kind    Kind
	Status  int                 // 0 si no hubo respuesta
	Code    string              // código de la API, si vino
	Message string              // mensaje corto para el usuario
	Fields  map[string][]string // errores por campo (validación)
	Err     error               // causa original
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("api: ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// FieldError devuelve el primer mensaje de validación de un campo.
func (e *Error) FieldError(field string) string {
	if e == nil || len(e.Fields[field]) == 0 {
		return ""
	}
	return e.Fields[field][0]
}

// KindFromStatus mapea un status HTTP no exitoso a un Kind.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindTransient
	}
	if status >= 500 {
		return KindServer
	}
	return KindUnknown
}

// KindOf extrae el Kind de err (KindUnknown si no es un *Error).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAuth es true para 401/vencido/no autenticado.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsTransient es true para errores de red y estados reintentables.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsValidation es true para input mal formado.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// Validation arma un error de validación local (sin llamada remota).
func Validation(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

// Message devuelve un texto corto para mostrar al usuario.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}
	if e.Message != "" && e.Kind != KindTransient && e.Kind != KindServer {
		return e.Message
	}
	switch e.Kind {
	case KindAuth:
		return "Your session has expired. Please log in again."
	case KindForbidden:
		return "You do not have permission to do that."
	case KindTransient:
		return "The server could not be reached. Please try again."
	case KindValidation:
		return "Please check the highlighted fields."
	case KindNotFound:
		return "Not found."
	default:
		return "Something went wrong. Please try again."
	}
}
