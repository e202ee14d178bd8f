package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/http/middlewares"
	"github.com/dropDatabas3/portal/internal/plans"
	"github.com/dropDatabas3/portal/internal/session"
)

type apiError struct {
	Error            string              `json:"error"`
	ErrorDescription string              `json:"error_description,omitempty"`
	Fields           map[string][]string `json:"fields,omitempty"`
	RequestID        string              `json:"request_id,omitempty"`
}

// WriteError escribe un error JSON con el request id de la respuesta.
func WriteError(w http.ResponseWriter, status int, code, desc string) {
	writeErrorBody(w, status, apiError{Error: code, ErrorDescription: desc})
}

func writeErrorBody(w http.ResponseWriter, status int, body apiError) {
	body.RequestID = w.Header().Get(middlewares.HeaderRequestID)
	WriteJSON(w, status, body)
}

// WriteAPIError traduce un error de la capa de sesión/API a HTTP.
func WriteAPIError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	body := apiError{Error: code, ErrorDescription: api.Message(err)}
	var ae *api.Error
	if errors.As(err, &ae) && len(ae.Fields) > 0 {
		body.Fields = ae.Fields
	}
	writeErrorBody(w, status, body)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, plans.ErrInvalidID):
		return http.StatusBadRequest, "invalid_id"
	}
	switch api.KindOf(err) {
	case api.KindValidation:
		return http.StatusUnprocessableEntity, "validation_failed"
	case api.KindAuth:
		return http.StatusUnauthorized, "unauthorized"
	case api.KindForbidden:
		return http.StatusForbidden, "forbidden"
	case api.KindNotFound:
		return http.StatusNotFound, "not_found"
	case api.KindConflict:
		return http.StatusConflict, "conflict"
	case api.KindTransient:
		return http.StatusServiceUnavailable, "upstream_unavailable"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica JSON de forma tolerante (NO falla por campos desconocidos).
// Valida Content-Type y limita el body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido")
		return false
	}
	return true
}
