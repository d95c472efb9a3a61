package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/foundreg/internal/export"
	"github.com/wolfeidau/foundreg/internal/forms"
	"github.com/wolfeidau/foundreg/internal/login"
	"github.com/wolfeidau/foundreg/internal/registry"
	"github.com/wolfeidau/foundreg/internal/store"
)

// Error codes returned in the "error" field of error bodies.
const (
	codeBadRequest      = "bad_request"
	codeValidation      = "validation_error"
	codeUnauthorized    = "unauthorized"
	codeForbidden       = "forbidden"
	codeNotFound        = "not_found"
	codeConflict        = "conflict"
	codeUnavailable     = "service_unavailable"
	codeInternal        = "internal_error"
	codeUnsupportedType = "unsupported_format"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Field       string `json:"field,omitempty"`
}

// writeError maps service errors to a status code and a JSON body.
// Internal errors never expose their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)

	logEvent := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		logEvent = zerolog.Ctx(r.Context()).Error()
	}
	logEvent.Err(err).Int("status", status).Msg("Request failed")

	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var verr *forms.ValidationError

	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorBody{Error: codeValidation, Description: verr.Message, Field: verr.Field}
	case errors.Is(err, errBadRequest), errors.Is(err, login.ErrInvalidRegistration), errors.Is(err, login.ErrEmailTaken):
		return http.StatusBadRequest, errorBody{Error: codeBadRequest, Description: err.Error()}
	case errors.Is(err, forms.ErrOfficeRequired):
		return http.StatusBadRequest, errorBody{Error: codeBadRequest, Description: "Select an office for this submission"}
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, errorBody{Error: codeUnsupportedType, Description: "Unsupported format. Use excel, json or csv"}
	case errors.Is(err, login.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Error: codeUnauthorized, Description: "Invalid email or password"}
	case errors.Is(err, login.ErrInvalidToken), errors.Is(err, login.ErrExpiredToken):
		return http.StatusUnauthorized, errorBody{Error: codeUnauthorized, Description: "Invalid or expired token"}
	case errors.Is(err, forms.ErrOfficeForbidden):
		return http.StatusForbidden, errorBody{Error: codeForbidden, Description: "Office is not assigned to this user"}
	case errors.Is(err, store.ErrFoundItemNotFound):
		return http.StatusNotFound, errorBody{Error: codeNotFound, Description: "Form not found"}
	case errors.Is(err, registry.ErrOverflow):
		return http.StatusConflict, errorBody{Error: codeConflict, Description: "Registry numbers for this office are exhausted for the year"}
	case errors.Is(err, store.ErrTransient):
		return http.StatusServiceUnavailable, errorBody{Error: codeUnavailable, Description: "Please retry the submission"}
	default:
		// includes registry.ErrConfiguration
		return http.StatusInternalServerError, errorBody{Error: codeInternal}
	}
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}

const maxBodyBytes = 64 * 1024
