// Package handler exposes the auth service over HTTP and owns the
// cookie contract with the SPA.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kgdatatech/securestack/internal/model"
	"github.com/kgdatatech/securestack/internal/session"
	"github.com/kgdatatech/securestack/internal/token"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// respondServiceError maps the service error taxonomy onto HTTP
// statuses. Unrecognized errors become opaque 500s; the detail field
// is only populated outside production.
func (h *AuthHandler) respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, model.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrUserExists):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrInvalidCredentials),
		errors.Is(err, model.ErrTwoFactorInvalid),
		errors.Is(err, model.ErrUnauthenticated),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrInvalid):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, model.ErrForbidden), errors.Is(err, model.ErrCSRF):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, model.ErrUserNotFound), errors.Is(err, session.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, model.ErrTokenInvalid),
		errors.Is(err, model.ErrAlreadyVerified),
		errors.Is(err, model.ErrTwoFactorNotEnabled):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrTooManyAttempts):
		status, message = http.StatusTooManyRequests, err.Error()
	case errors.Is(err, model.ErrEmailNotAllowed):
		status, message = http.StatusBadRequest, err.Error()
	}

	body := errorBody{Message: message}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
		if !h.cfg.Production {
			body.Error = err.Error()
		}
	}
	respondJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return model.ErrValidation
	}
	return nil
}
