// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer. Services wrap these sentinels with fmt.Errorf and %w; handlers
// map them back to status codes with Status.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("invalid input")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrUpstream        = errors.New("upstream failure")
)

func Status(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
