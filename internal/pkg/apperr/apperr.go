package apperr

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinels used to classify failures. Errors returned by services are marked
// with one of these so the HTTP layer can pick a status code.
var (
	ErrValidation       = errors.New("validation error")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNotFound         = errors.New("resource not found")
	ErrDownstream       = errors.New("downstream failure")

	statusCodeMap = []struct {
		err    error
		status int
	}{
		{ErrInvalidSignature, http.StatusBadRequest},
		{ErrMalformedPayload, http.StatusBadRequest},
		{ErrValidation, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrDownstream, http.StatusInternalServerError},
	}
)

// Wrap annotates err with msg and marks it with reference.
// A nil err yields nil.
func Wrap(err error, reference error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), reference)
}

// Newf creates a new error marked with reference.
func Newf(reference error, format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), reference)
}

// Is reports whether err carries the reference mark anywhere in its chain.
func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// HTTPStatusFromErr maps a marked error to an HTTP status; unmarked errors are 500.
func HTTPStatusFromErr(err error) int {
	for _, m := range statusCodeMap {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns a short machine-readable code for API responses.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformedPayload):
		return "invalid_payload"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
