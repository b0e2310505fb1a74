// Package apperr defines the error kinds shared by the three services and their HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate active analysis or a write against a terminal report.
	ErrConflict = errors.New("conflict")
	// ErrUpstreamUnavailable marks a downstream service that could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstream marks a downstream service that answered with a failure.
	ErrUpstream = errors.New("upstream error")
	// ErrOverload marks a request rejected by the concurrency cap.
	ErrOverload = errors.New("too many requests")
	// ErrStorage marks a disk or blob storage failure.
	ErrStorage = errors.New("storage failure")
	// ErrGone marks metadata whose backing file has disappeared.
	ErrGone = errors.New("file no longer available")
	// ErrForbidden marks a storage location outside the storage root.
	ErrForbidden = errors.New("forbidden")
)

// HTTPError is implemented by errors that carry their own client status and message,
// such as a downstream 4xx relayed by the gateway.
type HTTPError interface {
	error
	HTTPStatus() int
	PublicMessage() string
}

// Wrap annotates err with kind so that errors.Is(result, kind) holds.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// New builds an error of the given kind with a formatted message.
func New(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is rejected input, including validator failures.
func IsValidation(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.Is(err, ErrValidation) || errors.As(err, &validationErrors)
}

// Status maps err to the HTTP status code returned to clients.
func Status(err error) int {
	var httpErr HTTPError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &httpErr):
		return httpErr.HTTPStatus()
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrOverload):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrGone):
		return http.StatusGone
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show to clients. Internal failures never leak
// their cause since it can contain paths or driver output.
func PublicMessage(err error) string {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.PublicMessage()
	}

	switch status := Status(err); status {
	case http.StatusServiceUnavailable:
		return "upstream service unavailable"
	case http.StatusBadGateway:
		return "upstream service error"
	case http.StatusInternalServerError:
		if errors.Is(err, ErrStorage) {
			return "storage failure"
		}
		return "internal server error"
	default:
		return err.Error()
	}
}
