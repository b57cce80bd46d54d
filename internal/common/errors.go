package common

import (
	"context"
	"errors"
	"net/http"
)

// Error taxonomy shared by the render and export pipelines. Packages wrap these
// with fmt.Errorf("...: %w") so callers can branch with errors.Is.
var (
	// ErrNotFound: a selection key or a stored resource does not exist
	ErrNotFound = errors.New("not found")

	// ErrCorruptData: the resource exists but cannot be read or decoded
	ErrCorruptData = errors.New("corrupt data")

	// ErrOutputTooLarge: the overlay cannot be brought under the byte budget
	ErrOutputTooLarge = errors.New("output too large")

	// ErrNoSelection: export was requested while nothing is selected
	ErrNoSelection = errors.New("no selection")

	// ErrConfig: invalid startup configuration, fatal
	ErrConfig = errors.New("invalid configuration")

	// ErrSuperseded: a newer selection replaced the one this result belongs to
	ErrSuperseded = errors.New("superseded by a newer selection")
)

// Error kind identifiers used in API payloads, metric labels and UI warnings
const (
	KindNotFound       = "not_found"
	KindCorruptData    = "corrupt_data"
	KindOutputTooLarge = "output_too_large"
	KindNoSelection    = "no_selection"
	KindConfig         = "config_error"
	KindSuperseded     = "superseded"
	KindCanceled       = "canceled"
	KindInternal       = "internal"
)

// KindOf classifies err into one of the Kind* identifiers. A nil error has no kind.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrCorruptData):
		return KindCorruptData
	case errors.Is(err, ErrOutputTooLarge):
		return KindOutputTooLarge
	case errors.Is(err, ErrNoSelection):
		return KindNoSelection
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrSuperseded):
		return KindSuperseded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// HTTPStatus maps an error to the status code the HTTP API answers with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindNotFound:
		return http.StatusNotFound
	case KindCorruptData:
		return http.StatusUnprocessableEntity
	case KindOutputTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNoSelection, KindSuperseded:
		return http.StatusConflict
	case KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
