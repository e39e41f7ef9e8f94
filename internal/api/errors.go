package api

import (
	"errors"
	"net/http"

	"execengine/internal/admission"
	"execengine/internal/catalog"
	"execengine/internal/executor"
)

// statusForSubmitError maps an executor.Kind to the HTTP status the
// submission endpoint returns.
func statusForSubmitError(err error) (int, string) {
	var submitErr *executor.SubmitError
	if errors.As(err, &submitErr) {
		switch submitErr.Kind {
		case executor.KindNotFound:
			return http.StatusNotFound, string(submitErr.Kind)
		case executor.KindDisabled:
			return http.StatusConflict, string(submitErr.Kind)
		case executor.KindMainFileMissing:
			return http.StatusUnprocessableEntity, string(submitErr.Kind)
		case executor.KindImageUnavailable:
			return http.StatusBadGateway, string(submitErr.Kind)
		case executor.KindOverloaded:
			return http.StatusTooManyRequests, string(submitErr.Kind)
		default:
			return http.StatusInternalServerError, string(submitErr.Kind)
		}
	}
	if errors.Is(err, catalog.ErrNotFound) {
		return http.StatusNotFound, "not_found"
	}
	if _, ok := err.(admission.Rejected); ok {
		return http.StatusTooManyRequests, "overloaded"
	}
	return http.StatusInternalServerError, "internal_error"
}
