package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/ideavolution/coordinator/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
// Conflicts carry the alert's current state so the caller can refresh.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Alert   *AlertResponse    `json:"alert,omitempty"`
}

// Error codes
const (
	CodeValidation = "validation_error"
	CodeConflict   = "conflict"
	CodeNotFound   = "not_found"
	CodeForbidden  = "forbidden"
	CodeInternal   = "internal_error"
)

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Logger().Warnw("Failed to encode JSON response", "error", err)
		}
	}
}

// RespondError writes a standard error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondErrorWithCode writes an error response with a machine-readable code.
func RespondErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// RespondValidationError writes field-level validation errors as a 422 response.
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "Validation failed",
		Code:    CodeValidation,
		Details: fieldErrors,
	})
}

// RespondServiceError maps a service error onto its status code. Unknown
// errors are logged and reported as 500 without their text.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *services.ValidationError
		conflict   *services.ConflictError
		notFound   *services.NotFoundError
		forbidden  *services.ForbiddenError
	)
	switch {
	case errors.As(err, &validation):
		RespondValidationError(w, validation.Fields)
	case errors.As(err, &conflict):
		resp := ErrorResponse{Error: conflict.Reason, Code: CodeConflict}
		if conflict.Current != nil {
			current := AlertToResponse(*conflict.Current, nil)
			resp.Alert = &current
		}
		RespondJSON(w, http.StatusConflict, resp)
	case errors.As(err, &notFound):
		RespondErrorWithCode(w, http.StatusNotFound, CodeNotFound, notFound.Error())
	case errors.As(err, &forbidden):
		RespondErrorWithCode(w, http.StatusForbidden, CodeForbidden, forbidden.Error())
	default:
		logger.ErrorKV(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		RespondErrorWithCode(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// RespondNoContent writes a 204 No Content response with no body.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
