package api

import (
	"encoding/json"
	"net/http"

	"github.com/whalewatch/engine/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, kind types.ErrorKind, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Kind:    kind,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondInternalError maps an error through its ServiceError taxonomy (if
// any) and writes the resulting status code and body.
func respondInternalError(w http.ResponseWriter, err error) {
	status, kind, message := mapServiceError(err)
	respondError(w, status, kind, message, nil)
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// mapServiceError maps a ServiceError's taxonomy Kind to an HTTP status code.
func mapServiceError(err error) (int, types.ErrorKind, string) {
	var serviceErr *types.ServiceError
	if se, ok := err.(*types.ServiceError); ok {
		serviceErr = se
	} else {
		return http.StatusInternalServerError, types.KindInternal, "an internal error occurred"
	}

	switch serviceErr.Kind {
	case types.KindInvalidInput:
		return http.StatusBadRequest, serviceErr.Kind, serviceErr.Message
	case types.KindNotFound:
		return http.StatusNotFound, serviceErr.Kind, serviceErr.Message
	case types.KindConflict, types.KindConflictSkipped:
		return http.StatusConflict, serviceErr.Kind, serviceErr.Message
	case types.KindRateLimited:
		return http.StatusTooManyRequests, serviceErr.Kind, serviceErr.Message
	case types.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable, serviceErr.Kind, serviceErr.Message
	case types.KindDecodeError, types.KindInvariant:
		return http.StatusInternalServerError, serviceErr.Kind, serviceErr.Message
	default:
		return http.StatusInternalServerError, types.KindInternal, "an internal error occurred"
	}
}
