package httpapi

import (
	"encoding/json"
	"net/http"

	"blackboxd/internal/manager"
	"blackboxd/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps manager errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case manager.IsValidation(err):
		return http.StatusBadRequest
	case manager.IsNotFound(err):
		return http.StatusNotFound
	case manager.IsCapacity(err):
		return http.StatusConflict
	case manager.IsLaunch(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
