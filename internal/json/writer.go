package json

import (
	"encoding/json"
	"net/http"

	"github.com/widgetboard/widget-auth/internal/log"
)

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Error codes returned by the refresh endpoint.
const (
	CodeInvalidGrant   = "invalid_grant"
	CodeTransient      = "temporarily_unavailable"
	CodeExchangeFailed = "exchange_failed"
	CodeConfigError    = "config_error"
	CodeBadRequest     = "bad_request"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal_server_error"
)

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, code string, message string) {
	response := ErrorResponse{
		Error:   code,
		Message: message,
	}

	if err := WriteResponse(w, statusCode, response); err != nil {
		http.Error(w, code+": "+message, statusCode)
	}
}

// WriteInvalidGrant tells the caller the stored refresh credential is dead and
// the account must be reconnected.
func WriteInvalidGrant(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidGrant, message)
}

func WriteTransient(w http.ResponseWriter, message string) {
	w.Header().Set("Retry-After", "5")
	WriteError(w, http.StatusServiceUnavailable, CodeTransient, message)
}

func WriteExchangeFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeExchangeFailed, message)
}

func WriteConfigError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeConfigError, message)
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, message)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeBadRequest, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}
