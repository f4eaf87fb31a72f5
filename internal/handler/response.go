package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so the API has one
// error shape:
//
//	{"error": "upstream_timeout", "message": "token exchange timed out"}
//
// "error" is machine-readable (apperror.Kind); "message" is the client-safe
// AppError.Message and never carries the underlying cause.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/saas-rbac/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sets headers, then status, then body. Headers set after the first
// Write are silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an apperror.Kind to its HTTP status.
var statusFor = map[string]int{
	"validation_error": http.StatusBadRequest,
	"missing_email":    http.StatusBadRequest,
	"unauthorized":     http.StatusUnauthorized,
	"forbidden":        http.StatusForbidden,
	"not_found":        http.StatusNotFound,
	"conflict":         http.StatusConflict,
	"upstream_error":   http.StatusBadGateway,
	"upstream_timeout": http.StatusGatewayTimeout,
}

// writeError maps a domain error to its status code and sends it.
//
// errors.As finds the *AppError anywhere in the chain, so service-layer
// wrapping like fmt.Errorf("service/auth: exchanged: %w", err) is fine.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	kind := apperror.Kind(err)
	status, known := statusFor[kind]

	if !known || !errors.As(err, &appErr) {
		// Internal details (SQL, file paths, upstream bodies) stay in the logs.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
	})
}
