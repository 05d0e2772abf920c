package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oxbow-io/oxbow/internal/streambuf"
)

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeBufferError maps buffer errors onto HTTP status codes.
//
// Invalid input is 400, append-after-finalize is 409, an expired buffer is
// 410, and anything else is a storage failure.
func writeBufferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, streambuf.ErrInvalidEvent), errors.Is(err, streambuf.ErrInvalidStream):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, streambuf.ErrFinalized):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, streambuf.ErrExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, streambuf.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "storage failure")
	}
}
