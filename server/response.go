package server

import (
	"encoding/json"
	"net/http"

	"github.com/rogermt/forgesyte-sub004/errors"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error body of the form {"detail": message}
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

// writeErrorFromErr maps an error to its HTTP status and writes it.
func writeErrorFromErr(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

// statusForError maps sentinel errors to HTTP status codes.
// Unknown plugins are 404 (the resource does not exist); bad tools and
// input kinds are 400 (the request is malformed against a live plugin).
func statusForError(err error) int {
	switch {
	case errors.Is(err, errors.ErrUnknownPlugin):
		return http.StatusNotFound
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.IsServiceUnavailableError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
