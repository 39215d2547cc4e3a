// Package api provides the HTTP+JSON API and live render sessions for
// Prompt Finder.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
)

// maxBodyBytes bounds request bodies, including preset imports.
const maxBodyBytes = 1 << 20

// APIError is the standard error response format.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSONResponse writes a successful JSON response.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// JSONResponseStatus writes a JSON response with a specific status code.
func JSONResponseStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes a simple error response.
func JSONError(w http.ResponseWriter, message string, status int) {
	JSONResponseStatus(w, APIError{Error: message}, status)
}

// HandleError inspects the error type and writes the matching response.
// PFErrors map to their category status; anything else is a 500.
func HandleError(w http.ResponseWriter, err error) {
	var pfErr *pferrors.PFError
	if errors.As(err, &pfErr) {
		JSONResponseStatus(w, APIError{
			Error: pfErr.What,
			Code:  string(pfErr.Code),
		}, pfErr.HTTPStatus())
		return
	}
	JSONError(w, err.Error(), http.StatusInternalServerError)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
