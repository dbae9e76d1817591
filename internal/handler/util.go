// Package handler exposes the gateway's REST collaborator endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/campus-social/realtime-gateway/pkg/apperror"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes it as JSON. Internal
// causes are never exposed.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperror.HTTPStatus(err), ErrorResponse{
		Error: apperror.Message(err),
		Code:  string(apperror.CodeOf(err)),
	})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.Validation("request body too large")
		case errors.Is(err, io.EOF):
			return apperror.Validation("request body is required")
		default:
			return apperror.Validation("invalid request body")
		}
	}
	return nil
}
