package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/campus-social/realtime-gateway/pkg/apperror"
)

// errorResponse mirrors the handler package's error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperror.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: apperror.Message(err),
		Code:  string(apperror.CodeOf(err)),
	})
}
