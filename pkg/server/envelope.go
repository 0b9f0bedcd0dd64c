// Package server implements the HTTP surface (spec §4.6): a uniform
// ApiResponse{success,data,error} envelope over plain net/http handlers,
// grounded on the teacher's pkg/server/attestation_handlers.go handler
// shape (manual method check, Content-Type header, json.NewDecoder/Encoder)
// — the envelope itself is new, layered on top of that shape.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/certen/independant-validator/pkg/apierr"
)

// ApiError is the error half of the envelope.
type ApiError struct {
	Kind    apierr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// ApiResponse is the uniform JSON envelope every endpoint returns.
type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ApiError   `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp ApiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeOK writes a 200 success envelope.
func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data})
}

// writeErr writes a non-2xx envelope whose error.kind matches the error's
// apierr.Kind (spec §7, §4.6 "All non-2xx responses carry error.kind").
func writeErr(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	writeJSON(w, statusFor(kind), ApiResponse{Success: false, Error: &ApiError{Kind: kind, Message: err.Error()}})
}

func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.InvalidInput:
		return http.StatusBadRequest
	case apierr.NotFound:
		return http.StatusNotFound
	case apierr.Unauthorised:
		return http.StatusUnauthorized
	case apierr.Mismatch:
		return http.StatusUnprocessableEntity
	case apierr.Expired:
		return http.StatusGone
	case apierr.Conflict:
		return http.StatusConflict
	case apierr.RPCError:
		return http.StatusBadGateway
	case apierr.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
