// Package dto provides the JSON envelopes shared by handlers and middleware.
package dto

import (
	"encoding/json"
	"net/http"

	"github.com/solarvest/platform/internal/model"
)

// Error codes returned in the error envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeNotFound     = "NOT_FOUND"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
)

// Response is the success envelope.
type Response struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data"`
	Pagination *model.Pagination `json:"pagination,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Details []model.ValidationError `json:"details,omitempty"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes data in the success envelope.
func OK(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Success: true, Data: data})
}

// Page writes a list with its pagination block.
func Page[T any](w http.ResponseWriter, items []T, total int64, p model.Page) {
	if items == nil {
		items = []T{}
	}
	pg := model.NewPagination(p, total)
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: items, Pagination: &pg})
}

// Error writes the error envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// ValidationFailed writes a 400 with per-field details.
func ValidationFailed(w http.ResponseWriter, errs model.ValidationErrors) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
		Code:    CodeValidation,
		Message: "Request validation failed",
		Details: errs,
	}})
}
