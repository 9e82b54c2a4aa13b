package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

// timeFormat is the timestamp layout used in every JSON response.
const timeFormat = time.RFC3339

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status
// code, error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// WriteDomainError maps a domain error to its HTTP status code and
// writes the standard error response. The sentinel error strings
// double as machine-readable error codes.
func WriteDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	var infraErr *domain.InfrastructureError
	if errors.As(err, &infraErr) {
		WriteError(w, http.StatusInternalServerError, "infrastructure_error",
			"A storage failure prevented the operation. It may be retried.")
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	message := "An unexpected error occurred."

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, "Invalid email or password."
	case errors.Is(err, domain.ErrNotOrderOwner):
		status, message = http.StatusForbidden, "The order belongs to another customer."
	case errors.Is(err, domain.ErrShareNotFound):
		status, message = http.StatusNotFound, "No active share with this ID exists."
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrPositionNotFound):
		status, message = http.StatusNotFound, "The requested resource does not exist."
	case errors.Is(err, domain.ErrCustomerExists):
		status, message = http.StatusConflict, "A customer with this email already exists."
	case errors.Is(err, domain.ErrOrderNotOpen):
		status, message = http.StatusConflict, "The order is already in a terminal state."
	case errors.Is(err, domain.ErrShareHasOpenInterest):
		status, message = http.StatusConflict, "The share has open orders or non-zero positions."
	case errors.Is(err, domain.ErrInsufficientFunds):
		status, message = http.StatusUnprocessableEntity, "Available balance does not cover the amount."
	case errors.Is(err, domain.ErrInsufficientPosition):
		status, message = http.StatusUnprocessableEntity, "Available position does not cover the quantity."
	}
	if status != http.StatusInternalServerError {
		code = err.Error()
	}

	WriteError(w, status, code, message)
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}
