package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope returned by every endpoint.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message       string      `json:"message"`
	Type          string      `json:"type"`
	Code          string      `json:"code"`
	HelmsmanReqID string      `json:"helmsman_request_id,omitempty"`
	Details       interface{} `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	WriteErrorDetails(w, requestID, statusCode, errType, code, message, nil)
}

// WriteErrorDetails writes the envelope with an optional structured payload,
// used for constraint failures that carry a nearest-miss suggestion.
func WriteErrorDetails(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:       message,
			Type:          errType,
			Code:          code,
			HelmsmanReqID: requestID,
			Details:       details,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_api_key", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "service_unavailable", message)
}

func WriteNoEligibleModelError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnprocessableEntity, "routing_error", "no_eligible_model", message)
}

func WriteConstraintError(w http.ResponseWriter, requestID, message string, suggestion interface{}) {
	WriteErrorDetails(w, requestID, http.StatusUnprocessableEntity, "routing_error", "constraint_unsatisfiable", message, suggestion)
}

func WriteBudgetExceededError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusPaymentRequired, "budget_error", "budget_exceeded", message)
}
