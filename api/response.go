package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/asaidimu/go-sieve/core/persistence"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Error codes carried in APIError.Code.
const (
	CodeInvalidJSON      = "INVALID_JSON"
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Message string    `json:"message,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// validationError marks request content that parsed but is not acceptable.
type validationError struct {
	message string
	err     error
}

func (e *validationError) Error() string { return e.message + ": " + e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

func (s *Server) writeSuccessResponse(w http.ResponseWriter, statusCode int, data any) {
	s.writeJSONResponse(w, statusCode, APIResponse{Success: true, Data: data})
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details any) {
	s.writeJSONResponse(w, statusCode, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
	})
}

// writeError maps a service error onto a status code and error code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *validationError
	switch {
	case errors.As(err, &invalid):
		s.writeErrorResponse(w, http.StatusBadRequest, CodeValidation, invalid.message, errorDetails(invalid.err))
	case errors.Is(err, persistence.ErrInvalidRuleSet), errors.Is(err, persistence.ErrInvalidCollection):
		s.writeErrorResponse(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.Is(err, persistence.ErrRuleSetNotFound):
		s.writeErrorResponse(w, http.StatusNotFound, CodeNotFound, "Rule set not found", err.Error())
	default:
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.writeErrorResponse(w, http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
	}
}

// errorDetails lists the individual failures of an aggregated error.
func errorDetails(err error) any {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		details := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			details = append(details, e.Error())
		}
		return details
	}
	return err.Error()
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}
