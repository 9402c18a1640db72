package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindAuth       ErrorKind = "auth"
	KindForbidden  ErrorKind = "forbidden"
	KindNotFound   ErrorKind = "not_found"
	KindServer     ErrorKind = "server"
	KindNetwork    ErrorKind = "network"
	KindUnknown    ErrorKind = "unknown"
)

// Sentinels for errors.Is; an *APIError matches the one for its Kind.
var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrServer       = errors.New("server error")
	ErrNetwork      = errors.New("network error")
	ErrUnknown      = errors.New("unknown error")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation: ErrValidation,
	KindAuth:       ErrUnauthorized,
	KindForbidden:  ErrForbidden,
	KindNotFound:   ErrNotFound,
	KindServer:     ErrServer,
	KindNetwork:    ErrNetwork,
	KindUnknown:    ErrUnknown,
}

// APIError is returned when a request fails, either with an HTTP error
// status or in transport.
type APIError struct {
	Kind       ErrorKind
	StatusCode int    // Zero for network errors.
	StatusText string
	Code       string // Machine-readable code from the response envelope, if any.
	Message    string
	Details    any
	Body       []byte
	Err        error // Transport error for KindNetwork.
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("sieve: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("sieve: HTTP %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

// Is reports whether target is the sentinel for e.Kind.
func (e *APIError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status code onto the error taxonomy.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500 && status <= 599:
		return KindServer
	default:
		return KindUnknown
	}
}

// envelope is the {success, data, error, message} response shape.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

// newStatusError builds the error for a non-2xx response. The message comes
// from the response envelope when one is present, else from the status text.
func newStatusError(status int, body []byte) *APIError {
	e := &APIError{
		Kind:       KindForStatus(status),
		StatusCode: status,
		StatusText: http.StatusText(status),
		Body:       body,
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if len(env.Error) > 0 && string(env.Error) != "null" {
			var detail envelopeError
			var text string
			if err := json.Unmarshal(env.Error, &text); err == nil {
				e.Message = text
			} else if err := json.Unmarshal(env.Error, &detail); err == nil {
				e.Code = detail.Code
				e.Message = detail.Message
				e.Details = detail.Details
			}
		}
		if e.Message == "" {
			e.Message = env.Message
		}
	}

	if e.Message == "" {
		e.Message = e.StatusText
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

func newNetworkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: err.Error(), Err: err}
}

// classify wraps an error that did not come from the transport or a
// response: cancellation counts as a network failure, the rest is unknown.
func classify(err error) *APIError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newNetworkError(err)
	}
	return &APIError{Kind: KindUnknown, Message: err.Error(), Err: err}
}

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Retryable reports whether a failed request may be retried: network
// failures and status 408, 429, 500, 502, 503 and 504.
func Retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Kind == KindNetwork {
		return true
	}
	return retryableStatus[apiErr.StatusCode]
}
