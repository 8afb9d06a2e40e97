package kanda

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed backend call.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindServer
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkUnreachable"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindRateLimited:
		return "RateLimited"
	case KindServer:
		return "ServerError"
	case KindValidation:
		return "ValidationError"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is against *APIError.
var (
	ErrNetwork      = errors.New("network unreachable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
	ErrValidation   = errors.New("validation error")
)

var kindSentinels = map[ErrorKind]error{
	KindNetwork:      ErrNetwork,
	KindUnauthorized: ErrUnauthorized,
	KindForbidden:    ErrForbidden,
	KindNotFound:     ErrNotFound,
	KindRateLimited:  ErrRateLimited,
	KindServer:       ErrServer,
	KindValidation:   ErrValidation,
}

// APIError is returned for every failed call made through the Gateway.
type APIError struct {
	Kind   ErrorKind
	Status int // 0 when no response was received
	Method string
	Path   string
	// Data is the raw response body, passed through verbatim.
	Data []byte
	// Message is the server-supplied error text, if any.
	Message string
	// Err is the transport error for KindNetwork.
	Err error
}

func (e *APIError) Error() string {
	if e.Kind == KindNetwork {
		return fmt.Sprintf("request failed: %s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("request failed: %s %s (status: %d): %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("request failed: %s %s (status: %d)", e.Method, e.Path, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so errors.Is(err, ErrUnauthorized) works.
func (e *APIError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// DataMap decodes Data as a JSON object. It returns nil when Data is not one.
func (e *APIError) DataMap() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil
	}
	return m
}

// KindForStatus maps an HTTP error status to its ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// serverMessage extracts the human-readable message from an error body.
// The backend uses "error"; DRF endpoints use "detail"; some use "message".
func serverMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch {
	case payload.Error != "":
		return payload.Error
	case payload.Detail != "":
		return payload.Detail
	default:
		return payload.Message
	}
}
