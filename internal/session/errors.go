package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/raine/kanda-client/internal/kanda"
)

// ErrLoginInProgress is returned when Login is called while another login
// attempt has not finished yet.
var ErrLoginInProgress = errors.New("login already in progress")

// LoginErrorType classifies a rejected login.
type LoginErrorType string

const (
	InvalidCredentials LoginErrorType = "INVALID_CREDENTIALS"
	AccessDenied       LoginErrorType = "ACCESS_DENIED"
	RateLimitExceeded  LoginErrorType = "RATE_LIMIT_EXCEEDED"
	AuthError          LoginErrorType = "AUTH_ERROR"
)

// User-facing messages.
const (
	MsgInvalidCredentials = "invalid credentials"
	MsgAccessDenied       = "account not activated or access denied"
	MsgRateLimited        = "too many login attempts, try again later"
	MsgAuthError          = "authentication error"
	MsgSessionExpired     = "your session has expired, please log in again"
	MsgSessionInvalid     = "session is not valid"
	MsgVerifyFailed       = "could not verify session state"
	MsgUnreachable        = "could not connect to the server, check your connection"
)

// LoginError is returned by Login when the server answered with an error
// status. Data is the raw response body.
type LoginError struct {
	Status  int
	Data    []byte
	Type    LoginErrorType
	Message string

	err error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed (%s, status %d): %s", e.Type, e.Status, e.Message)
}

func (e *LoginError) Unwrap() error { return e.err }

// newLoginError maps a failed login response onto the login taxonomy.
func newLoginError(apiErr *kanda.APIError) *LoginError {
	e := &LoginError{
		Status: apiErr.Status,
		Data:   apiErr.Data,
		err:    apiErr,
	}
	switch apiErr.Status {
	case http.StatusUnauthorized:
		e.Type, e.Message = InvalidCredentials, MsgInvalidCredentials
	case http.StatusForbidden:
		e.Type, e.Message = AccessDenied, MsgAccessDenied
	case http.StatusTooManyRequests:
		e.Type, e.Message = RateLimitExceeded, MsgRateLimited
	default:
		e.Type, e.Message = AuthError, apiErr.Message
		if e.Message == "" {
			e.Message = MsgAuthError
		}
	}
	return e
}
