package kanda

import (
	"context"
	"fmt"
	"net/http"
)

// Account endpoints. Paths are relative to the base URL; the login check in
// the gateway compares against LoginPath exactly.
const (
	RegisterPath         = "/api-register/"
	LoginPath            = "/api-login/"
	ActivatePath         = "/api-activate/{uid}/{token}/"
	ResendActivationPath = "/api-resend-activation/"
	LogoutPath           = "/api-logout/"
	DashboardPath        = "/api-dashboard/"
	HealthPath           = "/system/health/"
	VerifyTokenPath      = "/test-auth/"
)

// VerifyStatusExpired is the verify endpoint's status for a server-expired token.
const VerifyStatusExpired = "expired_token"

// Credentials are the login form fields.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Registration is the sign-up payload. The server derives Username from
// the email when it is empty.
type Registration struct {
	Username  string `json:"username,omitempty" validate:"omitempty,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// User is the profile embedded in login and dashboard responses.
type User struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	FirstName  string  `json:"first_name,omitempty"`
	LastName   string  `json:"last_name,omitempty"`
	LastLogin  *string `json:"last_login,omitempty"`
	DateJoined *string `json:"date_joined,omitempty"`
}

// LoginResponse is returned by the login endpoint.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in,omitempty"`
	User      *User  `json:"user,omitempty"`
}

// MessageResponse is the generic {"message": ...} acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterResponse confirms a created user.
type RegisterResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// DashboardResponse is the authenticated summary.
type DashboardResponse struct {
	User    User   `json:"user"`
	Message string `json:"message"`
}

// VerifyResponse is the server verdict on the current token.
type VerifyResponse struct {
	Authenticated bool   `json:"authenticated"`
	Status        string `json:"status,omitempty"`
	Message       string `json:"message,omitempty"`
	User          *User  `json:"user,omitempty"`
}

// HealthResponse is the health probe payload. Only reachability matters to
// the session logic; the contents are informational.
type HealthResponse map[string]any

// AccountsAPI wraps the account and session endpoints.
type AccountsAPI struct {
	gw *Gateway
}

func (a *AccountsAPI) Register(ctx context.Context, reg Registration) (*RegisterResponse, error) {
	var result RegisterResponse
	if err := a.gw.doJSON(ctx, http.MethodPost, RegisterPath, reg, &result, nil); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &result, nil
}

// Login posts credentials. A 401 here means bad credentials, not an expired
// session; the gateway leaves the stored token alone.
func (a *AccountsAPI) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	var result LoginResponse
	if err := a.gw.doJSON(ctx, http.MethodPost, LoginPath, creds, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// Activate confirms an account from the emailed link parts.
func (a *AccountsAPI) Activate(ctx context.Context, uid, token string) (*MessageResponse, error) {
	var result MessageResponse
	err := a.gw.doJSON(ctx, http.MethodGet, ActivatePath, nil, &result, &requestOptions{
		pathParams: map[string]string{"uid": uid, "token": token},
	})
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	return &result, nil
}

func (a *AccountsAPI) ResendActivation(ctx context.Context, email string) (*MessageResponse, error) {
	var result MessageResponse
	body := map[string]string{"email": email}
	if err := a.gw.doJSON(ctx, http.MethodPost, ResendActivationPath, body, &result, nil); err != nil {
		return nil, fmt.Errorf("resend activation: %w", err)
	}
	return &result, nil
}

// Logout tells the server to drop the token. Callers treat failure as non-fatal.
func (a *AccountsAPI) Logout(ctx context.Context) error {
	return a.gw.doJSON(ctx, http.MethodPost, LogoutPath, nil, nil, nil)
}

func (a *AccountsAPI) Dashboard(ctx context.Context) (*DashboardResponse, error) {
	var result DashboardResponse
	if err := a.gw.doJSON(ctx, http.MethodGet, DashboardPath, nil, &result, nil); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return &result, nil
}

// Health probes backend reachability. Any non-2xx or transport error is
// returned as-is.
func (a *AccountsAPI) Health(ctx context.Context) (HealthResponse, error) {
	result := HealthResponse{}
	if err := a.gw.doJSON(ctx, http.MethodGet, HealthPath, nil, &result, nil); err != nil {
		return nil, err
	}
	return result, nil
}

// Verify asks the server whether the stored token is still valid.
func (a *AccountsAPI) Verify(ctx context.Context) (*VerifyResponse, error) {
	var result VerifyResponse
	if err := a.gw.doJSON(ctx, http.MethodGet, VerifyTokenPath, nil, &result, nil); err != nil {
		return nil, err
	}
	return &result, nil
}
