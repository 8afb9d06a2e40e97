// Package session tracks whether the user is logged in to the Kanda backend.
// It owns the login and logout flows and the startup session check; the
// token itself lives in an auth.TokenStore.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/raine/kanda-client/internal/kanda"
	"github.com/raine/kanda-client/internal/kanda/auth"
	"github.com/raine/kanda-client/internal/storage"
	"github.com/rs/zerolog/log"
)

// UserKey is the storage key of the logged-in user's profile.
const UserKey = "user"

// Phase is the coarse session state derived from State.
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "Anonymous"
	case PhaseAuthenticating:
		return "Authenticating"
	case PhaseAuthenticated:
		return "Authenticated"
	case PhaseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// State is a snapshot of the session fields.
type State struct {
	Authenticated bool
	Loading       bool
	// Error is the last authentication failure. It is cleared at the start
	// of every attempt.
	Error string
	// ConnectionError is set when the backend could not be reached.
	ConnectionError string
}

// Phase reports the coarse state.
func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseAuthenticating
	case s.Authenticated:
		return PhaseAuthenticated
	case s.Error != "" || s.ConnectionError != "":
		return PhaseError
	default:
		return PhaseAnonymous
	}
}

// Controller drives the session state machine.
type Controller struct {
	api      kanda.AccountService
	tokens   *auth.TokenStore
	store    storage.KeyValueStore
	validate *validator.Validate

	loggingIn atomic.Bool

	mu        sync.RWMutex
	state     State
	listeners []func(State)
}

// NewController creates a controller. store holds the cached user profile
// and is normally the same store that backs tokens. The state starts out
// unauthenticated until Login or CheckAuthStatus runs.
func NewController(api kanda.AccountService, tokens *auth.TokenStore, store storage.KeyValueStore) *Controller {
	return &Controller{
		api:      api,
		tokens:   tokens,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnChange registers fn to receive every new state.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snapshot := c.state
	listeners := make([]func(State), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// IsAuthenticated reports whether a non-expired token is stored. It never
// touches the network.
func (c *Controller) IsAuthenticated() bool {
	return c.tokens.IsAuthenticated()
}

// CurrentToken returns the stored token, ignoring expiry.
func (c *Controller) CurrentToken() (string, bool) {
	return c.tokens.GetToken()
}

// CurrentUser returns the profile saved at login, or nil.
func (c *Controller) CurrentUser() *kanda.User {
	raw, ok, err := c.store.Get(UserKey)
	if err != nil || !ok {
		return nil
	}
	var u kanda.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Warn().Err(err).Msg("discarding unreadable stored user")
		return nil
	}
	return &u
}

// Login authenticates with the backend and stores the issued token. A
// rejected login returns *LoginError; a transport failure returns the
// gateway error unchanged.
func (c *Controller) Login(ctx context.Context, creds kanda.Credentials) (*kanda.LoginResponse, error) {
	if !c.loggingIn.CompareAndSwap(false, true) {
		return nil, ErrLoginInProgress
	}
	defer c.loggingIn.Store(false)

	c.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})
	defer c.update(func(s *State) { s.Loading = false })

	if err := c.validate.Struct(creds); err != nil {
		c.update(func(s *State) { s.Error = MsgInvalidCredentials })
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	res, err := c.api.Login(ctx, creds)
	if err != nil {
		var apiErr *kanda.APIError
		if errors.As(err, &apiErr) && apiErr.Kind != kanda.KindNetwork {
			loginErr := newLoginError(apiErr)
			log.Info().Str("type", string(loginErr.Type)).Int("status", loginErr.Status).Msg("login rejected")
			c.update(func(s *State) { s.Error = loginErr.Message })
			return nil, loginErr
		}
		c.update(func(s *State) { s.Error = err.Error() })
		return nil, err
	}

	if res.Token == "" {
		c.update(func(s *State) { s.Error = MsgAuthError })
		return nil, errors.New("login response did not include a token")
	}

	if err := c.tokens.SetToken(res.Token, res.ExpiresIn); err != nil {
		c.update(func(s *State) { s.Error = err.Error() })
		return nil, err
	}
	if res.User != nil {
		c.saveUser(res.User)
	}

	log.Info().Msg("logged in")
	c.update(func(s *State) { s.Authenticated = true })
	return res, nil
}

func (c *Controller) saveUser(u *kanda.User) {
	b, err := json.Marshal(u)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode user profile")
		return
	}
	if err := c.store.SetMany(map[string]string{UserKey: string(b)}); err != nil {
		log.Warn().Err(err).Msg("failed to store user profile")
	}
}

// Logout tells the server to end the session and clears local state. The
// local cleanup always runs, whatever the server call does.
func (c *Controller) Logout(ctx context.Context) {
	defer func() {
		if err := c.tokens.ClearToken(); err != nil {
			log.Error().Err(err).Msg("failed to clear token on logout")
		}
		if err := c.store.DeleteMany(UserKey); err != nil {
			log.Warn().Err(err).Msg("failed to clear stored user on logout")
		}
		c.update(func(s *State) {
			s.Authenticated = false
			s.Error = ""
		})
	}()

	if _, ok := c.tokens.GetToken(); !ok {
		return
	}
	if err := c.api.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("server logout failed, continuing with local logout")
	}
}

// CheckAuthStatus reconciles the local session with the server. An
// unreachable backend sets ConnectionError and keeps the stored token.
func (c *Controller) CheckAuthStatus(ctx context.Context) {
	c.update(func(s *State) {
		s.Loading = true
		s.Error = ""
		s.ConnectionError = ""
	})
	defer c.update(func(s *State) { s.Loading = false })

	if _, err := c.api.Health(ctx); err != nil {
		log.Warn().Err(err).Msg("backend unreachable")
		c.update(func(s *State) {
			s.Authenticated = false
			s.ConnectionError = MsgUnreachable
		})
		return
	}

	if _, ok := c.tokens.GetToken(); !ok {
		c.update(func(s *State) { s.Authenticated = false })
		return
	}

	if c.tokens.IsTokenExpired() {
		log.Info().Msg("stored token expired locally")
		c.invalidate(MsgSessionExpired)
		return
	}

	verdict, err := c.api.Verify(ctx)
	if err != nil {
		var apiErr *kanda.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == kanda.KindUnauthorized {
			c.invalidate(orDefault(apiErr.Message, MsgSessionInvalid))
			return
		}
		log.Error().Err(err).Msg("token verification failed")
		c.update(func(s *State) { s.Error = MsgVerifyFailed })
		return
	}

	switch {
	case verdict.Authenticated:
		c.update(func(s *State) { s.Authenticated = true })
	case verdict.Status == kanda.VerifyStatusExpired:
		c.invalidate(MsgSessionExpired)
	default:
		c.invalidate(orDefault(verdict.Message, MsgSessionInvalid))
	}
}

// invalidate drops the stored token after a negative verdict.
func (c *Controller) invalidate(msg string) {
	if err := c.tokens.ClearToken(); err != nil {
		log.Error().Err(err).Msg("failed to clear rejected token")
	}
	c.update(func(s *State) {
		s.Authenticated = false
		s.Error = msg
	})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (c *Controller) Register(ctx context.Context, reg kanda.Registration) (*kanda.RegisterResponse, error) {
	if err := c.validate.Struct(reg); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}
	return c.api.Register(ctx, reg)
}

func (c *Controller) Activate(ctx context.Context, uid, token string) (*kanda.MessageResponse, error) {
	return c.api.Activate(ctx, uid, token)
}

func (c *Controller) ResendActivation(ctx context.Context, email string) (*kanda.MessageResponse, error) {
	if err := c.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	return c.api.ResendActivation(ctx, email)
}

func (c *Controller) Dashboard(ctx context.Context) (*kanda.DashboardResponse, error) {
	return c.api.Dashboard(ctx)
}
