package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/raine/kanda-client/internal/kanda/auth"
	"github.com/raine/kanda-client/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctrl   *Controller
	tokens *auth.TokenStore
	mem    *storage.MemoryStore
	gw     *kanda.Gateway
	clock  *fakeClock

	mu       sync.Mutex
	requests []string
	events   []kanda.UnauthorizedEvent
}

func (f *fixture) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{
		clock: &fakeClock{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)},
		mem:   storage.NewMemoryStore(),
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return f.connect(t, ts.URL)
}

func (f *fixture) connect(t *testing.T, baseURL string) *fixture {
	t.Helper()
	f.tokens = auth.NewTokenStore(f.mem, auth.WithClock(f.clock.Now))
	gw, err := kanda.NewGateway(kanda.GatewayOpts{BaseURL: baseURL, Tokens: f.tokens})
	require.NoError(t, err)
	gw.OnUnauthorized(func(evt kanda.UnauthorizedEvent) {
		f.mu.Lock()
		f.events = append(f.events, evt)
		f.mu.Unlock()
	})
	f.gw = gw
	f.ctrl = NewController(kanda.NewClient(gw).Accounts, f.tokens, f.mem)
	return f
}

// newOfflineFixture points the controller at a server that is not listening.
func newOfflineFixture(t *testing.T) *fixture {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()
	f := &fixture{
		clock: &fakeClock{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)},
		mem:   storage.NewMemoryStore(),
	}
	return f.connect(t, url)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if s, ok := v.(string); ok {
		io.WriteString(w, s)
		return
	}
	json.NewEncoder(w).Encode(v)
}

var validCreds = kanda.Credentials{Email: "ana@example.com", Password: "hunter22"}

func TestLogin_Success(t *testing.T) {
	var body map[string]string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, `{"token":"tok-1","expires_in":3600,"user":{"id":"u1","username":"ana","email":"ana@example.com"}}`)
	})

	var states []State
	f.ctrl.OnChange(func(s State) { states = append(states, s) })

	res, err := f.ctrl.Login(context.Background(), validCreds)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, map[string]string{"email": "ana@example.com", "password": "hunter22"}, body)

	rec, ok := f.tokens.Record()
	require.True(t, ok)
	assert.Equal(t, "tok-1", rec.Value)
	assert.Equal(t, 3600, rec.TTLSeconds)

	st := f.ctrl.State()
	assert.True(t, st.Authenticated)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Equal(t, PhaseAuthenticated, st.Phase())

	require.NotEmpty(t, states)
	assert.True(t, states[0].Loading)
	assert.False(t, states[len(states)-1].Loading)

	user := f.ctrl.CurrentUser()
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "ana", user.Username)

	token, ok := f.ctrl.CurrentToken()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.True(t, f.ctrl.IsAuthenticated())
}

func TestLogin_DefaultTTL(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"token":"tok-1"}`)
	})

	_, err := f.ctrl.Login(context.Background(), validCreds)
	require.NoError(t, err)

	rec, ok := f.tokens.Record()
	require.True(t, ok)
	assert.Equal(t, auth.DefaultTokenTTL, rec.TTLSeconds)
	assert.Nil(t, f.ctrl.CurrentUser())
}

func TestLogin_BadCredentialsKeepsPriorToken(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error":"Credenciales inválidas"}`)
	})
	require.NoError(t, f.tokens.SetToken("previous", 3600))

	_, err := f.ctrl.Login(context.Background(), kanda.Credentials{Email: "u", Password: "bad"})
	require.Error(t, err)

	var loginErr *LoginError
	require.True(t, errors.As(err, &loginErr))
	assert.Equal(t, InvalidCredentials, loginErr.Type)
	assert.Equal(t, http.StatusUnauthorized, loginErr.Status)
	assert.Equal(t, MsgInvalidCredentials, loginErr.Message)
	assert.JSONEq(t, `{"error":"Credenciales inválidas"}`, string(loginErr.Data))
	assert.True(t, errors.Is(err, kanda.ErrUnauthorized))

	st := f.ctrl.State()
	assert.False(t, st.Authenticated)
	assert.False(t, st.Loading)
	assert.Equal(t, MsgInvalidCredentials, st.Error)

	token, ok := f.tokens.GetToken()
	assert.True(t, ok)
	assert.Equal(t, "previous", token)
	assert.Empty(t, f.events)
}

func TestLogin_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		typ     LoginErrorType
		message string
	}{
		{http.StatusForbidden, `{"error":"Cuenta no activada"}`, AccessDenied, MsgAccessDenied},
		{http.StatusTooManyRequests, `{}`, RateLimitExceeded, MsgRateLimited},
		{http.StatusBadRequest, `{"error":"Email y contraseña son requeridos"}`, AuthError, "Email y contraseña son requeridos"},
		{http.StatusInternalServerError, `{}`, AuthError, MsgAuthError},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := f.ctrl.Login(context.Background(), validCreds)
			var loginErr *LoginError
			require.True(t, errors.As(err, &loginErr))
			assert.Equal(t, tt.typ, loginErr.Type)
			assert.Equal(t, tt.status, loginErr.Status)
			assert.Equal(t, tt.message, loginErr.Message)
			assert.Equal(t, tt.message, f.ctrl.State().Error)
			assert.False(t, f.ctrl.State().Loading)
		})
	}
}

func TestLogin_NetworkFailure(t *testing.T) {
	f := newOfflineFixture(t)

	_, err := f.ctrl.Login(context.Background(), validCreds)
	require.Error(t, err)

	var loginErr *LoginError
	assert.False(t, errors.As(err, &loginErr))
	assert.True(t, errors.Is(err, kanda.ErrNetwork))

	st := f.ctrl.State()
	assert.Equal(t, err.Error(), st.Error)
	assert.False(t, st.Loading)
	assert.False(t, st.Authenticated)
}

func TestLogin_ValidatesBeforeRequest(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"token":"tok"}`)
	})

	_, err := f.ctrl.Login(context.Background(), kanda.Credentials{Email: "ana@example.com"})
	require.Error(t, err)
	assert.Empty(t, f.paths())
	assert.Equal(t, MsgInvalidCredentials, f.ctrl.State().Error)
}

func TestLogin_SecondCallWhileInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		writeJSON(w, http.StatusOK, `{"token":"tok-1"}`)
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Login(context.Background(), validCreds)
		done <- err
	}()

	<-entered
	_, err := f.ctrl.Login(context.Background(), validCreds)
	assert.ErrorIs(t, err, ErrLoginInProgress)
	assert.True(t, f.ctrl.State().Loading)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"POST /api-login/"}, f.paths())
	assert.True(t, f.ctrl.State().Authenticated)
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"error":"boom"}`)
	})
	require.NoError(t, f.tokens.SetToken("abc", 3600))
	require.NoError(t, f.mem.SetMany(map[string]string{UserKey: `{"id":"u1"}`}))

	f.ctrl.Logout(context.Background())

	_, ok := f.tokens.GetToken()
	assert.False(t, ok)
	assert.False(t, f.ctrl.State().Authenticated)
	assert.Nil(t, f.ctrl.CurrentUser())
	assert.Equal(t, []string{"POST /api-logout/"}, f.paths())
}

func TestLogout_Offline(t *testing.T) {
	f := newOfflineFixture(t)
	require.NoError(t, f.tokens.SetToken("abc", 3600))

	f.ctrl.Logout(context.Background())

	_, ok := f.tokens.GetToken()
	assert.False(t, ok)
	assert.False(t, f.ctrl.State().Authenticated)
}

func TestLogout_WithoutTokenSkipsServer(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	f.ctrl.Logout(context.Background())
	f.ctrl.Logout(context.Background())

	assert.Empty(t, f.paths())
	assert.False(t, f.ctrl.State().Authenticated)
}

func TestCheckAuthStatus_BackendDown(t *testing.T) {
	f := newOfflineFixture(t)
	require.NoError(t, f.tokens.SetToken("keep-me", 3600))

	f.ctrl.CheckAuthStatus(context.Background())

	st := f.ctrl.State()
	assert.False(t, st.Authenticated)
	assert.Equal(t, MsgUnreachable, st.ConnectionError)
	assert.Empty(t, st.Error)
	assert.False(t, st.Loading)

	token, ok := f.tokens.GetToken()
	assert.True(t, ok)
	assert.Equal(t, "keep-me", token)
}

func TestCheckAuthStatus_HealthErrorStatus(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"status":"unhealthy"}`)
	})
	require.NoError(t, f.tokens.SetToken("keep-me", 3600))

	f.ctrl.CheckAuthStatus(context.Background())

	assert.Equal(t, MsgUnreachable, f.ctrl.State().ConnectionError)
	_, ok := f.tokens.GetToken()
	assert.True(t, ok)
}

func TestCheckAuthStatus_NoToken(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"healthy"}`)
	})

	f.ctrl.CheckAuthStatus(context.Background())

	st := f.ctrl.State()
	assert.False(t, st.Authenticated)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.ConnectionError)
	assert.Equal(t, PhaseAnonymous, st.Phase())
	assert.Equal(t, []string{"GET /system/health/"}, f.paths())
}

func TestCheckAuthStatus_LocallyExpired(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"healthy"}`)
	})
	require.NoError(t, f.tokens.SetToken("abc", 60))
	f.clock.Advance(2 * time.Minute)

	f.ctrl.CheckAuthStatus(context.Background())

	st := f.ctrl.State()
	assert.False(t, st.Authenticated)
	assert.Equal(t, MsgSessionExpired, st.Error)
	_, ok := f.tokens.GetToken()
	assert.False(t, ok)
	assert.Equal(t, []string{"GET /system/health/"}, f.paths())
}

func TestCheckAuthStatus_Verdicts(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		authed      bool
		wantErr     string
		tokenKept   bool
		unauthEvent bool
	}{
		{"valid", http.StatusOK, `{"authenticated":true}`, true, "", true, false},
		{"server expired", http.StatusOK, `{"authenticated":false,"status":"expired_token"}`, false, MsgSessionExpired, false, false},
		{"rejected with message", http.StatusOK, `{"authenticated":false,"message":"Token revocado"}`, false, "Token revocado", false, false},
		{"rejected without message", http.StatusOK, `{"authenticated":false}`, false, MsgSessionInvalid, false, false},
		{"verify 401", http.StatusUnauthorized, `{"detail":"Invalid token."}`, false, "Invalid token.", false, true},
		{"verify 500", http.StatusInternalServerError, `{}`, false, MsgVerifyFailed, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == kanda.HealthPath {
					writeJSON(w, http.StatusOK, `{"status":"healthy"}`)
					return
				}
				assert.Equal(t, "Token abc", r.Header.Get("Authorization"))
				writeJSON(w, tt.status, tt.body)
			})
			require.NoError(t, f.tokens.SetToken("abc", 3600))

			f.ctrl.CheckAuthStatus(context.Background())

			st := f.ctrl.State()
			assert.Equal(t, tt.authed, st.Authenticated)
			assert.Equal(t, tt.wantErr, st.Error)
			assert.Empty(t, st.ConnectionError)
			assert.False(t, st.Loading)

			_, ok := f.tokens.GetToken()
			assert.Equal(t, tt.tokenKept, ok)
			assert.Equal(t, tt.unauthEvent, len(f.events) == 1)
			assert.Equal(t, []string{"GET /system/health/", "GET /test-auth/"}, f.paths())
		})
	}
}

func TestPassthroughs(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case kanda.RegisterPath:
			writeJSON(w, http.StatusCreated, `{"message":"Usuario registrado","user":{"id":"u9","username":"ana","email":"ana@example.com"}}`)
		case "/api-activate/MTI/abc-123/":
			writeJSON(w, http.StatusOK, `{"message":"Cuenta activada"}`)
		case kanda.ResendActivationPath:
			writeJSON(w, http.StatusOK, `{"message":"Correo reenviado"}`)
		case kanda.DashboardPath:
			writeJSON(w, http.StatusOK, `{"user":{"id":"u9","username":"ana","email":"ana@example.com"},"message":"Bienvenida"}`)
		default:
			writeJSON(w, http.StatusNotFound, `{}`)
		}
	})
	ctx := context.Background()

	reg, err := f.ctrl.Register(ctx, kanda.Registration{Email: "ana@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "u9", reg.User.ID)

	_, err = f.ctrl.Register(ctx, kanda.Registration{Email: "not-an-email", Password: "secret"})
	assert.Error(t, err)

	act, err := f.ctrl.Activate(ctx, "MTI", "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "Cuenta activada", act.Message)

	resent, err := f.ctrl.ResendActivation(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Correo reenviado", resent.Message)

	_, err = f.ctrl.ResendActivation(ctx, "")
	assert.Error(t, err)

	dash, err := f.ctrl.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana", dash.User.Username)

	assert.Equal(t, []string{
		"POST /api-register/",
		"GET /api-activate/MTI/abc-123/",
		"POST /api-resend-activation/",
		"GET /api-dashboard/",
	}, f.paths())
}
