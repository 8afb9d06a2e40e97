package kanda

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokens is an in-memory TokenSource.
type fakeTokens struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (f *fakeTokens) GetToken() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) ClearToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.cleared++
	return nil
}

func (f *fakeTokens) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

func jsonResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens *fakeTokens) (*Client, *Gateway) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	gw, err := NewGateway(GatewayOpts{BaseURL: ts.URL, Tokens: tokens})
	require.NoError(t, err)
	return NewClient(gw), gw
}

func TestGateway_AttachesToken(t *testing.T) {
	var req *http.Request
	tokens := &fakeTokens{token: "abc123"}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req = r
		jsonResponse(w, http.StatusOK, `[{"id":"c1","name":"Aria","archetype":"Mago","gender":"f","physical_traits":[],"personality_traits":["curiosa"],"background":""}]`)
	}, tokens)

	chars, err := client.Characters.List(context.Background())
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "Aria", chars[0].Name)
	assert.Equal(t, []string{"curiosa"}, chars[0].PersonalityTraits)

	assert.Equal(t, "/characters/", req.URL.Path)
	assert.Equal(t, "Token abc123", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
}

func TestGateway_NoTokenNoHeader(t *testing.T) {
	var req *http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req = r
		jsonResponse(w, http.StatusOK, `{"status":"ok"}`)
	}, &fakeTokens{})

	health, err := client.Accounts.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health["status"])
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestGateway_UnauthorizedClearsSession(t *testing.T) {
	tokens := &fakeTokens{token: "stale"}
	client, gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusUnauthorized, `{"detail":"Invalid token."}`)
	}, tokens)

	var events []UnauthorizedEvent
	gw.OnUnauthorized(func(evt UnauthorizedEvent) {
		// The token is already gone when subscribers run
		_, ok := tokens.GetToken()
		assert.False(t, ok)
		events = append(events, evt)
	})

	_, err := client.Characters.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Invalid token.", apiErr.Message)

	assert.Equal(t, 1, tokens.clearCount())
	require.Len(t, events, 1)
	assert.Equal(t, UnauthorizedEvent{Method: http.MethodGet, Path: "/characters/"}, events[0])
}

func TestGateway_LoginUnauthorizedLeavesSession(t *testing.T) {
	tokens := &fakeTokens{token: "still-valid"}
	client, gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusUnauthorized, `{"error":"Credenciales inválidas"}`)
	}, tokens)

	emitted := false
	gw.OnUnauthorized(func(UnauthorizedEvent) { emitted = true })

	_, err := client.Accounts.Login(context.Background(), Credentials{Email: "a@b.co", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	assert.False(t, emitted)
	assert.Equal(t, 0, tokens.clearCount())
	v, ok := tokens.GetToken()
	assert.True(t, ok)
	assert.Equal(t, "still-valid", v)
}

func TestGateway_LoginMatchIsExact(t *testing.T) {
	// A path that merely contains the login segment is not the login endpoint
	tokens := &fakeTokens{token: "abc"}
	client, gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusUnauthorized, `{}`)
	}, tokens)

	emitted := 0
	gw.OnUnauthorized(func(UnauthorizedEvent) { emitted++ })

	err := gw.doJSON(context.Background(), http.MethodGet, "/audit/api-login/", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, emitted)
	assert.Equal(t, 1, tokens.clearCount())

	tokens.token = "abc"
	_, err = client.Accounts.Login(context.Background(), Credentials{Email: "a@b.co", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, emitted)
}

func TestGateway_LoginMatchHonoursBasePath(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		jsonResponse(w, http.StatusUnauthorized, `{}`)
	}))
	defer ts.Close()

	tokens := &fakeTokens{token: "abc"}
	gw, err := NewGateway(GatewayOpts{BaseURL: ts.URL + "/api/", Tokens: tokens})
	require.NoError(t, err)
	client := NewClient(gw)

	_, err = client.Accounts.Login(context.Background(), Credentials{Email: "a@b.co", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, tokens.clearCount())

	_, err = client.Accounts.Dashboard(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, tokens.clearCount())

	assert.Equal(t, []string{"/api/api-login/", "/api/api-dashboard/"}, paths)
}

func TestGateway_OtherErrorsDoNotTouchSession(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   ErrorKind
		target error
	}{
		{http.StatusBadRequest, `{"name":["This field is required."]}`, KindValidation, ErrValidation},
		{http.StatusForbidden, `{"detail":"forbidden"}`, KindForbidden, ErrForbidden},
		{http.StatusNotFound, `{"error":"Sala no encontrada"}`, KindNotFound, ErrNotFound},
		{http.StatusTooManyRequests, `{}`, KindRateLimited, ErrRateLimited},
		{http.StatusInternalServerError, `{}`, KindServer, ErrServer},
		{http.StatusBadGateway, `bad gateway`, KindServer, ErrServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			tokens := &fakeTokens{token: "abc"}
			client, gw := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				jsonResponse(w, tt.status, tt.body)
			}, tokens)
			emitted := false
			gw.OnUnauthorized(func(UnauthorizedEvent) { emitted = true })

			_, err := client.Rooms.Get(context.Background(), "r1")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, "/rooms/r1/", apiErr.Path)
			assert.Equal(t, tt.body, string(apiErr.Data))
			assert.True(t, errors.Is(err, tt.target))

			assert.False(t, emitted)
			assert.Equal(t, 0, tokens.clearCount())
		})
	}
}

func TestGateway_ValidationDataPassthrough(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusBadRequest, `{"error":"Todos los participantes deben estar listos","details":{"no_listos":["bob"]}}`)
	}, &fakeTokens{token: "abc"})

	_, err := client.Rooms.StartGame(context.Background(), "r1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Todos los participantes deben estar listos", apiErr.Message)
	assert.Equal(t, map[string]any{"no_listos": []any{"bob"}}, apiErr.DataMap()["details"])
}

func TestGateway_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	tokens := &fakeTokens{token: "abc"}
	gw, err := NewGateway(GatewayOpts{BaseURL: url, Tokens: tokens})
	require.NoError(t, err)

	_, err = NewClient(gw).Accounts.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Equal(t, 0, StatusOf(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.NotNil(t, apiErr.Err)
	assert.Equal(t, 0, tokens.clearCount())
}

func TestGateway_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	gw, err := NewGateway(GatewayOpts{BaseURL: ts.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = NewClient(gw).Accounts.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestGateway_PathAndQueryParams(t *testing.T) {
	var reqs []*http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reqs = append(reqs, r)
		switch r.URL.Path {
		case "/stories/":
			jsonResponse(w, http.StatusOK, `{}`)
		default:
			jsonResponse(w, http.StatusOK, `[]`)
		}
	}, &fakeTokens{token: "abc"})

	ctx := context.Background()
	_, err := client.Participants.ByRoom(ctx, "r1")
	require.NoError(t, err)
	story, err := client.Stories.ByRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, story, "empty object means no story yet")
	_, err = client.Chapters.ByStory(ctx, "s1")
	require.NoError(t, err)
	_, err = client.Actions.ByChapter(ctx, "ch1")
	require.NoError(t, err)

	require.Len(t, reqs, 4)
	assert.Equal(t, "/room-participants/by_room/", reqs[0].URL.Path)
	assert.Equal(t, "r1", reqs[0].URL.Query().Get("room_id"))
	assert.Equal(t, "r1", reqs[1].URL.Query().Get("room"))
	assert.Equal(t, "s1", reqs[2].URL.Query().Get("story"))
	assert.Equal(t, "ch1", reqs[3].URL.Query().Get("chapter"))
}

func TestGateway_InvalidBaseURL(t *testing.T) {
	for _, u := range []string{"localhost:8000", "://bad", "/relative"} {
		_, err := NewGateway(GatewayOpts{BaseURL: u})
		assert.Error(t, err, u)
	}

	gw, err := NewGateway(GatewayOpts{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, gw.BaseURL())
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestGateway_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	status := http.StatusOK
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, status, `{}`)
	}))
	defer ts.Close()

	gw, err := NewGateway(GatewayOpts{BaseURL: ts.URL, Tokens: &fakeTokens{token: "abc"}, Metrics: metrics})
	require.NoError(t, err)
	client := NewClient(gw)

	_, err = client.Accounts.Health(context.Background())
	require.NoError(t, err)
	status = http.StatusUnauthorized
	_, err = client.Accounts.Dashboard(context.Background())
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, families, "kanda_client_requests_total", map[string]string{"method": "GET", "status": "2xx"}))
	assert.Equal(t, 1.0, counterValue(t, families, "kanda_client_requests_total", map[string]string{"method": "GET", "status": "4xx"}))
	assert.Equal(t, 1.0, counterValue(t, families, "kanda_client_unauthorized_events_total", nil))

	// Registering twice on one registry fails
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
