// Package router maps view paths to routes and enforces the session guards.
// Navigation is driven by callers (the CLI, the app shell); the router never
// performs network calls.
package router

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Route names.
const (
	Home             = "home"
	Login            = "login"
	Register         = "register"
	ActivateEmail    = "activate-email"
	ActivateInvalid  = "activate-invalid"
	Activate         = "activate"
	ResendActivation = "resend-activation"
	Dashboard        = "dashboard"
	Characters       = "characters"
	Rooms            = "rooms"
	Room             = "room"
	NotFound         = "not-found"
)

// Guard restricts who may enter a route.
type Guard int

const (
	GuardNone Guard = iota
	RequireAuth
	RequireGuest
)

func (g Guard) String() string {
	switch g {
	case GuardNone:
		return "None"
	case RequireAuth:
		return "RequireAuth"
	case RequireGuest:
		return "RequireGuest"
	default:
		return "Unknown"
	}
}

// AuthChecker is the synchronous session check the guards consult.
type AuthChecker interface {
	IsAuthenticated() bool
}

// Route is one entry of the route table. Pattern segments starting with ':'
// capture a parameter.
type Route struct {
	Name    string
	Pattern string
	Guard   Guard
}

// Match is a resolved path.
type Match struct {
	Name   string
	Path   string
	Params map[string]string
}

// Routes is the application route table. Home redirects by session state
// and anything unmatched resolves to NotFound.
var Routes = []Route{
	{Name: Home, Pattern: "/"},
	{Name: Login, Pattern: "/login", Guard: RequireGuest},
	{Name: Register, Pattern: "/register", Guard: RequireGuest},
	{Name: ActivateEmail, Pattern: "/activate-email", Guard: RequireGuest},
	{Name: ActivateInvalid, Pattern: "/activate-invalid", Guard: RequireGuest},
	{Name: Activate, Pattern: "/activate/:uidb64/:token", Guard: RequireGuest},
	{Name: ResendActivation, Pattern: "/resend-activation", Guard: RequireGuest},
	{Name: Dashboard, Pattern: "/dashboard", Guard: RequireAuth},
	{Name: Characters, Pattern: "/characters", Guard: RequireAuth},
	{Name: Rooms, Pattern: "/rooms", Guard: RequireAuth},
	{Name: Room, Pattern: "/rooms/:id", Guard: RequireAuth},
}

// maxRedirects bounds guard redirect chains.
const maxRedirects = 5

// Router holds the current route.
type Router struct {
	auth   AuthChecker
	routes []Route
	paths  map[string]string

	mu        sync.RWMutex
	current   Match
	listeners []func(from, to Match)
}

// New creates a router over the default route table.
func New(auth AuthChecker) *Router {
	r := &Router{
		auth:   auth,
		routes: Routes,
		paths:  make(map[string]string, len(Routes)),
	}
	for _, route := range Routes {
		r.paths[route.Name] = route.Pattern
	}
	return r
}

// Resolve matches path against the route table without applying guards.
func (r *Router) Resolve(path string) Match {
	path = normalize(path)
	for _, route := range r.routes {
		if params, ok := match(route.Pattern, path); ok {
			return Match{Name: route.Name, Path: path, Params: params}
		}
	}
	return Match{Name: NotFound, Path: path}
}

func (r *Router) route(name string) Route {
	for _, route := range r.routes {
		if route.Name == name {
			return route
		}
	}
	return Route{Name: name}
}

// PathOf returns the path of a parameterless route.
func (r *Router) PathOf(name string) string {
	return r.paths[name]
}

// Target resolves path and follows guard redirects, returning where a
// navigation to path would end up.
func (r *Router) Target(path string) Match {
	m := r.Resolve(path)
	for n := 0; n < maxRedirects; n++ {
		next, redirected := r.redirect(m)
		if !redirected {
			return m
		}
		log.Debug().Str("from", m.Path).Str("to", next).Msg("route redirect")
		m = r.Resolve(next)
	}
	return m
}

func (r *Router) redirect(m Match) (string, bool) {
	authed := r.auth.IsAuthenticated()
	if m.Name == Home {
		if authed {
			return r.paths[Dashboard], true
		}
		return r.paths[Login], true
	}
	switch r.route(m.Name).Guard {
	case RequireAuth:
		if !authed {
			return r.paths[Login], true
		}
	case RequireGuest:
		if authed {
			return r.paths[Dashboard], true
		}
	}
	return "", false
}

// Navigate moves to path, applying guards, and notifies listeners when the
// route changes.
func (r *Router) Navigate(path string) Match {
	to := r.Target(path)

	r.mu.Lock()
	from := r.current
	r.current = to
	listeners := make([]func(from, to Match), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	if from.Path != to.Path {
		for _, fn := range listeners {
			fn(from, to)
		}
	}
	return to
}

// RedirectToLogin sends the user to the login view unless already there.
func (r *Router) RedirectToLogin() {
	if r.Current().Name == Login {
		return
	}
	r.Navigate(r.paths[Login])
}

// Current returns the active route.
func (r *Router) Current() Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnChange registers fn to be called after every route change.
func (r *Router) OnChange(fn func(from, to Match)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func match(pattern, path string) (map[string]string, bool) {
	if pattern == "/" || path == "/" {
		return nil, pattern == path
	}
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range want {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if got[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[name] = got[i]
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return params, true
}
