package kanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 10 * time.Second
)

// TokenSource is the slice of the token store the gateway needs.
type TokenSource interface {
	GetToken() (string, bool)
	ClearToken() error
}

// UnauthorizedEvent is emitted when a non-login request comes back 401 and
// the stored session has been cleared.
type UnauthorizedEvent struct {
	Method string
	Path   string
}

// GatewayOpts configures a Gateway.
type GatewayOpts struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	Metrics *Metrics
}

// Gateway is the single HTTP client every backend call goes through. It
// attaches the session token to outgoing requests and invalidates the session
// on unsolicited 401 responses.
type Gateway struct {
	httpClient *resty.Client
	baseURL    string
	tokens     TokenSource
	metrics    *Metrics
	loginPath  string

	mu                   sync.RWMutex
	unauthorizedHandlers []func(UnauthorizedEvent)
}

// NewGateway creates a gateway. Tokens may be nil for unauthenticated use.
func NewGateway(opts GatewayOpts) (*Gateway, error) {
	g := &Gateway{
		baseURL: DefaultBaseURL,
		tokens:  opts.Tokens,
		metrics: opts.Metrics,
	}
	if opts.BaseURL != "" {
		g.baseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	timeout := DefaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	base, err := url.Parse(g.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", g.baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", g.baseURL)
	}
	g.loginPath = strings.TrimSuffix(base.Path, "/") + LoginPath

	g.httpClient = resty.New().
		SetDebug(false).
		SetLogger(restyLogger{}).
		SetBaseURL(g.baseURL).
		SetTimeout(timeout).
		SetHeaders(map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		}).
		OnBeforeRequest(g.beforeRequest).
		OnAfterResponse(g.afterResponse).
		OnError(g.onError)

	return g, nil
}

// BaseURL returns the configured server address.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// OnUnauthorized registers fn to be called after an unsolicited 401 has
// cleared the session. Handlers run synchronously on the calling goroutine.
func (g *Gateway) OnUnauthorized(fn func(UnauthorizedEvent)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unauthorizedHandlers = append(g.unauthorizedHandlers, fn)
}

func (g *Gateway) emitUnauthorized(evt UnauthorizedEvent) {
	g.mu.RLock()
	handlers := make([]func(UnauthorizedEvent), len(g.unauthorizedHandlers))
	copy(handlers, g.unauthorizedHandlers)
	g.mu.RUnlock()

	for _, fn := range handlers {
		fn(evt)
	}
}

// isLoginPath reports whether path is exactly the login endpoint.
func (g *Gateway) isLoginPath(path string) bool {
	return path == g.loginPath
}

func (g *Gateway) beforeRequest(_ *resty.Client, r *resty.Request) error {
	if g.tokens != nil {
		if token, ok := g.tokens.GetToken(); ok {
			r.SetHeader("Authorization", "Token "+token)
		}
	}
	if r.Header.Get("X-Request-ID") == "" {
		r.SetHeader("X-Request-ID", uuid.New().String())
	}
	return nil
}

func (g *Gateway) afterResponse(_ *resty.Client, res *resty.Response) error {
	status := res.StatusCode()
	method := res.Request.Method
	path := requestPath(res.Request)

	g.metrics.observe(method, status, res.Time())

	if !res.IsError() {
		return nil
	}

	switch status {
	case http.StatusUnauthorized:
		if g.isLoginPath(path) {
			// Bad credentials; the login caller interprets this one.
			break
		}
		log.Warn().Str("method", method).Str("path", path).Msg("token expired or invalid, clearing session")
		if g.tokens != nil {
			if err := g.tokens.ClearToken(); err != nil {
				log.Error().Err(err).Msg("failed to clear session after 401")
			}
		}
		g.metrics.observeUnauthorized()
		g.emitUnauthorized(UnauthorizedEvent{Method: method, Path: path})
	case http.StatusForbidden:
		log.Warn().Str("path", path).Msg("access denied")
	case http.StatusNotFound:
		log.Warn().Str("path", path).Msg("resource not found")
	case http.StatusTooManyRequests:
		log.Warn().Str("path", path).Msg("too many requests")
	case http.StatusInternalServerError:
		log.Error().Str("path", path).Msg("internal server error")
	default:
		log.Error().Int("status", status).Str("path", path).Bytes("body", res.Body()).Msg("http error")
	}

	return nil
}

func (g *Gateway) onError(r *resty.Request, err error) {
	if _, ok := err.(*resty.ResponseError); ok {
		log.Error().Err(err).Str("path", requestPath(r)).Msg("failed to process response")
		return
	}
	g.metrics.observe(r.Method, 0, time.Since(r.Time))
	log.Error().Err(err).Str("method", r.Method).Str("path", requestPath(r)).Msg("network error")
}

// requestOptions contains optional settings for doJSON
type requestOptions struct {
	query      map[string]string
	pathParams map[string]string
}

func (g *Gateway) req(ctx context.Context, result any) *resty.Request {
	request := g.httpClient.
		NewRequest().
		SetContext(ctx)

	if result != nil {
		request.SetResult(result)
	}
	return request
}

// doJSON performs a request and decodes the response into respDest.
// reqBody and respDest may be nil.
func (g *Gateway) doJSON(ctx context.Context, method, path string, reqBody, respDest any, opts *requestOptions) error {
	request := g.req(ctx, respDest)
	if reqBody != nil {
		request.SetBody(reqBody)
	}
	if opts != nil {
		if len(opts.query) > 0 {
			request.SetQueryParams(opts.query)
		}
		if len(opts.pathParams) > 0 {
			request.SetPathParams(opts.pathParams)
		}
	}

	res, err := request.Execute(method, path)
	return handleError(method, path, res, err)
}

// handleError converts transport failures and >399 responses into *APIError.
// Without this, failing responses would have nil error.
func handleError(method, path string, res *resty.Response, err error) error {
	if res != nil && res.Request != nil {
		path = requestPath(res.Request)
	}
	if err != nil {
		if res != nil && res.RawResponse != nil {
			return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
		}
		return &APIError{Kind: KindNetwork, Method: method, Path: path, Err: err}
	}
	if res.IsError() {
		body := res.Body()
		return &APIError{
			Kind:    KindForStatus(res.StatusCode()),
			Status:  res.StatusCode(),
			Method:  method,
			Path:    path,
			Data:    body,
			Message: serverMessage(body),
		}
	}
	return nil
}

// requestPath returns the URL path the request was (or would be) sent to.
func requestPath(r *resty.Request) string {
	if r == nil {
		return ""
	}
	if r.RawRequest != nil && r.RawRequest.URL != nil {
		return r.RawRequest.URL.Path
	}
	if u, err := url.Parse(r.URL); err == nil {
		return u.Path
	}
	return r.URL
}

// restyLogger routes resty's internal logging through zerolog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	log.Debug().Str("component", "resty").Msgf(format, v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	log.Debug().Str("component", "resty").Msgf(format, v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	log.Debug().Str("component", "resty").Msgf(format, v...)
}
