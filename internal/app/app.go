// Package app wires the client together: storage, token store, gateway,
// API client, session controller and router.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raine/kanda-client/config"
	"github.com/raine/kanda-client/internal/kanda"
	"github.com/raine/kanda-client/internal/kanda/auth"
	"github.com/raine/kanda-client/internal/router"
	"github.com/raine/kanda-client/internal/session"
	"github.com/raine/kanda-client/internal/storage"
	"github.com/raine/kanda-client/internal/stores"
	"github.com/rs/zerolog/log"
)

// Options tune how the shell is assembled.
type Options struct {
	// Store overrides the persistent SQLite store, e.g. with an in-memory one.
	Store storage.KeyValueStore
	// Registry receives the gateway metrics. Nil disables metrics.
	Registry *prometheus.Registry
	// TokenOpts are passed to the token store.
	TokenOpts []auth.TokenStoreOption
}

// App is the assembled client.
type App struct {
	Config    config.Config
	Store     storage.KeyValueStore
	Tokens    *auth.TokenStore
	Gateway   *kanda.Gateway
	Client    *kanda.Client
	Session   *session.Controller
	Router    *router.Router
	Universes *stores.UniverseStore
	Rooms     *stores.RoomStore
	Registry  *prometheus.Registry
}

// New builds the app from cfg.
func New(cfg config.Config, opts Options) (*App, error) {
	store := opts.Store
	if store == nil {
		var err error
		store, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	var metrics *kanda.Metrics
	if opts.Registry != nil {
		var err error
		metrics, err = kanda.NewMetrics(opts.Registry)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	tokens := auth.NewTokenStore(store, opts.TokenOpts...)
	gw, err := kanda.NewGateway(kanda.GatewayOpts{
		BaseURL: cfg.APIURL,
		Timeout: cfg.Timeout,
		Tokens:  tokens,
		Metrics: metrics,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	client := kanda.NewClient(gw)
	ctrl := session.NewController(client.Accounts, tokens, store)
	r := router.New(ctrl)

	a := &App{
		Config:    cfg,
		Store:     store,
		Tokens:    tokens,
		Gateway:   gw,
		Client:    client,
		Session:   ctrl,
		Router:    r,
		Universes: stores.NewUniverseStore(client.Universes),
		Rooms:     stores.NewRoomStore(client.Rooms, client.Participants),
		Registry:  opts.Registry,
	}

	gw.OnUnauthorized(func(evt kanda.UnauthorizedEvent) {
		log.Info().Str("path", evt.Path).Msg("session rejected by server, redirecting to login")
		r.RedirectToLogin()
	})

	return a, nil
}

func openStore(cfg config.Config) (storage.KeyValueStore, error) {
	dir := filepath.Dir(cfg.DBPath)
	var err error
	if dir == config.ConfigDir() {
		err = config.EnsureConfigDir()
	} else {
		err = os.MkdirAll(dir, 0700)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var key []byte
	if cfg.TokenKey != "" {
		key, err = storage.DeriveKey(cfg.TokenKey)
		if err != nil {
			return nil, fmt.Errorf("failed to derive storage key: %w", err)
		}
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return store, nil
}

// CurrentUserID returns the id of the logged-in user, if known.
func (a *App) CurrentUserID() string {
	if u := a.Session.CurrentUser(); u != nil {
		return u.ID
	}
	return ""
}

// Close releases storage.
func (a *App) Close() error {
	return a.Store.Close()
}
