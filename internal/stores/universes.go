package stores

import (
	"context"
	"slices"
	"sync"

	"github.com/raine/kanda-client/internal/kanda"
	"github.com/rs/zerolog/log"
)

const (
	msgLoadUniverses  = "failed to load universes"
	msgLoadUniverse   = "failed to load universe"
	msgCreateUniverse = "failed to create universe"
	msgUpdateUniverse = "failed to update universe"
	msgDeleteUniverse = "failed to delete universe"
)

// UniverseStore mirrors the universes visible to the user.
type UniverseStore struct {
	api kanda.UniverseService

	mu        sync.RWMutex
	universes []kanda.Universe
	current   *kanda.Universe
	loading   bool
	err       string
	lastErr   error
}

func NewUniverseStore(api kanda.UniverseService) *UniverseStore {
	return &UniverseStore{api: api}
}

func (s *UniverseStore) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.lastErr = nil
	s.mu.Unlock()
}

// finish clears the loading flag and records err, if any.
func (s *UniverseStore) finish(err error, def string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.err = errorMessage(err, def)
		log.Warn().Err(err).Msg(def)
	}
}

// Universes returns a copy of the loaded universes.
func (s *UniverseStore) Universes() []kanda.Universe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.universes)
}

func (s *UniverseStore) Current() *kanda.Universe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *UniverseStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *UniverseStore) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *UniverseStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = ""
	s.lastErr = nil
}

// Err returns the failure behind Error, for callers that need to branch on it.
func (s *UniverseStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *UniverseStore) filter(public bool) []kanda.Universe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []kanda.Universe
	for _, u := range s.universes {
		if u.IsPublic == public {
			out = append(out, u)
		}
	}
	return out
}

func (s *UniverseStore) PublicUniverses() []kanda.Universe { return s.filter(true) }

// UserUniverses returns the private universes.
func (s *UniverseStore) UserUniverses() []kanda.Universe { return s.filter(false) }

// Fetch loads all universes. Failures are recorded in Error, not returned.
func (s *UniverseStore) Fetch(ctx context.Context) {
	s.begin()
	universes, err := s.api.List(ctx)
	if err == nil {
		s.mu.Lock()
		s.universes = universes
		s.mu.Unlock()
	}
	s.finish(err, msgLoadUniverses)
}

func (s *UniverseStore) FetchOne(ctx context.Context, id string) (*kanda.Universe, error) {
	s.begin()
	u, err := s.api.Get(ctx, id)
	if err == nil {
		s.mu.Lock()
		s.current = u
		s.mu.Unlock()
	}
	s.finish(err, msgLoadUniverse)
	return u, err
}

func (s *UniverseStore) Create(ctx context.Context, universe kanda.Universe) (*kanda.Universe, error) {
	s.begin()
	u, err := s.api.Create(ctx, universe)
	if err == nil {
		s.mu.Lock()
		s.universes = slices.Insert(s.universes, 0, *u)
		s.mu.Unlock()
	}
	s.finish(err, msgCreateUniverse)
	return u, err
}

func (s *UniverseStore) Update(ctx context.Context, id string, universe kanda.Universe) (*kanda.Universe, error) {
	s.begin()
	u, err := s.api.Update(ctx, id, universe)
	if err == nil {
		s.mu.Lock()
		if i := slices.IndexFunc(s.universes, func(x kanda.Universe) bool { return x.ID == id }); i >= 0 {
			s.universes[i] = *u
		}
		s.mu.Unlock()
	}
	s.finish(err, msgUpdateUniverse)
	return u, err
}

func (s *UniverseStore) Delete(ctx context.Context, id string) error {
	s.begin()
	err := s.api.Delete(ctx, id)
	if err == nil {
		s.mu.Lock()
		s.universes = slices.DeleteFunc(s.universes, func(x kanda.Universe) bool { return x.ID == id })
		s.mu.Unlock()
	}
	s.finish(err, msgDeleteUniverse)
	return err
}
