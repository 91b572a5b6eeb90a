package prefs

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/skydash/skydash/observability"
	"github.com/skydash/skydash/weather"
)

// Store is the state container for preferences: Get, mutate, Subscribe.
// All mutations take effect in memory first, then persist synchronously on a
// best-effort basis. A persistence failure loses durability only; it is
// logged and counted, never returned.
type Store struct {
	mu        sync.RWMutex
	state     State
	persister Persister
	logger    *zap.Logger

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// NewStore creates a Store seeded from the persister when a saved record
// exists, from defaults otherwise.
func NewStore(persister Persister, defaults State, logger *zap.Logger) *Store {
	if persister == nil {
		persister = NopPersister{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults.Version = SchemaVersion
	if defaults.Units == "" {
		defaults.Units = weather.UnitsMetric
	}

	state := defaults
	if loaded, ok, err := persister.Load(); err != nil {
		logger.Warn("loading preferences failed, starting from defaults", zap.Error(err))
	} else if ok {
		state = loaded
		state.Version = SchemaVersion
		if state.Units != weather.UnitsMetric && state.Units != weather.UnitsImperial {
			state.Units = weather.UnitsMetric
		}
		if len(state.RecentSearches) > MaxRecentSearches {
			state.RecentSearches = state.RecentSearches[:MaxRecentSearches]
		}
	}

	return &Store{
		state:     state,
		persister: persister,
		logger:    logger,
		subs:      make(map[int]func(State)),
	}
}

// Get returns a snapshot of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to be called with a state snapshot after every
// mutation. Returns an unsubscribe function.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// SetCity switches the active location to name-mode, clears coordinate-mode,
// and pushes the name to the front of the recent-search history (moving it
// there if already present, evicting past the bound). Returns a validation
// error for unusable names; state is untouched in that case.
func (s *Store) SetCity(name string) error {
	trimmed, err := weather.ValidateCityName(name)
	if err != nil {
		return err
	}
	s.mutate(func(st *State) {
		st.City = trimmed
		st.Coords = nil
		st.RecentSearches = pushRecent(st.RecentSearches, trimmed)
	})
	return nil
}

// SetCoordinates switches the active location to coordinate-mode and clears
// name-mode. Geolocation events are not searches, so the recent-search
// history is untouched.
func (s *Store) SetCoordinates(lat, lon float64) error {
	loc := weather.ByCoordinates(lat, lon)
	if err := loc.Validate(); err != nil {
		return err
	}
	s.mutate(func(st *State) {
		st.Coords = &Coordinates{Lat: lat, Lon: lon}
		st.City = ""
	})
	return nil
}

// AddFavorite adds name to the favorites set. Adding an existing favorite is
// a no-op (set semantics, case-insensitive).
func (s *Store) AddFavorite(name string) error {
	trimmed, err := weather.ValidateCityName(name)
	if err != nil {
		return err
	}
	s.mutate(func(st *State) {
		if indexFold(st.Favorites, trimmed) < 0 {
			st.Favorites = append(st.Favorites, trimmed)
		}
	})
	return nil
}

// RemoveFavorite removes name from the favorites set. Returns true when the
// favorite existed. The caller owns purging any cached snapshot for it.
func (s *Store) RemoveFavorite(name string) bool {
	removed := false
	s.mutate(func(st *State) {
		if i := indexFold(st.Favorites, name); i >= 0 {
			st.Favorites = append(st.Favorites[:i], st.Favorites[i+1:]...)
			removed = true
		}
	})
	return removed
}

// ClearRecentSearches empties the recent-search history.
func (s *Store) ClearRecentSearches() {
	s.mutate(func(st *State) {
		st.RecentSearches = nil
	})
}

// SetUnits switches the measurement system.
func (s *Store) SetUnits(u weather.Units) {
	if u != weather.UnitsMetric && u != weather.UnitsImperial {
		u = weather.UnitsMetric
	}
	s.mutate(func(st *State) {
		st.Units = u
	})
}

// ToggleDarkMode flips the dark-mode flag and returns the new value.
func (s *Store) ToggleDarkMode() bool {
	var v bool
	s.mutate(func(st *State) {
		st.DarkMode = !st.DarkMode
		v = st.DarkMode
	})
	return v
}

// ToggleReducedMotion flips the reduced-motion flag and returns the new value.
func (s *Store) ToggleReducedMotion() bool {
	var v bool
	s.mutate(func(st *State) {
		st.ReducedMotion = !st.ReducedMotion
		v = st.ReducedMotion
	})
	return v
}

// SetAutoRefresh sets the auto-refresh flag.
func (s *Store) SetAutoRefresh(enabled bool) {
	s.mutate(func(st *State) {
		st.AutoRefresh = enabled
	})
}

// mutate applies fn under the write lock, persists the result, and notifies
// subscribers with a snapshot after the lock is released.
func (s *Store) mutate(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.state.Version = SchemaVersion
	snapshot := s.state.clone()
	s.mu.Unlock()

	if err := s.persister.Save(snapshot); err != nil {
		observability.PrefsPersistErrorsTotal.Inc()
		s.logger.Warn("persisting preferences failed, in-memory state kept", zap.Error(err))
	}

	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(snapshot.clone())
	}
}

// pushRecent implements the history rule: most-recent-first, case-insensitive
// dedup by move-to-front, bounded length.
func pushRecent(history []string, name string) []string {
	if i := indexFold(history, name); i >= 0 {
		history = append(history[:i], history[i+1:]...)
	}
	history = append([]string{name}, history...)
	if len(history) > MaxRecentSearches {
		history = history[:MaxRecentSearches]
	}
	return history
}

// indexFold returns the index of name in names under case-insensitive,
// trimmed comparison, or -1.
func indexFold(names []string, name string) int {
	target := strings.TrimSpace(name)
	for i, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), target) {
			return i
		}
	}
	return -1
}
