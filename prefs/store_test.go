package prefs

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/skydash/skydash/weather"
)

// memPersister records saves and optionally fails every call.
type memPersister struct {
	mu    sync.Mutex
	saved []State
	seed  *State
	fail  bool
}

func (p *memPersister) Load() (State, bool, error) {
	if p.fail {
		return State{}, false, ErrStorageUnavailable
	}
	if p.seed != nil {
		return *p.seed, true, nil
	}
	return State{}, false, nil
}

func (p *memPersister) Save(st State) error {
	if p.fail {
		return ErrStorageUnavailable
	}
	p.mu.Lock()
	p.saved = append(p.saved, st)
	p.mu.Unlock()
	return nil
}

func (p *memPersister) lastSaved() (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saved) == 0 {
		return State{}, false
	}
	return p.saved[len(p.saved)-1], true
}

func TestStore_Defaults(t *testing.T) {
	s := NewStore(nil, State{City: "Jakarta"}, nil)
	st := s.Get()
	if st.City != "Jakarta" || st.Units != weather.UnitsMetric || st.Version != SchemaVersion {
		t.Errorf("defaults = %+v, want Jakarta/metric/version %d", st, SchemaVersion)
	}
}

func TestStore_SeedsFromPersisted(t *testing.T) {
	p := &memPersister{seed: &State{
		Version:   SchemaVersion,
		City:      "Oslo",
		Units:     weather.UnitsImperial,
		Favorites: []string{"Lima"},
	}}
	s := NewStore(p, State{City: "Jakarta"}, nil)
	st := s.Get()
	if st.City != "Oslo" || st.Units != weather.UnitsImperial || !st.HasFavorite("lima") {
		t.Errorf("loaded state = %+v, want the persisted record", st)
	}
}

func TestStore_SeedSanitized(t *testing.T) {
	p := &memPersister{seed: &State{
		Version:        SchemaVersion,
		Units:          "furlongs",
		RecentSearches: []string{"a", "b", "c", "d", "e", "f", "g"},
	}}
	st := NewStore(p, State{}, nil).Get()
	if st.Units != weather.UnitsMetric {
		t.Errorf("units = %q, want fallback to metric", st.Units)
	}
	if len(st.RecentSearches) != MaxRecentSearches {
		t.Errorf("recent searches = %d, want trimmed to %d", len(st.RecentSearches), MaxRecentSearches)
	}
}

func TestStore_SetCity(t *testing.T) {
	p := &memPersister{}
	s := NewStore(p, State{}, nil)

	if err := s.SetCity("  Bandung "); err != nil {
		t.Fatalf("SetCity() error = %v", err)
	}
	st := s.Get()
	if st.City != "Bandung" {
		t.Errorf("city = %q, want trimmed name", st.City)
	}
	if st.Coords != nil {
		t.Error("coords not cleared by SetCity")
	}
	if !reflect.DeepEqual(st.RecentSearches, []string{"Bandung"}) {
		t.Errorf("recent searches = %v, want [Bandung]", st.RecentSearches)
	}
	if saved, ok := p.lastSaved(); !ok || saved.City != "Bandung" {
		t.Errorf("persisted state = %+v, %v; want the mutation saved", saved, ok)
	}
}

func TestStore_SetCity_InvalidLeavesStateUntouched(t *testing.T) {
	s := NewStore(nil, State{City: "Jakarta"}, nil)
	if err := s.SetCity("<script>"); !errors.Is(err, weather.ErrNameInvalidChars) {
		t.Fatalf("SetCity(invalid) error = %v, want ErrNameInvalidChars", err)
	}
	st := s.Get()
	if st.City != "Jakarta" || len(st.RecentSearches) != 0 {
		t.Errorf("state after rejected input = %+v, want unchanged", st)
	}
}

func TestStore_SetCoordinates(t *testing.T) {
	s := NewStore(nil, State{}, nil)
	if err := s.SetCity("Jakarta"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCoordinates(-6.2, 106.8); err != nil {
		t.Fatalf("SetCoordinates() error = %v", err)
	}

	st := s.Get()
	if st.City != "" || st.Coords == nil {
		t.Errorf("state = %+v, want coordinate mode only", st)
	}
	if lat, lon, ok := st.Location().Coordinates(); !ok || lat != -6.2 || lon != 106.8 {
		t.Errorf("Location() = %v, want the stored coordinates", st.Location())
	}
	// Geolocation is not a search.
	if !reflect.DeepEqual(st.RecentSearches, []string{"Jakarta"}) {
		t.Errorf("recent searches = %v, want untouched by SetCoordinates", st.RecentSearches)
	}

	if err := s.SetCoordinates(91, 0); err == nil {
		t.Error("SetCoordinates(91, 0) succeeded, want range error")
	}
}

func TestStore_RecentSearches(t *testing.T) {
	s := NewStore(nil, State{}, nil)

	for _, c := range []string{"A1", "B2", "C3", "D4", "E5", "F6"} {
		if err := s.SetCity(c); err != nil {
			t.Fatal(err)
		}
	}
	got := s.Get().RecentSearches
	want := []string{"F6", "E5", "D4", "C3", "B2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recent searches = %v, want bounded most-recent-first %v", got, want)
	}

	// Re-searching an existing entry moves it to the front without growing.
	if err := s.SetCity("c3"); err != nil {
		t.Fatal(err)
	}
	got = s.Get().RecentSearches
	want = []string{"c3", "F6", "E5", "D4", "B2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recent searches after re-search = %v, want %v", got, want)
	}

	s.ClearRecentSearches()
	if got := s.Get().RecentSearches; len(got) != 0 {
		t.Errorf("recent searches after clear = %v, want empty", got)
	}
}

func TestStore_Favorites(t *testing.T) {
	s := NewStore(nil, State{}, nil)

	if err := s.AddFavorite("London"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddFavorite("  london "); err != nil {
		t.Fatal(err)
	}
	if got := s.Get().Favorites; len(got) != 1 {
		t.Errorf("favorites = %v, want set semantics (1 entry)", got)
	}

	if !s.RemoveFavorite("LONDON") {
		t.Error("RemoveFavorite(LONDON) = false, want case-insensitive hit")
	}
	if s.RemoveFavorite("London") {
		t.Error("removing an absent favorite reported true")
	}
	if got := s.Get().Favorites; len(got) != 0 {
		t.Errorf("favorites after removal = %v, want empty", got)
	}
}

func TestStore_Toggles(t *testing.T) {
	s := NewStore(nil, State{}, nil)

	if !s.ToggleDarkMode() || s.ToggleDarkMode() {
		t.Error("ToggleDarkMode did not flip false->true->false")
	}
	if !s.ToggleReducedMotion() {
		t.Error("ToggleReducedMotion() = false, want true")
	}
	s.SetAutoRefresh(true)
	if st := s.Get(); !st.ReducedMotion || !st.AutoRefresh || st.DarkMode {
		t.Errorf("flags = %+v, want reducedMotion+autoRefresh only", st)
	}
}

func TestStore_SetUnits(t *testing.T) {
	s := NewStore(nil, State{}, nil)
	s.SetUnits(weather.UnitsImperial)
	if got := s.Get().Units; got != weather.UnitsImperial {
		t.Errorf("units = %q, want imperial", got)
	}
	s.SetUnits("nonsense")
	if got := s.Get().Units; got != weather.UnitsMetric {
		t.Errorf("units = %q, want fallback to metric", got)
	}
}

func TestStore_PersistFailureIsNonFatal(t *testing.T) {
	s := NewStore(&memPersister{fail: true}, State{}, nil)

	if err := s.SetCity("Jakarta"); err != nil {
		t.Fatalf("SetCity with failing persister error = %v, want nil", err)
	}
	if got := s.Get().City; got != "Jakarta" {
		t.Errorf("city = %q, want in-memory state kept despite persist failure", got)
	}
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore(nil, State{}, nil)

	var mu sync.Mutex
	var seen []string
	unsub := s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st.City)
		mu.Unlock()
	})

	if err := s.SetCity("Jakarta"); err != nil {
		t.Fatal(err)
	}
	unsub()
	if err := s.SetCity("London"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seen, []string{"Jakarta"}) {
		t.Errorf("subscriber saw %v, want only the pre-unsubscribe mutation", seen)
	}
}

func TestStore_SnapshotsDoNotAlias(t *testing.T) {
	s := NewStore(nil, State{}, nil)
	if err := s.AddFavorite("London"); err != nil {
		t.Fatal(err)
	}

	st := s.Get()
	st.Favorites[0] = "tampered"
	if got := s.Get().Favorites[0]; got != "London" {
		t.Errorf("favorite = %q, snapshot mutation leaked into the store", got)
	}
}
