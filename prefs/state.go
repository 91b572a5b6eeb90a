// Package prefs is the durable client-side preference store: active location,
// unit system, recent searches, favorites and display flags. Mutations are
// synchronous and atomic; persistence is best effort and never blocks or
// fails the caller.
package prefs

import (
	"github.com/skydash/skydash/weather"
)

// SchemaVersion tags the persisted blob so a future layout change can
// migrate instead of discarding.
const SchemaVersion = 1

// MaxRecentSearches bounds the recent-search history.
const MaxRecentSearches = 5

// Coordinates is a stored coordinate pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// State is the full preference record, the unit of persistence. City and
// Coords are mutually exclusive: setting one clears the other.
type State struct {
	Version        int           `json:"version"`
	City           string        `json:"city,omitempty"`
	Coords         *Coordinates  `json:"coords,omitempty"`
	Units          weather.Units `json:"units"`
	Favorites      []string      `json:"favorites"`
	RecentSearches []string      `json:"recentSearches"`
	DarkMode       bool          `json:"darkMode"`
	ReducedMotion  bool          `json:"reducedMotion"`
	AutoRefresh    bool          `json:"autoRefresh"`
}

// Location returns the active location as a tagged variant. Zero when
// neither mode is set.
func (s State) Location() weather.Location {
	if s.Coords != nil {
		return weather.ByCoordinates(s.Coords.Lat, s.Coords.Lon)
	}
	if s.City != "" {
		return weather.ByName(s.City)
	}
	return weather.Location{}
}

// HasFavorite reports whether name is in the favorites set
// (case-insensitive).
func (s State) HasFavorite(name string) bool {
	return indexFold(s.Favorites, name) >= 0
}

// clone deep-copies the state so snapshots handed to subscribers and the
// persister cannot alias store-internal slices.
func (s State) clone() State {
	out := s
	if s.Coords != nil {
		c := *s.Coords
		out.Coords = &c
	}
	out.Favorites = append([]string(nil), s.Favorites...)
	out.RecentSearches = append([]string(nil), s.RecentSearches...)
	return out
}
