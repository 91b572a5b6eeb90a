package weather

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrNameEmpty is returned when a city name is empty or whitespace-only after trim.
var ErrNameEmpty = errors.New("city name is required")

// ErrNameTooLong is returned when a city name exceeds the maximum length.
var ErrNameTooLong = errors.New("city name too long")

// ErrNameInvalidChars is returned when a city name contains disallowed characters.
var ErrNameInvalidChars = errors.New("city name contains invalid characters")

// ErrCoordinatesOutOfRange is returned for latitudes outside [-90, 90] or
// longitudes outside [-180, 180].
var ErrCoordinatesOutOfRange = errors.New("coordinates out of range")

const maxNameLen = 100

// coordPrecision is the number of decimals kept when a coordinate pair is
// serialized into a cache key. Four decimals is roughly 11 meters, enough to
// keep geolocation jitter from fragmenting keys.
const coordPrecision = "%.4f,%.4f"

type locationKind int

const (
	locationUnset locationKind = iota
	locationByName
	locationByCoordinates
)

// Location selects what to fetch weather for: a city name or a coordinate
// pair, never both. The zero value is unset and matches nothing.
type Location struct {
	kind locationKind
	name string
	lat  float64
	lon  float64
}

// ByName returns a name-mode Location. The name is kept as given (display
// casing preserved); canonicalization happens in CacheKey.
func ByName(name string) Location {
	return Location{kind: locationByName, name: strings.TrimSpace(name)}
}

// ByCoordinates returns a coordinate-mode Location.
func ByCoordinates(lat, lon float64) Location {
	return Location{kind: locationByCoordinates, lat: lat, lon: lon}
}

// IsZero reports whether the Location is unset.
func (l Location) IsZero() bool {
	return l.kind == locationUnset
}

// Name returns the city name and true when the Location is name-mode.
func (l Location) Name() (string, bool) {
	return l.name, l.kind == locationByName
}

// Coordinates returns the coordinate pair and true when the Location is
// coordinate-mode.
func (l Location) Coordinates() (lat, lon float64, ok bool) {
	return l.lat, l.lon, l.kind == locationByCoordinates
}

// CacheKey returns the canonical serialization of the Location used as the
// cache key: the lowercased, trimmed name, or "lat,lon" rounded to a fixed
// precision. Unset Locations return "".
func (l Location) CacheKey() string {
	switch l.kind {
	case locationByName:
		return strings.ToLower(strings.TrimSpace(l.name))
	case locationByCoordinates:
		return fmt.Sprintf(coordPrecision, l.lat, l.lon)
	default:
		return ""
	}
}

// String implements fmt.Stringer for log fields.
func (l Location) String() string {
	if l.kind == locationUnset {
		return "<unset>"
	}
	return l.CacheKey()
}

// Validate checks that the Location is usable as a provider query: name-mode
// names pass ValidateCityName, coordinate-mode pairs are within range.
func (l Location) Validate() error {
	switch l.kind {
	case locationByName:
		_, err := ValidateCityName(l.name)
		return err
	case locationByCoordinates:
		if l.lat < -90 || l.lat > 90 || l.lon < -180 || l.lon > 180 {
			return fmt.Errorf("%w: lat=%f lon=%f", ErrCoordinatesOutOfRange, l.lat, l.lon)
		}
		return nil
	default:
		return ErrNameEmpty
	}
}

// ValidateCityName trims the input, enforces the length bound (in runes), and
// restricts to letters (Unicode), digits, space, comma, period, apostrophe and
// hyphen. Returns the trimmed string. Lowercasing is left to CacheKey.
func ValidateCityName(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrNameEmpty
	}
	if len(r) > maxNameLen {
		return "", ErrNameTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrNameInvalidChars
		}
	}
	return s, nil
}

// isAllowedCityRune returns true for letters (Unicode), digits, space, comma,
// period, apostrophe, hyphen.
func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '.', '\'', '-':
		return true
	}
	return false
}
