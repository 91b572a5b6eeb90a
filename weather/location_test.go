package weather

import (
	"errors"
	"testing"
)

// TestLocation_CacheKey verifies canonicalization: lowercased trimmed names,
// fixed-precision coordinates, empty key for the zero value.
func TestLocation_CacheKey(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		want string
	}{
		{"simple name", ByName("Jakarta"), "jakarta"},
		{"mixed case with spaces", ByName("  New York  "), "new york"},
		{"coordinates", ByCoordinates(-6.2088, 106.8456), "-6.2088,106.8456"},
		{"coordinate rounding", ByCoordinates(-6.20881234, 106.84559876), "-6.2088,106.8456"},
		{"zero value", Location{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.CacheKey(); got != tt.want {
				t.Errorf("CacheKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestLocation_CacheKey_JitterStable verifies that floating-point jitter
// below the rounding precision does not fragment cache keys.
func TestLocation_CacheKey_JitterStable(t *testing.T) {
	a := ByCoordinates(51.50740001, -0.12779999)
	b := ByCoordinates(51.50741, -0.12781)
	if a.CacheKey() != b.CacheKey() {
		t.Errorf("jittered coordinates produced different keys: %q vs %q", a.CacheKey(), b.CacheKey())
	}
}

// TestLocation_Tagging verifies exactly one representation is active.
func TestLocation_Tagging(t *testing.T) {
	byName := ByName("Tokyo")
	if name, ok := byName.Name(); !ok || name != "Tokyo" {
		t.Errorf("Name() = %q, %v; want Tokyo, true", name, ok)
	}
	if _, _, ok := byName.Coordinates(); ok {
		t.Error("name-mode Location reports coordinates")
	}

	byCoords := ByCoordinates(35.68, 139.69)
	if _, ok := byCoords.Name(); ok {
		t.Error("coordinate-mode Location reports a name")
	}
	if lat, lon, ok := byCoords.Coordinates(); !ok || lat != 35.68 || lon != 139.69 {
		t.Errorf("Coordinates() = %v, %v, %v", lat, lon, ok)
	}

	if !(Location{}).IsZero() {
		t.Error("zero Location is not IsZero")
	}
	if byName.IsZero() || byCoords.IsZero() {
		t.Error("non-zero Location reports IsZero")
	}
}

// TestValidateCityName verifies trimming, length bounds and the allowed
// character set.
func TestValidateCityName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"simple", "London", "London", nil},
		{"trimmed", "  Paris ", "Paris", nil},
		{"unicode", "São Paulo", "São Paulo", nil},
		{"apostrophe", "Martha's Vineyard", "Martha's Vineyard", nil},
		{"comma country", "Springfield, US", "Springfield, US", nil},
		{"empty", "", "", ErrNameEmpty},
		{"whitespace only", "   ", "", ErrNameEmpty},
		{"injection", "city<script>", "", ErrNameInvalidChars},
		{"too long", longName(101), "", ErrNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateCityName(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateCityName(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ValidateCityName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func longName(n int) string {
	r := make([]rune, n)
	for i := range r {
		r[i] = 'a'
	}
	return string(r)
}

// TestLocation_Validate verifies coordinate range checks.
func TestLocation_Validate(t *testing.T) {
	if err := ByCoordinates(90, 180).Validate(); err != nil {
		t.Errorf("Validate() at range edge = %v, want nil", err)
	}
	if err := ByCoordinates(91, 0).Validate(); !errors.Is(err, ErrCoordinatesOutOfRange) {
		t.Errorf("Validate() lat=91 error = %v, want ErrCoordinatesOutOfRange", err)
	}
	if err := ByCoordinates(0, -181).Validate(); !errors.Is(err, ErrCoordinatesOutOfRange) {
		t.Errorf("Validate() lon=-181 error = %v, want ErrCoordinatesOutOfRange", err)
	}
	if err := (Location{}).Validate(); err == nil {
		t.Error("Validate() on zero Location = nil, want error")
	}
}
