package weather

import "time"

// Coordinates is a latitude/longitude pair as resolved by the provider.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Current holds current conditions for a resolved location.
type Current struct {
	City        string      `json:"city"`
	Country     string      `json:"country"`
	Coords      Coordinates `json:"coords"`
	Temperature float64     `json:"temperature"`
	FeelsLike   float64     `json:"feelsLike"`
	TempMin     float64     `json:"tempMin"`
	TempMax     float64     `json:"tempMax"`
	Humidity    int         `json:"humidity"`
	Pressure    int         `json:"pressure"`
	Visibility  int         `json:"visibility"`
	WindSpeed   float64     `json:"windSpeed"`
	WindDeg     int         `json:"windDeg"`
	ConditionID int         `json:"conditionId"`
	Condition   string      `json:"condition"`
	Description string      `json:"description"`
	Icon        string      `json:"icon"`
	Sunrise     time.Time   `json:"sunrise"`
	Sunset      time.Time   `json:"sunset"`
	ObservedAt  time.Time   `json:"observedAt"`
}

// IsDaytime reports whether the observation falls between sunrise and sunset.
// When the provider omits sunrise/sunset it falls back to the icon suffix
// ("d" for day, "n" for night).
func (c Current) IsDaytime() bool {
	if !c.Sunrise.IsZero() && !c.Sunset.IsZero() {
		return !c.ObservedAt.Before(c.Sunrise) && c.ObservedAt.Before(c.Sunset)
	}
	if n := len(c.Icon); n > 0 {
		return c.Icon[n-1] != 'n'
	}
	return true
}

// ForecastEntry is a single timestamped forecast reading.
type ForecastEntry struct {
	Time              time.Time `json:"time"`
	Temperature       float64   `json:"temperature"`
	FeelsLike         float64   `json:"feelsLike"`
	TempMin           float64   `json:"tempMin"`
	TempMax           float64   `json:"tempMax"`
	Humidity          int       `json:"humidity"`
	WindSpeed         float64   `json:"windSpeed"`
	ConditionID       int       `json:"conditionId"`
	Condition         string    `json:"condition"`
	Icon              string    `json:"icon"`
	PrecipProbability float64   `json:"precipProbability"` // 0..1
}

// Forecast is the ordered sequence of 3-hour readings covering five days.
type Forecast struct {
	City    string          `json:"city"`
	Country string          `json:"country"`
	Entries []ForecastEntry `json:"entries"`
}

// AirQuality holds the provider's air quality index (1..5) and the raw
// pollutant concentrations in µg/m³.
type AirQuality struct {
	Index      int       `json:"index"`
	PM25       float64   `json:"pm2_5"`
	PM10       float64   `json:"pm10"`
	O3         float64   `json:"o3"`
	NO2        float64   `json:"no2"`
	MeasuredAt time.Time `json:"measuredAt"`
}

// Bundle aggregates the three provider responses for one location. The
// forecast and air quality are fetched with the coordinates echoed by the
// current-conditions response, so all three are geographically consistent.
// A Bundle is immutable once fetched; the cache replaces it wholesale.
type Bundle struct {
	Current  Current    `json:"current"`
	Forecast Forecast   `json:"forecast"`
	Air      AirQuality `json:"air"`
}

// Place is a geocoding suggestion for search-ahead.
type Place struct {
	Name    string  `json:"name"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}
