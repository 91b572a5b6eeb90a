package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/skydash/skydash/observability"
)

// Units selects the measurement system passed to the provider.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Default provider endpoints (OpenWeatherMap).
const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
	DefaultGeoURL  = "https://api.openweathermap.org/geo/1.0"
)

// BundleFetcher fetches the full weather bundle for a location. Implemented
// by Client; the query layer depends on this interface so tests can stub it.
type BundleFetcher interface {
	FetchBundle(ctx context.Context, loc Location) (*Bundle, error)
}

// ClientConfig holds configuration for the provider client.
type ClientConfig struct {
	// APIKey is the provider API key (required).
	APIKey string

	// BaseURL overrides the data API base URL. Default: DefaultBaseURL.
	BaseURL string

	// GeoURL overrides the geocoding API base URL. Default: DefaultGeoURL.
	GeoURL string

	// Units is the measurement system. Default: metric.
	Units Units

	// Timeout bounds each individual HTTP call. Default: 10s.
	Timeout time.Duration

	// Logger for client operations. Optional.
	Logger *zap.Logger
}

// Client talks to the weather provider. One FetchBundle call issues the
// current-conditions request first, takes the coordinates echoed back, and
// fetches forecast and air quality concurrently with those coordinates so the
// three responses are geographically consistent. All calls go through a
// shared circuit breaker.
type Client struct {
	apiKey  string
	baseURL string
	geoURL  string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *zap.Logger

	mu    sync.RWMutex
	units Units
}

// NewClient creates a provider client from cfg.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(cfg.APIKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.GeoURL == "" {
		cfg.GeoURL = DefaultGeoURL
	}
	if cfg.Units == "" {
		cfg.Units = UnitsMetric
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "weather-provider",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
	})

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		geoURL:  cfg.GeoURL,
		units:   cfg.Units,
		timeout: cfg.Timeout,
		breaker: breaker,
		logger:  logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Units returns the currently configured measurement system.
func (c *Client) Units() Units {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.units
}

// SetUnits switches the measurement system for subsequent fetches. Cached
// bundles fetched under the old units are the caller's problem; the dashboard
// flushes the query layer when the preference flips.
func (c *Client) SetUnits(u Units) {
	if u != UnitsMetric && u != UnitsImperial {
		u = UnitsMetric
	}
	c.mu.Lock()
	c.units = u
	c.mu.Unlock()
}

// FetchBundle fetches current conditions, forecast and air quality for loc.
// Fails with ErrLocationNotFound when the provider has no match, ErrNetwork
// on transport failure or timeout, and ErrUpstream (or ErrRateLimited /
// ErrInvalidAPIKey) on non-success responses.
func (c *Client) FetchBundle(ctx context.Context, loc Location) (*Bundle, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	corrID := uuid.NewString()
	start := time.Now()

	var cur owmCurrentResponse
	if err := c.doGet(ctx, "current", c.currentURL(loc), corrID, &cur); err != nil {
		return nil, err
	}

	// Trust the coordinates echoed by the current-conditions response: a
	// name query may have been geocoded ambiguously, and forecast/AQI must
	// describe the same place.
	lat, lon := cur.Coord.Lat, cur.Coord.Lon

	var (
		fc          owmForecastResponse
		air         owmAirResponse
		fcErr, aErr error
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		fcErr = c.doGet(ctx, "forecast", c.forecastURL(lat, lon), corrID, &fc)
	}()
	go func() {
		defer wg.Done()
		aErr = c.doGet(ctx, "air_quality", c.airURL(lat, lon), corrID, &air)
	}()
	wg.Wait()

	if fcErr != nil {
		return nil, fmt.Errorf("fetch forecast: %w", fcErr)
	}
	if aErr != nil {
		return nil, fmt.Errorf("fetch air quality: %w", aErr)
	}

	bundle := &Bundle{
		Current:  mapCurrent(cur),
		Forecast: mapForecast(fc),
		Air:      mapAir(air),
	}

	c.logger.Debug("bundle fetched",
		zap.String("location", loc.String()),
		zap.String("requestId", corrID),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Duration("duration", time.Since(start)),
	)
	return bundle, nil
}

// SuggestCities queries the provider geocoding endpoint for search-ahead
// candidates matching the partial name. limit is clamped to [1, 10].
func (c *Client) SuggestCities(ctx context.Context, query string, limit int) ([]Place, error) {
	name, err := ValidateCityName(query)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 10 {
		limit = 10
	}

	u, err := url.Parse(c.geoURL + "/direct")
	if err != nil {
		return nil, fmt.Errorf("invalid geo URL: %w", err)
	}
	params := url.Values{}
	params.Set("q", name)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("appid", c.apiKey)
	u.RawQuery = params.Encode()

	var raw []owmGeoResult
	if err := c.doGet(ctx, "geocoding", u.String(), uuid.NewString(), &raw); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		places = append(places, Place{
			Name:    r.Name,
			State:   r.State,
			Country: r.Country,
			Lat:     r.Lat,
			Lon:     r.Lon,
		})
	}
	return places, nil
}

// ValidateAPIKey issues a cheap current-conditions request to verify the key
// is accepted. Useful at startup before anything is cached.
func (c *Client) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cur owmCurrentResponse
	err := c.doGet(ctx, "current", c.currentURL(ByName("London")), uuid.NewString(), &cur)
	if errors.Is(err, ErrInvalidAPIKey) {
		return err
	}
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	return nil
}

func (c *Client) currentURL(loc Location) string {
	params := url.Values{}
	if name, ok := loc.Name(); ok {
		params.Set("q", name)
	} else if lat, lon, ok := loc.Coordinates(); ok {
		params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	}
	params.Set("appid", c.apiKey)
	params.Set("units", string(c.Units()))
	return c.baseURL + "/weather?" + params.Encode()
}

func (c *Client) forecastURL(lat, lon float64) string {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", string(c.Units()))
	return c.baseURL + "/forecast?" + params.Encode()
}

func (c *Client) airURL(lat, lon float64) string {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	return c.baseURL + "/air_pollution?" + params.Encode()
}

// doGet issues one GET through the circuit breaker, maps the status code to
// the error taxonomy, records metrics, and decodes the body into out.
func (c *Client) doGet(ctx context.Context, endpoint, rawURL, corrID string, out any) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", corrID)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		// 5xx counts as a breaker failure.
		if r.StatusCode >= http.StatusInternalServerError {
			r.Body.Close()
			return nil, fmt.Errorf("%w: HTTP %d", ErrUpstream, r.StatusCode)
		}
		return r, nil
	})

	duration := time.Since(start).Seconds()
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			err = fmt.Errorf("%w: circuit open for %s", ErrUpstream, endpoint)
		case errors.Is(err, ErrUpstream):
			// already mapped inside the breaker call
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			err = fmt.Errorf("%w: request timeout: %v", ErrNetwork, err)
		default:
			err = fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return err
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := c.checkStatus(resp); err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return nil
}

// checkStatus maps non-2xx status codes below 500 to the error taxonomy.
// 5xx never reaches here; the breaker call converts it first.
func (c *Client) checkStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: rejected by provider", ErrInvalidAPIKey)
	case http.StatusNotFound, http.StatusBadRequest:
		// The provider answers 404 for unknown city names and 400 for
		// malformed coordinates; both mean "no such place" to callers.
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
