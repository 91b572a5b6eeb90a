// Package config loads the dashboard configuration from an optional YAML
// file and the environment, env winning. A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/skydash/skydash/weather"
)

// Config holds the assembled dashboard configuration.
type Config struct {
	WeatherAPIKey     string
	WeatherAPIURL     string
	GeoAPIURL         string
	WeatherAPITimeout time.Duration
	Units             weather.Units

	CacheTTL       time.Duration
	CacheBackend   string // "in_memory" or "memcached"
	CacheRetention time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryDelay time.Duration
	MaxRetries int

	DefaultCity         string
	PopularCities       []string
	PrefsDBPath         string // empty = in-memory preferences only
	AutoRefreshInterval time.Duration
}

type fileConfig struct {
	WeatherAPI struct {
		URL     string `yaml:"url"`
		GeoURL  string `yaml:"geo_url"`
		Timeout string `yaml:"timeout"`
		Units   string `yaml:"units"`
	} `yaml:"weather_api"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Retention string `yaml:"retention"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryDelay string `yaml:"retry_delay"`
		// Pointer so an explicit 0 (no retries) is distinguishable from
		// an absent key.
		MaxRetries *int `yaml:"max_retries"`
	} `yaml:"reliability"`

	Dashboard struct {
		DefaultCity         string   `yaml:"default_city"`
		PopularCities       []string `yaml:"popular_cities"`
		PrefsDBPath         string   `yaml:"prefs_db_path"`
		AutoRefreshInterval string   `yaml:"auto_refresh_interval"`
	} `yaml:"dashboard"`
}

// Load assembles the configuration: .env (if present), then the YAML file
// named by SKYDASH_CONFIG (or ./skydash.yaml when it exists), then env
// overrides, then defaults and validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var fc fileConfig
	path := os.Getenv("SKYDASH_CONFIG")
	if path == "" {
		if _, err := os.Stat("skydash.yaml"); err == nil {
			path = "skydash.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required")
	}

	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL, weather.DefaultBaseURL)
	cfg.GeoAPIURL = firstNonEmpty(os.Getenv("WEATHER_GEO_URL"), fc.WeatherAPI.GeoURL, weather.DefaultGeoURL)
	cfg.WeatherAPITimeout = parseDuration(firstNonEmpty(os.Getenv("WEATHER_API_TIMEOUT"), fc.WeatherAPI.Timeout), 10*time.Second)

	units := strings.ToLower(firstNonEmpty(os.Getenv("WEATHER_UNITS"), fc.WeatherAPI.Units, string(weather.UnitsMetric)))
	cfg.Units = weather.Units(units)

	cfg.CacheTTL = parseDuration(firstNonEmpty(os.Getenv("CACHE_TTL"), fc.Cache.TTL), 10*time.Minute)
	cfg.CacheRetention = parseDuration(firstNonEmpty(os.Getenv("CACHE_RETENTION"), fc.Cache.Retention), time.Hour)
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory"))

	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(os.Getenv("MEMCACHED_TIMEOUT"), 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryDelay = parseDuration(firstNonEmpty(os.Getenv("RETRY_DELAY"), fc.Reliability.RetryDelay), 500*time.Millisecond)
	cfg.MaxRetries = 1
	if fc.Reliability.MaxRetries != nil {
		cfg.MaxRetries = *fc.Reliability.MaxRetries
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	cfg.DefaultCity = firstNonEmpty(os.Getenv("DEFAULT_CITY"), fc.Dashboard.DefaultCity, "Jakarta")
	cfg.PopularCities = fc.Dashboard.PopularCities
	if len(cfg.PopularCities) == 0 {
		cfg.PopularCities = []string{"Jakarta", "London", "New York", "Tokyo", "Paris", "Sydney"}
	}
	cfg.PrefsDBPath = firstNonEmpty(os.Getenv("PREFS_DB_PATH"), fc.Dashboard.PrefsDBPath)
	cfg.AutoRefreshInterval = parseDuration(firstNonEmpty(os.Getenv("AUTO_REFRESH_INTERVAL"), fc.Dashboard.AutoRefreshInterval), 10*time.Minute)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if the string
// is empty, unparsable, or not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.Units != weather.UnitsMetric && cfg.Units != weather.UnitsImperial {
		return fmt.Errorf("units must be metric or imperial, got %q", cfg.Units)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.CacheRetention < cfg.CacheTTL {
		cfg.CacheRetention = cfg.CacheTTL * 2
	}
	if _, err := weather.ValidateCityName(cfg.DefaultCity); err != nil {
		return fmt.Errorf("default_city: %w", err)
	}
	return nil
}
