package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth transport modes. Exactly one is active per deployment; the two are
// mutually exclusive and never combined.
const (
	AuthModeBearer = "bearer"
	AuthModeCookie = "cookie"
)

// Default auth-error marker per mode. The backend's credential-missing message
// differs between the two transports, so the marker is configurable rather
// than hardcoded.
const (
	defaultBearerMarker = "accessToken missing"
	defaultCookieMarker = "accessToken cookie missing"
)

// Config holds client configuration loaded from YAML and env.
type Config struct {
	BackendURL     string
	RequestTimeout time.Duration

	AuthMode        string
	AuthErrorMarker string
	CredentialsFile string

	CacheBackend    string // "in_memory" or "memcached"
	CacheMaxEntries int
	CacheTTL        time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	BreakerEnabled          bool
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	AttractionsRadius int
	ForecastStride    int
	SavedPageLimit    int

	GeolocationEnabled bool
	GeolocationLat     string
	GeolocationLng     string

	MetricsListenAddr string
	ShutdownTimeout   time.Duration
}

type fileConfig struct {
	Backend struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"backend"`

	Auth struct {
		Mode            string `yaml:"mode"`
		ErrorMarker     string `yaml:"error_marker"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"auth"`

	Cache struct {
		Backend    string `yaml:"backend"`
		MaxEntries int    `yaml:"max_entries"`
		TTL        string `yaml:"ttl"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		BreakerEnabled          *bool  `yaml:"breaker_enabled"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int    `yaml:"breaker_success_threshold"`
		BreakerTimeout          string `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Dashboard struct {
		AttractionsRadius int `yaml:"attractions_radius"`
		ForecastStride    int `yaml:"forecast_stride"`
		SavedPageLimit    int `yaml:"saved_page_limit"`
	} `yaml:"dashboard"`

	Geolocation struct {
		Enabled bool   `yaml:"enabled"`
		Lat     string `yaml:"lat"`
		Lng     string `yaml:"lng"`
	} `yaml:"geolocation"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// BACKEND_URL, AUTH_MODE, CACHE_BACKEND and MEMCACHED_ADDRS env vars override
// the file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.BackendURL = strings.TrimSpace(os.Getenv("BACKEND_URL"))
	if cfg.BackendURL == "" {
		cfg.BackendURL = strings.TrimSpace(fc.Backend.URL)
	}
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("backend.url required (set BACKEND_URL env or config file)")
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	cfg.RequestTimeout = parseDuration(fc.Backend.Timeout, 10*time.Second)

	cfg.AuthMode = strings.TrimSpace(strings.ToLower(os.Getenv("AUTH_MODE")))
	if cfg.AuthMode == "" {
		cfg.AuthMode = strings.TrimSpace(strings.ToLower(fc.Auth.Mode))
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthModeBearer
	}
	cfg.AuthErrorMarker = strings.TrimSpace(fc.Auth.ErrorMarker)
	if cfg.AuthErrorMarker == "" {
		if cfg.AuthMode == AuthModeCookie {
			cfg.AuthErrorMarker = defaultCookieMarker
		} else {
			cfg.AuthErrorMarker = defaultBearerMarker
		}
	}
	cfg.CredentialsFile = strings.TrimSpace(fc.Auth.CredentialsFile)
	if cfg.CredentialsFile == "" && cfg.AuthMode == AuthModeBearer {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.CredentialsFile = filepath.Join(home, ".weatherdeck", "credentials.json")
		}
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheMaxEntries = fc.Cache.MaxEntries
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 256
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 15*time.Minute)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}

	cfg.BreakerEnabled = true
	if fc.Reliability.BreakerEnabled != nil {
		cfg.BreakerEnabled = *fc.Reliability.BreakerEnabled
	}
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerSuccessThreshold = fc.Reliability.BreakerSuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 2
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)

	cfg.AttractionsRadius = fc.Dashboard.AttractionsRadius
	if cfg.AttractionsRadius <= 0 {
		cfg.AttractionsRadius = 1000
	}
	cfg.ForecastStride = fc.Dashboard.ForecastStride
	if cfg.ForecastStride <= 0 {
		cfg.ForecastStride = 8
	}
	cfg.SavedPageLimit = fc.Dashboard.SavedPageLimit
	if cfg.SavedPageLimit <= 0 {
		cfg.SavedPageLimit = 10
	}

	cfg.GeolocationEnabled = fc.Geolocation.Enabled
	cfg.GeolocationLat = strings.TrimSpace(fc.Geolocation.Lat)
	cfg.GeolocationLng = strings.TrimSpace(fc.Geolocation.Lng)

	cfg.MetricsListenAddr = strings.TrimSpace(fc.Metrics.ListenAddr)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if the string
// is empty, unparseable, or non-positive.
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

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.AuthMode {
	case AuthModeBearer, AuthModeCookie:
	default:
		return fmt.Errorf("auth.mode must be bearer or cookie, got %q", cfg.AuthMode)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.GeolocationEnabled && (cfg.GeolocationLat == "" || cfg.GeolocationLng == "") {
		return fmt.Errorf("geolocation.enabled requires geolocation.lat and geolocation.lng")
	}
	return nil
}
