package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdir switches the working directory for the test and restores it on
// cleanup (t.Chdir requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

// writeConfig drops a config/dev.yaml in a temp working directory so Load
// finds it the way it would in a real checkout.
func writeConfig(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "dev.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, dir)
}

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, "backend:\n  url: http://localhost:4000\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackendURL != "http://localhost:4000" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s default", cfg.RequestTimeout)
	}
	if cfg.AuthMode != AuthModeBearer {
		t.Errorf("AuthMode = %q, want bearer default", cfg.AuthMode)
	}
	if cfg.AuthErrorMarker != "accessToken missing" {
		t.Errorf("AuthErrorMarker = %q, want bearer default", cfg.AuthErrorMarker)
	}
	if cfg.CacheBackend != "in_memory" || cfg.CacheMaxEntries != 256 {
		t.Errorf("cache = %q/%d, want in_memory/256", cfg.CacheBackend, cfg.CacheMaxEntries)
	}
	if cfg.AttractionsRadius != 1000 || cfg.ForecastStride != 8 || cfg.SavedPageLimit != 10 {
		t.Errorf("dashboard defaults = %d/%d/%d, want 1000/8/10",
			cfg.AttractionsRadius, cfg.ForecastStride, cfg.SavedPageLimit)
	}
	if !cfg.BreakerEnabled || cfg.BreakerFailureThreshold != 5 {
		t.Errorf("breaker = %v/%d, want enabled/5", cfg.BreakerEnabled, cfg.BreakerFailureThreshold)
	}
	if !strings.HasSuffix(cfg.CredentialsFile, filepath.Join(".weatherdeck", "credentials.json")) {
		t.Errorf("CredentialsFile = %q, want home-dir default in bearer mode", cfg.CredentialsFile)
	}
}

func TestLoad_CookieModeDefaults(t *testing.T) {
	writeConfig(t, "backend:\n  url: http://localhost:4000\nauth:\n  mode: cookie\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthErrorMarker != "accessToken cookie missing" {
		t.Errorf("AuthErrorMarker = %q, want cookie default", cfg.AuthErrorMarker)
	}
	if cfg.CredentialsFile != "" {
		t.Errorf("CredentialsFile = %q, want empty in cookie mode", cfg.CredentialsFile)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	writeConfig(t, "backend:\n  url: http://file.example\nauth:\n  mode: bearer\n")
	t.Setenv("BACKEND_URL", "http://env.example/")
	t.Setenv("AUTH_MODE", "cookie")
	t.Setenv("CACHE_BACKEND", "memcached")
	t.Setenv("MEMCACHED_ADDRS", "cache1:11211,cache2:11211")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackendURL != "http://env.example" {
		t.Errorf("BackendURL = %q, want env value with trailing slash trimmed", cfg.BackendURL)
	}
	if cfg.AuthMode != AuthModeCookie {
		t.Errorf("AuthMode = %q, want env override", cfg.AuthMode)
	}
	if cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "cache1:11211,cache2:11211" {
		t.Errorf("cache = %q @ %q, want env overrides", cfg.CacheBackend, cfg.MemcachedAddrs)
	}
}

func TestLoad_MissingBackendURL(t *testing.T) {
	writeConfig(t, "auth:\n  mode: bearer\n")
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error without backend.url")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error when config file is absent")
	}
}

func TestLoad_InvalidAuthMode(t *testing.T) {
	writeConfig(t, "backend:\n  url: http://localhost:4000\nauth:\n  mode: basic\n")
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for unknown auth mode")
	}
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	writeConfig(t, "backend:\n  url: http://localhost:4000\ncache:\n  backend: redis\n")
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for unknown cache backend")
	}
}

func TestLoad_GeolocationRequiresCoordinates(t *testing.T) {
	writeConfig(t, "backend:\n  url: http://localhost:4000\ngeolocation:\n  enabled: true\n")
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error when geolocation lacks coordinates")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"5s", 5 * time.Second},
		{" 2m ", 2 * time.Minute},
		{"", time.Second},
		{"bogus", time.Second},
		{"-3s", time.Second},
		{"0s", time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.input, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
