package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Credentials holds the access/refresh token pair plus optional file
// persistence for silent session restore. The pair is atomic: both tokens are
// set or cleared together, never partially present. Cookie-mode deployments
// never touch this; the transport's cookie jar carries everything.
type Credentials struct {
	mu      sync.Mutex
	access  string
	refresh string
	path    string // empty disables persistence
}

type credentialsFile struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// NewCredentials creates a credential store. path, when non-empty, is the
// JSON file used to persist the pair across process restarts.
func NewCredentials(path string) *Credentials {
	return &Credentials{path: path}
}

// Set installs both tokens and persists them when a path is configured.
func (c *Credentials) Set(access, refresh string) error {
	if access == "" || refresh == "" {
		return fmt.Errorf("credentials: both tokens required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = access
	c.refresh = refresh
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("credentials: create dir: %w", err)
	}
	raw, err := json.Marshal(credentialsFile{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		return fmt.Errorf("credentials: marshal: %w", err)
	}
	if err := os.WriteFile(c.path, raw, 0o600); err != nil {
		return fmt.Errorf("credentials: write: %w", err)
	}
	return nil
}

// Clear drops both tokens and removes the persisted file.
func (c *Credentials) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = ""
	c.refresh = ""
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credentials: remove: %w", err)
	}
	return nil
}

// Get returns the current pair. ok is false when no pair is installed.
func (c *Credentials) Get() (access, refresh string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.access == "" {
		return "", "", false
	}
	return c.access, c.refresh, true
}

// Load restores a previously persisted pair. Returns false, nil when no file
// exists (first run, or cleared by logout).
func (c *Credentials) Load() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" {
		return false, nil
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("credentials: read: %w", err)
	}
	var cf credentialsFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return false, fmt.Errorf("credentials: parse: %w", err)
	}
	if cf.AccessToken == "" || cf.RefreshToken == "" {
		// Partial pairs are never valid; treat as absent.
		return false, nil
	}
	c.access = cf.AccessToken
	c.refresh = cf.RefreshToken
	return true, nil
}
