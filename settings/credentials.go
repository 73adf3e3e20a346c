// Package settings stores per-user modloc state in the XDG data directory:
//
//	$XDG_DATA_HOME/modloc/  (default: ~/.local/share/modloc/)
//
// Files stored:
//   - auth.json  API keys and endpoint overrides, keyed by backend ID
//   - memory.db  translation memory snapshot cache (see package memory)
//
// auth.json is written with 0600 permissions. Each value has a "type"
// field; only "api" entries exist today.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	dataDirName   = "modloc"
	authFileName  = "auth.json"
	cacheFileName = "memory.db"

	typeAPI = "api"
)

// Credential is the entry stored per backend in auth.json.
type Credential struct {
	Type string `json:"type"`
	Key  string `json:"key,omitempty"`
	// BaseURL overrides the backend's endpoint (custom-openai, self-hosted
	// Ollama).
	BaseURL string `json:"baseUrl,omitempty"`
	// Model is the preferred model for the backend.
	Model string `json:"model,omitempty"`
}

// Store holds all credentials, keyed by backend ID.
type Store map[string]*Credential

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// DataDir returns the modloc data directory, honouring $XDG_DATA_HOME.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func authPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, authFileName), nil
}

// FilePath returns the auth.json path for display, or "" if unknown.
func FilePath() string {
	p, err := authPath()
	if err != nil {
		return ""
	}
	return p
}

// MemoryCachePath returns the default translation memory cache path.
func MemoryCachePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cacheFileName), nil
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store. A missing or unreadable file yields an
// empty store.
func Load() Store {
	path, err := authPath()
	if err != nil {
		return make(Store)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}
	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store with 0600 permissions.
func Save(store Store) error {
	path, err := authPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// IDs returns the backend IDs with stored credentials, sorted.
func (s Store) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Get returns the entry for a backend, or nil.
func Get(backendID string) *Credential {
	return Load()[backendID]
}

// Set upserts the entry for a backend.
func Set(backendID string, c *Credential) error {
	store := Load()
	store[backendID] = c
	return Save(store)
}

// SetAPIKey stores an API key, keeping any stored base URL and model.
func SetAPIKey(backendID, key, baseURL string) error {
	store := Load()
	c := &Credential{Type: typeAPI, Key: key, BaseURL: baseURL}
	if old := store[backendID]; old != nil {
		if c.BaseURL == "" {
			c.BaseURL = old.BaseURL
		}
		c.Model = old.Model
	}
	store[backendID] = c
	return Save(store)
}

// GetAPIKey returns the stored API key for a backend, or "".
func GetAPIKey(backendID string) string {
	c := Get(backendID)
	if c == nil || c.Type != typeAPI {
		return ""
	}
	return c.Key
}

// GetBaseURL returns the stored base URL for a backend, or "".
func GetBaseURL(backendID string) string {
	if c := Get(backendID); c != nil {
		return c.BaseURL
	}
	return ""
}

// Remove deletes the entry for a backend. Removing a missing entry is not
// an error.
func Remove(backendID string) error {
	store := Load()
	if _, ok := store[backendID]; !ok {
		return nil
	}
	delete(store, backendID)
	return Save(store)
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
