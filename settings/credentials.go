// Package settings stores provider credentials for alerts-translate.
//
// Credentials live in the XDG data directory:
//
//	$XDG_DATA_HOME/alerts-translate/auth.json  (default: ~/.local/share/alerts-translate/)
//
// Entries are keyed by provider ID. The "type" field tells them apart:
// "user" holds a Smartling API user with its account and project, "api"
// holds an OpenAI key and an optional base URL. The file is written 0600.
//
// Lookup order for secrets:
//  1. command-line flag (highest priority)
//  2. environment variable
//  3. secret file (SMARTLING_USER_SECRET_FILE)
//  4. this credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirName = "alerts-translate"
	fileName    = "auth.json"
)

// Provider IDs used as store keys.
const (
	ProviderSmartling = "smartling"
	ProviderOpenAI    = "openai"
)

// ---------------------------------------------------------------------------
// Entries
// ---------------------------------------------------------------------------

// Info is the entry stored per provider in auth.json.
type Info struct {
	// "user" or "api"
	Type string `json:"type"`

	// Smartling API user (type == "user")
	UserID     string `json:"userId,omitempty"`
	Secret     string `json:"secret,omitempty"`
	AccountUID string `json:"accountUid,omitempty"`
	ProjectID  string `json:"projectId,omitempty"`

	// OpenAI (type == "api")
	Key     string `json:"key,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// IsUser reports whether i holds a Smartling API user.
func (i *Info) IsUser() bool {
	return i.Type == "user"
}

// IsAPI reports whether i holds an API key.
func (i *Info) IsAPI() bool {
	return i.Type == "api"
}

// Store is the content of auth.json.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// Location
// ---------------------------------------------------------------------------

// dataDir respects $XDG_DATA_HOME and falls back to ~/.local/share.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the path of auth.json, or "" when it cannot be determined.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// DataDir returns the data directory path.
func DataDir() (string, error) {
	return dataDir()
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads auth.json. A missing or unreadable file yields an empty store.
func Load() Store {
	path, err := filePath()
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

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
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

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// Get returns the entry for providerID, or nil.
func Get(providerID string) *Info {
	return Load()[providerID]
}

// Set replaces the entry for providerID.
func Set(providerID string, info *Info) error {
	store := Load()
	store[providerID] = info
	return Save(store)
}

// Remove deletes the entry for providerID.
func Remove(providerID string) error {
	store := Load()
	if _, ok := store[providerID]; !ok {
		return nil
	}
	delete(store, providerID)
	return Save(store)
}

// RemoveAll deletes auth.json.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Typed helpers
// ---------------------------------------------------------------------------

// SetUser stores a Smartling API user. Empty account and project fields
// keep the values of an existing entry.
func SetUser(providerID string, user Info) error {
	store := Load()
	if existing := store[providerID]; existing != nil && existing.IsUser() {
		if user.AccountUID == "" {
			user.AccountUID = existing.AccountUID
		}
		if user.ProjectID == "" {
			user.ProjectID = existing.ProjectID
		}
	}
	user.Type = "user"
	store[providerID] = &user
	return Save(store)
}

// GetUser returns the stored API user for a provider, or nil.
func GetUser(providerID string) *Info {
	info := Get(providerID)
	if info == nil || !info.IsUser() {
		return nil
	}
	return info
}

// SetAPIKey stores an API key and optional base URL for a provider.
func SetAPIKey(providerID, key, baseURL string) error {
	return Set(providerID, &Info{
		Type:    "api",
		Key:     key,
		BaseURL: baseURL,
	})
}

// GetAPIKey returns the stored key, or "" when providerID has no API key entry.
func GetAPIKey(providerID string) string {
	info := Get(providerID)
	if info == nil || !info.IsAPI() {
		return ""
	}
	return info.Key
}

// ReadSecretFile reads a secret from path, trimming one trailing newline.
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	s := string(data)
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
		if n := len(s); n > 0 && s[n-1] == '\r' {
			s = s[:n-1]
		}
	}
	return s, nil
}

// MaskKey shows the first and last four characters of a secret.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
