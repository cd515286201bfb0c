package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrConfigCorrupt is returned by Load when admin-settings.json exists but is
// not valid JSON. The caller falls back to defaults without overwriting the
// file, per the Settings Store's contract.
var ErrConfigCorrupt = errors.New("settings: config file is corrupt")

const fileName = "admin-settings.json"

// Store owns the on-disk Settings document under a runtime home directory.
type Store struct {
	homeDir string
	logger  *slog.Logger
}

// New returns a Store rooted at homeDir. homeDir is created if missing.
func New(homeDir string, logger *slog.Logger) (*Store, error) {
	if homeDir == "" {
		return nil, fmt.Errorf("settings: empty home directory")
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return nil, fmt.Errorf("settings: create home dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{homeDir: homeDir, logger: logger}, nil
}

func (s *Store) path() string {
	return filepath.Join(s.homeDir, fileName)
}

// Load reads and normalizes the persisted Settings. If no file exists, the
// defaults are normalized, written out, and returned. If the file exists but
// is not valid JSON, the defaults are returned (and logged as a warning)
// without touching the file on disk. Credential env vars take precedence
// over whatever the document holds.
func (s *Store) Load() (Settings, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		def := Normalize(Defaults())
		if saveErr := s.Save(def); saveErr != nil {
			return def, saveErr
		}
		applyEnvOverrides(&def)
		return Normalize(def), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("settings file is corrupt, falling back to defaults", "path", s.path(), "error", err.Error())
		loaded = Defaults()
	}
	applyEnvOverrides(&loaded)
	return Normalize(loaded), nil
}

// applyEnvOverrides injects Telegram credentials from the deployment
// environment over the persisted document.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("SENTINEL_BOT_TOKEN"); v != "" {
		s.BotToken = v
	}
	if v := os.Getenv("SENTINEL_API_ID"); v != "" {
		s.APIID = v
	}
	if v := os.Getenv("SENTINEL_API_HASH"); v != "" {
		s.APIHash = v
	}
	if v := os.Getenv("SENTINEL_SESSION_STRING"); v != "" {
		s.SessionString = v
	}
}

// Save atomically persists s to admin-settings.json at mode 0600.
func (s *Store) Save(v Settings) error {
	normalized := Normalize(v)
	data, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("settings: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}

// HomeDir returns the runtime directory env var override, falling back to
// the OS-appropriate default when unset.
func HomeDir() string {
	if v := os.Getenv("SENTINEL_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentinel"
	}
	return filepath.Join(home, ".sentinel")
}
