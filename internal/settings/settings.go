// Package settings persists the router's restart-surviving preferences
// (spec.md §6): which devices to route between, whether to use
// exclusive mode, and whether to auto-start on launch. Store is an
// interface so callers can swap in any backing format; FileStore is the
// reference implementation, grounded on doismellburning-samoyed's use of
// gopkg.in/yaml.v3 for on-disk configuration.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the persisted state §6 names.
type Settings struct {
	CaptureDevice string `yaml:"capture_device"`
	RenderDevice  string `yaml:"render_device"`
	ExclusiveMode bool   `yaml:"exclusive_mode"`
	AutoStart     bool   `yaml:"auto_start"`
}

// Store loads and saves Settings.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}

// FileStore persists Settings as YAML at Path.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads settings from disk, returning zero-value Settings if the
// file does not yet exist.
func (s *FileStore) Load() (Settings, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", s.Path, err)
	}
	var out Settings
	if err := yaml.Unmarshal(data, &out); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", s.Path, err)
	}
	return out, nil
}

// Save writes settings to disk as YAML, creating the file if necessary.
func (s *FileStore) Save(settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.Path, err)
	}
	return nil
}
