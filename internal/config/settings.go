package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/packmill/packmill/internal/catalog"
)

// Settings is the mutable runtime state kept apart from the read-only
// configuration: the default package selection and the last update check
// timestamp. Persisted as JSON under the state directory.
type Settings struct {
	mu   sync.Mutex
	path string
	data settingsData
}

type settingsData struct {
	DefaultPackage  *catalog.Package `json:"default_package,omitempty"`
	LastUpdateCheck time.Time        `json:"last_update_check,omitempty"`
}

// LoadSettings reads the settings record from stateDir. A missing file
// yields empty settings.
func LoadSettings(stateDir string) (*Settings, error) {
	s := &Settings{path: filepath.Join(stateDir, "settings.json")}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

func (s *Settings) saveLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Default returns the default package selection.
func (s *Settings) Default() (catalog.Package, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.DefaultPackage == nil {
		return catalog.Package{}, false
	}
	return *s.data.DefaultPackage, true
}

// SetDefault persists p as the default package.
func (s *Settings) SetDefault(p catalog.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DefaultPackage = &p
	return s.saveLocked()
}

// ClearDefault drops the default package selection.
func (s *Settings) ClearDefault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.DefaultPackage == nil {
		return nil
	}
	s.data.DefaultPackage = nil
	return s.saveLocked()
}

// LastCheck returns when updates were last checked. Zero when never.
func (s *Settings) LastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LastUpdateCheck
}

// MarkUpdateCheck records now as the last update check and persists.
func (s *Settings) MarkUpdateCheck(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LastUpdateCheck = now
	return s.saveLocked()
}

// ShouldCheckUpdates reports whether enough time passed since the last
// check. A zero last-check always reports true.
func (s *Settings) ShouldCheckUpdates(now time.Time, every time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.LastUpdateCheck.IsZero() {
		return true
	}
	return now.Sub(s.data.LastUpdateCheck) >= every
}
