package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrCheckedOut is returned when a store operation runs while the store's
// contents are handed out to a refresh.
var ErrCheckedOut = errors.New("store is checked out")

// ErrNotCheckedOut is returned when Replace is called without a matching
// Take.
var ErrNotCheckedOut = errors.New("store is not checked out")

// Store holds the known packages of one release channel, persisted as a
// JSON record. A refresh takes exclusive ownership of the contents with
// Take and hands them back with Replace; every other operation fails with
// ErrCheckedOut during that window.
type Store struct {
	mu       sync.Mutex
	channel  Channel
	path     string
	packages []Package
	out      bool
	logger   *logrus.Entry
}

type storeRecord struct {
	Channel  Channel   `json:"channel"`
	Packages []Package `json:"packages"`
}

// NewStore creates the store for one channel, persisting under dir.
func NewStore(channel Channel, dir string) *Store {
	return &Store{
		channel: channel,
		path:    filepath.Join(dir, string(channel)+".json"),
		logger:  logrus.WithField("component", "store").WithField("channel", channel),
	}
}

func (s *Store) Channel() Channel {
	return s.channel
}

// Load reads the persisted record. A missing file leaves the store empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.packages = nil
			return nil
		}
		return fmt.Errorf("failed to read store file: %w", err)
	}

	var record storeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to decode store file %s: %w", s.path, err)
	}

	s.packages = record.Packages
	s.logger.WithField("count", len(s.packages)).Debug("Store loaded")
	return nil
}

// saveLocked persists the current contents. Callers hold s.mu.
func (s *Store) saveLocked() error {
	record := storeRecord{Channel: s.channel, Packages: s.packages}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

// Take hands the contents out for an exclusive refresh window. The store
// refuses all other operations until Replace returns ownership.
func (s *Store) Take() ([]Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out {
		return nil, ErrCheckedOut
	}
	s.out = true
	taken := s.packages
	s.packages = nil
	return taken, nil
}

// Replace returns ownership of the contents after a Take and persists them.
func (s *Store) Replace(pkgs []Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.out {
		return ErrNotCheckedOut
	}
	s.out = false
	s.packages = pkgs
	return s.saveLocked()
}

// Packages returns a copy of the contents.
func (s *Store) Packages() ([]Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out {
		return nil, ErrCheckedOut
	}
	out := make([]Package, len(s.packages))
	copy(out, s.packages)
	return out, nil
}

// Len reports the number of packages in the store.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out {
		return 0, ErrCheckedOut
	}
	return len(s.packages), nil
}

// Contains reports whether a package with p's identity is present.
func (s *Store) Contains(p Package) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out {
		return false, ErrCheckedOut
	}
	for _, existing := range s.packages {
		if existing.Same(p) {
			return true, nil
		}
	}
	return false, nil
}

// Add appends a package and persists.
func (s *Store) Add(p Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out {
		return ErrCheckedOut
	}
	s.packages = append(s.packages, p)
	return s.saveLocked()
}

// Remove drops the package with p's identity and persists. It reports
// whether an entry was removed.
func (s *Store) Remove(p Package) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out {
		return false, ErrCheckedOut
	}
	for i, existing := range s.packages {
		if existing.Same(p) {
			s.packages = append(s.packages[:i], s.packages[i+1:]...)
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// Update applies fn to the contents under the lock and persists when fn
// reports a change. fn may mutate the slice elements in place.
func (s *Store) Update(fn func(pkgs []Package) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out {
		return false, ErrCheckedOut
	}
	if !fn(s.packages) {
		return false, nil
	}
	return true, s.saveLocked()
}
