package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// ManifestName is the per-installation record written at install finalize
// and read back by Rescan.
const ManifestName = "manifest.json"

// Registry holds the locally installed packages. Entries always carry the
// installed state; the filesystem under the install root is the source of
// truth and Rescan re-derives the set from the per-directory manifests.
type Registry struct {
	mu       sync.Mutex
	root     string
	path     string
	packages []Package
	logger   *logrus.Entry
}

// NewRegistry creates the registry over the given install root, caching
// its record under dir.
func NewRegistry(root, dir string) *Registry {
	return &Registry{
		root:   root,
		path:   filepath.Join(dir, "installed.json"),
		logger: logrus.WithField("component", "installed"),
	}
}

// Root returns the install root directory.
func (r *Registry) Root() string {
	return r.root
}

// InstallDir returns the installation directory for a package identity.
func (r *Registry) InstallDir(p Package) string {
	return filepath.Join(r.root, p.InstallDirName())
}

// Load reads the cached record. A missing file leaves the registry empty;
// Rescan refreshes from the filesystem truth.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.packages = nil
			return nil
		}
		return fmt.Errorf("failed to read installed record: %w", err)
	}

	var record storeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to decode installed record: %w", err)
	}
	r.packages = record.Packages
	return nil
}

func (r *Registry) saveLocked() error {
	record := storeRecord{Packages: r.packages}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode installed record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write installed record: %w", err)
	}
	return nil
}

// Rescan walks the install root and rebuilds the installed set from the
// per-directory manifests. Directories without a readable manifest are
// skipped with a warning so a half-removed installation never poisons the
// registry.
func (r *Registry) Rescan() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("Install root does not exist yet")
			r.packages = nil
			return r.saveLocked()
		}
		return fmt.Errorf("failed to read install root %s: %w", r.root, err)
	}

	var found []Package
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "" || name[0] == '.' {
			// Staging directories hide behind a dot prefix
			continue
		}

		pkg, err := ReadManifest(filepath.Join(r.root, name))
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"dir":   name,
				"error": err.Error(),
			}).Warn("Skipping directory without readable manifest")
			continue
		}
		pkg.State = InstalledState()
		found = append(found, pkg)
	}

	r.packages = found
	r.logger.WithField("count", len(found)).Debug("Installed registry rescanned")
	return r.saveLocked()
}

// Packages returns a copy of the installed set.
func (r *Registry) Packages() []Package {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Package, len(r.packages))
	copy(out, r.packages)
	return out
}

// Contains reports whether a package with p's identity is installed.
func (r *Registry) Contains(p Package) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.packages {
		if existing.Same(p) {
			return true
		}
	}
	return false
}

// FindBuild returns the newest installed package of the given build line.
func (r *Registry) FindBuild(b Build) (Package, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest Package
	found := false
	for _, p := range r.packages {
		if p.Build != b {
			continue
		}
		if !found || p.Date.After(newest.Date) {
			newest = p
			found = true
		}
	}
	return newest, found
}

// Find locates an installed package by channel and version, and variant
// when given.
func (r *Registry) Find(ch Channel, version, variant string) (Package, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.packages {
		if p.Build.Channel != ch || p.Version != version {
			continue
		}
		if variant != "" && p.Build.Variant != variant {
			continue
		}
		return p, true
	}
	return Package{}, false
}

// Remove uninstalls the package: its installation directory is deleted and
// the entry dropped from the registry.
func (r *Registry) Remove(p Package) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, existing := range r.packages {
		if existing.Same(p) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("package %q is not installed", p.Name)
	}

	dir := filepath.Join(r.root, p.InstallDirName())
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove installation directory: %w", err)
	}

	r.packages = append(r.packages[:idx], r.packages[idx+1:]...)
	r.logger.WithFields(logrus.Fields{
		"package": p.Name,
		"version": p.Version,
	}).Info("Removed installed package")
	return r.saveLocked()
}

// RemoveOld prunes superseded installations. For every channel where
// keepOnlyLatest reports true, each installed package sharing a build line
// with a newer installed package is deleted together with its directory.
// Archived builds are never pruned. Runs after installs only, never after
// a plain refresh.
func (r *Registry) RemoveOld(keepOnlyLatest func(Channel) bool) ([]Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	newest := make(map[Build]Package)
	for _, p := range r.packages {
		cur, ok := newest[p.Build]
		if !ok || p.Date.After(cur.Date) {
			newest[p.Build] = p
		}
	}

	var removed []Package
	var kept []Package
	var firstErr error
	for _, p := range r.packages {
		prune := p.Build.Channel != ChannelArchived &&
			keepOnlyLatest(p.Build.Channel) &&
			p.Date.Before(newest[p.Build].Date)
		if !prune {
			kept = append(kept, p)
			continue
		}

		dir := filepath.Join(r.root, p.InstallDirName())
		if err := os.RemoveAll(dir); err != nil {
			r.logger.WithFields(logrus.Fields{
				"dir":   dir,
				"error": err.Error(),
			}).Warn("Failed to remove superseded installation")
			if firstErr == nil {
				firstErr = err
			}
			kept = append(kept, p)
			continue
		}
		r.logger.WithFields(logrus.Fields{
			"package": p.Name,
			"version": p.Version,
			"build":   p.Build.String(),
		}).Info("Pruned superseded installation")
		removed = append(removed, p)
	}

	r.packages = kept
	if err := r.saveLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	return removed, firstErr
}

// WriteManifest records a package into dir as its installation manifest.
func WriteManifest(dir string, p Package) error {
	p.State = InstalledState()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the installation manifest from dir.
func ReadManifest(dir string) (Package, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return Package{}, err
	}
	var p Package
	if err := json.Unmarshal(data, &p); err != nil {
		return Package{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return p, nil
}
