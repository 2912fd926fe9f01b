package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/internal/config"
)

// Launcher starts installed packages as detached OS processes. The caller
// exits right after a successful spawn; the child is released so it keeps
// running on its own.
type Launcher struct {
	cfg      *config.Config
	registry *catalog.Registry
	logger   *logrus.Entry
}

func New(cfg *config.Config, registry *catalog.Registry) *Launcher {
	return &Launcher{
		cfg:      cfg,
		registry: registry,
		logger:   logrus.WithField("component", "launcher"),
	}
}

// Launch spawns the installed package. filePath, when non-empty, is passed
// to the executable as its first argument.
func (l *Launcher) Launch(pkg catalog.Package, filePath string) error {
	if !l.registry.Contains(pkg) {
		return fmt.Errorf("package %q is not installed", pkg.Name)
	}
	dir := l.registry.InstallDir(pkg)

	exe, err := l.findExecutable(dir, pkg)
	if err != nil {
		return err
	}

	var args []string
	if filePath != "" {
		abs, err := filepath.Abs(filePath)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", filePath, err)
		}
		args = append(args, abs)
	}

	cmd := exec.Command(exe, args...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch %s: %w", pkg.Name, err)
	}

	l.logger.WithFields(logrus.Fields{
		"package":    pkg.Name,
		"version":    pkg.Version,
		"executable": exe,
		"pid":        cmd.Process.Pid,
	}).Info("Launched")

	return cmd.Process.Release()
}

// findExecutable picks the binary to run. A configured launch.executable
// name wins; otherwise the entry named like the package, or the single
// executable file at the top of the install dir.
func (l *Launcher) findExecutable(dir string, pkg catalog.Package) (string, error) {
	if name := l.cfg.Launch.Executable; name != "" {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		return "", fmt.Errorf("configured executable %q not found in %s", name, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read install directory: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == catalog.ManifestName || e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Mode().Perm()&0111 == 0 {
			continue
		}
		if e.Name() == pkg.Name {
			return filepath.Join(dir, e.Name()), nil
		}
		candidates = append(candidates, filepath.Join(dir, e.Name()))
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no executable found in %s, set launch.executable in the config", dir)
	case 1:
		return candidates[0], nil
	}
	return "", fmt.Errorf("multiple executables found in %s, set launch.executable in the config", dir)
}
