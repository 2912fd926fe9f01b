package initializer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/pkg/logger"
)

type Initializer struct {
	Logger *logger.Logger
}

func NewInitializer() *Initializer {
	return &Initializer{
		Logger: logger.NewLogger("initializer"),
	}
}

// EnsureDirectories creates the working directories on first run. Existing
// directories are left alone.
func (i *Initializer) EnsureDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.Paths.InstallRoot,
		cfg.Paths.CacheDir,
		cfg.Paths.StateDir,
	}
	if cfg.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.Logging.File))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			i.Logger.Errorf("failed to create directory %s: %v", dir, err)
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	i.Logger.WithFields(logger.Fields{
		"install_root": cfg.Paths.InstallRoot,
		"cache_dir":    cfg.Paths.CacheDir,
		"state_dir":    cfg.Paths.StateDir,
	}).Debug("Working directories ready")
	return nil
}
