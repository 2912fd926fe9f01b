package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/internal/initializer"
	"github.com/packmill/packmill/internal/installer"
	"github.com/packmill/packmill/internal/launcher"
	"github.com/packmill/packmill/internal/releases"
)

// App wires the components together and carries the flows the commands
// share: refresh, install, remove, default management and launching.
type App struct {
	Cfg       *config.Config
	Settings  *config.Settings
	Catalog   *catalog.Catalog
	Client    *releases.Client
	Installer *installer.Installer
	Launcher  *launcher.Launcher

	log *logrus.Entry
}

// New bootstraps the working directories and loads all persisted state.
func New(cfg *config.Config) (*App, error) {
	if err := initializer.NewInitializer().EnsureDirectories(cfg); err != nil {
		return nil, err
	}

	settings, err := config.LoadSettings(cfg.Paths.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	client := releases.NewClient(cfg)
	cat := catalog.New(cfg.Paths.StateDir, cfg.Paths.InstallRoot, client, cfg, settings)
	if err := cat.Load(); err != nil {
		return nil, err
	}

	return &App{
		Cfg:       cfg,
		Settings:  settings,
		Catalog:   cat,
		Client:    client,
		Installer: installer.New(cfg, client, cat.Installed),
		Launcher:  launcher.New(cfg, cat.Installed),
		log:       logrus.WithField("component", "app"),
	}, nil
}

// RefreshUpdates runs an update check across the enabled channels unless
// the configured interval since the last check has not passed yet. force
// skips the interval gate. The release endpoint is probed before the
// check; when it is unreachable no store is touched. It reports the
// update counts and whether a check actually ran.
func (a *App) RefreshUpdates(ctx context.Context, force bool) (catalog.UpdateCounts, bool, error) {
	if !force && !a.Settings.ShouldCheckUpdates(time.Now(), a.Cfg.CheckInterval()) {
		a.log.Debug("Skipping update check, interval not reached")
		counts, err := a.Catalog.CountUpdates()
		return counts, false, err
	}

	if err := a.Client.CheckConnection(ctx); err != nil {
		return catalog.UpdateCounts{}, false, err
	}

	_, checkErr := a.Catalog.CheckUpdates(ctx)
	if checkErr == nil {
		if err := a.Settings.MarkUpdateCheck(time.Now()); err != nil {
			a.log.WithError(err).Warn("Failed to persist update check time")
		}
	}

	counts, err := a.Catalog.CountUpdates()
	if checkErr != nil {
		err = checkErr
	}
	return counts, true, err
}

// RefreshChannels re-fetches the given channels regardless of the
// per-channel check switches. Without arguments every channel is
// refreshed, the archive included. An unreachable release endpoint fails
// the refresh before any fetch.
func (a *App) RefreshChannels(ctx context.Context, channels ...catalog.Channel) error {
	if err := a.Client.CheckConnection(ctx); err != nil {
		return err
	}

	if len(channels) == 0 {
		return a.Catalog.RefreshAll(ctx)
	}

	var firstErr error
	for _, ch := range channels {
		if _, err := a.Catalog.CheckChannel(ctx, ch); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", ch, err)
		}
	}
	if err := a.Catalog.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Install runs the install pipeline for pkg, forwarding events to onEvent.
// An unreachable release endpoint fails the install before any pipeline
// event. A package that turned out to be gone is dropped from the catalog
// before the error is returned.
func (a *App) Install(ctx context.Context, pkg catalog.Package, onEvent func(catalog.Event)) error {
	if err := a.Client.CheckConnection(ctx); err != nil {
		return err
	}

	events, err := a.Installer.Start(ctx, pkg)
	if err != nil {
		var gone *installer.GoneError
		if errors.As(err, &gone) {
			if dropErr := a.Catalog.RemovePackage(pkg); dropErr != nil {
				a.log.WithError(dropErr).Warn("Failed to drop unavailable package")
			}
			if syncErr := a.Catalog.Sync(); syncErr != nil {
				a.log.WithError(syncErr).Warn("Failed to sync after dropping package")
			}
		}
		return err
	}

	var failed error
	for ev := range events {
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Kind == catalog.EventErrored {
			failed = ev.Err
		}
	}
	if failed != nil {
		return failed
	}

	return a.Catalog.AfterInstall(a.Cfg.Updates.UseLatestAsDefault)
}

// Remove uninstalls pkg. When it was the default the default is cleared,
// and when its source entry is no longer served the stale catalog entry is
// dropped as well.
func (a *App) Remove(ctx context.Context, pkg catalog.Package) error {
	if err := a.Catalog.Installed.Remove(pkg); err != nil {
		return err
	}

	if def, ok := a.Settings.Default(); ok && def.Same(pkg) {
		if err := a.Settings.ClearDefault(); err != nil {
			a.log.WithError(err).Warn("Failed to clear default package")
		}
	}

	if pkg.URL != "" {
		avail, err := a.Client.Probe(ctx, pkg.URL)
		switch {
		case err != nil:
			a.log.WithError(err).Warn("Could not verify package availability")
		case avail == releases.Gone:
			if err := a.Catalog.RemovePackage(pkg); err != nil {
				a.log.WithError(err).Warn("Failed to drop unavailable package")
			}
		}
	}

	return a.Catalog.Sync()
}

// SetDefault designates an installed package as the default.
func (a *App) SetDefault(pkg catalog.Package) error {
	if !a.Catalog.Installed.Contains(pkg) {
		return fmt.Errorf("package %q is not installed", pkg.Name)
	}
	return a.Settings.SetDefault(pkg)
}

// ClearDefault drops the default designation.
func (a *App) ClearDefault() error {
	return a.Settings.ClearDefault()
}

// Default returns the designated default package, when one is set.
func (a *App) Default() (catalog.Package, bool) {
	return a.Settings.Default()
}

// Launch starts an installed package, passing filePath through when set.
func (a *App) Launch(pkg catalog.Package, filePath string) error {
	return a.Launcher.Launch(pkg, filePath)
}
