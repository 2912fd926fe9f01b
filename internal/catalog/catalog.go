package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves the remote release index of a channel.
type Fetcher interface {
	FetchChannel(ctx context.Context, ch Channel) ([]Package, error)
}

// ChannelFlags exposes the per-channel policy switches.
type ChannelFlags interface {
	// CheckEnabled reports whether the channel participates in update checks.
	CheckEnabled(ch Channel) bool
	// KeepOnlyLatest reports whether superseded installations of the channel
	// are pruned after an install.
	KeepOnlyLatest(ch Channel) bool
}

// DefaultHolder keeps the user's default package selection.
type DefaultHolder interface {
	Default() (Package, bool)
	SetDefault(p Package) error
	ClearDefault() error
}

// UpdateCounts reports available updates per channel. A nil field means the
// channel is excluded from update checks; Total is nil only when every
// channel is excluded.
type UpdateCounts struct {
	Total    *int
	Daily    *int
	Branched *int
	Stable   *int
	LTS      *int
}

// Catalog coordinates the per-channel release stores and the installed
// registry, and keeps package statuses consistent with what is installed.
type Catalog struct {
	stores    map[Channel]*Store
	Installed *Registry

	fetcher  Fetcher
	flags    ChannelFlags
	defaults DefaultHolder
	logger   *logrus.Entry
}

// New builds a catalog persisting channel records and the installed record
// under stateDir, with installations rooted at installRoot.
func New(stateDir, installRoot string, fetcher Fetcher, flags ChannelFlags, defaults DefaultHolder) *Catalog {
	stores := make(map[Channel]*Store, len(Channels()))
	for _, ch := range Channels() {
		stores[ch] = NewStore(ch, stateDir)
	}
	return &Catalog{
		stores:    stores,
		Installed: NewRegistry(installRoot, stateDir),
		fetcher:   fetcher,
		flags:     flags,
		defaults:  defaults,
		logger:    logrus.WithField("component", "catalog"),
	}
}

// Load reads the persisted channel stores and rebuilds the installed
// registry from the filesystem.
func (c *Catalog) Load() error {
	for _, ch := range Channels() {
		if err := c.stores[ch].Load(); err != nil {
			return fmt.Errorf("failed to load %s store: %w", ch, err)
		}
	}
	if err := c.Installed.Load(); err != nil {
		return err
	}
	return c.Installed.Rescan()
}

// Packages returns the current entries of a channel store.
func (c *Catalog) Packages(ch Channel) ([]Package, error) {
	store, ok := c.stores[ch]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", ch)
	}
	return store.Packages()
}

// Find locates a catalog entry by channel and version. The variant narrows
// the match when several builds of the channel share a version.
func (c *Catalog) Find(ch Channel, version, variant string) (Package, error) {
	pkgs, err := c.Packages(ch)
	if err != nil {
		return Package{}, err
	}

	var matches []Package
	for _, p := range pkgs {
		if p.Version != version {
			continue
		}
		if variant != "" && p.Build.Variant != variant {
			continue
		}
		matches = append(matches, p)
	}

	switch len(matches) {
	case 0:
		if variant != "" {
			return Package{}, fmt.Errorf("no %s package with version %q and variant %q", ch, version, variant)
		}
		return Package{}, fmt.Errorf("no %s package with version %q", ch, version)
	case 1:
		return matches[0], nil
	default:
		return Package{}, fmt.Errorf("multiple %s packages match version %q, specify a variant", ch, version)
	}
}

// RemovePackage drops an entry from its channel store. Used when the remote
// side reports the package gone.
func (c *Catalog) RemovePackage(p Package) error {
	store, ok := c.stores[p.Build.Channel]
	if !ok {
		return fmt.Errorf("unknown channel %q", p.Build.Channel)
	}
	removed, err := store.Remove(p)
	if err != nil {
		return err
	}
	if removed {
		c.logger.WithFields(logrus.Fields{
			"package": p.Name,
			"version": p.Version,
			"channel": p.Build.Channel,
		}).Info("Dropped unavailable package from catalog")
	}
	return nil
}

// CheckChannel fetches the channel index, merges unseen releases as new
// entries and retags the channel against the installed set. It reports
// whether the store contents changed. On fetch failure the store is put
// back untouched and the error returned.
func (c *Catalog) CheckChannel(ctx context.Context, ch Channel) (bool, error) {
	store, ok := c.stores[ch]
	if !ok {
		return false, fmt.Errorf("unknown channel %q", ch)
	}

	current, err := store.Take()
	if err != nil {
		return false, err
	}

	remote, err := c.fetcher.FetchChannel(ctx, ch)
	if err != nil {
		if perr := store.Replace(current); perr != nil {
			c.logger.WithError(perr).WithField("channel", ch).
				Error("Failed to restore store after fetch failure")
		}
		return false, err
	}

	known := make(map[string]bool, len(current))
	for _, p := range current {
		known[p.Key()] = true
	}

	merged := current
	added := 0
	for _, p := range remote {
		if known[p.Key()] {
			continue
		}
		p.Status = StatusNew
		p.State = NewState()
		merged = append(merged, p)
		added++
	}

	changed := added > 0
	if c.retag(merged) {
		changed = true
	}
	if err := store.Replace(merged); err != nil {
		return false, err
	}

	c.logger.WithFields(logrus.Fields{
		"channel": ch,
		"fetched": len(remote),
		"added":   added,
	}).Debug("Channel checked")
	return changed, nil
}

// CheckUpdates runs CheckChannel concurrently over every channel enabled
// for update checks, then syncs. Channels fail independently; the first
// error is returned after all have finished.
func (c *Catalog) CheckUpdates(ctx context.Context) (bool, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		changed bool
	)
	for _, ch := range UpdateChannels() {
		if !c.flags.CheckEnabled(ch) {
			continue
		}
		ch := ch
		g.Go(func() error {
			chChanged, err := c.CheckChannel(ctx, ch)
			if err != nil {
				return fmt.Errorf("%s: %w", ch, err)
			}
			if chChanged {
				mu.Lock()
				changed = true
				mu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	if syncErr := c.Sync(); syncErr != nil && err == nil {
		err = syncErr
	}
	return changed, err
}

// RefreshAll checks every channel including archived, regardless of the
// per-channel check switches, then syncs.
func (c *Catalog) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	for _, ch := range Channels() {
		ch := ch
		g.Go(func() error {
			if _, err := c.CheckChannel(ctx, ch); err != nil {
				return fmt.Errorf("%s: %w", ch, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if syncErr := c.Sync(); syncErr != nil && err == nil {
		err = syncErr
	}
	return err
}

// CountUpdates tallies entries tagged as updates across the channels
// enabled for update checks.
func (c *Catalog) CountUpdates() (UpdateCounts, error) {
	var counts UpdateCounts
	total := 0
	any := false
	for _, ch := range UpdateChannels() {
		if !c.flags.CheckEnabled(ch) {
			continue
		}
		pkgs, err := c.stores[ch].Packages()
		if err != nil {
			return UpdateCounts{}, err
		}
		n := 0
		for _, p := range pkgs {
			if p.Status == StatusUpdate {
				n++
			}
		}
		v := n
		switch ch {
		case ChannelDaily:
			counts.Daily = &v
		case ChannelBranched:
			counts.Branched = &v
		case ChannelStable:
			counts.Stable = &v
		case ChannelLTS:
			counts.LTS = &v
		}
		total += n
		any = true
	}
	if any {
		counts.Total = &total
	}
	return counts, nil
}

// Sync retags every channel store against the installed set and validates
// the default selection. Syncing twice in a row is a no-op.
func (c *Catalog) Sync() error {
	for _, ch := range Channels() {
		if _, err := c.stores[ch].Update(c.retag); err != nil {
			return fmt.Errorf("failed to sync %s store: %w", ch, err)
		}
	}
	return c.validateDefault()
}

// AfterInstall restores catalog consistency once an installation landed:
// rescan the install root, move the default forward when requested, prune
// superseded installations and sync.
func (c *Catalog) AfterInstall(useLatestAsDefault bool) error {
	if err := c.Installed.Rescan(); err != nil {
		return err
	}
	if useLatestAsDefault {
		if err := c.updateDefault(); err != nil {
			return err
		}
	}
	removed, err := c.Installed.RemoveOld(c.flags.KeepOnlyLatest)
	if err != nil {
		c.logger.WithError(err).Warn("Pruning superseded installations failed")
	}
	if len(removed) > 0 {
		c.logger.WithField("count", len(removed)).Info("Pruned superseded installations")
	}
	return c.Sync()
}

// retag recomputes package statuses against the installed set. For a build
// line with an installed package, entries newer than the newest installed
// one are updates and the rest old. Without an installed line, new entries
// stay new and stale update tags decay to old.
func (c *Catalog) retag(pkgs []Package) bool {
	changed := false
	for i := range pkgs {
		p := &pkgs[i]
		next := p.Status
		if newest, ok := c.Installed.FindBuild(p.Build); ok {
			if p.Date.After(newest.Date) {
				next = StatusUpdate
			} else {
				next = StatusOld
			}
		} else if p.Status == StatusUpdate {
			next = StatusOld
		}
		if next != p.Status {
			p.Status = next
			changed = true
		}
	}
	return changed
}

// validateDefault clears the default selection when it no longer points at
// an installed package.
func (c *Catalog) validateDefault() error {
	def, ok := c.defaults.Default()
	if !ok {
		return nil
	}
	if c.Installed.Contains(def) {
		return nil
	}
	c.logger.WithFields(logrus.Fields{
		"package": def.Name,
		"version": def.Version,
	}).Info("Default package no longer installed, clearing selection")
	return c.defaults.ClearDefault()
}

// updateDefault moves the default selection to the newest installed package
// of its build line.
func (c *Catalog) updateDefault() error {
	def, ok := c.defaults.Default()
	if !ok {
		return nil
	}
	newest, ok := c.Installed.FindBuild(def.Build)
	if !ok || !newest.Date.After(def.Date) {
		return nil
	}
	c.logger.WithFields(logrus.Fields{
		"package": newest.Name,
		"version": newest.Version,
	}).Info("Default package moved to newest installed build")
	return c.defaults.SetDefault(newest)
}
