package installer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/internal/fsutil"
	"github.com/packmill/packmill/internal/releases"
	"github.com/packmill/packmill/pkg/helper"
)

const eventBuffer = 16

// Prober answers whether an artifact is still downloadable.
type Prober interface {
	Probe(ctx context.Context, url string) (releases.Availability, error)
}

// Installer runs install pipelines: download to the cache dir, extract
// into a staging dir under the install root, finalize with a manifest and
// an atomic move. At most one pipeline runs per package identity.
type Installer struct {
	cfg      *config.Config
	prober   Prober
	registry *catalog.Registry
	client   *http.Client
	logger   *logrus.Entry

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates an installer over the given registry.
func New(cfg *config.Config, prober Prober, registry *catalog.Registry) *Installer {
	return &Installer{
		cfg:      cfg,
		prober:   prober,
		registry: registry,
		client:   &http.Client{Timeout: cfg.ArtifactTimeout()},
		logger:   logrus.WithField("component", "installer"),
		active:   make(map[string]context.CancelFunc),
	}
}

// Start validates the preconditions and, when they pass, runs the install
// pipeline in the background. Events arrive on the returned channel until
// it is closed; the caller must drain it. Exactly one errored or
// finished-installing event ends a started pipeline.
func (i *Installer) Start(ctx context.Context, pkg catalog.Package) (<-chan catalog.Event, error) {
	key := pkg.Key()

	i.mu.Lock()
	if _, busy := i.active[key]; busy {
		i.mu.Unlock()
		return nil, &DuplicateError{Name: pkg.Name}
	}
	runCtx, cancel := context.WithCancel(ctx)
	i.active[key] = cancel
	i.mu.Unlock()

	release := func() {
		cancel()
		i.mu.Lock()
		delete(i.active, key)
		i.mu.Unlock()
	}

	if err := i.checkPolicy(pkg); err != nil {
		release()
		return nil, err
	}

	avail, err := i.prober.Probe(runCtx, pkg.URL)
	if err != nil {
		release()
		return nil, err
	}
	if avail == releases.Gone {
		release()
		return nil, &GoneError{Name: pkg.Name}
	}

	events := make(chan catalog.Event, eventBuffer)
	go func() {
		// Release before close so a drained channel means the identity
		// can be started again
		defer helper.RecoverPanic(i.logger, "install "+key)
		defer close(events)
		defer release()
		i.run(runCtx, pkg, events)
	}()
	return events, nil
}

// checkPolicy refuses installs that keep-only-latest pruning would undo
// right away: the build line already has an installed package and the
// candidate is not an update to it. Archived builds are never gated.
func (i *Installer) checkPolicy(pkg catalog.Package) error {
	ch := pkg.Build.Channel
	if ch == catalog.ChannelArchived {
		return nil
	}
	if !i.cfg.KeepOnlyLatest(ch) {
		return nil
	}
	if pkg.Status == catalog.StatusUpdate {
		return nil
	}
	if _, exists := i.registry.FindBuild(pkg.Build); !exists {
		return nil
	}
	return &PolicyError{Name: pkg.Name, Reason: policyReason(ch)}
}

func (i *Installer) run(ctx context.Context, pkg catalog.Package, events chan<- catalog.Event) {
	log := i.logger.WithFields(logrus.Fields{
		"package": pkg.Name,
		"version": pkg.Version,
		"build":   pkg.Build.String(),
	})
	log.Info("Install started")
	events <- catalog.Event{Kind: catalog.EventStarted}

	archive, err := i.download(ctx, pkg, events)
	if archive != "" {
		defer os.Remove(archive)
	}
	if err != nil {
		log.WithError(err).Error("Download failed")
		events <- catalog.Event{Kind: catalog.EventErrored, Err: err}
		return
	}
	events <- catalog.Event{Kind: catalog.EventFinishedDownloading}

	staging, err := i.extract(ctx, pkg, archive, events)
	if staging != "" {
		defer os.RemoveAll(staging)
	}
	if err != nil {
		log.WithError(err).Error("Extraction failed")
		events <- catalog.Event{Kind: catalog.EventErrored, Err: err}
		return
	}
	events <- catalog.Event{Kind: catalog.EventFinishedExtracting}

	if err := i.finalize(pkg, staging); err != nil {
		log.WithError(err).Error("Finalize failed")
		events <- catalog.Event{Kind: catalog.EventErrored, Err: err}
		return
	}
	events <- catalog.Event{Kind: catalog.EventFinishedInstalling}
	log.Info("Install finished")
}

// download streams the artifact into a temp file under the cache dir and
// returns its path. The temp file is the caller's to remove.
func (i *Installer) download(ctx context.Context, pkg catalog.Package, events chan<- catalog.Event) (string, error) {
	if err := os.MkdirAll(i.cfg.Paths.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(i.cfg.Paths.CacheDir, "download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	name := tmp.Name()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pkg.URL, nil)
	if err != nil {
		tmp.Close()
		return name, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		tmp.Close()
		return name, &releases.ConnectivityError{URL: pkg.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tmp.Close()
		return name, fmt.Errorf("downloading %s: unexpected status %s", pkg.URL, resp.Status)
	}

	writer := newProgressWriter(tmp, resp.ContentLength, func(pct float64) {
		events <- catalog.Event{Kind: catalog.EventDownloadProgress, Progress: pct}
	})
	if _, err := fsutil.CopyWithContext(ctx, writer, resp.Body); err != nil {
		tmp.Close()
		return name, fmt.Errorf("download interrupted: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return name, fmt.Errorf("failed to finish download: %w", err)
	}
	return name, nil
}

// extract unpacks the archive into a fresh staging dir under the install
// root and returns it. The staging dir is the caller's to remove.
func (i *Installer) extract(ctx context.Context, pkg catalog.Package, archive string, events chan<- catalog.Event) (string, error) {
	if err := os.MkdirAll(i.cfg.Paths.InstallRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create install root: %w", err)
	}
	staging := filepath.Join(i.cfg.Paths.InstallRoot, ".staging-"+uuid.New().String())
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	err := extractArchive(ctx, pkg.URL, archive, staging, func(pct float64) {
		events <- catalog.Event{Kind: catalog.EventExtractionProgress, Progress: pct}
	})
	return staging, err
}

// finalize writes the manifest and moves the payload into its final
// install directory.
func (i *Installer) finalize(pkg catalog.Package, staging string) error {
	root, err := payloadRoot(staging)
	if err != nil {
		return err
	}
	if err := catalog.WriteManifest(root, pkg); err != nil {
		return err
	}

	dest := i.registry.InstallDir(pkg)
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear install directory: %w", err)
	}
	return fsutil.MoveDir(i.logger, root, dest)
}

// payloadRoot flattens archives that wrap everything in a single top-level
// directory.
func payloadRoot(staging string) (string, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", fmt.Errorf("failed to read staging directory: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(staging, entries[0].Name()), nil
	}
	return staging, nil
}

// Active returns the identity keys of running pipelines, sorted.
func (i *Installer) Active() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	keys := make([]string, 0, len(i.active))
	for k := range i.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Cancel stops the pipeline for the given identity key. It reports whether
// one was running.
func (i *Installer) Cancel(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	cancel, ok := i.active[key]
	if ok {
		cancel()
	}
	return ok
}
