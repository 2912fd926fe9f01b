package launcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/internal/config"
)

func testLauncher(t *testing.T) (*Launcher, *catalog.Registry, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			InstallRoot: t.TempDir(),
			StateDir:    t.TempDir(),
		},
	}
	reg := catalog.NewRegistry(cfg.Paths.InstallRoot, cfg.Paths.StateDir)
	require.NoError(t, reg.Load())
	return New(cfg, reg), reg, cfg
}

func installScript(t *testing.T, reg *catalog.Registry, pkg catalog.Package, name, script string) string {
	t.Helper()
	dir := reg.InstallDir(pkg)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0755))
	require.NoError(t, catalog.WriteManifest(dir, pkg))
	require.NoError(t, reg.Rescan())
	return dir
}

func stablePkg(version string) catalog.Package {
	return catalog.Package{
		Name:    "blender",
		Version: version,
		Date:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Build:   catalog.Build{Channel: catalog.ChannelStable},
		URL:     "https://releases.example.com/blender.tar.gz",
		Status:  catalog.StatusNew,
		State:   catalog.NewState(),
	}
}

func TestLaunchRunsDetached(t *testing.T) {
	l, reg, _ := testLauncher(t)
	pkg := stablePkg("4.2.0")
	installScript(t, reg, pkg, "blender", "#!/bin/sh\nprintf started > \"$1\"\n")

	marker := filepath.Join(t.TempDir(), "marker")
	require.NoError(t, l.Launch(pkg, marker))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(marker)
		return err == nil && string(data) == "started"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLaunchRefusesUninstalled(t *testing.T) {
	l, _, _ := testLauncher(t)
	err := l.Launch(stablePkg("4.2.0"), "")
	require.ErrorContains(t, err, "is not installed")
}

func TestLaunchConfiguredExecutable(t *testing.T) {
	l, reg, cfg := testLauncher(t)
	cfg.Launch.Executable = "run.sh"

	pkg := stablePkg("4.2.0")
	dir := installScript(t, reg, pkg, "run.sh", "#!/bin/sh\nprintf ok > \"$1\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("#!/bin/sh\n"), 0755))

	marker := filepath.Join(t.TempDir(), "marker")
	require.NoError(t, l.Launch(pkg, marker))
	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLaunchConfiguredExecutableMissing(t *testing.T) {
	l, reg, cfg := testLauncher(t)
	cfg.Launch.Executable = "nope"

	pkg := stablePkg("4.2.0")
	installScript(t, reg, pkg, "blender", "#!/bin/sh\n")

	err := l.Launch(pkg, "")
	require.ErrorContains(t, err, `configured executable "nope" not found`)
}

func TestFindExecutablePrefersPackageName(t *testing.T) {
	l, reg, _ := testLauncher(t)
	pkg := stablePkg("4.2.0")
	dir := installScript(t, reg, pkg, "blender", "#!/bin/sh\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper"), []byte("#!/bin/sh\n"), 0755))

	exe, err := l.findExecutable(dir, pkg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "blender"), exe)
}

func TestFindExecutableIgnoresManifestAndData(t *testing.T) {
	l, reg, _ := testLauncher(t)
	pkg := stablePkg("4.2.0")
	dir := installScript(t, reg, pkg, "app", "#!/bin/sh\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("docs"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0755))

	exe, err := l.findExecutable(dir, pkg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "app"), exe)
}

func TestFindExecutableAmbiguous(t *testing.T) {
	l, reg, _ := testLauncher(t)
	pkg := stablePkg("4.2.0")
	dir := installScript(t, reg, pkg, "one", "#!/bin/sh\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two"), []byte("#!/bin/sh\n"), 0755))

	_, err := l.findExecutable(dir, pkg)
	require.ErrorContains(t, err, "multiple executables")
}

func TestFindExecutableNone(t *testing.T) {
	l, reg, _ := testLauncher(t)
	pkg := stablePkg("4.2.0")
	dir := reg.InstallDir(pkg)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("just text"), 0644))
	require.NoError(t, catalog.WriteManifest(dir, pkg))

	_, err := l.findExecutable(dir, pkg)
	require.ErrorContains(t, err, "no executable found")
}
