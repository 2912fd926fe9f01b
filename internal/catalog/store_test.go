package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreLoadMissingFile(t *testing.T) {
	s := NewStore(ChannelDaily, t.TempDir())
	require.NoError(t, s.Load())

	pkgs, err := s.Packages()
	require.NoError(t, err)
	require.Empty(t, pkgs)
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := testPkg("blender", "4.1.0", ChannelDaily, "main", date)

	s := NewStore(ChannelDaily, dir)
	require.NoError(t, s.Load())
	require.NoError(t, s.Add(p))

	reloaded := NewStore(ChannelDaily, dir)
	require.NoError(t, reloaded.Load())

	pkgs, err := reloaded.Packages()
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	require.True(t, pkgs[0].Same(p))
	require.Equal(t, StatusNew, pkgs[0].Status)
	require.Equal(t, PhaseFetched, pkgs[0].State.Phase)
}

func TestStoreCheckoutExcludesEverything(t *testing.T) {
	s := NewStore(ChannelStable, t.TempDir())
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := testPkg("blender", "4.1.0", ChannelStable, "", date)
	require.NoError(t, s.Add(p))

	taken, err := s.Take()
	require.NoError(t, err)
	require.Len(t, taken, 1)

	_, err = s.Take()
	require.ErrorIs(t, err, ErrCheckedOut)
	_, err = s.Packages()
	require.ErrorIs(t, err, ErrCheckedOut)
	_, err = s.Len()
	require.ErrorIs(t, err, ErrCheckedOut)
	_, err = s.Contains(p)
	require.ErrorIs(t, err, ErrCheckedOut)
	require.ErrorIs(t, s.Add(p), ErrCheckedOut)
	_, err = s.Remove(p)
	require.ErrorIs(t, err, ErrCheckedOut)
	_, err = s.Update(func([]Package) bool { return false })
	require.ErrorIs(t, err, ErrCheckedOut)

	require.NoError(t, s.Replace(taken))

	pkgs, err := s.Packages()
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
}

func TestStoreReplaceWithoutTake(t *testing.T) {
	s := NewStore(ChannelLTS, t.TempDir())
	require.ErrorIs(t, s.Replace(nil), ErrNotCheckedOut)
}

func TestStoreTakeReplaceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := testPkg("blender", "4.1.0", ChannelDaily, "main", date)
	b := testPkg("blender", "4.2.0", ChannelDaily, "main", date.Add(time.Hour))

	s := NewStore(ChannelDaily, dir)
	require.NoError(t, s.Add(a))

	taken, err := s.Take()
	require.NoError(t, err)
	taken = append(taken, b)
	require.NoError(t, s.Replace(taken))

	reloaded := NewStore(ChannelDaily, dir)
	require.NoError(t, reloaded.Load())
	pkgs, err := reloaded.Packages()
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
}

func TestStoreUpdatePersistsOnlyOnChange(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(ChannelDaily, dir)
	require.NoError(t, s.Add(testPkg("blender", "4.1.0", ChannelDaily, "main", date)))

	changed, err := s.Update(func(pkgs []Package) bool {
		pkgs[0].Status = StatusOld
		return true
	})
	require.NoError(t, err)
	require.True(t, changed)

	reloaded := NewStore(ChannelDaily, dir)
	require.NoError(t, reloaded.Load())
	pkgs, err := reloaded.Packages()
	require.NoError(t, err)
	require.Equal(t, StatusOld, pkgs[0].Status)

	changed, err = s.Update(func([]Package) bool { return false })
	require.NoError(t, err)
	require.False(t, changed)
}

func TestStoreRemove(t *testing.T) {
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := testPkg("blender", "4.1.0", ChannelDaily, "main", date)

	s := NewStore(ChannelDaily, t.TempDir())
	require.NoError(t, s.Add(p))

	removed, err := s.Remove(p)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = s.Remove(p)
	require.NoError(t, err)
	require.False(t, removed)

	n, err := s.Len()
	require.NoError(t, err)
	require.Zero(t, n)
}
