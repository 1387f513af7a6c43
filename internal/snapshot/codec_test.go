package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/hashmap"
	"github.com/adhash-engine/adhash/internal/iofs"
)

func seedEntries(t *testing.T, put func(key string, value []byte) error) {
	t.Helper()

	for i := 0; i < 50; i++ {
		key := filepath.Join("k", string(rune('a'+i%26)))
		require.NoError(t, put(key, []byte("v")))
	}
}

func TestSaveLoadChainedTable_RoundTrips(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "chained.snap")

	ct, err := hashmap.NewChainedTable(16, 4)
	require.NoError(t, err)
	seedEntries(t, ct.Put)

	require.NoError(t, SaveChainedTable(fsys, path, ct, Options{}))

	loaded, err := LoadChainedTable(fsys, path, Options{})
	require.NoError(t, err)
	require.Equal(t, ct.Len(), loaded.Len())

	want, got := iterAll(ct), iterAll(loaded)
	require.True(t, cmp.Equal(want, got, cmpopts.EquateEmpty(), cmpopts.SortSlices(func(a, b hashmap.Entry) bool { return a.Key < b.Key })))
}

func TestSaveLoadRobinHoodTable_RoundTripsWithGzip(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "rh.snap")

	rh, err := hashmap.NewRobinHoodTable(128)
	require.NoError(t, err)
	seedEntries(t, rh.Put)

	opts := Options{Gzip: true}
	require.NoError(t, SaveRobinHoodTable(fsys, path, rh, opts))

	loaded, err := LoadRobinHoodTable(fsys, path, opts)
	require.NoError(t, err)
	require.Equal(t, rh.Len(), loaded.Len())
}

func TestSaveLoadAdaptiveMap_RoundTrips(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "map.snap")

	m, err := hashmap.NewAdaptiveMap(hashmap.BackendChained, hashmap.DefaultPolicy(), hashmap.Hooks{})
	require.NoError(t, err)
	seedEntries(t, m.Put)

	require.NoError(t, SaveAdaptiveMap(fsys, path, m, Options{}))

	loaded, err := LoadAdaptiveMap(fsys, path, hashmap.Hooks{}, Options{})
	require.NoError(t, err)
	require.Equal(t, m.Len(), loaded.Len())

	kind, _ := loaded.Backend()
	require.Equal(t, hashmap.BackendChained, kind)
}

func TestLoadChainedTable_RejectsWrongTag(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "rh.snap")

	rh, err := hashmap.NewRobinHoodTable(16)
	require.NoError(t, err)
	require.NoError(t, SaveRobinHoodTable(fsys, path, rh, Options{}))

	_, err = LoadChainedTable(fsys, path, Options{})
	require.Error(t, err)

	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.KindInvariantViolation, kind)
}

func TestLoadChainedTable_DetectsChecksumTamper(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "chained.snap")

	ct, err := hashmap.NewChainedTable(16, 4)
	require.NoError(t, err)
	seedEntries(t, ct.Put)
	require.NoError(t, SaveChainedTable(fsys, path, ct, Options{}))

	raw, err := fsys.ReadFile(path)
	require.NoError(t, err)

	tamperedChecksum := append([]byte(nil), raw...)
	tamperedChecksum[HeaderLength] ^= 0xFF
	require.NoError(t, fsys.WriteFile(path, tamperedChecksum, 0o644))

	_, err = LoadChainedTable(fsys, path, Options{})
	require.Error(t, err)

	tamperedPayload := append([]byte(nil), raw...)
	tamperedPayload[len(tamperedPayload)-1] ^= 0xFF
	require.NoError(t, fsys.WriteFile(path, tamperedPayload, 0o644))

	_, err = LoadChainedTable(fsys, path, Options{})
	require.Error(t, err)
}

func TestLoadChainedTable_RejectsOversizedPayload(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "chained.snap")

	ct, err := hashmap.NewChainedTable(16, 4)
	require.NoError(t, err)
	seedEntries(t, ct.Put)
	require.NoError(t, SaveChainedTable(fsys, path, ct, Options{}))

	_, err = LoadChainedTable(fsys, path, Options{MaxPayloadBytes: 1})
	require.Error(t, err)
}
