package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/hashmap"
	"github.com/adhash-engine/adhash/internal/iofs"
)

// fixtureChainedTable builds a populated chained table for the io-fault tests below.
func fixtureChainedTable(t *testing.T) *hashmap.ChainedTable {
	t.Helper()

	ct, err := hashmap.NewChainedTable(16, 4)
	require.NoError(t, err)
	seedEntries(t, ct.Put)

	return ct
}

func TestSaveChainedTable_WriteFailureSurfacesAsIoError(t *testing.T) {
	chaos := iofs.NewChaos(iofs.NewReal(), 1, &iofs.ChaosConfig{WriteFailRate: 1.0})
	path := filepath.Join(t.TempDir(), "chained.snap")

	err := SaveChainedTable(chaos, path, fixtureChainedTable(t), Options{})
	require.Error(t, err)
	require.True(t, iofs.IsChaosErr(err) || errorIsIoError(err))
}

func TestSaveChainedTable_PartialWriteStillRoundTrips(t *testing.T) {
	real := iofs.NewReal()
	chaos := iofs.NewChaos(real, 2, &iofs.ChaosConfig{PartialWriteRate: 0.5, ShortWriteRate: 1.0})
	path := filepath.Join(t.TempDir(), "chained.snap")

	ct := fixtureChainedTable(t)

	// A short write without a syscall error must still be retried to
	// completion by the atomic writer, or fail loudly; either way the file
	// on disk, if present, must be a clean, loadable snapshot.
	err := SaveChainedTable(chaos, path, ct, Options{})
	if err != nil {
		return
	}

	loaded, err := LoadChainedTable(real, path, Options{})
	require.NoError(t, err)
	require.Equal(t, ct.Len(), loaded.Len())
}

func TestSaveChainedTable_SyncFailureLeavesNoSnapshotBehind(t *testing.T) {
	real := iofs.NewReal()
	chaos := iofs.NewChaos(real, 7, &iofs.ChaosConfig{SyncFailRate: 1.0})
	path := filepath.Join(t.TempDir(), "chained.snap")

	// fsync is where delayed write errors surface; a failed sync must
	// abort the publish entirely rather than rename an unsynced temp file
	// into place.
	err := SaveChainedTable(chaos, path, fixtureChainedTable(t), Options{})
	require.Error(t, err)

	exists, statErr := real.Exists(path)
	require.NoError(t, statErr)
	require.False(t, exists)
}

func TestLoadChainedTable_ReadFailureSurfacesAsIoError(t *testing.T) {
	real := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "chained.snap")
	require.NoError(t, SaveChainedTable(real, path, fixtureChainedTable(t), Options{}))

	chaos := iofs.NewChaos(real, 3, &iofs.ChaosConfig{ReadFailRate: 1.0})

	_, err := LoadChainedTable(chaos, path, Options{})
	require.Error(t, err)
}

func TestRepairRobinHoodFile_RenameFailureLeavesOriginalReadable(t *testing.T) {
	real := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "rh.snap")

	rh, err := hashmap.NewRobinHoodTable(64)
	require.NoError(t, err)
	seedEntries(t, rh.Put)

	for i := 0; i < 5; i++ {
		rh.Delete(filepath.Join("k", string(rune('a'+i))))
	}

	require.NoError(t, SaveRobinHoodTable(real, path, rh, Options{}))

	chaos := iofs.NewChaos(real, 4, &iofs.ChaosConfig{RenameFailRate: 1.0})

	_, err = RepairRobinHoodFile(chaos, path, Options{})
	require.Error(t, err)

	// The repair's atomic rename never landed, so the pre-repair snapshot
	// must still load cleanly through the real filesystem.
	loaded, loadErr := LoadRobinHoodTable(real, path, Options{})
	require.NoError(t, loadErr)
	require.Equal(t, rh.Len(), loaded.Len())
}

func errorIsIoError(err error) bool {
	kind, ok := errs.KindOf(err)
	return ok && kind == errs.KindIoError
}
