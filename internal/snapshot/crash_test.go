package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adhash-engine/adhash/internal/hashmap"
	"github.com/adhash-engine/adhash/internal/iofs"
)

// failpointSweep is wide enough to cover every mutating filesystem step
// of one snapshot save (create, writes, file sync, rename, dir sync).
const failpointSweep = 64

// A crash at any step of a fresh save must leave either no file at the
// target path or a fully loadable snapshot, never a partial one.
func TestSaveChainedTable_CrashAtEveryStepNeverExposesPartialSnapshot(t *testing.T) {
	ct := fixtureChainedTable(t)

	completed := false

	for after := 1; after <= failpointSweep; after++ {
		crash, err := iofs.NewCrash(t, iofs.NewReal(), &iofs.CrashConfig{FailAfterOps: after})
		require.NoError(t, err)

		path := filepath.Join(crash.Dir(), "chained.snap")

		saveErr := SaveChainedTable(crash, path, ct, Options{})
		if saveErr == nil {
			completed = true
			break
		}

		crash.Recover()

		exists, err := crash.Exists(path)
		require.NoError(t, err)

		if !exists {
			continue
		}

		loaded, loadErr := LoadChainedTable(crash, path, Options{})
		require.NoError(t, loadErr, "post-crash snapshot at step %d must load cleanly if present", after)
		require.Equal(t, ct.Len(), loaded.Len())
	}

	require.True(t, completed, "failpoint sweep never reached a fully successful save")
}

// Overwriting a durably saved snapshot and crashing at any step of the
// overwrite must leave the path loadable: either the old version or the
// new one, never a torn mix.
func TestSaveRobinHoodTable_CrashDuringOverwriteKeepsSnapshotReadable(t *testing.T) {
	old, err := hashmap.NewRobinHoodTable(64)
	require.NoError(t, err)
	seedEntries(t, old.Put)

	replacement, err := hashmap.NewRobinHoodTable(64)
	require.NoError(t, err)
	require.NoError(t, replacement.Put("only", []byte("entry")))

	completed := false

	for after := 1; after <= failpointSweep; after++ {
		crash, err := iofs.NewCrash(t, iofs.NewReal(), &iofs.CrashConfig{})
		require.NoError(t, err)

		path := filepath.Join(crash.Dir(), "rh.snap")

		require.NoError(t, SaveRobinHoodTable(crash, path, old, Options{}))

		crash.ArmFailpoint(after)

		saveErr := SaveRobinHoodTable(crash, path, replacement, Options{})
		if saveErr != nil {
			crash.Recover()
		} else {
			completed = true
		}

		loaded, loadErr := LoadRobinHoodTable(crash, path, Options{})
		require.NoError(t, loadErr, "snapshot must stay loadable when the overwrite crashed at step %d", after)
		require.Contains(t, []int{old.Len(), replacement.Len()}, loaded.Len())

		if completed {
			require.Equal(t, replacement.Len(), loaded.Len())
			break
		}
	}

	require.True(t, completed, "failpoint sweep never reached a fully successful overwrite")
}

// A save that returned success must survive a power loss: the whole
// point of the sync-temp-rename-sync-dir sequence.
func TestSaveAdaptiveMap_CompletedSaveSurvivesCrash(t *testing.T) {
	m, err := hashmap.NewAdaptiveMap(hashmap.BackendChained, hashmap.DefaultPolicy(), hashmap.Hooks{})
	require.NoError(t, err)
	seedEntries(t, m.Put)

	crash, err := iofs.NewCrash(t, iofs.NewReal(), &iofs.CrashConfig{})
	require.NoError(t, err)

	path := filepath.Join(crash.Dir(), "map.snap")
	require.NoError(t, SaveAdaptiveMap(crash, path, m, Options{}))

	require.NoError(t, crash.SimulateCrash())

	loaded, err := LoadAdaptiveMap(crash, path, hashmap.Hooks{}, Options{})
	require.NoError(t, err)
	require.Equal(t, m.Len(), loaded.Len())
}
