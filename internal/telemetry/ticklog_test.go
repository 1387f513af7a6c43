package telemetry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adhash-engine/adhash/internal/iofs"
	"github.com/adhash-engine/adhash/internal/replay"
)

func TestTickLog_AppendOnlyGrowsFileWithOneLinePerTick(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "ticks.ndjson")

	tl, err := NewTickLog(fsys, path, 0)
	require.NoError(t, err)

	require.NoError(t, tl.Append(replay.Tick{TotalOps: 1}))
	require.NoError(t, tl.Append(replay.Tick{TotalOps: 2}))
	require.NoError(t, tl.Append(replay.Tick{TotalOps: 3}))

	got, err := readExistingTicks(fsys, path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 3, got[2].TotalOps)
}

func TestTickLog_RetentionKeepsOnlyLastN(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "ticks.ndjson")

	tl, err := NewTickLog(fsys, path, 2)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, tl.Append(replay.Tick{TotalOps: i}))
	}

	got, err := readExistingTicks(fsys, path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 4, got[0].TotalOps)
	require.Equal(t, 5, got[1].TotalOps)
}

func TestTickLog_ReopenResumesRetentionWindowFromDisk(t *testing.T) {
	fsys := iofs.NewReal()
	path := filepath.Join(t.TempDir(), "ticks.ndjson")

	tl1, err := NewTickLog(fsys, path, 3)
	require.NoError(t, err)
	require.NoError(t, tl1.Append(replay.Tick{TotalOps: 1}))
	require.NoError(t, tl1.Append(replay.Tick{TotalOps: 2}))

	tl2, err := NewTickLog(fsys, path, 3)
	require.NoError(t, err)
	require.NoError(t, tl2.Append(replay.Tick{TotalOps: 3}))

	got, err := readExistingTicks(fsys, path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []int{1, 2, 3}, []int{got[0].TotalOps, got[1].TotalOps, got[2].TotalOps})
}
