package hashmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRobinHoodTable_BadConfig(t *testing.T) {
	_, err := NewRobinHoodTable(3)
	require.Error(t, err)

	_, err = NewRobinHoodTable(0)
	require.Error(t, err)
}

func TestRobinHoodTable_PutGetDelete(t *testing.T) {
	tbl, err := NewRobinHoodTable(16)
	require.NoError(t, err)

	require.NoError(t, tbl.Put("a", []byte("1")))
	require.NoError(t, tbl.Put("b", []byte("2")))

	v, ok := tbl.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, tbl.Put("a", []byte("1-updated")))
	v, ok = tbl.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1-updated"), v)

	assert.True(t, tbl.Delete("a"))
	_, ok = tbl.Get("a")
	assert.False(t, ok)
	assert.False(t, tbl.Delete("a"))
}

func TestRobinHoodTable_EmptyTableBoundary(t *testing.T) {
	tbl, err := NewRobinHoodTable(4)
	require.NoError(t, err)

	_, ok := tbl.Get("missing")
	assert.False(t, ok)
	assert.False(t, tbl.Delete("missing"))
	assert.Equal(t, float64(0), tbl.avgProbeEstimate())
}

func TestRobinHoodTable_TombstoneCompaction(t *testing.T) {
	tbl, err := NewRobinHoodTable(16)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, tbl.Put(fmt.Sprintf("k%d", i), []byte{byte(i)}))
	}

	for i := 0; i < 6; i++ {
		require.True(t, tbl.Delete(fmt.Sprintf("k%d", i)))
	}

	assert.GreaterOrEqual(t, tbl.tombstoneRatio(), 0.25)

	tbl.Compact()

	assert.Equal(t, float64(0), tbl.tombstoneRatio())
	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, uint64(16), tbl.capacity)

	for i := 6; i < 10; i++ {
		v, ok := tbl.Get(fmt.Sprintf("k%d", i))
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, v)
	}
}

func TestRobinHoodTable_CompactIsIdempotent(t *testing.T) {
	tbl, err := NewRobinHoodTable(16)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		require.NoError(t, tbl.Put(fmt.Sprintf("k%d", i), []byte{byte(i)}))
	}

	for i := 0; i < 3; i++ {
		require.True(t, tbl.Delete(fmt.Sprintf("k%d", i)))
	}

	tbl.Compact()
	sizeAfterFirst := tbl.Len()
	tbl.Compact()

	assert.Equal(t, sizeAfterFirst, tbl.Len())
	assert.Equal(t, float64(0), tbl.tombstoneRatio())
}

func TestRobinHoodTable_SizePlusTombstonesLECapacity(t *testing.T) {
	tbl, err := NewRobinHoodTable(32)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, tbl.Put(fmt.Sprintf("k%d", i), []byte{byte(i)}))
	}

	for i := 0; i < 10; i++ {
		tbl.Delete(fmt.Sprintf("k%d", i))
	}

	assert.LessOrEqual(t, tbl.size+tbl.tombstones, tbl.capacity)
}

func TestRobinHoodTable_GrowthUnderLoad(t *testing.T) {
	tbl, err := NewRobinHoodTable(4)
	require.NoError(t, err)

	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, tbl.Put(fmt.Sprintf("key-%d", i), []byte{byte(i)}))
	}

	assert.Equal(t, n, tbl.Len())
	assert.LessOrEqual(t, tbl.loadFactor(), rhMaxLoadFactor)

	for i := 0; i < n; i++ {
		v, ok := tbl.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, v)
	}
}

func TestRobinHoodTable_IterationYieldsExactlySize(t *testing.T) {
	tbl, err := NewRobinHoodTable(32)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, tbl.Put(fmt.Sprintf("k%d", i), []byte{byte(i)}))
	}

	for i := 0; i < 10; i++ {
		tbl.Delete(fmt.Sprintf("k%d", i))
	}

	it := tbl.Iterator()

	count := 0
	for {
		_, ok := it.Next()
		if !ok {
			break
		}

		count++
	}

	assert.Equal(t, tbl.Len(), count)
}
