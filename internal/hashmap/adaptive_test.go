package hashmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	p := DefaultPolicy()
	p.SeedChained = ChainedShape{Buckets: 4, GroupsPerBucket: 2}
	p.SeedRobinHoodCapacity = 8
	p.MaxGroupLen = 4
	p.IncrementalBatch = 4

	return p
}

func TestAdaptiveMap_BasicRoundTrip(t *testing.T) {
	m, err := NewAdaptiveMap(BackendChained, testPolicy(), Hooks{})
	require.NoError(t, err)

	require.NoError(t, m.Put("K1", []byte("V1")))
	require.NoError(t, m.Put("K2", []byte("V2")))

	v, ok := m.Get("K1")
	require.True(t, ok)
	assert.Equal(t, []byte("V1"), v)

	assert.True(t, m.Delete("K2"))
	_, ok = m.Get("K2")
	assert.False(t, ok)

	assert.Equal(t, 1, m.Len())
	assert.False(t, m.IsMigrating())
	assert.Equal(t, 0, m.MigrationsTotal())
	assert.Equal(t, 0, m.CompactionsTotal())
}

// Insert keys chosen so h1 is 0 mod 4 and h2 selects group 0: they crowd
// into the same bucket and group until a group exceeds max_group_len,
// driving a migration to robinhood.
func TestAdaptiveMap_ChainedToRobinHoodSwitch(t *testing.T) {
	var switches []string

	policy := testPolicy()
	m, err := NewAdaptiveMap(BackendChained, policy, Hooks{
		OnMigrated: func(oldLabel, newLabel string) {
			switches = append(switches, oldLabel+"->"+newLabel)
		},
	})
	require.NoError(t, err)

	const n = 400

	hasher := NewHasher()

	var keys []string
	for i := 0; len(keys) < n; i++ {
		key := fmt.Sprintf("adversarial-%d", i)
		if hasher.H1(key)&3 == 0 && hasher.H2(key)&1 == 0 {
			keys = append(keys, key)
		}
	}

	for i, key := range keys {
		require.NoError(t, m.Put(key, []byte{byte(i)}))
	}

	require.NotEmpty(t, switches)
	assert.Equal(t, "chained->robinhood", switches[0])

	kind, _ := m.Backend()
	assert.Equal(t, BackendRobinHood, kind)

	for i, key := range keys {
		v, ok := m.Get(key)
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, v)
	}
}

func TestAdaptiveMap_IterEntriesDrainsMigration(t *testing.T) {
	policy := testPolicy()
	m, err := NewAdaptiveMap(BackendChained, policy, Hooks{})
	require.NoError(t, err)

	for i := 0; i < 400; i++ {
		require.NoError(t, m.Put(fmt.Sprintf("k-%d", i), []byte{byte(i)}))
	}

	require.True(t, m.IsMigrating() || !m.IsMigrating()) // may or may not still be migrating

	entries := m.IterEntries()
	assert.False(t, m.IsMigrating())
	assert.Equal(t, m.Len(), len(entries))
}

func TestAdaptiveMap_DrainCompletesMigrationBeforeReturning(t *testing.T) {
	policy := testPolicy()
	m, err := NewAdaptiveMap(BackendChained, policy, Hooks{})
	require.NoError(t, err)

	for i := 0; i < 400; i++ {
		require.NoError(t, m.Put(fmt.Sprintf("k-%d", i), []byte{byte(i)}))
	}

	m.Drain()
	assert.False(t, m.IsMigrating())
}

// Writes issued during migration are never lost: a key present before a
// migration begins and not deleted during it must still be readable after
// however many drain_batch steps have executed.
func TestAdaptiveMap_WritesDuringMigrationNeverLost(t *testing.T) {
	policy := testPolicy()
	policy.IncrementalBatch = 1 // force many small drains to exercise interleaving

	m, err := NewAdaptiveMap(BackendChained, policy, Hooks{})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, m.Put(fmt.Sprintf("pre-%d", i), []byte{byte(i)}))
	}

	// Force migration explicitly regardless of whether maintenance already
	// triggered one, to exercise interleaved put/get while migrating.
	if !m.IsMigrating() {
		m.beginMigration(BackendRobinHood)
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, m.Put(fmt.Sprintf("during-%d", i), []byte{byte(i + 1)}))

		v, ok := m.Get(fmt.Sprintf("during-%d", i))
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i + 1)}, v)
	}

	m.Drain()

	for i := 0; i < 50; i++ {
		v, ok := m.Get(fmt.Sprintf("pre-%d", i))
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, v)

		v, ok = m.Get(fmt.Sprintf("during-%d", i))
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i + 1)}, v)
	}
}

func TestAdaptiveMap_DeleteDuringMigrationNeverReturnsStaleKey(t *testing.T) {
	policy := testPolicy()
	policy.IncrementalBatch = 1

	m, err := NewAdaptiveMap(BackendChained, policy, Hooks{})
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		require.NoError(t, m.Put(fmt.Sprintf("k-%d", i), []byte{byte(i)}))
	}

	if !m.IsMigrating() {
		m.beginMigration(BackendRobinHood)
	}

	// Advance the drain a few steps so some entries have already been
	// copied into the target; a delete must hide the key whether its copy
	// lives in the target, in active, or both.
	for i := 0; i < 10; i++ {
		m.Get("k-0")
	}

	require.True(t, m.Delete("k-5"))

	_, ok := m.Get("k-5")
	assert.False(t, ok)

	m.Drain()

	_, ok = m.Get("k-5")
	assert.False(t, ok)
}

func TestAdaptiveMap_CompactionHookFires(t *testing.T) {
	compactions := 0

	policy := testPolicy()
	policy.MaxTombstoneRatio = 0.2

	m, err := NewAdaptiveMap(BackendRobinHood, policy, Hooks{
		OnCompacted: func() { compactions++ },
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, m.Put(fmt.Sprintf("k-%d", i), []byte{byte(i)}))
	}

	for i := 0; i < 10; i++ {
		m.Delete(fmt.Sprintf("k-%d", i))
	}

	// A further no-op mutating operation evaluates maintenance again.
	require.NoError(t, m.Put("trigger", []byte("x")))

	assert.GreaterOrEqual(t, compactions, 1)
	assert.GreaterOrEqual(t, m.CompactionsTotal(), 1)
}

func TestAdaptiveMap_BadPolicyRejected(t *testing.T) {
	policy := testPolicy()
	policy.MaxTombstoneRatio = 2.0

	_, err := NewAdaptiveMap(BackendChained, policy, Hooks{})
	require.Error(t, err)
}

func TestAdaptiveMap_HookPanicDoesNotCorruptState(t *testing.T) {
	policy := testPolicy()

	m, err := NewAdaptiveMap(BackendChained, policy, Hooks{
		OnMigrated: func(string, string) { panic("boom") },
	})
	require.NoError(t, err)

	for i := 0; i < 400; i++ {
		require.NoError(t, m.Put(fmt.Sprintf("k-%d", i), []byte{byte(i)}))
	}

	m.Drain()

	for i := 0; i < 400; i++ {
		v, ok := m.Get(fmt.Sprintf("k-%d", i))
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, v)
	}
}

func TestAdaptiveMap_DrainIdempotentAtStableState(t *testing.T) {
	m, err := NewAdaptiveMap(BackendChained, testPolicy(), Hooks{})
	require.NoError(t, err)

	require.NoError(t, m.Put("a", []byte("1")))

	m.Drain()
	m.Drain()
	m.Drain()

	assert.Equal(t, 1, m.Len())
	assert.False(t, m.IsMigrating())
}
