package hashmap

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

// model is the reference implementation AdaptiveMap is checked against: a
// plain Go map with no backend-switching or probing behavior whatsoever.
type model struct {
	data map[string][]byte
}

func newModel() *model { return &model{data: make(map[string][]byte)} }

func (mo *model) put(key string, value []byte) { mo.data[key] = value }

func (mo *model) get(key string) ([]byte, bool) {
	v, ok := mo.data[key]
	return v, ok
}

func (mo *model) del(key string) bool {
	_, ok := mo.data[key]
	delete(mo.data, key)

	return ok
}

func (mo *model) snapshot() map[string][]byte {
	out := make(map[string][]byte, len(mo.data))
	for k, v := range mo.data {
		out[k] = v
	}

	return out
}

func adaptiveSnapshot(t *testing.T, m *AdaptiveMap) map[string][]byte {
	t.Helper()

	out := make(map[string][]byte)
	for _, e := range m.IterEntries() {
		out[e.Key] = e.Value
	}

	return out
}

// TestAdaptiveMap_ModelBasedRandomOps runs a long randomized sequence of
// put/get/delete operations against both AdaptiveMap and a plain-map model,
// asserting the two never diverge on any read and agree on the full key set
// at the end, across migrations and compactions triggered along the way.
func TestAdaptiveMap_ModelBasedRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	policy := testPolicy()
	policy.IncrementalBatch = 3

	var migrations int

	m, err := NewAdaptiveMap(BackendChained, policy, Hooks{
		OnMigrated: func(string, string) { migrations++ },
	})
	require.NoError(t, err)

	mo := newModel()

	const universe = 80
	const ops = 4000

	keyOf := func(i int) string { return fmt.Sprintf("key-%04d", i) }

	for i := 0; i < ops; i++ {
		k := keyOf(rng.Intn(universe))

		switch rng.Intn(3) {
		case 0:
			v := []byte(fmt.Sprintf("v%d", i))
			require.NoError(t, m.Put(k, v))
			mo.put(k, v)
		case 1:
			gotModel, okModel := mo.get(k)
			gotReal, okReal := m.Get(k)

			require.Equal(t, okModel, okReal, "presence mismatch for key %q at op %d", k, i)

			if okModel {
				require.Equal(t, gotModel, gotReal, "value mismatch for key %q at op %d", k, i)
			}
		case 2:
			wantFound := mo.del(k)
			gotFound := m.Delete(k)
			require.Equal(t, wantFound, gotFound, "delete-result mismatch for key %q at op %d", k, i)
		}
	}

	diff := cmp.Diff(mo.snapshot(), adaptiveSnapshot(t, m), cmpopts.EquateEmpty())
	require.Empty(t, diff, "final state diverged from model:\n%s", diff)

	require.Equal(t, len(mo.data), m.Len())
}

// TestAdaptiveMap_ModelBasedAgreesAcrossBackendStart verifies the model
// agreement property holds regardless of which backend the map starts on.
func TestAdaptiveMap_ModelBasedAgreesAcrossBackendStart(t *testing.T) {
	for _, start := range []BackendKind{BackendChained, BackendRobinHood} {
		start := start

		t.Run(start.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))

			policy := testPolicy()

			m, err := NewAdaptiveMap(start, policy, Hooks{})
			require.NoError(t, err)

			mo := newModel()

			keys := make([]string, 0, 60)
			for i := 0; i < 60; i++ {
				keys = append(keys, fmt.Sprintf("k%02d", i))
			}

			sort.Strings(keys)

			for i := 0; i < 1500; i++ {
				k := keys[rng.Intn(len(keys))]

				switch rng.Intn(2) {
				case 0:
					v := []byte{byte(i)}
					require.NoError(t, m.Put(k, v))
					mo.put(k, v)
				case 1:
					wantFound := mo.del(k)
					gotFound := m.Delete(k)
					require.Equal(t, wantFound, gotFound)
				}
			}

			diff := cmp.Diff(mo.snapshot(), adaptiveSnapshot(t, m), cmpopts.EquateEmpty())
			require.Empty(t, diff)
		})
	}
}
