package hashmap

import (
	"github.com/adhash-engine/adhash/internal/errs"
)

// chainedMaxLoadFactor triggers a bucket-count doubling once size/M exceeds it.
const chainedMaxLoadFactor = 0.8

type chainedEntry struct {
	key   string
	value []byte
}

// ChainedTable is the two-level chained store: M buckets, each holding G
// groups, each group a short ordered slice of entries.
type ChainedTable struct {
	hasher  Hasher
	buckets [][][]chainedEntry // [bucket][group][entry]
	m       uint64
	g       uint64
	size    uint64
}

// NewChainedTable constructs a table with bucketsCount M and groupsPerBucket
// G, both of which must be positive powers of two, else *BadConfig.
func NewChainedTable(bucketsCount, groupsPerBucket uint64) (*ChainedTable, error) {
	if !isPowerOfTwo(bucketsCount) {
		return nil, errs.New(errs.KindBadConfig, "buckets_count must be a positive power of two")
	}

	if !isPowerOfTwo(groupsPerBucket) {
		return nil, errs.New(errs.KindBadConfig, "groups_per_bucket must be a positive power of two")
	}

	return &ChainedTable{
		hasher:  NewHasher(),
		buckets: newBuckets(bucketsCount, groupsPerBucket),
		m:       bucketsCount,
		g:       groupsPerBucket,
	}, nil
}

func newBuckets(m, g uint64) [][][]chainedEntry {
	buckets := make([][][]chainedEntry, m)
	for i := range buckets {
		buckets[i] = make([][]chainedEntry, g)
	}

	return buckets
}

func (t *ChainedTable) Kind() BackendKind { return BackendChained }

func (t *ChainedTable) indices(key string) (uint64, uint64) {
	i := t.hasher.H1(key) & (t.m - 1)
	g := t.hasher.H2(key) & (t.g - 1)

	return i, g
}

func (t *ChainedTable) Put(key string, value []byte) error {
	i, g := t.indices(key)
	group := t.buckets[i][g]

	for idx := range group {
		if group[idx].key == key {
			group[idx].value = value
			return nil
		}
	}

	t.buckets[i][g] = append(group, chainedEntry{key: key, value: value})
	t.size++

	if t.loadFactor() > chainedMaxLoadFactor {
		t.grow()
	}

	return nil
}

func (t *ChainedTable) Get(key string) ([]byte, bool) {
	i, g := t.indices(key)

	for _, e := range t.buckets[i][g] {
		if e.key == key {
			return e.value, true
		}
	}

	return nil, false
}

func (t *ChainedTable) Delete(key string) bool {
	i, g := t.indices(key)
	group := t.buckets[i][g]

	for idx := range group {
		if group[idx].key == key {
			last := len(group) - 1
			group[idx] = group[last]
			t.buckets[i][g] = group[:last]
			t.size--

			return true
		}
	}

	return false
}

func (t *ChainedTable) Len() int {
	return int(t.size)
}

func (t *ChainedTable) loadFactor() float64 {
	if t.m == 0 {
		return 0
	}

	return float64(t.size) / float64(t.m)
}

// grow doubles M and redistributes every entry; G is preserved.
func (t *ChainedTable) grow() {
	newM := t.m * 2
	newBucketsArr := newBuckets(newM, t.g)

	for _, bucket := range t.buckets {
		for _, group := range bucket {
			for _, e := range group {
				i := t.hasher.H1(e.key) & (newM - 1)
				g := t.hasher.H2(e.key) & (t.g - 1)
				newBucketsArr[i][g] = append(newBucketsArr[i][g], e)
			}
		}
	}

	t.buckets = newBucketsArr
	t.m = newM
}

// MaxGroupLen returns the largest group length across the table, used as an
// adaptation signal.
func (t *ChainedTable) MaxGroupLen() int {
	max := 0

	for _, bucket := range t.buckets {
		for _, group := range bucket {
			if len(group) > max {
				max = len(group)
			}
		}
	}

	return max
}

func (t *ChainedTable) HealthSignals() HealthSignals {
	return HealthSignals{
		Size:        t.Len(),
		Capacity:    int(t.m),
		LoadFactor:  t.loadFactor(),
		MaxGroupLen: t.MaxGroupLen(),
	}
}

// Compact is a no-op on ChainedTable; only RobinHoodTable accumulates
// tombstones. The verifier reports mismatches here but never mutates.
func (t *ChainedTable) Compact() {}

// Shape returns the bucket count and groups-per-bucket this table was
// constructed with, for the snapshot codec.
func (t *ChainedTable) Shape() (bucketsCount, groupsPerBucket uint64) {
	return t.m, t.g
}

type chainedIterator struct {
	t      *ChainedTable
	bucket int
	group  int
	index  int
}

func (t *ChainedTable) Iterator() Iterator {
	return &chainedIterator{t: t}
}

func (it *chainedIterator) Next() (Entry, bool) {
	t := it.t

	for it.bucket < len(t.buckets) {
		bucket := t.buckets[it.bucket]

		for it.group < len(bucket) {
			group := bucket[it.group]

			if it.index < len(group) {
				e := group[it.index]
				it.index++

				return Entry{Key: e.key, Value: e.value}, true
			}

			it.group++
			it.index = 0
		}

		it.bucket++
		it.group = 0
	}

	return Entry{}, false
}

func isPowerOfTwo(n uint64) bool {
	return n > 0 && (n&(n-1)) == 0
}

func nextPowerOfTwo(n uint64) uint64 {
	if n < 1 {
		return 1
	}

	p := uint64(1)
	for p < n {
		p <<= 1
	}

	return p
}
