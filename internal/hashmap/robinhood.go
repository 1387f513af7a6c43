package hashmap

import (
	"github.com/adhash-engine/adhash/internal/errs"
)

const (
	rhMaxLoadFactor        = 0.85
	rhAvgProbeSampleStride = 8
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotTombstone
	slotOccupied
)

type rhSlot struct {
	state slotState
	hash  uint64
	key   string
	value []byte
}

// RobinHoodTable is a power-of-two open-addressed slot array using Robin
// Hood displacement and tombstones.
type RobinHoodTable struct {
	hasher     Hasher
	slots      []rhSlot
	capacity   uint64
	mask       uint64
	size       uint64
	tombstones uint64
}

// NewRobinHoodTable constructs a table with the given capacity, which must
// be a positive power of two, else *BadConfig.
func NewRobinHoodTable(capacity uint64) (*RobinHoodTable, error) {
	if !isPowerOfTwo(capacity) {
		return nil, errs.New(errs.KindBadConfig, "capacity must be a positive power of two")
	}

	return &RobinHoodTable{
		hasher:   NewHasher(),
		slots:    make([]rhSlot, capacity),
		capacity: capacity,
		mask:     capacity - 1,
	}, nil
}

func (t *RobinHoodTable) Kind() BackendKind { return BackendRobinHood }

func (t *RobinHoodTable) loadFactor() float64 {
	if t.capacity == 0 {
		return 0
	}

	return float64(t.size) / float64(t.capacity)
}

func (t *RobinHoodTable) probeDistance(idx, idealIdx uint64) uint64 {
	return (idx - idealIdx + t.capacity) & t.mask
}

func (t *RobinHoodTable) Put(key string, value []byte) error {
	if idx, ok := t.find(key); ok {
		t.slots[idx].value = value

		return nil
	}

	if t.loadFactor() > rhMaxLoadFactor {
		t.resize(t.capacity * 2)
	}

	t.insert(key, value)

	return nil
}

// insert runs the Robin Hood displacement walk: forward from the ideal
// slot, swapping the candidate with any incumbent that has traveled less
// far than the candidate currently has.
func (t *RobinHoodTable) insert(key string, value []byte) {
	h := t.hasher.H1(key)
	idx := h & t.mask
	dist := uint64(0)

	candKey, candVal, candHash := key, value, h

	for {
		slot := &t.slots[idx]

		switch slot.state {
		case slotEmpty:
			slot.state = slotOccupied
			slot.key = candKey
			slot.value = candVal
			slot.hash = candHash
			t.size++

			return
		case slotTombstone:
			slot.state = slotOccupied
			slot.key = candKey
			slot.value = candVal
			slot.hash = candHash
			t.size++
			t.tombstones--

			return
		case slotOccupied:
			if slot.key == candKey {
				slot.value = candVal
				return
			}

			incumbentIdeal := slot.hash & t.mask
			d := t.probeDistance(idx, incumbentIdeal)

			if d < dist {
				slot.key, candKey = candKey, slot.key
				slot.value, candVal = candVal, slot.value
				slot.hash, candHash = candHash, slot.hash
				dist = d
			}
		}

		idx = (idx + 1) & t.mask
		dist++
	}
}

func (t *RobinHoodTable) find(key string) (int, bool) {
	h := t.hasher.H1(key)
	idx := h & t.mask

	for step := uint64(0); step < t.capacity; step++ {
		slot := &t.slots[idx]

		switch slot.state {
		case slotEmpty:
			return 0, false
		case slotOccupied:
			if slot.hash == h && slot.key == key {
				return int(idx), true
			}
		case slotTombstone:
			// continue probing
		}

		idx = (idx + 1) & t.mask
	}

	return 0, false
}

func (t *RobinHoodTable) Get(key string) ([]byte, bool) {
	idx, ok := t.find(key)
	if !ok {
		return nil, false
	}

	return t.slots[idx].value, true
}

func (t *RobinHoodTable) Delete(key string) bool {
	idx, ok := t.find(key)
	if !ok {
		return false
	}

	t.slots[idx] = rhSlot{state: slotTombstone}
	t.size--
	t.tombstones++

	return true
}

func (t *RobinHoodTable) Len() int {
	return int(t.size)
}

func (t *RobinHoodTable) tombstoneRatio() float64 {
	if t.capacity == 0 {
		return 0
	}

	return float64(t.tombstones) / float64(t.capacity)
}

// avgProbeEstimate samples every 8th slot and averages the probe distance
// of occupied samples. Cheap and biased; the adaptation thresholds are
// tuned against this stride, so an exact mean would shift their meaning.
func (t *RobinHoodTable) avgProbeEstimate() float64 {
	var sum float64

	var count int

	for i := 0; i < len(t.slots); i += rhAvgProbeSampleStride {
		slot := &t.slots[i]
		if slot.state != slotOccupied {
			continue
		}

		ideal := slot.hash & t.mask
		sum += float64(t.probeDistance(uint64(i), ideal))
		count++
	}

	if count == 0 {
		return 0
	}

	return sum / float64(count)
}

// Capacity returns the table's current slot count, for the snapshot codec.
func (t *RobinHoodTable) Capacity() uint64 {
	return t.capacity
}

// Tombstones returns the current tombstone count, for the verifier's
// size+tombstones <= capacity check.
func (t *RobinHoodTable) Tombstones() uint64 {
	return t.tombstones
}

func (t *RobinHoodTable) HealthSignals() HealthSignals {
	return HealthSignals{
		Size:             t.Len(),
		Capacity:         int(t.capacity),
		LoadFactor:       t.loadFactor(),
		AvgProbeEstimate: t.avgProbeEstimate(),
		TombstoneRatio:   t.tombstoneRatio(),
	}
}

// resize allocates a new slot array of newCapacity (a power of two),
// reinserts every occupied slot, and discards tombstones.
func (t *RobinHoodTable) resize(newCapacity uint64) {
	old := t.slots

	t.slots = make([]rhSlot, newCapacity)
	t.capacity = newCapacity
	t.mask = newCapacity - 1
	t.size = 0
	t.tombstones = 0

	for _, slot := range old {
		if slot.state == slotOccupied {
			t.insert(slot.key, slot.value)
		}
	}
}

// Compact rebuilds the table at the current capacity, purging tombstones.
// Idempotent: a second call finds zero tombstones and does no work beyond
// reinsertion of the same live entries.
func (t *RobinHoodTable) Compact() {
	t.resize(t.capacity)
}

type robinHoodIterator struct {
	t   *RobinHoodTable
	pos int
}

func (t *RobinHoodTable) Iterator() Iterator {
	return &robinHoodIterator{t: t}
}

func (it *robinHoodIterator) Next() (Entry, bool) {
	t := it.t

	for it.pos < len(t.slots) {
		slot := t.slots[it.pos]
		it.pos++

		if slot.state == slotOccupied {
			return Entry{Key: slot.key, Value: slot.value}, true
		}
	}

	return Entry{}, false
}

// ProbeHistogram increments histogram[probe_distance] for every occupied
// slot, used by the replay engine's per-tick probe histogram.
func (t *RobinHoodTable) ProbeHistogram() map[int]int {
	hist := make(map[int]int)

	for i, slot := range t.slots {
		if slot.state != slotOccupied {
			continue
		}

		ideal := slot.hash & t.mask
		d := int(t.probeDistance(uint64(i), ideal))
		hist[d]++
	}

	return hist
}

// Occupancy reports, for each slot, whether it is occupied. The replay
// engine folds it into the per-tick key heatmap.
func (t *RobinHoodTable) Occupancy() []bool {
	occ := make([]bool, len(t.slots))
	for i, slot := range t.slots {
		occ[i] = slot.state == slotOccupied
	}

	return occ
}
