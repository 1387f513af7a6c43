package replay

import (
	"math/rand/v2"
	"sort"
)

// Reservoir implements fixed-capacity reservoir sampling: Offer(value)
// keeps every sample with probability k/n once n exceeds the capacity k,
// without ever buffering more than k values.
type Reservoir struct {
	capacity int
	buf      []float64
	n        int
	rng      *rand.Rand
}

// NewReservoir constructs a reservoir of the given capacity, seeded for
// reproducibility. Capacity is clamped to at least 1.
func NewReservoir(capacity int, seed int64) *Reservoir {
	if capacity < 1 {
		capacity = 1
	}

	return &Reservoir{
		capacity: capacity,
		buf:      make([]float64, 0, capacity),
		rng:      rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
	}
}

// Offer admits a new sample: append while under capacity, then replace a
// uniformly chosen incumbent with probability capacity/n.
func (r *Reservoir) Offer(value float64) {
	if r.n < r.capacity {
		r.buf = append(r.buf, value)
	} else if j := r.rng.IntN(r.n + 1); j < r.capacity {
		r.buf[j] = value
	}

	r.n++
}

// Len returns the number of values offered so far (not the buffer size).
func (r *Reservoir) Len() int { return r.n }

// Percentile returns the p-th percentile (p in [0,1]) of the values
// currently retained, sorting a private copy so callers may keep offering
// afterward. Returns 0 if nothing has been offered.
func (r *Reservoir) Percentile(p float64) float64 {
	if len(r.buf) == 0 {
		return 0
	}

	sorted := make([]float64, len(r.buf))
	copy(sorted, r.buf)
	sort.Float64s(sorted)

	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}

	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

// Percentiles returns p50, p90, p99 in one sorted pass.
func (r *Reservoir) Percentiles() (p50, p90, p99 float64) {
	if len(r.buf) == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, len(r.buf))
	copy(sorted, r.buf)
	sort.Float64s(sorted)

	at := func(p float64) float64 {
		idx := int(p * float64(len(sorted)-1))
		if idx < 0 {
			idx = 0
		}

		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}

		return sorted[idx]
	}

	return at(0.50), at(0.90), at(0.99)
}

// Values returns a copy of the currently retained sample, for histogram
// construction.
func (r *Reservoir) Values() []float64 {
	out := make([]float64, len(r.buf))
	copy(out, r.buf)

	return out
}
