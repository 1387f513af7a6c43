// Package dna implements the workload DNA analyzer: a
// single-pass estimator of operation mix, key/value shape, skew, collision
// risk, and bucket distribution, consumed by the backend recommender and by
// external reporting.
package dna

import (
	"math"
	"sort"
	"strconv"

	"github.com/adhash-engine/adhash/internal/hashmap"
	"github.com/adhash-engine/adhash/internal/replay"
)

// Options configures one analysis run.
type Options struct {
	// MaxTrackedKeys bounds the heavy-hitter sketch's memory.
	MaxTrackedKeys int
	// TopK is how many hot keys to report, capped by MaxTrackedKeys.
	TopK int
	// ReferenceBuckets is M0, the bucket count the bucket simulation hashes
	// keys against. Defaults to the
	// chaining backend's seed bucket count when zero.
	ReferenceBuckets uint64
}

// DefaultOptions mirrors the chaining backend's default seed shape so the
// bucket simulation reflects what a fresh AdaptiveMap would actually do.
func DefaultOptions() Options {
	return Options{
		MaxTrackedKeys:   256,
		TopK:             10,
		ReferenceBuckets: hashmap.DefaultPolicy().SeedChained.Buckets,
	}
}

// OpMix tallies operation counts and fractions by kind.
type OpMix struct {
	Put, Get, Del             int
	PutFrac, GetFrac, DelFrac float64
	MutationFraction          float64 // (put+del)/total
}

// BucketStats is the per-reference-bucket simulation result.
type BucketStats struct {
	ReferenceBuckets uint64
	Counts           []int
	DepthP50         float64
	DepthP90         float64
	DepthP99         float64
	DepthHistogram   map[int]int // depth -> number of buckets with that depth
	Hotspots         []int       // bucket indices with depth > 5x mean depth
	MeanDepth        float64
}

// Report is the structured output of one analysis run.
type Report struct {
	TotalOps int
	OpMix    OpMix

	EstimatedUniqueKeys int
	// KeySpaceDepthBits is the Shannon entropy (bits) of the key occurrence
	// frequency distribution: low when a few keys dominate, approaching
	// log2(EstimatedUniqueKeys) when access is uniform across keys.
	KeySpaceDepthBits float64
	// KeyEntropyNormalized is KeySpaceDepthBits divided by
	// log2(EstimatedUniqueKeys), giving a 0..1 skew indicator independent
	// of key-space size.
	KeyEntropyNormalized float64

	KeyLengthStats   RunningStats
	ValueLengthStats RunningStats

	TopHotKeys []HotKey

	NumericKeyFraction        float64
	SequentialStepFraction    float64 // adjacent parsed ints differing by 1
	AdjacentDuplicateFraction float64 // consecutive ops sharing the same key

	Buckets BucketStats
}

// Analyze runs a single pass over ops, producing a static workload report.
// A zero Options falls back to DefaultOptions.
func Analyze(ops []replay.Op, opts Options) Report {
	if opts.MaxTrackedKeys <= 0 {
		opts = DefaultOptions()
	}

	if opts.ReferenceBuckets == 0 {
		opts.ReferenceBuckets = DefaultOptions().ReferenceBuckets
	}

	hh := newHeavyHitters(opts.MaxTrackedKeys)
	freq := make(map[string]int)

	var keyLen, valLen runningStats

	var numericKeys int

	var prevKey string

	var havePrev bool

	var prevInt int64

	var havePrevInt bool

	var sequentialSteps, adjacentDuplicates int

	h1 := hashmap.NewHasher()
	bucketCounts := make([]int, opts.ReferenceBuckets)

	var opMix OpMix

	for _, op := range ops {
		switch op.Kind {
		case replay.OpPut:
			opMix.Put++
		case replay.OpGet:
			opMix.Get++
		case replay.OpDel:
			opMix.Del++
		}

		freq[op.Key]++
		hh.Offer(op.Key)
		keyLen.Offer(float64(len(op.Key)))

		if op.Kind == replay.OpPut {
			valLen.Offer(float64(len(op.Value)))
		}

		if n, err := strconv.ParseInt(op.Key, 10, 64); err == nil {
			numericKeys++

			if havePrevInt && n-prevInt == 1 {
				sequentialSteps++
			}

			prevInt = n
			havePrevInt = true
		} else {
			havePrevInt = false
		}

		if havePrev && prevKey == op.Key {
			adjacentDuplicates++
		}

		prevKey = op.Key
		havePrev = true

		idx := h1.H1(op.Key) % opts.ReferenceBuckets
		bucketCounts[idx]++
	}

	total := len(ops)

	if total > 0 {
		opMix.PutFrac = float64(opMix.Put) / float64(total)
		opMix.GetFrac = float64(opMix.Get) / float64(total)
		opMix.DelFrac = float64(opMix.Del) / float64(total)
		opMix.MutationFraction = float64(opMix.Put+opMix.Del) / float64(total)
	}

	entropyBits := shannonEntropyBits(freq, total)

	distinct := len(freq)

	normalized := 0.0
	if distinct > 1 {
		normalized = entropyBits / math.Log2(float64(distinct))
	}

	var numericFrac, seqFrac, dupFrac float64
	if total > 0 {
		numericFrac = float64(numericKeys) / float64(total)
		dupFrac = float64(adjacentDuplicates) / float64(total)
	}

	if numericKeys > 1 {
		seqFrac = float64(sequentialSteps) / float64(numericKeys-1)
	}

	return Report{
		TotalOps:                  total,
		OpMix:                     opMix,
		EstimatedUniqueKeys:       distinct,
		KeySpaceDepthBits:         entropyBits,
		KeyEntropyNormalized:      normalized,
		KeyLengthStats:            keyLen.Stats(),
		ValueLengthStats:          valLen.Stats(),
		TopHotKeys:                hh.Top(opts.TopK),
		NumericKeyFraction:        numericFrac,
		SequentialStepFraction:    seqFrac,
		AdjacentDuplicateFraction: dupFrac,
		Buckets:                   simulateBuckets(bucketCounts, opts.ReferenceBuckets),
	}
}

// shannonEntropyBits computes H = -sum(p_i * log2(p_i)) over the key
// occurrence frequency distribution.
func shannonEntropyBits(freq map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}

	var h float64

	for _, c := range freq {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}

	return h
}

// simulateBuckets folds the per-bucket occurrence counts computed during
// the main pass into the percentile/histogram/hotspot summary.
func simulateBuckets(counts []int, m0 uint64) BucketStats {
	if len(counts) == 0 {
		return BucketStats{ReferenceBuckets: m0}
	}

	sorted := make([]int, len(counts))
	copy(sorted, counts)
	sort.Ints(sorted)

	percentile := func(p float64) float64 {
		idx := int(p * float64(len(sorted)-1))
		if idx < 0 {
			idx = 0
		}

		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}

		return float64(sorted[idx])
	}

	hist := make(map[int]int)

	var sum int

	for _, c := range counts {
		hist[c]++
		sum += c
	}

	mean := float64(sum) / float64(len(counts))

	var hotspots []int

	for i, c := range counts {
		if mean > 0 && float64(c) > 5*mean {
			hotspots = append(hotspots, i)
		}
	}

	return BucketStats{
		ReferenceBuckets: m0,
		Counts:           counts,
		DepthP50:         percentile(0.50),
		DepthP90:         percentile(0.90),
		DepthP99:         percentile(0.99),
		DepthHistogram:   hist,
		Hotspots:         hotspots,
		MeanDepth:        mean,
	}
}

