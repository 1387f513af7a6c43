package hashmap

import "github.com/adhash-engine/adhash/internal/errs"

// ChainedShape is the seed capacity pair for a fresh ChainedTable.
type ChainedShape struct {
	Buckets         uint64
	GroupsPerBucket uint64
}

// Policy carries every threshold AdaptiveMap's maintenance rule and
// migration state machine consult.
type Policy struct {
	// MaxLoadFactorChaining triggers chained -> robinhood migration once
	// exceeded.
	MaxLoadFactorChaining float64
	// MaxGroupLen triggers chained -> robinhood migration once any group
	// grows past it.
	MaxGroupLen int
	// MaxAvgProbeRobinHood triggers robinhood -> chained migration once
	// exceeded.
	MaxAvgProbeRobinHood float64
	// MaxTombstoneRatio triggers an in-place compact() once exceeded.
	MaxTombstoneRatio float64
	// IncrementalBatch caps how many entries drain_batch moves per call.
	IncrementalBatch int
	// SeedChained is the shape used whenever a fresh ChainedTable is
	// constructed (initial construction or as a migration target).
	SeedChained ChainedShape
	// SeedRobinHoodCapacity is the capacity used whenever a fresh
	// RobinHoodTable is constructed.
	SeedRobinHoodCapacity uint64
	// LargeMapWarnThreshold causes a migration-start warning event once
	// size reaches it.
	LargeMapWarnThreshold int
}

// DefaultPolicy returns the engine's default thresholds. Its
// MaxLoadFactorChaining equals the chained table's own resize load factor
// (0.8), and a chained table grows inside Put before maintenance runs, so
// under these defaults a switch away from chained is triggered by group
// length, not by load factor.
func DefaultPolicy() Policy {
	return Policy{
		MaxLoadFactorChaining: 0.8,
		MaxGroupLen:           8,
		MaxAvgProbeRobinHood:  6,
		MaxTombstoneRatio:     0.25,
		IncrementalBatch:      256,
		SeedChained:           ChainedShape{Buckets: 16, GroupsPerBucket: 4},
		SeedRobinHoodCapacity: 16,
		LargeMapWarnThreshold: 1_000_000,
	}
}

// Validate rejects out-of-range thresholds with *BadConfig.
func (p Policy) Validate() error {
	if p.MaxLoadFactorChaining <= 0 {
		return errs.New(errs.KindBadConfig, "max_lf_chaining must be > 0")
	}

	if p.MaxGroupLen <= 0 {
		return errs.New(errs.KindBadConfig, "max_group_len must be > 0")
	}

	if p.MaxAvgProbeRobinHood <= 0 {
		return errs.New(errs.KindBadConfig, "max_avg_probe_robinhood must be > 0")
	}

	if p.MaxTombstoneRatio <= 0 || p.MaxTombstoneRatio >= 1 {
		return errs.New(errs.KindBadConfig, "max_tombstone_ratio must be in (0, 1)")
	}

	if p.IncrementalBatch <= 0 {
		return errs.New(errs.KindBadConfig, "incremental_batch must be > 0")
	}

	if !isPowerOfTwo(p.SeedChained.Buckets) {
		return errs.New(errs.KindBadConfig, "seed chained buckets must be a positive power of two")
	}

	if !isPowerOfTwo(p.SeedChained.GroupsPerBucket) {
		return errs.New(errs.KindBadConfig, "seed chained groups_per_bucket must be a positive power of two")
	}

	if !isPowerOfTwo(p.SeedRobinHoodCapacity) {
		return errs.New(errs.KindBadConfig, "seed robinhood capacity must be a positive power of two")
	}

	if p.LargeMapWarnThreshold <= 0 {
		return errs.New(errs.KindBadConfig, "large_map_warn_threshold must be > 0")
	}

	return nil
}
