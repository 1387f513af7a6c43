package snapshot

import (
	"encoding/json"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/hashmap"
)

// Tag enumerates the payload variants this codec will instantiate.
// Anything else fails closed with *InvariantViolation: snapshots are
// untrusted input, so decoding dispatches on an explicit allowlist
// instead of a general-purpose reflective decoder.
type Tag string

const (
	TagChainedTable   Tag = "chained_table"
	TagRobinHoodTable Tag = "robinhood_table"
	TagAdaptiveMap    Tag = "adaptive_map"
)

var allowedTags = map[Tag]bool{
	TagChainedTable:   true,
	TagRobinHoodTable: true,
	TagAdaptiveMap:    true,
}

// envelope is the outer JSON shape every payload is wrapped in: an
// explicit variant tag plus its data, so decoding never instantiates a
// type the allowlist does not name.
type envelope struct {
	Tag  Tag             `json:"tag"`
	Data json.RawMessage `json:"data"`
}

// entryRecord is the allowlisted record for one live (key, value) pair:
// a string and a byte string, base64-encoded by encoding/json's []byte
// handling.
type entryRecord struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type chainedTablePayload struct {
	Buckets         uint64        `json:"buckets"`
	GroupsPerBucket uint64        `json:"groups_per_bucket"`
	Entries         []entryRecord `json:"entries"`
}

type robinHoodTablePayload struct {
	Capacity uint64        `json:"capacity"`
	Entries  []entryRecord `json:"entries"`
}

// policyRecord is the allowlisted config record for a Policy.
type policyRecord struct {
	MaxLoadFactorChaining float64            `json:"max_load_factor_chaining"`
	MaxGroupLen           int                `json:"max_group_len"`
	MaxAvgProbeRobinHood  float64            `json:"max_avg_probe_robinhood"`
	MaxTombstoneRatio     float64            `json:"max_tombstone_ratio"`
	IncrementalBatch      int                `json:"incremental_batch"`
	SeedChained           chainedShapeRecord `json:"seed_chained"`
	SeedRobinHoodCapacity uint64             `json:"seed_robinhood_capacity"`
	LargeMapWarnThreshold int                `json:"large_map_warn_threshold"`
}

type chainedShapeRecord struct {
	Buckets         uint64 `json:"buckets"`
	GroupsPerBucket uint64 `json:"groups_per_bucket"`
}

func policyToRecord(p hashmap.Policy) policyRecord {
	return policyRecord{
		MaxLoadFactorChaining: p.MaxLoadFactorChaining,
		MaxGroupLen:           p.MaxGroupLen,
		MaxAvgProbeRobinHood:  p.MaxAvgProbeRobinHood,
		MaxTombstoneRatio:     p.MaxTombstoneRatio,
		IncrementalBatch:      p.IncrementalBatch,
		SeedChained: chainedShapeRecord{
			Buckets:         p.SeedChained.Buckets,
			GroupsPerBucket: p.SeedChained.GroupsPerBucket,
		},
		SeedRobinHoodCapacity: p.SeedRobinHoodCapacity,
		LargeMapWarnThreshold: p.LargeMapWarnThreshold,
	}
}

func recordToPolicy(r policyRecord) hashmap.Policy {
	return hashmap.Policy{
		MaxLoadFactorChaining: r.MaxLoadFactorChaining,
		MaxGroupLen:           r.MaxGroupLen,
		MaxAvgProbeRobinHood:  r.MaxAvgProbeRobinHood,
		MaxTombstoneRatio:     r.MaxTombstoneRatio,
		IncrementalBatch:      r.IncrementalBatch,
		SeedChained: hashmap.ChainedShape{
			Buckets:         r.SeedChained.Buckets,
			GroupsPerBucket: r.SeedChained.GroupsPerBucket,
		},
		SeedRobinHoodCapacity: r.SeedRobinHoodCapacity,
		LargeMapWarnThreshold: r.LargeMapWarnThreshold,
	}
}

// adaptiveMapPayload holds a drained AdaptiveMap: by the time Save runs,
// Drain() has already collapsed any in-flight migration, so only the
// active backend and policy survive.
type adaptiveMapPayload struct {
	Policy     policyRecord    `json:"policy"`
	Backend    Tag             `json:"backend"`
	BackendRaw json.RawMessage `json:"backend_raw"`
}

func entriesToRecords(entries []hashmap.Entry) []entryRecord {
	out := make([]entryRecord, len(entries))
	for i, e := range entries {
		out[i] = entryRecord{Key: e.Key, Value: e.Value}
	}

	return out
}

// decodeEnvelope unwraps the outer tagged record, rejecting any tag not on
// the allowlist before the caller ever unmarshals Data into a concrete type.
func decodeEnvelope(payload []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return envelope{}, errs.New(errs.KindInvariantViolation, "snapshot payload is not a valid record", errs.Cause(err))
	}

	if !allowedTags[env.Tag] {
		return envelope{}, errs.New(errs.KindInvariantViolation, "snapshot payload carries an unrecognized tag")
	}

	return env, nil
}
