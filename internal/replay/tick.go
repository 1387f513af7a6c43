package replay

// SchemaVersion identifies the Tick JSON shape, bumped on any
// backward-incompatible field change.
const SchemaVersion = 1

// EventKind enumerates the replay lifecycle event tags.
type EventKind string

const (
	EventStart      EventKind = "start"
	EventSwitch     EventKind = "switch"
	EventCompaction EventKind = "compaction"
	EventIdle       EventKind = "idle"
	EventResume     EventKind = "resume"
	EventComplete   EventKind = "complete"
)

// Event is a single structured occurrence attached to the tick in which it
// fired.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp float64        `json:"timestamp"` // seconds since replay start
	Payload   map[string]any `json:"payload,omitempty"`
}

// State is the replay run's progress classification for a tick.
type State string

const (
	StateRunning State = "running"
	StateIdle    State = "idle"
)

// OpPercentiles is {p50, p90, p99} latency in milliseconds for one op kind
// or overall.
type OpPercentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
}

// LatencyPercentiles groups percentiles for the overall stream and each op
// kind.
type LatencyPercentiles struct {
	Overall OpPercentiles `json:"overall"`
	Put     OpPercentiles `json:"put"`
	Get     OpPercentiles `json:"get"`
	Del     OpPercentiles `json:"del"`
}

// OpsByKind tallies operations processed so far, by kind.
type OpsByKind struct {
	Put int `json:"put"`
	Get int `json:"get"`
	Del int `json:"del"`
}

// Tick is the structured health record emitted periodically during
// replay.
type Tick struct {
	SchemaVersion    int       `json:"schema_version"`
	ElapsedSeconds   float64   `json:"elapsed_seconds"`
	BackendLabel     string    `json:"backend_label"`
	TotalOps         int       `json:"total_ops"`
	OpsByKind        OpsByKind `json:"ops_by_kind"`
	MigrationsTotal  int       `json:"migrations_total"`
	CompactionsTotal int       `json:"compactions_total"`
	LoadFactor       float64   `json:"load_factor"`
	MaxGroupLen      int       `json:"max_group_len"`
	AvgProbeEstimate float64   `json:"avg_probe_estimate"`
	TombstoneRatio   float64   `json:"tombstone_ratio"`

	ProbeHistogram map[int]int `json:"probe_histogram"`
	KeyHeatmap     KeyHeatmap  `json:"key_heatmap"`

	LatencyPercentiles               LatencyPercentiles             `json:"latency_percentiles"`
	LatencyCumulativeHistogramByKind map[string]CumulativeHistogram `json:"latency_cumulative_histogram_by_kind"`
	LatencyBucketPresetName          string                         `json:"latency_bucket_preset_name"`

	Events []Event `json:"events,omitempty"`
	Alerts []Alert `json:"alerts,omitempty"`

	State State `json:"state"`
}
