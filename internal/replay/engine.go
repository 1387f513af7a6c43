// Package replay drives an AdaptiveMap through an operation stream,
// measuring per-operation latency via reservoir sampling and emitting
// periodic telemetry ticks.
package replay

import (
	"context"
	"time"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/hashmap"
)

// Clock abstracts wall-clock reads so tests can control elapsed time and
// idle detection deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Config carries the sampling/emission knobs for one replay run (a
// narrowed view of config.Replay, decoupled so this package does not
// import internal/config).
type Config struct {
	SampleEveryNth     int
	ReservoirCapacity  int
	TickEveryOps       int
	IdleAfter          time.Duration
	CompactionInterval int // 0 disables proactive compaction
	BucketPresetName   string
	Watchdog           Watchdog
	Seed               int64
}

// Engine runs one replay stream against one AdaptiveMap: single entry
// point, typed error return, no hidden global state.
type Engine struct {
	m      *hashmap.AdaptiveMap
	cfg    Config
	clock  Clock
	preset BucketPreset

	overall *Reservoir
	put     *Reservoir
	get     *Reservoir
	del     *Reservoir
	loop    *Reservoir

	opsDone      int
	opsByKind    OpsByKind
	start        time.Time
	lastProgress time.Time
	idle         bool

	ticks  []Tick
	events []Event
}

// NewEngine constructs an Engine. Reservoir seeds derive from cfg.Seed,
// so two runs with equal seeds sample identically.
func NewEngine(m *hashmap.AdaptiveMap, cfg Config, clock Clock) *Engine {
	if cfg.SampleEveryNth <= 0 {
		cfg.SampleEveryNth = 128
	}

	if cfg.ReservoirCapacity <= 0 {
		cfg.ReservoirCapacity = 1000
	}

	if cfg.TickEveryOps <= 0 {
		cfg.TickEveryOps = 1024
	}

	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 5 * time.Second
	}

	perOpCap := cfg.ReservoirCapacity / 3
	if perOpCap < 1 {
		perOpCap = 1
	}

	return &Engine{
		m:       m,
		cfg:     cfg,
		clock:   clock,
		preset:  Preset(cfg.BucketPresetName),
		overall: NewReservoir(cfg.ReservoirCapacity, cfg.Seed+1),
		put:     NewReservoir(perOpCap, cfg.Seed+2),
		get:     NewReservoir(perOpCap, cfg.Seed+3),
		del:     NewReservoir(perOpCap, cfg.Seed+4),
		loop:    NewReservoir(cfg.ReservoirCapacity, cfg.Seed+5),
	}
}

// Ticks returns every tick emitted so far, in emission order.
func (e *Engine) Ticks() []Tick { return e.ticks }

// StartRun marks the run's epoch and emits the "start" tick. Call once
// before the first Advance.
func (e *Engine) StartRun() {
	e.start = e.clock.Now()
	e.lastProgress = e.start

	e.emitTick(StateRunning, []Event{{Kind: EventStart, Timestamp: 0}})
}

// FinishRun emits the "complete" tick and returns it.
func (e *Engine) FinishRun() Tick {
	e.emitTick(StateRunning, []Event{{Kind: EventComplete, Timestamp: e.elapsed()}})

	return e.lastTick()
}

// Poll checks for an idle transition without consuming an operation. A
// driver calls this while waiting for the next input row so an idle
// period is detected even though no operation arrives during it.
func (e *Engine) Poll() {
	e.applyIdleTransition()
}

// Advance applies one operation: executes it, updates counters, clears any
// idle state now that progress has resumed, and runs proactive compaction
// and periodic tick emission. index is this operation's 0-based position in
// the overall stream, used for latency sampling cadence.
func (e *Engine) Advance(op Op, index int) error {
	if err := e.step(op, index); err != nil {
		return err
	}

	e.opsDone++
	e.lastProgress = e.clock.Now()

	if e.idle {
		e.idle = false
		e.events = append(e.events, Event{Kind: EventResume, Timestamp: e.elapsed()})
	}

	switch op.Kind {
	case OpPut:
		e.opsByKind.Put++
	case OpGet:
		e.opsByKind.Get++
	case OpDel:
		e.opsByKind.Del++
	}

	if e.cfg.CompactionInterval > 0 && e.opsDone%e.cfg.CompactionInterval == 0 {
		e.proactiveCompact()
	}

	if e.opsDone%e.cfg.TickEveryOps == 0 {
		e.emitTick(StateRunning, nil)
	}

	return nil
}

// Run executes every op in ops against the map via StartRun/Advance/
// FinishRun, and returns the final tick. ctx is polled between operations
// only; mid-operation cancellation is not supported.
func (e *Engine) Run(ctx context.Context, ops []Op) (Tick, error) {
	e.StartRun()

	for i, op := range ops {
		select {
		case <-ctx.Done():
			return e.lastTick(), errs.New(errs.KindCancelled, "replay cancelled between operations")
		default:
		}

		e.Poll()

		if err := e.Advance(op, i); err != nil {
			return e.lastTick(), err
		}
	}

	return e.FinishRun(), nil
}

// step executes one operation, sampling latency every SampleEveryNth op.
func (e *Engine) step(op Op, index int) error {
	sample := index%e.cfg.SampleEveryNth == 0

	loopStart := e.clock.Now()

	backendMS, err := e.timedApply(op)
	if err != nil {
		return err
	}

	if sample {
		loopMS := float64(e.clock.Now().Sub(loopStart)) / float64(time.Millisecond)

		e.overall.Offer(backendMS)
		e.loop.Offer(loopMS)

		switch op.Kind {
		case OpPut:
			e.put.Offer(backendMS)
		case OpGet:
			e.get.Offer(backendMS)
		case OpDel:
			e.del.Offer(backendMS)
		}
	}

	return nil
}

func (e *Engine) timedApply(op Op) (float64, error) {
	before := e.clock.Now()

	beforeKind, _ := e.m.Backend()
	migrationsBefore := e.m.MigrationsTotal()

	switch op.Kind {
	case OpPut:
		if err := e.m.Put(op.Key, op.Value); err != nil {
			return 0, err
		}
	case OpGet:
		e.m.Get(op.Key)
	case OpDel:
		e.m.Delete(op.Key)
	}

	// Backend() reports the pre-migration kind until promotion, so the
	// from/to labels here are the plain backend names even when the
	// promotion happened partway through this operation's drain.
	if e.m.MigrationsTotal() > migrationsBefore {
		afterKind, _ := e.m.Backend()
		e.events = append(e.events, Event{
			Kind:      EventSwitch,
			Timestamp: e.elapsed(),
			Payload:   map[string]any{"from": beforeKind.String(), "to": afterKind.String()},
		})
	}

	ms := float64(e.clock.Now().Sub(before)) / float64(time.Millisecond)

	return ms, nil
}

func (e *Engine) proactiveCompact() {
	if e.m.CompactNow() {
		e.events = append(e.events, Event{Kind: EventCompaction, Timestamp: e.elapsed()})
	}
}

// applyIdleTransition marks the run idle, with a forced idle tick, after
// IdleAfter elapses without progress.
// Resume is detected in Advance instead, since progress is exactly what
// Advance represents.
func (e *Engine) applyIdleTransition() {
	if e.idle {
		return
	}

	if e.clock.Now().Sub(e.lastProgress) >= e.cfg.IdleAfter {
		e.idle = true
		e.emitTick(StateIdle, []Event{{Kind: EventIdle, Timestamp: e.elapsed()}})
	}
}

func (e *Engine) elapsed() float64 {
	return float64(e.clock.Now().Sub(e.start)) / float64(time.Second)
}

func (e *Engine) lastTick() Tick {
	if len(e.ticks) == 0 {
		return Tick{}
	}

	return e.ticks[len(e.ticks)-1]
}

func (e *Engine) emitTick(state State, forcedEvents []Event) {
	hs := e.m.HealthSignals()

	events := append(forcedEvents, e.events...)
	e.events = nil

	p50o, p90o, p99o := e.overall.Percentiles()
	p50p, p90p, p99p := e.put.Percentiles()
	p50g, p90g, p99g := e.get.Percentiles()
	p50d, p90d, p99d := e.del.Percentiles()

	var probeHist map[int]int

	var heatmap KeyHeatmap

	if kind, table := e.m.Backend(); kind == hashmap.BackendRobinHood && !e.m.IsMigrating() {
		if rh, ok := table.(interface {
			ProbeHistogram() map[int]int
			Occupancy() []bool
		}); ok {
			probeHist = rh.ProbeHistogram()
			heatmap = BuildKeyHeatmap(rh.Occupancy(), 32, 512)
		}
	}

	tick := Tick{
		SchemaVersion:    SchemaVersion,
		ElapsedSeconds:   e.elapsed(),
		BackendLabel:     e.m.Label(),
		TotalOps:         e.opsDone,
		OpsByKind:        e.opsByKind,
		MigrationsTotal:  e.m.MigrationsTotal(),
		CompactionsTotal: e.m.CompactionsTotal(),
		LoadFactor:       hs.LoadFactor,
		MaxGroupLen:      hs.MaxGroupLen,
		AvgProbeEstimate: hs.AvgProbeEstimate,
		TombstoneRatio:   hs.TombstoneRatio,
		ProbeHistogram:   probeHist,
		KeyHeatmap:       heatmap,
		LatencyPercentiles: LatencyPercentiles{
			Overall: OpPercentiles{P50: p50o, P90: p90o, P99: p99o},
			Put:     OpPercentiles{P50: p50p, P90: p90p, P99: p99p},
			Get:     OpPercentiles{P50: p50g, P90: p90g, P99: p99g},
			Del:     OpPercentiles{P50: p50d, P90: p90d, P99: p99d},
		},
		LatencyCumulativeHistogramByKind: map[string]CumulativeHistogram{
			"overall": BuildHistogram(e.preset, e.overall.Values()),
			"put":     BuildHistogram(e.preset, e.put.Values()),
			"get":     BuildHistogram(e.preset, e.get.Values()),
			"del":     BuildHistogram(e.preset, e.del.Values()),
		},
		LatencyBucketPresetName: e.preset.Name,
		Events:                  events,
		Alerts:                  e.cfg.Watchdog.Evaluate(hs.LoadFactor, hs.AvgProbeEstimate, hs.TombstoneRatio),
		State:                   state,
	}

	e.ticks = append(e.ticks, tick)
}
