package replay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhash-engine/adhash/internal/hashmap"
)

// fakeClock is a manually-advanced Clock that decouples elapsed-time and
// idle assertions from real wall time.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMap(t *testing.T) *hashmap.AdaptiveMap {
	t.Helper()

	policy := hashmap.DefaultPolicy()

	m, err := hashmap.NewAdaptiveMap(hashmap.BackendChained, policy, hashmap.Hooks{})
	require.NoError(t, err)

	return m
}

func genStream(n int) []Op {
	ops := make([]Op, n)
	for i := range ops {
		ops[i] = Op{Kind: OpPut, Key: fmt.Sprintf("k-%d", i), Value: []byte{byte(i)}}
	}

	return ops
}

// A 4096-op stream with tick interval 1024 produces exactly one start
// tick, one complete tick, and 4 periodic ticks, with monotonically
// non-decreasing total_ops and elapsed_seconds.
func TestEngine_TickEmission(t *testing.T) {
	m := newTestMap(t)
	clock := newFakeClock()

	e := NewEngine(m, Config{
		SampleEveryNth:    8,
		ReservoirCapacity: 200,
		TickEveryOps:      1024,
		IdleAfter:         5 * time.Second,
		BucketPresetName:  "default",
	}, clock)

	ops := genStream(4096)

	e.StartRun()

	for i, op := range ops {
		require.NoError(t, e.Advance(op, i))
		clock.Advance(time.Millisecond)
	}

	final := e.FinishRun()
	ticks := e.Ticks()

	require.Len(t, ticks, 6) // start + 4 periodic + complete

	startTicks, completeTicks, periodicCount := 0, 0, 0

	for i, tk := range ticks {
		for _, ev := range tk.Events {
			switch ev.Kind {
			case EventStart:
				startTicks++
			case EventComplete:
				completeTicks++
			}
		}

		if len(tk.Events) == 0 {
			periodicCount++
		}

		if i > 0 {
			assert.GreaterOrEqual(t, tk.TotalOps, ticks[i-1].TotalOps)
			assert.GreaterOrEqual(t, tk.ElapsedSeconds, ticks[i-1].ElapsedSeconds)
		}
	}

	assert.Equal(t, 1, startTicks)
	assert.Equal(t, 1, completeTicks)
	assert.Equal(t, 4, periodicCount)
	assert.Equal(t, 4096, final.TotalOps)

	require.Greater(t, final.LatencyPercentiles.Put.P99, -1.0)
}

func TestEngine_Run_MatchesManualAdvance(t *testing.T) {
	m := newTestMap(t)
	clock := newFakeClock()

	e := NewEngine(m, Config{TickEveryOps: 100, SampleEveryNth: 4}, clock)

	_, err := e.Run(context.Background(), genStream(250))
	require.NoError(t, err)

	assert.Equal(t, 250, e.lastTick().TotalOps)
}

func TestEngine_Run_CancelledBetweenOperations(t *testing.T) {
	m := newTestMap(t)
	clock := newFakeClock()

	e := NewEngine(m, Config{TickEveryOps: 1000000, SampleEveryNth: 1}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, genStream(5))
	require.Error(t, err)
}

// A single idle event during a 6-second pause with no duplicate idle
// ticks, then a resume event on the first post-pause tick.
func TestEngine_IdleResume(t *testing.T) {
	m := newTestMap(t)
	clock := newFakeClock()

	e := NewEngine(m, Config{
		SampleEveryNth:    1,
		ReservoirCapacity: 100,
		TickEveryOps:      1000000, // disable periodic ticks for this test
		IdleAfter:         5 * time.Second,
	}, clock)

	e.StartRun()

	for i, op := range genStream(100) {
		require.NoError(t, e.Advance(op, i))
	}

	// Pause: no ops arrive, but the driver still polls for idle/resume.
	clock.Advance(3 * time.Second)
	e.Poll()
	clock.Advance(3 * time.Second) // total 6s, crosses the 5s idle threshold
	e.Poll()
	e.Poll() // a second poll while still idle must not duplicate the idle tick

	idleTicks, idleEvents := 0, 0

	for _, tk := range e.Ticks() {
		if tk.State == StateIdle {
			idleTicks++
		}

		for _, ev := range tk.Events {
			if ev.Kind == EventIdle {
				idleEvents++
			}
		}
	}

	assert.Equal(t, 1, idleTicks)
	assert.Equal(t, 1, idleEvents)

	for i, op := range genStream(100) {
		require.NoError(t, e.Advance(op, 100+i))
	}

	final := e.FinishRun()

	resumeEvents := 0

	for _, tk := range e.Ticks() {
		for _, ev := range tk.Events {
			if ev.Kind == EventResume {
				resumeEvents++
			}
		}
	}

	assert.Equal(t, 1, resumeEvents)
	assert.Equal(t, 200, final.TotalOps)
}

func TestEngine_SwitchEventFiresOnMigration(t *testing.T) {
	policy := hashmap.DefaultPolicy()
	policy.SeedChained = hashmap.ChainedShape{Buckets: 4, GroupsPerBucket: 2}
	policy.MaxGroupLen = 4
	policy.IncrementalBatch = 8

	m, err := hashmap.NewAdaptiveMap(hashmap.BackendChained, policy, hashmap.Hooks{})
	require.NoError(t, err)

	clock := newFakeClock()
	e := NewEngine(m, Config{TickEveryOps: 1000000, SampleEveryNth: 1}, clock)

	// Keys with h1 0 mod 4 and h2 selecting group 0 crowd one chained group
	// past MaxGroupLen, forcing a migration to robinhood.
	hasher := hashmap.NewHasher()

	var ops []Op
	for i := 0; len(ops) < 400; i++ {
		key := fmt.Sprintf("k-%d", i)
		if hasher.H1(key)&3 == 0 && hasher.H2(key)&1 == 0 {
			ops = append(ops, Op{Kind: OpPut, Key: key, Value: []byte{byte(len(ops))}})
		}
	}

	e.StartRun()

	for i, op := range ops {
		require.NoError(t, e.Advance(op, i))
	}

	e.FinishRun()

	switchEvents := 0

	for _, tk := range e.Ticks() {
		for _, ev := range tk.Events {
			if ev.Kind == EventSwitch {
				switchEvents++
			}
		}
	}

	assert.GreaterOrEqual(t, switchEvents, 1)
}
