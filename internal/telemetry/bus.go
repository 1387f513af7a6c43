// Package telemetry implements the bounded ring buffer of replay.Tick
// values and replay.Event values that external collaborators (dashboard,
// TUI, batch runner) observe: single producer, multiple observers.
//
// The replay engine itself runs single-threaded; the one concurrency
// surface this package introduces is a mutex guarding reads from a
// driver's signal-handling goroutine against the replay goroutine's
// writes, matching the single producer / multiple observer contract.
package telemetry

import (
	"sync"

	"github.com/adhash-engine/adhash/internal/replay"
)

// Bus is a single-producer, multiple-observer ring of recent ticks and
// events. Producers call Publish from the replay loop;
// observers call Latest/Ticks/Events from any goroutine.
type Bus struct {
	mu sync.Mutex

	tickCap int
	ticks   []replay.Tick // ring, oldest first

	eventCap int
	events   []replay.Event // ring, oldest first
}

// NewBus constructs a Bus retaining up to tickCapacity ticks and
// eventCapacity events, dropping the oldest on overflow. Capacities
// below 1 are clamped to 1.
func NewBus(tickCapacity, eventCapacity int) *Bus {
	if tickCapacity < 1 {
		tickCapacity = 1
	}

	if eventCapacity < 1 {
		eventCapacity = 1
	}

	return &Bus{tickCap: tickCapacity, eventCap: eventCapacity}
}

// Publish appends a tick (and any events it carries) to the ring buffers,
// dropping the oldest entry once a ring is full.
func (b *Bus) Publish(t replay.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ticks = appendRing(b.ticks, t, b.tickCap)

	for _, e := range t.Events {
		b.events = appendRing(b.events, e, b.eventCap)
	}
}

// Latest returns the most recently published tick and whether one exists.
func (b *Bus) Latest() (replay.Tick, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ticks) == 0 {
		return replay.Tick{}, false
	}

	return b.ticks[len(b.ticks)-1], true
}

// Ticks returns a copy of every tick currently retained, oldest first.
func (b *Bus) Ticks() []replay.Tick {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]replay.Tick, len(b.ticks))
	copy(out, b.ticks)

	return out
}

// Events returns a copy of every event currently retained, oldest first.
func (b *Bus) Events() []replay.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]replay.Event, len(b.events))
	copy(out, b.events)

	return out
}

// appendRing appends v to buf, dropping the oldest element once len(buf)
// would exceed cap. Generic over Tick/Event so Publish can share one
// implementation for both rings.
func appendRing[T any](buf []T, v T, capacity int) []T {
	buf = append(buf, v)

	if len(buf) > capacity {
		buf = buf[len(buf)-capacity:]
	}

	return buf
}
