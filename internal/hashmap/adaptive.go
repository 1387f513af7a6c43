package hashmap

import (
	"fmt"

	"github.com/adhash-engine/adhash/internal/errs"
)

// Hooks are side-effect-only callbacks AdaptiveMap invokes on migration
// and compaction events. They must never mutate map state; each is
// invoked under recover() so a panicking hook cannot corrupt the map or
// abort the triggering operation.
type Hooks struct {
	OnMigrated           func(oldLabel, newLabel string)
	OnCompacted          func()
	OnInvariantViolation func(detail string)
	OnWarn               func(detail string)
}

// AdaptiveMap owns exactly one active backend and, during a migration, one
// target backend. It routes every operation and decides when to migrate
// or compact after each mutating op.
type AdaptiveMap struct {
	activeKind BackendKind
	active     Table
	migration  *migrationState
	policy     Policy
	hooks      Hooks

	migrationsTotal  int
	compactionsTotal int
}

// NewAdaptiveMap constructs a map with the given starting backend kind and
// policy. Policy is validated; invalid policies return *BadConfig.
func NewAdaptiveMap(startKind BackendKind, policy Policy, hooks Hooks) (*AdaptiveMap, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	var active Table

	switch startKind {
	case BackendChained:
		active = newChainedFor(policy, 0)
	case BackendRobinHood:
		active = newRobinHoodFor(policy, 0)
	default:
		return nil, errs.New(errs.KindBadConfig, fmt.Sprintf("unknown backend kind %d", startKind))
	}

	return &AdaptiveMap{
		activeKind: startKind,
		active:     active,
		policy:     policy,
		hooks:      hooks,
	}, nil
}

// RestoreAdaptiveMap reconstructs an AdaptiveMap around an already-built
// backend table, for the snapshot codec's load path: the
// codec rebuilds the exact persisted table rather than replaying puts
// through a fresh map, so restored state matches byte-for-byte what was
// saved regardless of the current policy's migration thresholds.
func RestoreAdaptiveMap(kind BackendKind, table Table, policy Policy, hooks Hooks) (*AdaptiveMap, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	if table == nil {
		return nil, errs.New(errs.KindBadConfig, "restore table must not be nil")
	}

	if table.Kind() != kind {
		return nil, errs.New(errs.KindInvariantViolation, "restore table kind does not match declared backend kind")
	}

	return &AdaptiveMap{
		activeKind: kind,
		active:     table,
		policy:     policy,
		hooks:      hooks,
	}, nil
}

// Put drains one migration batch, writes to the migration target if
// migrating else the active backend, then runs maintenance.
func (m *AdaptiveMap) Put(key string, value []byte) error {
	m.drainBatch()

	var err error
	if m.migration != nil {
		err = m.migration.target.Put(key, value)
	} else {
		err = m.active.Put(key, value)
	}

	if err != nil {
		return err
	}

	if m.migration == nil {
		m.runMaintenance()
	}

	return nil
}

// Get drains one migration batch; if migrating, the target is consulted
// first, falling back to active on miss. A key deleted mid-migration must
// not resurrect from active's not-yet-drained copy, so the fallback is
// gated on the migration's tombstone set.
func (m *AdaptiveMap) Get(key string) ([]byte, bool) {
	m.drainBatch()

	if m.migration != nil {
		if v, ok := m.migration.target.Get(key); ok {
			return v, true
		}

		if _, deleted := m.migration.tombstoned[key]; deleted {
			return nil, false
		}
	}

	return m.active.Get(key)
}

// Delete drains one migration batch, deletes from the target if migrating
// and present there, else from active, then runs maintenance. A key already
// deleted earlier in the same migration is reported absent, as Get does,
// even though active may still hold its stale copy.
func (m *AdaptiveMap) Delete(key string) bool {
	m.drainBatch()

	if m.migration != nil {
		_, wasDeleted := m.migration.tombstoned[key]
		m.migration.tombstoned[key] = struct{}{}

		if m.migration.target.Delete(key) {
			return true
		}

		if wasDeleted {
			return false
		}
	}

	found := m.active.Delete(key)

	if m.migration == nil {
		m.runMaintenance()
	}

	return found
}

// Len reports the size of the target while a migration is in progress and
// of active otherwise. During a migration, keys not yet copied into the
// target are not counted, so the result can be lower than the number of
// live keys until the migration drains.
func (m *AdaptiveMap) Len() int {
	if m.migration != nil {
		return m.migration.target.Len()
	}

	return m.active.Len()
}

// IterEntries fully drains any pending migration, then iterates the
// promoted backend.
func (m *AdaptiveMap) IterEntries() []Entry {
	m.drainFully()

	it := m.active.Iterator()

	var entries []Entry

	for {
		e, ok := it.Next()
		if !ok {
			break
		}

		entries = append(entries, e)
	}

	return entries
}

// Drain completes any in-progress migration before returning. Required
// before snapshotting.
func (m *AdaptiveMap) Drain() {
	m.drainFully()
}

// Backend returns the current authoritative backend kind and table,
// intended for the snapshot codec (which persists only backend_label,
// backend_table, and policy_without_callbacks).
func (m *AdaptiveMap) Backend() (BackendKind, Table) {
	return m.activeKind, m.active
}

// Policy returns the active policy. Callbacks live in Hooks, not here, so
// the returned value is safe to persist.
func (m *AdaptiveMap) Policy() Policy {
	return m.policy
}

// IsMigrating reports whether a migration is currently in progress.
func (m *AdaptiveMap) IsMigrating() bool {
	return m.migration != nil
}

// Label renders the externally observed backend label: either the plain
// backend name, or "<src> -> <dst> (migrating)" while a migration is in
// progress.
func (m *AdaptiveMap) Label() string {
	if m.migration != nil {
		return fmt.Sprintf("%s -> %s (migrating)", m.activeKind, m.migration.targetKind)
	}

	return m.activeKind.String()
}

// HealthSignals reports the active backend's signals, used by the replay
// engine's per-tick sampling.
func (m *AdaptiveMap) HealthSignals() HealthSignals {
	return m.active.HealthSignals()
}

// MigrationsTotal and CompactionsTotal are cumulative counters surfaced on
// every Tick.
func (m *AdaptiveMap) MigrationsTotal() int  { return m.migrationsTotal }
func (m *AdaptiveMap) CompactionsTotal() int { return m.compactionsTotal }

// CompactNow compacts the active backend in place, firing the compaction
// hook. Returns false without compacting while a migration is in progress
// or when the active backend is chained (which never accumulates
// tombstones).
func (m *AdaptiveMap) CompactNow() bool {
	if m.migration != nil || m.activeKind != BackendRobinHood {
		return false
	}

	m.active.Compact()
	m.compactionsTotal++
	m.fireCompacted()

	return true
}

// runMaintenance evaluates the backend-switch and compaction thresholds
// after each mutating op while not currently migrating.
func (m *AdaptiveMap) runMaintenance() {
	defer m.recoverHook("maintenance")

	hs := m.active.HealthSignals()

	switch m.activeKind {
	case BackendChained:
		if hs.LoadFactor > m.policy.MaxLoadFactorChaining || hs.MaxGroupLen > m.policy.MaxGroupLen {
			m.beginMigration(BackendRobinHood)
		}
	case BackendRobinHood:
		if hs.AvgProbeEstimate > m.policy.MaxAvgProbeRobinHood {
			m.beginMigration(BackendChained)
		} else if hs.TombstoneRatio > m.policy.MaxTombstoneRatio {
			m.active.Compact()
			m.compactionsTotal++
			m.fireCompacted()
		}
	}
}

// recoverHook guards a maintenance step against a panicking hook, logging
// it as an invariant violation instead of letting it corrupt map state.
func (m *AdaptiveMap) recoverHook(where string) {
	if r := recover(); r != nil {
		m.fireInvariantViolation(fmt.Sprintf("%s hook panicked: %v", where, r))
	}
}

func (m *AdaptiveMap) fireMigrated(oldLabel, newLabel string) {
	defer m.recoverHook("on_migrated")

	if m.hooks.OnMigrated != nil {
		m.hooks.OnMigrated(oldLabel, newLabel)
	}
}

func (m *AdaptiveMap) fireCompacted() {
	defer m.recoverHook("on_compacted")

	if m.hooks.OnCompacted != nil {
		m.hooks.OnCompacted()
	}
}

func (m *AdaptiveMap) fireInvariantViolation(detail string) {
	defer func() { _ = recover() }()

	if m.hooks.OnInvariantViolation != nil {
		m.hooks.OnInvariantViolation(detail)
	}
}

func (m *AdaptiveMap) fireWarn(detail string, size int) {
	defer func() { _ = recover() }()

	if m.hooks.OnWarn != nil {
		m.hooks.OnWarn(fmt.Sprintf("%s (size=%d)", detail, size))
	}
}
