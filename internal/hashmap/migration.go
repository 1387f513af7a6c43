package hashmap

// migrationState holds the resumable incremental migration:
// Stable -> Migrating -> Stable.
//
// entries is a snapshot of the active backend taken at beginMigration, not a
// live iterator: Delete during migration mutates active's backing storage
// directly (swap-pop on ChainedTable, tombstoning on RobinHoodTable), and a
// live iterator positioned into that storage would skip or revisit entries
// as it shifts. tombstoned records keys deleted mid-migration so a later
// drain of their now-stale snapshot entry does not resurrect them.
type migrationState struct {
	targetKind BackendKind
	target     Table
	entries    []Entry
	cursor     int
	tombstoned map[string]struct{}
}

// newChainedFor builds a fresh ChainedTable sized per policy, for use as a
// migration target or initial backend. Shape is always valid (constructed
// from validated Policy), so the constructor error is discarded here.
func newChainedFor(policy Policy, minSize int) *ChainedTable {
	buckets := policy.SeedChained.Buckets
	if want := nextPowerOfTwo(uint64(minSize)); want > buckets {
		buckets = want
	}

	t, _ := NewChainedTable(buckets, policy.SeedChained.GroupsPerBucket)

	return t
}

func newRobinHoodFor(policy Policy, minSize int) *RobinHoodTable {
	capacity := policy.SeedRobinHoodCapacity
	if want := nextPowerOfTwo(uint64(minSize)); want > capacity {
		capacity = want
	}

	t, _ := NewRobinHoodTable(capacity)

	return t
}

// beginMigration allocates the target backend and a cursor over the
// current active table, and fires a warning event when the map is large
// enough that the migration will be noticeable.
func (m *AdaptiveMap) beginMigration(targetKind BackendKind) {
	size := m.active.Len()

	var target Table

	switch targetKind {
	case BackendChained:
		target = newChainedFor(m.policy, size)
	case BackendRobinHood:
		target = newRobinHoodFor(m.policy, size)
	}

	it := m.active.Iterator()

	entries := make([]Entry, 0, size)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}

		entries = append(entries, e)
	}

	m.migration = &migrationState{
		targetKind: targetKind,
		target:     target,
		entries:    entries,
		tombstoned: make(map[string]struct{}),
	}

	if size >= m.policy.LargeMapWarnThreshold {
		m.fireWarn("migration starting on large map", size)
	}
}

// drainBatch advances the migration cursor by at most IncrementalBatch
// snapshot entries, copying each into the target unless it was deleted
// mid-migration or already superseded by a direct Put against the target.
// If the snapshot is exhausted, it promotes the target to active. A copy
// failure aborts the migration cleanly: the partially populated target is
// discarded and active remains authoritative.
func (m *AdaptiveMap) drainBatch() {
	if m.migration == nil {
		return
	}

	moved := 0

	for moved < m.policy.IncrementalBatch {
		if m.migration.cursor >= len(m.migration.entries) {
			m.promoteMigration()

			return
		}

		entry := m.migration.entries[m.migration.cursor]
		m.migration.cursor++
		moved++

		if _, deleted := m.migration.tombstoned[entry.Key]; deleted {
			continue
		}

		if _, exists := m.migration.target.Get(entry.Key); exists {
			continue
		}

		if err := m.migration.target.Put(entry.Key, entry.Value); err != nil {
			m.fireInvariantViolation("migration drain aborted: " + err.Error())
			m.migration = nil

			return
		}
	}
}

// promoteMigration replaces active with the fully-drained target and fires
// the migrated hook with the old/new labels.
func (m *AdaptiveMap) promoteMigration() {
	oldLabel := m.activeKind.String()
	newLabel := m.migration.targetKind.String()

	m.active = m.migration.target
	m.activeKind = m.migration.targetKind
	m.migration = nil
	m.migrationsTotal++

	m.fireMigrated(oldLabel, newLabel)
}

// drainFully repeatedly drains until no migration is pending. Used by
// Drain(), IterEntries(), and the snapshot codec's drain-before-save step.
func (m *AdaptiveMap) drainFully() {
	for m.migration != nil {
		m.drainBatch()
	}
}
