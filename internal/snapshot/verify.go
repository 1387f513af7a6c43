package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/hashmap"
	"github.com/adhash-engine/adhash/internal/iofs"
)

// Report is the result of running the post-load invariant verifier against
// a loaded snapshot.
type Report struct {
	Kind       string
	Backend    string // set when Kind == "adaptive_map"
	Consistent bool
	Detail     string
	Repaired   bool
}

// VerifyChainedTable recomputes the live entry count by summing every
// group's length and compares it to the table's reported size.
func VerifyChainedTable(t *hashmap.ChainedTable) Report {
	counted := countEntries(t)

	if counted != t.Len() {
		return Report{
			Kind:   "chained_table",
			Detail: fmt.Sprintf("counted %d live entries but size reports %d", counted, t.Len()),
		}
	}

	return Report{Kind: "chained_table", Consistent: true, Detail: "size matches entry count"}
}

// VerifyRobinHoodTable checks size+tombstones <= capacity and recounts
// occupied slots via iteration against the reported size.
func VerifyRobinHoodTable(t *hashmap.RobinHoodTable) Report {
	counted := countEntries(t)

	if uint64(t.Len())+t.Tombstones() > t.Capacity() {
		return Report{
			Kind:   "robinhood_table",
			Detail: fmt.Sprintf("size(%d) + tombstones(%d) exceeds capacity(%d)", t.Len(), t.Tombstones(), t.Capacity()),
		}
	}

	if counted != t.Len() {
		return Report{
			Kind:   "robinhood_table",
			Detail: fmt.Sprintf("counted %d occupied slots but size reports %d", counted, t.Len()),
		}
	}

	return Report{Kind: "robinhood_table", Consistent: true, Detail: "size and tombstone accounting are consistent"}
}

// VerifyAdaptiveMap drains m, then applies the backend-appropriate check
// above to the inner promoted backend.
func VerifyAdaptiveMap(m *hashmap.AdaptiveMap) Report {
	m.Drain()

	kind, table := m.Backend()

	var inner Report

	switch kind {
	case hashmap.BackendChained:
		inner = VerifyChainedTable(table.(*hashmap.ChainedTable))
	case hashmap.BackendRobinHood:
		inner = VerifyRobinHoodTable(table.(*hashmap.RobinHoodTable))
	default:
		inner = Report{Detail: "adaptive map carries an unrecognized backend kind"}
	}

	inner.Kind = "adaptive_map"
	inner.Backend = kind.String()

	return inner
}

func countEntries(t hashmap.Table) int {
	it := t.Iterator()

	count := 0

	for {
		_, ok := it.Next()
		if !ok {
			break
		}

		count++
	}

	return count
}

// VerifyFile loads whichever map variant path contains and runs the
// matching verifier against it, without mutating the file.
func VerifyFile(fsys iofs.FS, path string, opts Options) (Report, error) {
	env, err := readEnvelope(fsys, path, opts)
	if err != nil {
		return Report{}, err
	}

	switch env.Tag {
	case TagChainedTable:
		var p chainedTablePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Report{}, errs.New(errs.KindInvariantViolation, "malformed chained table payload", errs.Cause(err))
		}

		ct, err := rebuildChainedTable(p)
		if err != nil {
			return Report{}, err
		}

		return VerifyChainedTable(ct), nil

	case TagRobinHoodTable:
		var p robinHoodTablePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Report{}, errs.New(errs.KindInvariantViolation, "malformed robinhood table payload", errs.Cause(err))
		}

		rh, err := rebuildRobinHoodTable(p)
		if err != nil {
			return Report{}, err
		}

		return VerifyRobinHoodTable(rh), nil

	case TagAdaptiveMap:
		m, err := LoadAdaptiveMap(fsys, path, hashmap.Hooks{}, opts)
		if err != nil {
			return Report{}, err
		}

		return VerifyAdaptiveMap(m), nil

	default:
		return Report{}, errs.New(errs.KindInvariantViolation, "snapshot carries an unrecognized tag")
	}
}

// RepairRobinHoodFile is the safe-repair path: given a snapshot that
// carries a Robin Hood table (directly or inside an AdaptiveMap), compact
// it, rewrite the snapshot at the same path, and re-verify. Chained
// tables are reported but never mutated; their violations have no single
// mechanical fix, and only Robin Hood tombstones are safely purgeable in
// place.
func RepairRobinHoodFile(fsys iofs.FS, path string, opts Options) (Report, error) {
	env, err := readEnvelope(fsys, path, opts)
	if err != nil {
		return Report{}, err
	}

	switch env.Tag {
	case TagRobinHoodTable:
		var p robinHoodTablePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Report{}, errs.New(errs.KindInvariantViolation, "malformed robinhood table payload", errs.Cause(err))
		}

		rh, err := rebuildRobinHoodTable(p)
		if err != nil {
			return Report{}, err
		}

		rh.Compact()

		if err := SaveRobinHoodTable(fsys, path, rh, opts); err != nil {
			return Report{}, err
		}

		report := VerifyRobinHoodTable(rh)
		report.Repaired = true

		return report, nil

	case TagAdaptiveMap:
		m, err := LoadAdaptiveMap(fsys, path, hashmap.Hooks{}, opts)
		if err != nil {
			return Report{}, err
		}

		kind, table := m.Backend()
		if kind != hashmap.BackendRobinHood {
			return Report{}, errs.New(errs.KindPolicyViolation, "snapshot's active backend is chained, repair only applies to robinhood", errs.Hint("verify without --repair; chained tables are not mutated by repair"))
		}

		table.(*hashmap.RobinHoodTable).Compact()

		if err := SaveAdaptiveMap(fsys, path, m, opts); err != nil {
			return Report{}, err
		}

		report := VerifyAdaptiveMap(m)
		report.Repaired = true

		return report, nil

	case TagChainedTable:
		return Report{}, errs.New(errs.KindPolicyViolation, "snapshot contains a chained-only table, repair is not applicable", errs.Hint("chained tables are reported but not mutated; no action needed"))

	default:
		return Report{}, errs.New(errs.KindInvariantViolation, "snapshot carries an unrecognized tag")
	}
}
