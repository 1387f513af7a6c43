package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/hashmap"
	"github.com/adhash-engine/adhash/internal/iofs"
)

// Options configures one Save or Load call.
type Options struct {
	// Gzip compresses the payload before checksumming, on Save.
	Gzip bool
	// MaxPayloadBytes ceilings the declared payload length on Load;
	// 0 disables the check.
	MaxPayloadBytes int64
}

// SaveChainedTable writes t to path as a versioned, checksummed snapshot.
func SaveChainedTable(fsys iofs.FS, path string, t *hashmap.ChainedTable, opts Options) error {
	buckets, groups := t.Shape()

	data, err := json.Marshal(chainedTablePayload{
		Buckets:         buckets,
		GroupsPerBucket: groups,
		Entries:         entriesToRecords(iterAll(t)),
	})
	if err != nil {
		return errs.New(errs.KindIoError, "encode chained table payload", errs.Cause(err))
	}

	return writeEnvelope(fsys, path, TagChainedTable, data, opts)
}

// SaveRobinHoodTable writes t to path as a versioned, checksummed snapshot.
func SaveRobinHoodTable(fsys iofs.FS, path string, t *hashmap.RobinHoodTable, opts Options) error {
	data, err := json.Marshal(robinHoodTablePayload{
		Capacity: t.Capacity(),
		Entries:  entriesToRecords(iterAll(t)),
	})
	if err != nil {
		return errs.New(errs.KindIoError, "encode robinhood table payload", errs.Cause(err))
	}

	return writeEnvelope(fsys, path, TagRobinHoodTable, data, opts)
}

// SaveAdaptiveMap drains m, collapsing any in-flight migration, then
// writes the promoted backend plus policy to path as a versioned,
// checksummed snapshot.
func SaveAdaptiveMap(fsys iofs.FS, path string, m *hashmap.AdaptiveMap, opts Options) error {
	m.Drain()

	kind, table := m.Backend()

	var (
		backendTag Tag
		backendRaw []byte
		err        error
	)

	switch kind {
	case hashmap.BackendChained:
		ct := table.(*hashmap.ChainedTable)
		buckets, groups := ct.Shape()
		backendTag = TagChainedTable
		backendRaw, err = json.Marshal(chainedTablePayload{
			Buckets:         buckets,
			GroupsPerBucket: groups,
			Entries:         entriesToRecords(iterAll(ct)),
		})
	case hashmap.BackendRobinHood:
		rh := table.(*hashmap.RobinHoodTable)
		backendTag = TagRobinHoodTable
		backendRaw, err = json.Marshal(robinHoodTablePayload{
			Capacity: rh.Capacity(),
			Entries:  entriesToRecords(iterAll(rh)),
		})
	default:
		return errs.New(errs.KindInvariantViolation, "adaptive map carries an unrecognized backend kind")
	}

	if err != nil {
		return errs.New(errs.KindIoError, "encode adaptive map backend payload", errs.Cause(err))
	}

	data, err := json.Marshal(adaptiveMapPayload{
		Policy:     policyToRecord(m.Policy()),
		Backend:    backendTag,
		BackendRaw: backendRaw,
	})
	if err != nil {
		return errs.New(errs.KindIoError, "encode adaptive map payload", errs.Cause(err))
	}

	return writeEnvelope(fsys, path, TagAdaptiveMap, data, opts)
}

// LoadChainedTable reads and verifies a snapshot written by
// SaveChainedTable.
func LoadChainedTable(fsys iofs.FS, path string, opts Options) (*hashmap.ChainedTable, error) {
	env, err := readEnvelope(fsys, path, opts)
	if err != nil {
		return nil, err
	}

	if env.Tag != TagChainedTable {
		return nil, errs.New(errs.KindInvariantViolation, "snapshot does not contain a chained table")
	}

	var p chainedTablePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, errs.New(errs.KindInvariantViolation, "malformed chained table payload", errs.Cause(err))
	}

	return rebuildChainedTable(p)
}

// LoadRobinHoodTable reads and verifies a snapshot written by
// SaveRobinHoodTable.
func LoadRobinHoodTable(fsys iofs.FS, path string, opts Options) (*hashmap.RobinHoodTable, error) {
	env, err := readEnvelope(fsys, path, opts)
	if err != nil {
		return nil, err
	}

	if env.Tag != TagRobinHoodTable {
		return nil, errs.New(errs.KindInvariantViolation, "snapshot does not contain a robinhood table")
	}

	var p robinHoodTablePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, errs.New(errs.KindInvariantViolation, "malformed robinhood table payload", errs.Cause(err))
	}

	return rebuildRobinHoodTable(p)
}

// LoadAdaptiveMap reads and verifies a snapshot written by SaveAdaptiveMap,
// reconstructing the exact persisted backend via
// hashmap.RestoreAdaptiveMap.
func LoadAdaptiveMap(fsys iofs.FS, path string, hooks hashmap.Hooks, opts Options) (*hashmap.AdaptiveMap, error) {
	env, err := readEnvelope(fsys, path, opts)
	if err != nil {
		return nil, err
	}

	if env.Tag != TagAdaptiveMap {
		return nil, errs.New(errs.KindInvariantViolation, "snapshot does not contain an adaptive map")
	}

	var p adaptiveMapPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, errs.New(errs.KindInvariantViolation, "malformed adaptive map payload", errs.Cause(err))
	}

	var (
		kind  hashmap.BackendKind
		table hashmap.Table
	)

	switch p.Backend {
	case TagChainedTable:
		var ct chainedTablePayload
		if err := json.Unmarshal(p.BackendRaw, &ct); err != nil {
			return nil, errs.New(errs.KindInvariantViolation, "malformed adaptive map backend payload", errs.Cause(err))
		}

		restored, err := rebuildChainedTable(ct)
		if err != nil {
			return nil, err
		}

		kind, table = hashmap.BackendChained, restored
	case TagRobinHoodTable:
		var rh robinHoodTablePayload
		if err := json.Unmarshal(p.BackendRaw, &rh); err != nil {
			return nil, errs.New(errs.KindInvariantViolation, "malformed adaptive map backend payload", errs.Cause(err))
		}

		restored, err := rebuildRobinHoodTable(rh)
		if err != nil {
			return nil, err
		}

		kind, table = hashmap.BackendRobinHood, restored
	default:
		return nil, errs.New(errs.KindInvariantViolation, "adaptive map snapshot carries an unrecognized backend tag")
	}

	policy := recordToPolicy(p.Policy)

	return hashmap.RestoreAdaptiveMap(kind, table, policy, hooks)
}

func rebuildChainedTable(p chainedTablePayload) (*hashmap.ChainedTable, error) {
	t, err := hashmap.NewChainedTable(p.Buckets, p.GroupsPerBucket)
	if err != nil {
		return nil, errs.New(errs.KindInvariantViolation, "snapshot chained table shape is invalid", errs.Cause(err))
	}

	for _, e := range p.Entries {
		if err := t.Put(e.Key, e.Value); err != nil {
			return nil, errs.New(errs.KindInvariantViolation, "failed to replay chained table entry from snapshot", errs.Cause(err))
		}
	}

	return t, nil
}

func rebuildRobinHoodTable(p robinHoodTablePayload) (*hashmap.RobinHoodTable, error) {
	t, err := hashmap.NewRobinHoodTable(p.Capacity)
	if err != nil {
		return nil, errs.New(errs.KindInvariantViolation, "snapshot robinhood table capacity is invalid", errs.Cause(err))
	}

	for _, e := range p.Entries {
		if err := t.Put(e.Key, e.Value); err != nil {
			return nil, errs.New(errs.KindInvariantViolation, "failed to replay robinhood table entry from snapshot", errs.Cause(err))
		}
	}

	return t, nil
}

func iterAll(t hashmap.Table) []hashmap.Entry {
	it := t.Iterator()

	var entries []hashmap.Entry

	for {
		e, ok := it.Next()
		if !ok {
			break
		}

		entries = append(entries, e)
	}

	return entries
}

// writeEnvelope wraps payload in its tagged envelope, frames it with the
// fixed header and BLAKE2b-256 checksum, and writes the whole blob
// atomically so no reader ever observes a partial snapshot.
func writeEnvelope(fsys iofs.FS, path string, tag Tag, data []byte, opts Options) error {
	raw, err := json.Marshal(envelope{Tag: tag, Data: data})
	if err != nil {
		return errs.New(errs.KindIoError, "encode snapshot envelope", errs.Cause(err))
	}

	payload := raw

	var flags uint8

	if opts.Gzip {
		var buf bytes.Buffer

		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(raw); err != nil {
			return errs.New(errs.KindIoError, "gzip snapshot payload", errs.Cause(err))
		}

		if err := gw.Close(); err != nil {
			return errs.New(errs.KindIoError, "gzip snapshot payload", errs.Cause(err))
		}

		payload = buf.Bytes()
		flags |= FlagGzip
	}

	checksum := blake2b.Sum256(payload)

	header := encodeHeader(Header{
		Version:        Version,
		Flags:          flags,
		ChecksumLength: ChecksumLength,
		PayloadLength:  uint64(len(payload)),
	})

	full := make([]byte, 0, len(header)+len(checksum)+len(payload))
	full = append(full, header...)
	full = append(full, checksum[:]...)
	full = append(full, payload...)

	writer := iofs.NewAtomicWriter(fsys)
	if err := writer.Write(path, bytes.NewReader(full)); err != nil {
		return errs.New(errs.KindIoError, "write snapshot file", errs.Cause(err))
	}

	return nil
}

// readEnvelope validates the header and checksum, then
// decompresses if flagged and decodes the tagged envelope.
func readEnvelope(fsys iofs.FS, path string, opts Options) (envelope, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return envelope{}, errs.New(errs.KindIoError, "read snapshot file", errs.Cause(err))
	}

	if len(raw) < HeaderLength {
		return envelope{}, errs.New(errs.KindInvariantViolation, "snapshot file truncated")
	}

	header, err := decodeHeader(raw[:HeaderLength], opts.MaxPayloadBytes)
	if err != nil {
		return envelope{}, err
	}

	rest := raw[HeaderLength:]
	if uint64(len(rest)) < uint64(header.ChecksumLength) {
		return envelope{}, errs.New(errs.KindInvariantViolation, "snapshot checksum truncated")
	}

	checksum := rest[:header.ChecksumLength]
	payload := rest[header.ChecksumLength:]

	if uint64(len(payload)) != header.PayloadLength {
		return envelope{}, errs.New(errs.KindInvariantViolation, "snapshot payload length does not match header")
	}

	want := blake2b.Sum256(payload)
	if !bytes.Equal(checksum, want[:]) {
		return envelope{}, errs.New(errs.KindInvariantViolation, "snapshot checksum mismatch, file is corrupt")
	}

	raw = payload

	if header.Gzip() {
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return envelope{}, errs.New(errs.KindInvariantViolation, "snapshot payload is not valid gzip", errs.Cause(err))
		}

		defer gr.Close()

		decompressed, err := io.ReadAll(gr)
		if err != nil {
			return envelope{}, errs.New(errs.KindInvariantViolation, "failed to decompress snapshot payload", errs.Cause(err))
		}

		raw = decompressed
	}

	return decodeEnvelope(raw)
}
