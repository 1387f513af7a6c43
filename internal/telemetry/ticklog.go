package telemetry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/iofs"
	"github.com/adhash-engine/adhash/internal/replay"
)

// TickLog appends newline-delimited JSON tick records to a file. With
// RetentionCount > 0, each emission rewrites the file to contain only
// the last N ticks; with RetentionCount == 0 the file is pure
// append-only.
type TickLog struct {
	fsys           iofs.FS
	path           string
	retentionCount int

	buffered []replay.Tick // only populated when retentionCount > 0
}

// NewTickLog prepares a tick log at path; the file itself is created by the
// first Append. With retentionCount > 0, ticks already in an existing file
// seed the retention window. retentionCount <= 0 means append-only.
func NewTickLog(fsys iofs.FS, path string, retentionCount int) (*TickLog, error) {
	tl := &TickLog{fsys: fsys, path: path, retentionCount: retentionCount}

	if retentionCount > 0 {
		existing, err := readExistingTicks(fsys, path)
		if err != nil {
			return nil, err
		}

		tl.buffered = existing
	}

	return tl, nil
}

// Append writes one tick to the log: in append-only mode, as a single
// newline-terminated JSON line appended to the file; in retention mode, by
// rewriting the whole file with the trailing window atomically.
func (tl *TickLog) Append(t replay.Tick) error {
	if tl.retentionCount > 0 {
		tl.buffered = append(tl.buffered, t)
		if len(tl.buffered) > tl.retentionCount {
			tl.buffered = tl.buffered[len(tl.buffered)-tl.retentionCount:]
		}

		return tl.rewrite()
	}

	return tl.appendLine(t)
}

func (tl *TickLog) appendLine(t replay.Tick) error {
	line, err := json.Marshal(t)
	if err != nil {
		return errs.New(errs.KindIoError, "encode tick", errs.Cause(err))
	}

	line = append(line, '\n')

	f, err := tl.fsys.OpenFile(tl.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.KindIoError, "open tick log", errs.Cause(err))
	}

	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return errs.New(errs.KindIoError, "append tick log", errs.Cause(err))
	}

	return nil
}

// rewrite replaces the tick log's entire contents with the buffered
// retention window, atomically (temp file + rename, matching the snapshot
// codec's write path).
func (tl *TickLog) rewrite() error {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	for _, t := range tl.buffered {
		if err := enc.Encode(t); err != nil {
			return errs.New(errs.KindIoError, "encode tick log", errs.Cause(err))
		}
	}

	writer := iofs.NewAtomicWriter(tl.fsys)
	if err := writer.Write(tl.path, bytes.NewReader(buf.Bytes())); err != nil {
		return errs.New(errs.KindIoError, "rewrite tick log", errs.Cause(err))
	}

	return nil
}

func readExistingTicks(fsys iofs.FS, path string) ([]replay.Tick, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, errs.New(errs.KindIoError, "stat tick log", errs.Cause(err))
	}

	if !exists {
		return nil, nil
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, errs.New(errs.KindIoError, "open tick log", errs.Cause(err))
	}

	defer f.Close()

	var ticks []replay.Tick

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var t replay.Tick
		if err := json.Unmarshal(line, &t); err != nil {
			return nil, errs.New(errs.KindIoError, "parse tick log line", errs.Cause(err))
		}

		ticks = append(ticks, t)
	}

	if err := scanner.Err(); err != nil {
		return nil, errs.New(errs.KindIoError, "scan tick log", errs.Cause(err))
	}

	return ticks, nil
}
