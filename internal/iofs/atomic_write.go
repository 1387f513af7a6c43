package iofs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrDirSync indicates the parent directory could not be synced after the
// rename. The new file is in place but its directory entry's durability is
// not guaranteed. Detect with errors.Is(err, ErrDirSync).
var ErrDirSync = errors.New("sync parent directory")

// snapshotFileMode is the permission every atomically written artifact
// (snapshot, rewritten tick log) lands with.
const snapshotFileMode os.FileMode = 0o644

// AtomicWriter replaces files atomically through an injected [FS]: the
// content is streamed into a hidden temp file in the target's directory,
// fsynced, renamed over the target, and the directory is fsynced. A reader
// of the target path sees either the old content or the new, never a
// partial write. Going through [FS] (rather than the OS directly) is what
// lets tests interpose [Chaos] on every step, including the final rename.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter creates an AtomicWriter over fsys. Panics if fsys is nil.
func NewAtomicWriter(fsys FS) *AtomicWriter {
	if fsys == nil {
		panic("fsys is nil")
	}

	return &AtomicWriter{fs: fsys}
}

// tempSeq distinguishes concurrent temp files in the same directory.
var tempSeq atomic.Uint64

const tempCreateAttempts = 10000

// Write atomically replaces path with the contents of r.
//
// On any failure before the rename lands, the target is untouched and the
// temp file is removed best-effort. If only the final directory sync
// fails, the new file is in place and the error satisfies
// errors.Is(err, ErrDirSync).
func (w *AtomicWriter) Write(path string, r io.Reader) error {
	if r == nil {
		panic("reader is nil")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == "." || base == string(os.PathSeparator) {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	tmp, tmpPath, err := w.createTemp(dir, base)
	if err != nil {
		return err
	}

	discard := func() {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpPath)
	}

	if err := w.fillTemp(tmp, tmpPath, r); err != nil {
		discard()

		return err
	}

	if err := tmp.Close(); err != nil {
		discard()

		return fmt.Errorf("close temp file %q: %w", tmpPath, err)
	}

	if err := w.fs.Rename(tmpPath, path); err != nil {
		discard()

		return fmt.Errorf("rename %q over %q: %w", tmpPath, path, err)
	}

	return w.syncDir(dir)
}

// createTemp opens an exclusive hidden temp file next to the target so the
// rename never crosses a filesystem boundary.
func (w *AtomicWriter) createTemp(dir, base string) (File, string, error) {
	for range tempCreateAttempts {
		candidate := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, tempSeq.Add(1)))

		f, err := w.fs.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, snapshotFileMode)
		if err == nil {
			return f, candidate, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file names in %q", dir)
}

// fillTemp streams r into the temp file, pins its mode (O_CREATE perm is
// subject to umask), and fsyncs it so the later rename publishes fully
// durable content.
func (w *AtomicWriter) fillTemp(tmp File, tmpPath string, r io.Reader) error {
	if err := tmp.Chmod(snapshotFileMode); err != nil {
		return fmt.Errorf("chmod temp file %q: %w", tmpPath, err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("write temp file %q: %w", tmpPath, err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file %q: %w", tmpPath, err)
	}

	return nil
}

// syncDir fsyncs the directory so the rename itself is durable.
func (w *AtomicWriter) syncDir(dir string) error {
	d, err := w.fs.Open(dir)
	if err != nil {
		return errors.Join(ErrDirSync, fmt.Errorf("open dir %q: %w", dir, err))
	}

	syncErr := d.Sync()
	closeErr := d.Close()

	if syncErr != nil {
		return errors.Join(ErrDirSync, fmt.Errorf("%q: %w", dir, syncErr), closeErr)
	}

	if closeErr != nil {
		return errors.Join(ErrDirSync, fmt.Errorf("close dir %q: %w", dir, closeErr))
	}

	return nil
}
