package iofs

import (
	"errors"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig sets per-operation fault probabilities, each 0.0 (never) to
// 1.0 (always). The zero value injects nothing.
type ChaosConfig struct {
	// ReadFailRate fails FS.ReadFile and File.Read outright. ReadFile
	// failures look like open-phase (EACCES, ENOTDIR) or read-phase (EIO)
	// errors; File.Read always fails with EIO and n==0, matching
	// os.File.Read's shape on a syscall error.
	ReadFailRate float64

	// WriteFailRate fails File.Write outright: zero bytes written, an
	// errno-style error (EIO, ENOSPC, EDQUOT, EROFS).
	WriteFailRate float64

	// PartialWriteRate makes File.Write land only a prefix of the data
	// before failing, returning n > 0 alongside the error. The atomic
	// writer must treat this as a discarded temp file, never a published
	// snapshot.
	PartialWriteRate float64

	// ShortWriteRate is the fraction of partial writes that report
	// io.ErrShortWrite instead of an errno, modeling a write that stopped
	// early without a syscall error.
	ShortWriteRate float64

	// SyncFailRate fails File.Sync (EIO, ENOSPC). fsync is where delayed
	// write errors surface, so the atomic writer must fail the whole
	// publish when it errors.
	SyncFailRate float64

	// RenameFailRate fails FS.Rename with an *os.LinkError (EACCES, EIO,
	// EXDEV, EROFS). A failed rename must leave the original target
	// untouched and loadable.
	RenameFailRate float64

	// StatFailRate fails FS.Exists (EACCES, EIO).
	StatFailRate float64
}

// ChaosStats counts injected faults, for asserting that a test's
// configured rates actually fired.
type ChaosStats struct {
	ReadFails     int64
	WriteFails    int64
	PartialWrites int64
	SyncFails     int64
	RenameFails   int64
	StatFails     int64
}

// chaosError marks an error as injected. It wraps an *fs.PathError or
// *os.LinkError carrying a real syscall.Errno, so errors.Is and helpers
// like os.IsPermission classify it exactly like a genuine OS failure.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string { return "chaos: " + e.Err.Error() }
func (e *chaosError) Unwrap() error { return e.Err }

// IsChaosErr reports whether err (or anything it wraps) was injected by
// [Chaos]. Returns false for nil.
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and randomly injects the failures the snapshot
// codec and tick log must survive: failed or partial writes, failed
// fsyncs, failed renames, and read/stat errors.
//
// Chaos decides independently per call; there is no per-path sticky
// state. It never injects ENOENT (a missing-file result must come from
// the wrapped FS, not be manufactured) and never returns impossible
// shapes like n > len(data). Operations without a configured rate pass
// through untouched.
type Chaos struct {
	fs      FS
	config  ChaosConfig
	enabled atomic.Bool

	mu    sync.Mutex
	rng   *rand.Rand
	stats ChaosStats
}

// NewChaos wraps underlying with fault injection seeded for
// reproducibility. Injection starts enabled. Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config *ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	c := &Chaos{
		fs:     underlying,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		config: *config,
	}
	c.enabled.Store(true)

	return c
}

// SetEnabled toggles injection. While disabled every operation passes
// straight through to the wrapped FS. Safe to call concurrently with
// filesystem operations.
func (c *Chaos) SetEnabled(on bool) { c.enabled.Store(on) }

// Stats returns a copy of the fault counters.
func (c *Chaos) Stats() ChaosStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

func (c *Chaos) roll(rate float64) bool {
	if !c.enabled.Load() || rate <= 0 {
		return false
	}

	c.mu.Lock()
	hit := c.rng.Float64() < rate
	c.mu.Unlock()

	return hit
}

func (c *Chaos) pick(errnos ...syscall.Errno) syscall.Errno {
	c.mu.Lock()
	e := errnos[c.rng.IntN(len(errnos))]
	c.mu.Unlock()

	return e
}

func (c *Chaos) intn(n int) int {
	c.mu.Lock()
	v := c.rng.IntN(n)
	c.mu.Unlock()

	return v
}

func (c *Chaos) count(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

func injectedPathError(op, path string, errno syscall.Errno) error {
	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// Open passes through; read faults are injected on the returned handle.
func (c *Chaos) Open(path string) (File, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

// OpenFile passes through; read/write/sync faults are injected on the
// returned handle.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

// ReadFile reads path, failing with ReadFailRate. An injected failure is
// either an open-phase error or a read-phase EIO, mirroring the two ways
// os.ReadFile can fail.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if c.roll(c.config.ReadFailRate) {
		c.count(&c.stats.ReadFails)

		if c.intn(2) == 0 {
			return nil, injectedPathError("open", path, c.pick(syscall.EACCES, syscall.ENOTDIR))
		}

		return nil, injectedPathError("read", path, syscall.EIO)
	}

	return c.fs.ReadFile(path)
}

// WriteFile writes via OpenFile+Write+Close so write faults flow through
// the same handle-level injection the atomic writer sees.
func (c *Chaos) WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := c.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}

// Exists reports existence, failing with StatFailRate.
func (c *Chaos) Exists(path string) (bool, error) {
	if c.roll(c.config.StatFailRate) {
		c.count(&c.stats.StatFails)

		return false, injectedPathError("stat", path, c.pick(syscall.EACCES, syscall.EIO))
	}

	return c.fs.Exists(path)
}

// Remove passes through.
func (c *Chaos) Remove(path string) error {
	return c.fs.Remove(path)
}

// Rename fails with RenameFailRate, as an *os.LinkError the way
// os.Rename fails; the underlying rename is not attempted, so the old
// target stays in place.
func (c *Chaos) Rename(oldpath, newpath string) error {
	if c.roll(c.config.RenameFailRate) {
		c.count(&c.stats.RenameFails)
		errno := c.pick(syscall.EACCES, syscall.EIO, syscall.EXDEV, syscall.EROFS)

		return &chaosError{Err: &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errno}}
	}

	return c.fs.Rename(oldpath, newpath)
}

var _ FS = (*Chaos)(nil)

// chaosFile injects read, write, and sync faults on an open handle.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

var _ File = (*chaosFile)(nil)

func (cf *chaosFile) Read(buf []byte) (int, error) {
	if cf.chaos.roll(cf.chaos.config.ReadFailRate) {
		cf.chaos.count(&cf.chaos.stats.ReadFails)

		return 0, injectedPathError("read", cf.path, syscall.EIO)
	}

	return cf.f.Read(buf)
}

func (cf *chaosFile) Write(data []byte) (int, error) {
	c := cf.chaos

	if c.roll(c.config.WriteFailRate) {
		c.count(&c.stats.WriteFails)

		return 0, injectedPathError("write", cf.path,
			c.pick(syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	if c.roll(c.config.PartialWriteRate) && len(data) > 1 {
		c.count(&c.stats.PartialWrites)
		cutoff := c.intn(len(data)-1) + 1 // land at least one byte, never all

		wrote, err := cf.f.Write(data[:cutoff])
		if err != nil {
			return wrote, err
		}

		if c.roll(c.config.ShortWriteRate) {
			return wrote, &chaosError{Err: io.ErrShortWrite}
		}

		return wrote, injectedPathError("write", cf.path,
			c.pick(syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	return cf.f.Write(data)
}

// Close always closes the underlying file; injecting close failures would
// leak descriptors across a test run.
func (cf *chaosFile) Close() error {
	return cf.f.Close()
}

func (cf *chaosFile) Sync() error {
	c := cf.chaos

	if c.roll(c.config.SyncFailRate) {
		c.count(&c.stats.SyncFails)

		return injectedPathError("sync", cf.path, c.pick(syscall.EIO, syscall.ENOSPC))
	}

	return cf.f.Sync()
}

func (cf *chaosFile) Chmod(mode os.FileMode) error {
	return cf.f.Chmod(mode)
}
