package iofs

import (
	"bytes"
	"os"

	"github.com/natefinch/atomic"
)

// Real implements [FS] against the real filesystem. All methods are
// passthroughs to the [os] package except [Real.WriteFile], which replaces
// the target atomically, and [Real.Exists], which folds [os.Stat] into a
// bool.
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

func (r *Real) Open(path string) (File, error) {
	return os.Open(path)
}

func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (r *Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to path via a temp file and rename, so no reader
// ever observes a partially written file. This path talks to the OS
// directly and is not interceptable by [Chaos]; code whose io-fault
// behavior is under test writes through [AtomicWriter] with an injected
// [FS] instead.
func (r *Real) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return err
	}

	return os.Chmod(path, perm)
}

// Exists reports whether path exists. Returns (true, nil) if it does,
// (false, nil) if it does not, (false, err) for any other stat failure.
func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

func (r *Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
