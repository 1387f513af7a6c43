// Package iofs abstracts the filesystem operations the snapshot codec and
// tick log perform, so io-error paths can be exercised with the
// fault-injecting [Chaos] implementation in place of [Real].
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths of the standard library io/fs package.
package iofs

import (
	"io"
	"os"
)

// File is the open-file surface the atomic writer and tick log need.
// Satisfied by [os.File]; implementations must behave like it, including
// returning an error from Write when the file wasn't opened for writing.
type File interface {
	io.ReadWriteCloser

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Chmod changes the mode of the file. See [os.File.Chmod].
	Chmod(mode os.FileMode) error
}

// FS is the filesystem surface this repository's on-disk artifacts
// (snapshots and tick logs, both addressed by exact path) are written and
// read through. Methods mirror their [os] equivalents.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with the given flags and permissions. See
	// [os.OpenFile]. Used for append-mode tick logging and for the
	// exclusive-create temp files of the atomic writer.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating it if necessary. See
	// [os.WriteFile] for the contract; [Real] strengthens it to an atomic
	// replace.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// Exists reports whether a file exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file. See [os.Remove].
	Remove(path string) error

	// Rename moves/renames a file. See [os.Rename].
	// Atomic on the same filesystem.
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
