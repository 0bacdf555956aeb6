package engine

import (
	"errors"
	"fmt"
)

// Errno is the signed error taxonomy shared with the block-storage engine.
// The zero value means success; failures are negative, with magnitudes
// matching the engine's on-wire codes so they can cross the boundary without
// translation.
type Errno int32

const (
	// ErrIO is an error during device operation.
	ErrIO Errno = -5
	// ErrCorrupt means the on-flash structures failed validation.
	ErrCorrupt Errno = -84
	// ErrNoEnt means no directory entry was found.
	ErrNoEnt Errno = -2
	// ErrExist means the entry already exists.
	ErrExist Errno = -17
	// ErrNotDir means the entry is not a directory.
	ErrNotDir Errno = -20
	// ErrIsDir means the entry is a directory.
	ErrIsDir Errno = -21
	// ErrNotEmpty means the directory is not empty.
	ErrNotEmpty Errno = -39
	// ErrBadFile means a bad file descriptor or handle.
	ErrBadFile Errno = -9
	// ErrTooBig means the file is too large.
	ErrTooBig Errno = -27
	// ErrInval means an invalid parameter.
	ErrInval Errno = -22
	// ErrNoSpace means no space left on device.
	ErrNoSpace Errno = -28
	// ErrNoMem means no more memory available.
	ErrNoMem Errno = -12
	// ErrNoAttr means no attribute with the requested id exists.
	ErrNoAttr Errno = -61
	// ErrNameTooLong means a file name is too long.
	ErrNameTooLong Errno = -36

	// ErrBusy is raised by the dispatch layer, not the engine: the target of
	// an unlink or rename currently has an open descriptor.
	ErrBusy Errno = -16
)

var errnoNames = map[Errno]string{
	ErrIO:          "input/output error",
	ErrCorrupt:     "filesystem corrupted",
	ErrNoEnt:       "no such file or directory",
	ErrExist:       "file already exists",
	ErrNotDir:      "not a directory",
	ErrIsDir:       "is a directory",
	ErrNotEmpty:    "directory not empty",
	ErrBadFile:     "bad file descriptor",
	ErrTooBig:      "file too large",
	ErrInval:       "invalid argument",
	ErrNoSpace:     "no space left on device",
	ErrNoMem:       "out of memory",
	ErrNoAttr:      "no such attribute",
	ErrNameTooLong: "file name too long",
	ErrBusy:        "file is busy",
}

// Error implements the error interface.
func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("engine error %d", int32(e))
}

// ErrnoOf extracts the Errno from an error chain. Errors that carry no
// engine code collapse to ErrIO, the catch-all for unrecognized failures.
func ErrnoOf(err error) Errno {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return ErrIO
}
