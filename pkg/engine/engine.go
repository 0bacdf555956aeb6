// Package engine defines the contract to the underlying block-storage
// filesystem engine: a log-structured, copy-on-write, wear-leveling
// filesystem consumed here as an external collaborator. The engine owns all
// on-flash layout decisions; this module only mounts it, opens files through
// it, and maps its error taxonomy outward.
package engine

// OpenFlags control how a file is opened. The values mirror the engine's
// native flag encoding so conversion is bitwise.
type OpenFlags uint32

const (
	// ORdOnly opens a file read only.
	ORdOnly OpenFlags = 1
	// OWrOnly opens a file write only.
	OWrOnly OpenFlags = 2
	// ORdWr opens a file for reading and writing.
	ORdWr OpenFlags = 3
	// OCreate creates the file if it does not exist.
	OCreate OpenFlags = 0x0100
	// OExcl fails if the file already exists.
	OExcl OpenFlags = 0x0200
	// OTrunc truncates the file to zero size on open.
	OTrunc OpenFlags = 0x0400
	// OAppend moves to the end of the file on every write.
	OAppend OpenFlags = 0x0800
)

// Readable reports whether the flags request read access.
func (f OpenFlags) Readable() bool { return f&ORdOnly != 0 }

// Writable reports whether the flags request write access.
func (f OpenFlags) Writable() bool { return f&OWrOnly != 0 }

// Whence is the origin of a seek.
type Whence int

const (
	// SeekStart seeks relative to the start of the file.
	SeekStart Whence = 0
	// SeekCur seeks relative to the current position.
	SeekCur Whence = 1
	// SeekEnd seeks relative to the end of the file.
	SeekEnd Whence = 2
)

// EntryType distinguishes regular files from directories.
type EntryType uint8

const (
	// TypeRegular is a regular file.
	TypeRegular EntryType = 0x1
	// TypeDirectory is a directory.
	TypeDirectory EntryType = 0x2
)

// Info describes one file or directory.
type Info struct {
	// Name is the entry name without any directory components.
	Name string
	// Size is the file size in bytes; zero for directories.
	Size int64
	// Type is the entry type.
	Type EntryType
}

// File is the engine's per-open-file state: buffers, position, and whatever
// else the engine keeps between calls. Exactly one goroutine may use a File
// at a time; the dispatch layer serializes access under the instance lock.
// Read returns 0, nil at end of file, matching the engine's native read
// semantics rather than io.Reader's.
type File interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, whence Whence) (int64, error)
	Sync() error
	Close() error
}

// Dir is the engine's directory cursor. Read returns ok=false once the
// directory is exhausted. Entries include "." and ".."; filtering them is
// the caller's business. The cursor only moves forward; Rewind is the sole
// way back.
type Dir interface {
	Read() (info Info, ok bool, err error)
	Rewind() error
	Close() error
}

// Engine is the narrow contract to the block-storage filesystem. All
// failures carry an Errno in their chain.
type Engine interface {
	// Mount reads the on-flash state and prepares the engine for use.
	// Mounting unformatted or damaged storage fails with ErrCorrupt.
	Mount() error

	// Unmount releases the mounted state. Open files are invalid afterwards.
	Unmount() error

	// Format writes a fresh empty filesystem. The engine must not be
	// mounted.
	Format() error

	// FSSize returns the number of blocks currently in use.
	FSSize() (int64, error)

	// Open opens the file at path.
	Open(path string, flags OpenFlags) (File, error)

	// OpenDir opens a directory cursor at path.
	OpenDir(path string) (Dir, error)

	// Stat describes the entry at path.
	Stat(path string) (Info, error)

	// Remove deletes a file, or an empty directory.
	Remove(path string) error

	// Rename moves oldPath to newPath.
	Rename(oldPath, newPath string) error

	// Mkdir creates a directory.
	Mkdir(path string) error

	// GetAttr reads the custom attribute id of path into buf, returning the
	// attribute size. ErrNoAttr if the attribute was never set.
	GetAttr(path string, id uint8, buf []byte) (int, error)

	// SetAttr writes the custom attribute id of path.
	SetAttr(path string, id uint8, data []byte) error
}
