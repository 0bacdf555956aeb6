// Package fuse exposes one mounted partition instance as a FUSE filesystem
// for host-side use. On the device the dispatch layer sits behind the OS
// VFS switch; on a development host this bridge serves the same operations
// through bazil.org/fuse.
package fuse

import (
	"bazil.org/fuse/fs"

	"github.com/example/flashfs/pkg/vfs"
)

// FlashFS implements the FUSE filesystem interface over a partition.
type FlashFS struct {
	inst *vfs.Instance
}

// NewFlashFS creates a FUSE filesystem serving inst.
func NewFlashFS(inst *vfs.Instance) *FlashFS {
	return &FlashFS{inst: inst}
}

// Root returns the root directory of the partition.
func (f *FlashFS) Root() (fs.Node, error) {
	return &Dir{fs: f, path: "/"}, nil
}
