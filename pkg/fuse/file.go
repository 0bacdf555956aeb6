package fuse

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/example/flashfs/pkg/engine"
)

// File represents a regular file in the partition.
type File struct {
	fs   *FlashFS
	path string
}

// Attr sets the attributes of the file.
func (f *File) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := f.fs.inst.Stat(f.path)
	if err != nil {
		return mapError(err)
	}
	attr.Mode = 0644
	attr.Size = uint64(info.Size)
	attr.Mtime = info.ModTime
	attr.BlockSize = info.BlockSize
	return nil
}

// Open opens the file and returns a handle backed by a descriptor.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	fd, err := f.fs.inst.Open(f.path, convertFlags(req.Flags))
	if err != nil {
		return nil, mapError(err)
	}
	return &FileHandle{fs: f.fs, path: f.path, fd: fd}, nil
}

// FileHandle is an open descriptor on a partition file.
type FileHandle struct {
	fs   *FlashFS
	path string
	fd   int
}

// Read reads from the descriptor at the requested offset.
func (h *FileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if _, err := h.fs.inst.Seek(h.fd, req.Offset, engine.SeekStart); err != nil {
		return mapError(err)
	}
	buf := make([]byte, req.Size)
	n, err := h.fs.inst.Read(h.fd, buf)
	if err != nil {
		return mapError(err)
	}
	resp.Data = buf[:n]
	return nil
}

// Write writes to the descriptor at the requested offset.
func (h *FileHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if _, err := h.fs.inst.Seek(h.fd, req.Offset, engine.SeekStart); err != nil {
		return mapError(err)
	}
	n, err := h.fs.inst.Write(h.fd, req.Data)
	if err != nil {
		return mapError(err)
	}
	resp.Size = n
	return nil
}

// Flush syncs the descriptor on each close of a duplicated handle.
func (h *FileHandle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return mapError(h.fs.inst.Sync(h.fd))
}

// Release closes the descriptor.
func (h *FileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return mapError(h.fs.inst.Close(h.fd))
}

// convertFlags translates kernel open flags into engine open flags.
func convertFlags(in fuse.OpenFlags) engine.OpenFlags {
	var out engine.OpenFlags
	switch {
	case in.IsReadOnly():
		out = engine.ORdOnly
	case in.IsWriteOnly():
		out = engine.OWrOnly
	default:
		out = engine.ORdWr
	}
	if in&fuse.OpenCreate != 0 {
		out |= engine.OCreate
	}
	if in&fuse.OpenExclusive != 0 {
		out |= engine.OExcl
	}
	if in&fuse.OpenTruncate != 0 {
		out |= engine.OTrunc
	}
	if in&fuse.OpenAppend != 0 {
		out |= engine.OAppend
	}
	return out
}
