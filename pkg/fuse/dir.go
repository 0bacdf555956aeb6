package fuse

import (
	"context"
	"os"
	gopath "path"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/example/flashfs/pkg/engine"
)

// Dir represents a directory in the partition.
type Dir struct {
	fs   *FlashFS
	path string
}

// Attr sets the attributes of the directory.
func (d *Dir) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := d.fs.inst.Stat(d.path)
	if err != nil {
		return mapError(err)
	}
	attr.Mode = os.ModeDir | 0755
	attr.Mtime = info.ModTime
	attr.BlockSize = info.BlockSize
	return nil
}

// Lookup looks up a specific entry in the directory.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	p := gopath.Join(d.path, name)
	info, err := d.fs.inst.Stat(p)
	if err != nil {
		return nil, mapError(err)
	}
	if info.Dir {
		return &Dir{fs: d.fs, path: p}, nil
	}
	return &File{fs: d.fs, path: p}, nil
}

// ReadDirAll returns all entries in the directory.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	dh, err := d.fs.inst.OpenDir(d.path)
	if err != nil {
		return nil, mapError(err)
	}
	defer dh.Close()

	var ents []fuse.Dirent
	for {
		info, ok, err := dh.Read()
		if err != nil {
			return nil, mapError(err)
		}
		if !ok {
			return ents, nil
		}
		ent := fuse.Dirent{Name: info.Name, Type: fuse.DT_File}
		if info.Type == engine.TypeDirectory {
			ent.Type = fuse.DT_Dir
		}
		ents = append(ents, ent)
	}
}

// Create creates and opens a file in the directory.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	p := gopath.Join(d.path, req.Name)
	fd, err := d.fs.inst.Open(p, convertFlags(req.Flags)|engine.OCreate)
	if err != nil {
		return nil, nil, mapError(err)
	}
	node := &File{fs: d.fs, path: p}
	return node, &FileHandle{fs: d.fs, path: p, fd: fd}, nil
}

// Mkdir creates a subdirectory.
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	p := gopath.Join(d.path, req.Name)
	if err := d.fs.inst.Mkdir(p); err != nil {
		return nil, mapError(err)
	}
	return &Dir{fs: d.fs, path: p}, nil
}

// Remove unlinks a file or removes a subdirectory.
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	p := gopath.Join(d.path, req.Name)
	if req.Dir {
		return mapError(d.fs.inst.Rmdir(p))
	}
	return mapError(d.fs.inst.Unlink(p))
}

// Rename moves an entry into newDir, which must belong to the same
// partition.
func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	nd, ok := newDir.(*Dir)
	if !ok {
		return fuse.Errno(syscall.EXDEV)
	}
	src := gopath.Join(d.path, req.OldName)
	dst := gopath.Join(nd.path, req.NewName)
	return mapError(d.fs.inst.Rename(src, dst))
}
