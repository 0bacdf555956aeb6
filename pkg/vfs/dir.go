package vfs

import (
	"fmt"

	"github.com/example/flashfs/pkg/engine"
)

// Mkdir creates a directory at path.
func (v *Instance) Mkdir(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.eng.Mkdir(path); err != nil {
		return v.wrap("mkdir", path, err)
	}
	return nil
}

// Rmdir removes the directory at path. The target is verified to be a
// directory first; files go through Unlink.
func (v *Instance) Rmdir(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	info, err := v.eng.Stat(path)
	if err != nil {
		return v.wrap("rmdir", path, err)
	}
	if info.Type != engine.TypeDirectory {
		return v.wrap("rmdir", path, engine.ErrNotDir)
	}
	if err := v.eng.Remove(path); err != nil {
		return v.wrap("rmdir", path, err)
	}
	return nil
}

// DirHandle iterates a directory. The offset counts entries returned so far
// (after dot filtering), not bytes. The engine cursor only moves forward,
// so a backward Seek rewinds to the start and replays — O(offset), see
// Seek.
type DirHandle struct {
	v      *Instance
	d      engine.Dir
	path   string
	offset int64
}

// OpenDir opens a directory iterator over path.
func (v *Instance) OpenDir(path string) (*DirHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, err := v.eng.OpenDir(path)
	if err != nil {
		return nil, v.wrap("opendir", path, err)
	}
	return &DirHandle{v: v, d: d, path: path}, nil
}

// Read returns the next entry, skipping "." and "..". ok is false once the
// directory is exhausted.
func (d *DirHandle) Read() (info engine.Info, ok bool, err error) {
	d.v.mu.Lock()
	defer d.v.mu.Unlock()
	return d.readLocked()
}

func (d *DirHandle) readLocked() (engine.Info, bool, error) {
	for {
		info, ok, err := d.d.Read()
		if err != nil {
			return engine.Info{}, false, d.v.wrap("readdir", d.path, err)
		}
		if !ok {
			return engine.Info{}, false, nil
		}
		if info.Name == "." || info.Name == ".." {
			continue
		}
		d.offset++
		return info, true, nil
	}
}

// Tell returns the current read offset in entries.
func (d *DirHandle) Tell() int64 {
	d.v.mu.Lock()
	defer d.v.mu.Unlock()
	return d.offset
}

// Seek positions the iterator so the next Read returns the entry at offset.
// Seeking backward rewinds the engine cursor to the start and re-reads
// forward, so it costs O(offset) engine reads.
func (d *DirHandle) Seek(offset int64) error {
	if offset < 0 {
		return d.v.wrap("seekdir", d.path, fmt.Errorf("offset %d: %w", offset, engine.ErrInval))
	}
	d.v.mu.Lock()
	defer d.v.mu.Unlock()
	if offset < d.offset {
		if err := d.d.Rewind(); err != nil {
			return d.v.wrap("seekdir", d.path, err)
		}
		d.offset = 0
	}
	for d.offset < offset {
		_, ok, err := d.readLocked()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}

// Close releases the engine cursor.
func (d *DirHandle) Close() error {
	d.v.mu.Lock()
	defer d.v.mu.Unlock()
	if err := d.d.Close(); err != nil {
		return d.v.wrap("closedir", d.path, err)
	}
	return nil
}
