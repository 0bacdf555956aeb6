package vfs

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/example/flashfs/pkg/engine"
)

// Open opens path and returns its numeric descriptor. The descriptor slot
// is allocated before the engine open so a table failure costs nothing; an
// engine failure releases the just-allocated slot. Opening for write stamps
// the modification time when tracking is enabled.
func (v *Instance) Open(path string, flags engine.OpenFlags) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkMountedLocked("open"); err != nil {
		return -1, err
	}

	h := &fileHandle{hash: pathHash(path)}
	if !v.hashOnly {
		h.path = path
	}
	fd, err := v.fds.allocate(h)
	if err != nil {
		return -1, v.wrap("open", path, err)
	}

	f, err := v.eng.Open(path, flags)
	if err != nil {
		if rerr := v.fds.release(fd); rerr != nil {
			v.log.WithError(rerr).Error("descriptor release after failed open")
		}
		return -1, v.wrap("open", path, err)
	}
	h.file = f

	if v.mtime != MTimeOff && flags.Writable() {
		if err := v.touchLocked(path); err != nil {
			v.log.WithError(err).WithField("path", path).Error("mtime stamp failed")
		}
	}
	v.log.WithFields(logrus.Fields{"path": path, "fd": fd}).Debug("opened")
	return fd, nil
}

// Read reads up to len(p) bytes from the descriptor's current position.
// Returns 0 at end of file.
func (v *Instance) Read(fd int, p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	h, err := v.fds.get(fd)
	if err != nil {
		return -1, v.wrap("read", "", err)
	}
	n, err := h.file.Read(p)
	if err != nil {
		return -1, v.wrap("read", h.path, err)
	}
	return n, nil
}

// Write writes p at the descriptor's current position.
func (v *Instance) Write(fd int, p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	h, err := v.fds.get(fd)
	if err != nil {
		return -1, v.wrap("write", "", err)
	}
	n, err := h.file.Write(p)
	if err != nil {
		return -1, v.wrap("write", h.path, err)
	}
	return n, nil
}

// Seek repositions the descriptor and returns the new offset. The whence
// value is validated before any instance state is touched.
func (v *Instance) Seek(fd int, offset int64, whence engine.Whence) (int64, error) {
	switch whence {
	case engine.SeekStart, engine.SeekCur, engine.SeekEnd:
	default:
		return -1, v.wrap("seek", "", fmt.Errorf("whence %d: %w", whence, engine.ErrInval))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	h, err := v.fds.get(fd)
	if err != nil {
		return -1, v.wrap("seek", "", err)
	}
	pos, err := h.file.Seek(offset, whence)
	if err != nil {
		return -1, v.wrap("seek", h.path, err)
	}
	return pos, nil
}

// Close closes the engine file and releases the descriptor. The descriptor
// is released only if the engine close succeeded; a failing close leaves it
// open so the caller can retry.
func (v *Instance) Close(fd int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	h, err := v.fds.get(fd)
	if err != nil {
		return v.wrap("close", "", err)
	}
	if err := h.file.Close(); err != nil {
		return v.wrap("close", h.path, err)
	}
	if err := v.fds.release(fd); err != nil {
		v.log.WithError(err).WithField("fd", fd).Error("descriptor release failed")
		return v.wrap("close", h.path, err)
	}
	return nil
}

// Sync flushes the engine's buffers for the descriptor.
func (v *Instance) Sync(fd int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	h, err := v.fds.get(fd)
	if err != nil {
		return v.wrap("sync", "", err)
	}
	if err := h.file.Sync(); err != nil {
		return v.wrap("sync", h.path, err)
	}
	return nil
}

// Stat describes the entry at path.
func (v *Instance) Stat(path string) (FileInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.statLocked("stat", path)
}

func (v *Instance) statLocked(op, path string) (FileInfo, error) {
	info, err := v.eng.Stat(path)
	if err != nil {
		return FileInfo{}, v.wrap(op, path, err)
	}
	fi := FileInfo{
		Name:      info.Name,
		Size:      info.Size,
		Dir:       info.Type == engine.TypeDirectory,
		BlockSize: v.geom.BlockSize,
	}
	if v.mtime != MTimeOff {
		fi.ModTime = v.modTimeLocked(path)
	}
	return fi, nil
}

// FStat describes the file behind an open descriptor. The engine's info
// queries need a path, so FStat is unavailable on hash-only instances.
func (v *Instance) FStat(fd int) (FileInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.hashOnly {
		return FileInfo{}, v.wrap("fstat", "",
			fmt.Errorf("unavailable without retained paths: %w", engine.ErrInval))
	}
	h, err := v.fds.get(fd)
	if err != nil {
		return FileInfo{}, v.wrap("fstat", "", err)
	}
	return v.statLocked("fstat", h.path)
}

// Unlink removes the file at path. Removal is refused while any descriptor
// is open on the path, and refused for directories, which go through Rmdir.
func (v *Instance) Unlink(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	info, err := v.eng.Stat(path)
	if err != nil {
		return v.wrap("unlink", path, err)
	}
	if v.fds.findByPath(path) >= 0 {
		return v.wrap("unlink", path, fmt.Errorf("has open descriptor: %w", engine.ErrBusy))
	}
	if info.Type == engine.TypeDirectory {
		return v.wrap("unlink", path, engine.ErrIsDir)
	}
	if err := v.eng.Remove(path); err != nil {
		return v.wrap("unlink", path, err)
	}
	return nil
}

// Rename moves src to dst. Refused while either endpoint has an open
// descriptor.
func (v *Instance) Rename(src, dst string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fds.findByPath(src) >= 0 {
		return v.wrap("rename", src, fmt.Errorf("source is open: %w", engine.ErrBusy))
	}
	if v.fds.findByPath(dst) >= 0 {
		return v.wrap("rename", dst, fmt.Errorf("destination is open: %w", engine.ErrBusy))
	}
	if err := v.eng.Rename(src, dst); err != nil {
		return v.wrap("rename", src, err)
	}
	return nil
}
