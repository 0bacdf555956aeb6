package fuse

import (
	"syscall"

	"bazil.org/fuse"

	"github.com/example/flashfs/pkg/engine"
)

// mapError converts a dispatch-layer error into the errno FUSE reports to
// the kernel. Unrecognized failures collapse to EIO.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch engine.ErrnoOf(err) {
	case engine.ErrNoEnt:
		return fuse.ENOENT
	case engine.ErrExist:
		return fuse.EEXIST
	case engine.ErrNotDir:
		return fuse.Errno(syscall.ENOTDIR)
	case engine.ErrIsDir:
		return fuse.Errno(syscall.EISDIR)
	case engine.ErrNotEmpty:
		return fuse.Errno(syscall.ENOTEMPTY)
	case engine.ErrBadFile:
		return fuse.Errno(syscall.EBADF)
	case engine.ErrTooBig:
		return fuse.Errno(syscall.EFBIG)
	case engine.ErrInval:
		return fuse.Errno(syscall.EINVAL)
	case engine.ErrNoSpace:
		return fuse.Errno(syscall.ENOSPC)
	case engine.ErrNoMem:
		return fuse.Errno(syscall.ENOMEM)
	case engine.ErrNameTooLong:
		return fuse.Errno(syscall.ENAMETOOLONG)
	case engine.ErrBusy:
		return fuse.Errno(syscall.EBUSY)
	case engine.ErrNoAttr:
		return fuse.Errno(syscall.ENODATA)
	default:
		return fuse.EIO
	}
}
